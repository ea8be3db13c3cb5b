// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users and their
// account/guest variant rows.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// CreateUser inserts u together with its Account or Guest variant. GORM
// wraps the association writes in its default transaction. Unique
// violations (login, card) are reported as ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	u.CreatedAt = stamp(db)
	err := db.WithContext(ctx).Create(u).Error
	if IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetUser fetches a user by id with both variant associations preloaded.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Preload("Account").
		Preload("Guest").
		First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByLogin fetches the account user owning login.
func GetUserByLogin(ctx context.Context, db *gorm.DB, login string) (*domain.User, error) {
	return getAccountUser(ctx, db, "accounts.login = ?", login)
}

// GetUserByCard fetches the account user owning the access card.
func GetUserByCard(ctx context.Context, db *gorm.DB, cardID string) (*domain.User, error) {
	return getAccountUser(ctx, db, "accounts.card_id = ?", cardID)
}

func getAccountUser(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.user_id = users.id").
		Where(where, arg).
		Preload("Account").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}
