// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for user and
// device notes.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// CreateUserNote attaches a note to a user.
func CreateUserNote(ctx context.Context, db *gorm.DB, userID uint, authorID *uint, body string) (*domain.UserNote, error) {
	n := &domain.UserNote{UserID: userID, AuthorID: authorID, Body: body, CreatedAt: stamp(db)}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(n).Error; err != nil {
		if IsForeignKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// ListUserNotes returns a user's notes, oldest first.
func ListUserNotes(ctx context.Context, db *gorm.DB, userID uint) ([]domain.UserNote, error) {
	var out []domain.UserNote
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// CreateDeviceNote attaches a note to a device.
func CreateDeviceNote(ctx context.Context, db *gorm.DB, deviceID uint, authorID *uint, body string) (*domain.DeviceNote, error) {
	n := &domain.DeviceNote{DeviceID: deviceID, AuthorID: authorID, Body: body, CreatedAt: stamp(db)}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(n).Error; err != nil {
		if IsForeignKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// ListDeviceNotes returns a device's notes, oldest first.
func ListDeviceNotes(ctx context.Context, db *gorm.DB, deviceID uint) ([]domain.DeviceNote, error) {
	var out []domain.DeviceNote
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}
