// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Room model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Room numbers are expected to arrive
// already normalized by the service layer.
//
// Error semantics:
//   - When a room is not found, functions return gorm.ErrRecordNotFound
//     (also exported as ErrNotFound).
//   - A duplicate number is reported as ErrDuplicate.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// CreateRoom inserts a room with the given (normalized) number.
func CreateRoom(ctx context.Context, db *gorm.DB, number string) (*domain.Room, error) {
	r := &domain.Room{Number: number, CreatedAt: stamp(db)}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetRoom fetches a room by primary key.
func GetRoom(ctx context.Context, db *gorm.DB, id uint) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoomByNumber fetches a room by its unique number.
func GetRoomByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Room, error) {
	var r domain.Room
	err := db.WithContext(ctx).
		Where("number = ?", number).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRooms returns every room in insertion order. Callers that need the
// human ordering apply a natural sort on Number.
func ListRooms(ctx context.Context, db *gorm.DB) ([]domain.Room, error) {
	var out []domain.Room
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}
