// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for room
// permissions.
//
// Intervals are half-open [starts_at, ends_at). All instants are stored and
// compared in UTC so that SQLite's textual comparison of DATETIME values
// matches chronological order.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// PermissionRow is a permission joined with its room number.
type PermissionRow struct {
	ID         uint      `json:"id"`
	UserID     uint      `json:"user_id"`
	RoomID     uint      `json:"room_id"`
	RoomNumber string    `json:"room_number"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}

// PermissionQuery narrows ListPermissionRows. Nil pointers mean "any".
type PermissionQuery struct {
	UserID *uint
	RoomID *uint
	// EndsAfter keeps only rows with ends_at > EndsAfter.
	EndsAfter time.Time
	// StartsFrom/StartsBefore bound starts_at to [StartsFrom, StartsBefore).
	StartsFrom   *time.Time
	StartsBefore *time.Time
	// At keeps only rows whose interval contains At.
	At *time.Time
}

// CreatePermission inserts p. Callers check overlap in the same transaction.
func CreatePermission(ctx context.Context, db *gorm.DB, p *domain.Permission) error {
	p.StartsAt = p.StartsAt.UTC()
	p.EndsAt = p.EndsAt.UTC()
	p.CreatedAt = stamp(db)
	err := db.WithContext(ctx).Omit("User", "Room").Create(p).Error
	if IsForeignKey(err) {
		return ErrNotFound
	}
	return err
}

// HasOverlappingPermission reports whether any permission of roomID
// intersects [start, end).
func HasOverlappingPermission(ctx context.Context, db *gorm.DB, roomID uint, start, end time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Permission{}).
		Where("room_id = ? AND starts_at < ? AND ends_at > ?", roomID, end.UTC(), start.UTC()).
		Count(&n).Error
	return n > 0, err
}

// HasActivePermission reports whether userID holds a permission for roomID
// whose interval contains at.
func HasActivePermission(ctx context.Context, db *gorm.DB, userID, roomID uint, at time.Time) (bool, error) {
	at = at.UTC()
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Permission{}).
		Where("user_id = ? AND room_id = ? AND starts_at <= ? AND ends_at > ?", userID, roomID, at, at).
		Count(&n).Error
	return n > 0, err
}

// ListPermissionRows returns permissions matching q ordered by starts_at.
func ListPermissionRows(ctx context.Context, db *gorm.DB, q PermissionQuery) ([]PermissionRow, error) {
	tx := db.WithContext(ctx).
		Table("permissions").
		Select("permissions.id, permissions.user_id, permissions.room_id, rooms.number AS room_number, permissions.starts_at, permissions.ends_at").
		Joins("JOIN rooms ON rooms.id = permissions.room_id").
		Where("permissions.ends_at > ?", q.EndsAfter.UTC())
	if q.UserID != nil {
		tx = tx.Where("permissions.user_id = ?", *q.UserID)
	}
	if q.RoomID != nil {
		tx = tx.Where("permissions.room_id = ?", *q.RoomID)
	}
	if q.StartsFrom != nil {
		tx = tx.Where("permissions.starts_at >= ?", q.StartsFrom.UTC())
	}
	if q.StartsBefore != nil {
		tx = tx.Where("permissions.starts_at < ?", q.StartsBefore.UTC())
	}
	if q.At != nil {
		at := q.At.UTC()
		tx = tx.Where("permissions.starts_at <= ? AND permissions.ends_at > ?", at, at)
	}

	var out []PermissionRow
	err := tx.Order("permissions.starts_at asc, permissions.id asc").Scan(&out).Error
	return out, err
}

// DeletePermission removes a permission by id, or returns ErrNotFound.
func DeletePermission(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Permission{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeletePermissionsEndedBefore purges permissions whose interval ended
// before cutoff and returns how many rows were removed.
func DeletePermissionsEndedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("ends_at < ?", cutoff.UTC()).
		Delete(&domain.Permission{})
	return res.RowsAffected, res.Error
}
