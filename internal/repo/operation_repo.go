// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the two-phase
// operation ledger: unapproved (pending) operations and the approved
// device_operations history.
//
// Error semantics:
//   - CreatePending returns ErrDuplicate when a row already exists for the
//     same (device, session); callers re-run their decision.
//   - GetPending and GetLastOperation return gorm.ErrRecordNotFound when no
//     row matches.
//   - History rows are append-only; there is no update or delete here.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// GetPending returns the pending operation for (deviceID, sessionID).
func GetPending(ctx context.Context, db *gorm.DB, deviceID, sessionID uint) (*domain.UnapprovedOperation, error) {
	var op domain.UnapprovedOperation
	err := db.WithContext(ctx).
		Where("device_id = ? AND session_id = ?", deviceID, sessionID).
		First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CreatePending inserts op.
func CreatePending(ctx context.Context, db *gorm.DB, op *domain.UnapprovedOperation) error {
	op.Timestamp = op.Timestamp.UTC()
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(op).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeletePending removes a pending row by id and returns the affected count.
// A count of 0 means a concurrent request already removed it.
func DeletePending(ctx context.Context, db *gorm.DB, id uint) (int64, error) {
	res := db.WithContext(ctx).Delete(&domain.UnapprovedOperation{}, id)
	return res.RowsAffected, res.Error
}

// ListPendingForSession returns the session's pending rows in scan order.
func ListPendingForSession(ctx context.Context, db *gorm.DB, sessionID uint) ([]domain.UnapprovedOperation, error) {
	var out []domain.UnapprovedOperation
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp asc, id asc").
		Find(&out).Error
	return out, err
}

// DeletePendingForSession removes every pending row of a session.
func DeletePendingForSession(ctx context.Context, db *gorm.DB, sessionID uint) (int64, error) {
	res := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.UnapprovedOperation{})
	return res.RowsAffected, res.Error
}

// CreateOperation appends a history row.
func CreateOperation(ctx context.Context, db *gorm.DB, op *domain.DeviceOperation) error {
	op.Timestamp = op.Timestamp.UTC()
	return db.WithContext(ctx).Omit(clause.Associations).Create(op).Error
}

// GetLastOperation returns the device's latest history row (highest
// timestamp, then highest id).
func GetLastOperation(ctx context.Context, db *gorm.DB, deviceID uint) (*domain.DeviceOperation, error) {
	var op domain.DeviceOperation
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperationsForSession returns the history rows committed by a session,
// oldest first.
func ListOperationsForSession(ctx context.Context, db *gorm.DB, sessionID uint) ([]domain.DeviceOperation, error) {
	var out []domain.DeviceOperation
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp asc, id asc").
		Find(&out).Error
	return out, err
}

// ListOperationsHeldBy returns take operations that are still the latest
// history row of their device and whose session was opened for userID.
func ListOperationsHeldBy(ctx context.Context, db *gorm.DB, userID uint) ([]domain.DeviceOperation, error) {
	var out []domain.DeviceOperation
	err := db.WithContext(ctx).
		Table("device_operations AS o").
		Select("o.*").
		Joins("JOIN sessions s ON s.id = o.session_id").
		Where("o.operation_type = ? AND s.user_id = ?", domain.OperationTake, userID).
		Where(`NOT EXISTS (
			SELECT 1 FROM device_operations o2
			WHERE o2.device_id = o.device_id
			  AND (o2.timestamp > o.timestamp OR (o2.timestamp = o.timestamp AND o2.id > o.id)))`).
		Order("o.timestamp asc, o.id asc").
		Find(&out).Error
	return out, err
}

// CountOperationsForDevice returns the size of a device's history.
func CountOperationsForDevice(ctx context.Context, db *gorm.DB, deviceID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.DeviceOperation{}).
		Where("device_id = ?", deviceID).
		Count(&total).Error
	return total, err
}

// ListOperationsForDevicePage returns a page of a device's history, newest
// first.
func ListOperationsForDevicePage(ctx context.Context, db *gorm.DB, deviceID uint, offset, limit int) ([]domain.DeviceOperation, error) {
	var out []domain.DeviceOperation
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
