// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Device
// model and its cached state projection.
//
// Functions:
//
//   - CreateDevice(ctx, db, d) -> error
//     Inserts a device. Duplicate codes or (type, room, version) triples
//     are reported as ErrDuplicate; an unknown room as ErrNotFound.
//
//   - GetDevice / GetDeviceByCode -> *domain.Device, error
//
//   - ListDeviceRows(ctx, db, filter) -> []DeviceRow, error
//     Joined listing with room number and note presence.
//
//   - ApplyProjection(ctx, db, deviceID, op, ownerID) -> error
//     Writes IsTaken/LastTakenAt/LastReturnedAt/LastOwnerID after an
//     approved operation. Only the approval transaction calls it.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// DeviceRow is a device joined with its room number and a flag telling
// whether any note is attached to it.
type DeviceRow struct {
	ID             uint                 `json:"id"`
	Code           string               `json:"code"`
	Type           domain.DeviceType    `json:"type"`
	Version        domain.DeviceVersion `json:"version"`
	RoomID         uint                 `json:"room_id"`
	RoomNumber     string               `json:"room_number"`
	IsTaken        bool                 `json:"is_taken"`
	LastTakenAt    *time.Time           `json:"last_taken_at,omitempty"`
	LastReturnedAt *time.Time           `json:"last_returned_at,omitempty"`
	LastOwnerID    *uint                `json:"last_owner_id,omitempty"`
	HasNote        bool                 `json:"has_note"`
}

// LastOperationAt returns the timestamp of the latest approved operation,
// or nil if the device has never been handed out.
func (r DeviceRow) LastOperationAt() *time.Time {
	switch {
	case r.LastTakenAt == nil:
		return r.LastReturnedAt
	case r.LastReturnedAt == nil:
		return r.LastTakenAt
	case r.LastReturnedAt.After(*r.LastTakenAt):
		return r.LastReturnedAt
	default:
		return r.LastTakenAt
	}
}

// DeviceFilter narrows ListDeviceRows. Zero values mean "any".
type DeviceFilter struct {
	RoomNumber string
	Type       domain.DeviceType
}

// CreateDevice inserts d. CreatedAt is taken from the session clock.
func CreateDevice(ctx context.Context, db *gorm.DB, d *domain.Device) error {
	d.CreatedAt = stamp(db)
	if err := db.WithContext(ctx).Omit("Room").Create(d).Error; err != nil {
		switch {
		case IsDuplicate(err):
			return ErrDuplicate
		case IsForeignKey(err):
			return ErrNotFound
		}
		return err
	}
	return nil
}

// GetDevice fetches a device by primary key.
func GetDevice(ctx context.Context, db *gorm.DB, id uint) (*domain.Device, error) {
	var d domain.Device
	if err := db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeviceByCode fetches a device by its unique code.
func GetDeviceByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Device, error) {
	var d domain.Device
	err := db.WithContext(ctx).
		Where("code = ?", code).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeviceRows returns devices joined with their room number, ordered by
// room id, type and version. Natural ordering of room numbers is left to the
// caller.
func ListDeviceRows(ctx context.Context, db *gorm.DB, f DeviceFilter) ([]DeviceRow, error) {
	q := db.WithContext(ctx).
		Table("devices").
		Select(`devices.id, devices.code, devices.type, devices.version, devices.room_id,
			rooms.number AS room_number,
			devices.is_taken, devices.last_taken_at, devices.last_returned_at, devices.last_owner_id,
			EXISTS (SELECT 1 FROM device_notes n WHERE n.device_id = devices.id) AS has_note`).
		Joins("JOIN rooms ON rooms.id = devices.room_id")
	if f.RoomNumber != "" {
		q = q.Where("rooms.number = ?", f.RoomNumber)
	}
	if f.Type != "" {
		q = q.Where("devices.type = ?", f.Type)
	}

	var out []DeviceRow
	err := q.Order("devices.room_id asc, devices.type asc, devices.version asc").
		Scan(&out).Error
	return out, err
}

// ApplyProjection updates the cached state of a device after op has been
// committed to history. ownerID is the borrower of op's session.
func ApplyProjection(ctx context.Context, db *gorm.DB, deviceID uint, op domain.DeviceOperation, ownerID uint) error {
	updates := map[string]any{}
	switch op.OperationType {
	case domain.OperationTake:
		updates["is_taken"] = true
		updates["last_taken_at"] = op.Timestamp.UTC()
		updates["last_owner_id"] = ownerID
	default:
		updates["is_taken"] = false
		updates["last_returned_at"] = op.Timestamp.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
