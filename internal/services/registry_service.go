// Package services – RegistryService
//
// This file implements the device/room registry. Room numbers are
// normalized to upper case with golang.org/x/text so that "b12" and "B12"
// name the same room. Device state columns are never written here; they
// are projected by ApprovalService when history is committed.
package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/utils"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DeviceFilter narrows ListDevices. Zero values mean "any".
type DeviceFilter struct {
	RoomNumber string
	Type       domain.DeviceType
}

// RegistryService manages rooms and devices.
type RegistryService struct {
	DB *gorm.DB
}

// NewRegistryService constructs a RegistryService.
func NewRegistryService(db *gorm.DB) *RegistryService {
	return &RegistryService{DB: db}
}

// NormalizeRoomNumber trims and upper-cases a room number.
func (s *RegistryService) NormalizeRoomNumber(number string) string {
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Upper(language.Und).String(strings.TrimSpace(number))
}

// CreateRoom registers a room.
func (s *RegistryService) CreateRoom(ctx context.Context, number string) (*domain.Room, error) {
	number = s.NormalizeRoomNumber(number)
	if number == "" {
		return nil, ErrEmptyRoomNumber
	}
	r, err := repo.CreateRoom(ctx, s.DB, number)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateRoom
		}
		return nil, internalError("create room", err)
	}
	return r, nil
}

// GetRoomByNumber looks a room up by its (normalized) number.
func (s *RegistryService) GetRoomByNumber(ctx context.Context, number string) (*domain.Room, error) {
	r, err := repo.GetRoomByNumber(ctx, s.DB, s.NormalizeRoomNumber(number))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, internalError("get room", err)
	}
	return r, nil
}

// ListRooms returns all rooms in natural order.
func (s *RegistryService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := repo.ListRooms(ctx, s.DB)
	if err != nil {
		return nil, internalError("list rooms", err)
	}
	slices.SortStableFunc(rooms, func(a, b domain.Room) int {
		return utils.CompareRooms(a.Number, b.Number)
	})
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return rooms, nil
}

// CreateDevice registers a device in the room identified by roomNumber.
func (s *RegistryService) CreateDevice(ctx context.Context, code, roomNumber string, typ domain.DeviceType, version domain.DeviceVersion) (*domain.Device, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingField
	}
	if !typ.Valid() || !version.Valid() {
		return nil, ErrInvalidDeviceType
	}
	room, err := s.GetRoomByNumber(ctx, roomNumber)
	if err != nil {
		return nil, err
	}
	d := &domain.Device{Code: code, Type: typ, Version: version, RoomID: room.ID}
	if err := repo.CreateDevice(ctx, s.DB, d); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrDuplicateDevice
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrRoomNotFound
		}
		return nil, internalError("create device", err)
	}
	return d, nil
}

// GetDevice looks a device up by code.
func (s *RegistryService) GetDevice(ctx context.Context, code string) (*domain.Device, error) {
	d, err := repo.GetDeviceByCode(ctx, s.DB, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("get device", err)
	}
	return d, nil
}

// ListDevices returns the composite device listing ordered by natural room
// number, then type, then version.
func (s *RegistryService) ListDevices(ctx context.Context, f DeviceFilter) ([]repo.DeviceRow, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, ErrInvalidDeviceType
	}
	rows, err := repo.ListDeviceRows(ctx, s.DB, repo.DeviceFilter{
		RoomNumber: s.NormalizeRoomNumber(f.RoomNumber),
		Type:       f.Type,
	})
	if err != nil {
		return nil, internalError("list devices", err)
	}
	slices.SortStableFunc(rows, func(a, b repo.DeviceRow) int {
		if c := utils.CompareRooms(a.RoomNumber, b.RoomNumber); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Type), string(b.Type)); c != 0 {
			return c
		}
		return versionRank(a.Version) - versionRank(b.Version)
	})
	if rows == nil {
		rows = []repo.DeviceRow{}
	}
	return rows, nil
}

// Stats returns the device count and the latest change instant, used for
// ETag computation.
func (s *RegistryService) Stats(ctx context.Context) (int64, string, error) {
	n, at, err := repo.DevicesStats(ctx, s.DB)
	if err != nil {
		return 0, "", internalError("device stats", err)
	}
	if at == nil {
		return n, "", nil
	}
	return n, at.UTC().Format("20060102T150405.000000000Z"), nil
}

func versionRank(v domain.DeviceVersion) int {
	if v == domain.VersionPrimary {
		return 0
	}
	return 1
}
