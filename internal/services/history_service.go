package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/utils"
)

// HistoryService reads the approved, append-only operation history.
type HistoryService struct {
	DB *gorm.DB
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{DB: db}
}

// LastForDevice returns the device's latest committed operation, or nil if
// it has none. db may be a transaction.
func (s *HistoryService) LastForDevice(ctx context.Context, db *gorm.DB, deviceID uint) (*domain.DeviceOperation, error) {
	if db == nil {
		db = s.DB
	}
	op, err := repo.GetLastOperation(ctx, db, deviceID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internalError("last operation", err)
	}
	return op, nil
}

// ListForSession returns the operations a session committed, oldest first.
func (s *HistoryService) ListForSession(ctx context.Context, sessionID uint) ([]domain.DeviceOperation, error) {
	if _, err := repo.GetSession(ctx, s.DB, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("session history", err)
	}
	ops, err := repo.ListOperationsForSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, internalError("session history", err)
	}
	return nonNil(ops), nil
}

// ListHeldBy returns the take operations through which userID currently
// holds devices.
func (s *HistoryService) ListHeldBy(ctx context.Context, userID uint) ([]domain.DeviceOperation, error) {
	ops, err := repo.ListOperationsHeldBy(ctx, s.DB, userID)
	if err != nil {
		return nil, internalError("held devices", err)
	}
	return nonNil(ops), nil
}

// ListForDevice returns a page of the device's audit trail, newest first.
func (s *HistoryService) ListForDevice(ctx context.Context, deviceID uint, page, pageSize int) ([]domain.DeviceOperation, int64, error) {
	offset, limit := utils.PageBounds(page, pageSize, 20)
	total, err := repo.CountOperationsForDevice(ctx, s.DB, deviceID)
	if err != nil {
		return nil, 0, internalError("device history", err)
	}
	if total == 0 {
		return []domain.DeviceOperation{}, 0, nil
	}
	ops, err := repo.ListOperationsForDevicePage(ctx, s.DB, deviceID, offset, limit)
	if err != nil {
		return nil, 0, internalError("device history", err)
	}
	return ops, total, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
