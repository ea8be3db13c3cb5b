// Package services – PermissionService
//
// This file implements the permission oracle: it answers whether a user may
// handle the devices of a room at a given instant, and maintains the
// non-overlapping per-room reservation intervals that back that answer.
package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PermissionFilter narrows List. Date selects permissions starting on that
// civil date in the site zone; Time (alone or with Date) selects
// permissions whose interval contains that instant.
type PermissionFilter struct {
	UserID *uint
	RoomID *uint
	Date   *time.Time
	Time   *time.Time
}

// PermissionService owns room permissions.
type PermissionService struct {
	DB    *gorm.DB
	Clock Clock
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(db *gorm.DB, clock Clock) *PermissionService {
	return &PermissionService{DB: db, Clock: clock}
}

// IsPermitted reports whether userID holds a permission for roomID whose
// half-open interval contains at.
func (s *PermissionService) IsPermitted(ctx context.Context, userID, roomID uint, at time.Time) (bool, error) {
	ok, err := repo.HasActivePermission(ctx, s.DB, userID, roomID, at)
	if err != nil {
		return false, internalError("check permission", err)
	}
	return ok, nil
}

// List returns permissions that have not yet ended, ordered by start and
// then by natural room number. An empty result is an empty slice.
func (s *PermissionService) List(ctx context.Context, f PermissionFilter) ([]repo.PermissionRow, error) {
	tr := otel.Tracer("services/PermissionService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	now := s.Clock.Now()
	q := repo.PermissionQuery{UserID: f.UserID, RoomID: f.RoomID, EndsAfter: now}

	loc := locationOf(s.Clock)
	if f.Date != nil {
		from, before := dayBounds(*f.Date, loc)
		q.StartsFrom, q.StartsBefore = &from, &before
	}
	if f.Time != nil {
		at := f.Time.UTC()
		q.At = &at
	}

	rows, err := repo.ListPermissionRows(ctx, s.DB, q)
	if err != nil {
		return nil, internalError("list permissions", err)
	}
	slices.SortStableFunc(rows, func(a, b repo.PermissionRow) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		return utils.CompareRooms(a.RoomNumber, b.RoomNumber)
	})
	span.SetAttributes(attribute.Int("permissions.count", len(rows)))
	if rows == nil {
		rows = []repo.PermissionRow{}
	}
	return rows, nil
}

// Grant creates a permission for userID on roomID during [start, end). The
// overlap check and the insert share one transaction.
func (s *PermissionService) Grant(ctx context.Context, userID, roomID uint, start, end time.Time) (*domain.Permission, error) {
	tr := otel.Tracer("services/PermissionService")
	ctx, span := tr.Start(ctx, "Grant",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("room.id", int64(roomID)),
		),
	)
	defer span.End()

	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil, ErrInvalidInterval
	}

	p := &domain.Permission{UserID: userID, RoomID: roomID, StartsAt: start, EndsAt: end}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if _, err := repo.GetRoom(ctx, tx, roomID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		overlap, err := repo.HasOverlappingPermission(ctx, tx, roomID, start, end)
		if err != nil {
			return err
		}
		if overlap {
			return ErrPermissionOverlap
		}
		return repo.CreatePermission(ctx, tx, p)
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, internalError("grant permission", err)
	}
	return p, nil
}

// Revoke deletes a permission.
func (s *PermissionService) Revoke(ctx context.Context, id uint) error {
	if err := repo.DeletePermission(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return internalError("revoke permission", err)
	}
	return nil
}

// PruneExpired deletes permissions that ended more than retention ago.
func (s *PermissionService) PruneExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := repo.DeletePermissionsEndedBefore(ctx, s.DB, s.Clock.Now().Add(-retention))
	if err != nil {
		return 0, internalError("prune permissions", err)
	}
	return n, nil
}

// Location returns the site zone used to interpret civil dates.
func (s *PermissionService) Location() *time.Location {
	return locationOf(s.Clock)
}
