// Package services – AdmissionService
//
// This file implements admission control for device scans. A scan during an
// open session either stages the next expected operation for the device as
// a pending row, or, when the device was already scanned in this session,
// cancels the staged row (rescan is a toggle). Committed history decides the
// next operation; pending rows never do. The device projection is not
// touched here.
//
// Serialization relies on the unique (device_id, session_id) index: a
// concurrent request that loses the insert race, or finds the row it meant to
// cancel already gone, restarts its decision in a fresh transaction.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxProposalAttempts = 3

var errProposalRace = errors.New("pending row changed concurrently")

// ProposalResult is the outcome of a scan. Cancelled reports that an
// existing pending row was removed; Operation is then the removed row.
type ProposalResult struct {
	Cancelled bool                       `json:"cancelled"`
	Operation domain.UnapprovedOperation `json:"operation"`
}

// AdmissionService stages and cancels pending operations.
type AdmissionService struct {
	DB    *gorm.DB
	Clock Clock

	// DenyReturns extends the entitlement check to returns. By default only
	// takes require a permission.
	DenyReturns bool
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(db *gorm.DB, clock Clock, denyReturns bool) *AdmissionService {
	return &AdmissionService{DB: db, Clock: clock, DenyReturns: denyReturns}
}

// Propose handles a scan of deviceCode within sessionID. force admits an
// operation the borrower is not entitled to; it is then staged with
// Entitled=false.
func (s *AdmissionService) Propose(ctx context.Context, deviceCode string, sessionID uint, force bool) (*ProposalResult, error) {
	tr := otel.Tracer("services/AdmissionService")
	ctx, span := tr.Start(ctx, "Propose",
		trace.WithAttributes(
			attribute.String("device.code", deviceCode),
			attribute.Int64("session.id", int64(sessionID)),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	dev, err := repo.GetDeviceByCode(ctx, s.DB, deviceCode)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("propose", err)
	}

	for attempt := 1; attempt <= maxProposalAttempts; attempt++ {
		res, err := s.attempt(ctx, dev, sessionID, force)
		if errors.Is(err, errProposalRace) {
			zerolog.Ctx(ctx).Debug().
				Int("attempt", attempt).
				Str("device", dev.Code).
				Uint("session_id", sessionID).
				Msg("proposal raced, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotEntitled) {
				proposalsTotal.WithLabelValues("denied").Inc()
			}
			return nil, err
		}
		switch {
		case res.Cancelled:
			proposalsTotal.WithLabelValues("cancelled").Inc()
		case !res.Operation.Entitled:
			proposalsTotal.WithLabelValues("forced").Inc()
		default:
			proposalsTotal.WithLabelValues("staged").Inc()
		}
		span.SetAttributes(attribute.Bool("cancelled", res.Cancelled))
		return res, nil
	}
	proposalsTotal.WithLabelValues("exhausted").Inc()
	return nil, internalError("propose", errProposalRace)
}

func (s *AdmissionService) attempt(ctx context.Context, dev *domain.Device, sessionID uint, force bool) (*ProposalResult, error) {
	var out *ProposalResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetSession(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.Status != domain.SessionInProgress || sess.EndTime != nil {
			return ErrSessionNotOpen
		}

		var lastType domain.OperationType
		last, err := repo.GetLastOperation(ctx, tx, dev.ID)
		switch {
		case err == nil:
			lastType = last.OperationType
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		next := lastType.Next()

		now := s.Clock.Now()
		entitled, err := repo.HasActivePermission(ctx, tx, sess.UserID, dev.RoomID, now)
		if err != nil {
			return err
		}

		pending, err := repo.GetPending(ctx, tx, dev.ID, sessionID)
		switch {
		case err == nil:
			n, err := repo.DeletePending(ctx, tx, pending.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return errProposalRace
			}
			out = &ProposalResult{Cancelled: true, Operation: *pending}
			return nil
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		if !entitled && !force && (next == domain.OperationTake || s.DenyReturns) {
			return ErrNotEntitled
		}

		op := &domain.UnapprovedOperation{
			DeviceID:      dev.ID,
			SessionID:     sessionID,
			OperationType: next,
			Entitled:      entitled,
			Timestamp:     now,
		}
		if err := repo.CreatePending(ctx, tx, op); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return errProposalRace
			}
			return err
		}
		out = &ProposalResult{Operation: *op}
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) || errors.Is(err, errProposalRace) {
			return nil, err
		}
		return nil, internalError("propose", err)
	}
	return out, nil
}

// ListPending returns the session's staged operations in scan order.
func (s *AdmissionService) ListPending(ctx context.Context, sessionID uint) ([]domain.UnapprovedOperation, error) {
	if _, err := repo.GetSession(ctx, s.DB, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("list pending", err)
	}
	ops, err := repo.ListPendingForSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, internalError("list pending", err)
	}
	return nonNil(ops), nil
}
