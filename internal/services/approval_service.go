// Package services – ApprovalService
//
// This file implements the approval engine. Approve re-authenticates a
// concierge, then in a single transaction closes the session, promotes every
// pending row to history (keeping the original scan timestamp), removes the
// pending rows and updates the device projection. Any failure rolls the
// whole unit back: the session stays in progress and the ledger is intact.
//
// Reject closes the session as rejected and discards its pending rows.
//
// Observability: both entry points are OpenTelemetry-instrumented and feed
// the access_sessions_closed_total / access_operations_approved_total
// counters after commit.
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

// ApprovalService finalizes sessions.
type ApprovalService struct {
	DB       *gorm.DB
	Auth     Authenticator
	Sessions *SessionService
	History  *HistoryService
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(db *gorm.DB, auth Authenticator, sessions *SessionService, history *HistoryService) *ApprovalService {
	return &ApprovalService{DB: db, Auth: auth, Sessions: sessions, History: history}
}

// Approve authenticates creds as a concierge and commits the session's
// pending operations. It returns the created history rows in scan order.
func (s *ApprovalService) Approve(ctx context.Context, sessionID uint, creds Credentials) ([]domain.DeviceOperation, error) {
	tr := otel.Tracer("services/ApprovalService")
	ctx, span := tr.Start(ctx, "Approve",
		trace.WithAttributes(attribute.Int64("session.id", int64(sessionID))),
	)
	defer span.End()

	approver, err := s.Auth.Authenticate(ctx, creds, domain.RoleConcierge)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("approver.id", int64(approver.User.ID)))

	var created []domain.DeviceOperation
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.Sessions.Close(ctx, tx, sessionID, false)
		if err != nil {
			return err
		}

		pending, err := repo.ListPendingForSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return ErrNoPendingOps
		}

		created = make([]domain.DeviceOperation, 0, len(pending))
		for _, p := range pending {
			last, err := s.History.LastForDevice(ctx, tx, p.DeviceID)
			if err != nil {
				return err
			}
			var lastType domain.OperationType
			if last != nil {
				lastType = last.OperationType
				// A scan older than the latest committed row would land in
				// the middle of the history.
				if !p.Timestamp.After(last.Timestamp) {
					return ErrStaleOperation
				}
			}
			if lastType.Next() != p.OperationType {
				return ErrStaleOperation
			}

			sid := sessionID
			op := domain.DeviceOperation{
				DeviceID:      p.DeviceID,
				SessionID:     &sid,
				OperationType: p.OperationType,
				Entitled:      p.Entitled,
				Timestamp:     p.Timestamp,
			}
			if err := repo.CreateOperation(ctx, tx, &op); err != nil {
				return err
			}
			if _, err := repo.DeletePending(ctx, tx, p.ID); err != nil {
				return err
			}
			if err := repo.ApplyProjection(ctx, tx, p.DeviceID, op, sess.UserID); err != nil {
				return err
			}
			created = append(created, op)
		}
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		zerolog.Ctx(ctx).Error().Err(err).Uint("session_id", sessionID).Msg("approve rolled back")
		return nil, internalError("approve session", err)
	}

	sessionsClosedTotal.WithLabelValues(string(domain.SessionApproved)).Inc()
	for _, op := range created {
		operationsApprovedTotal.WithLabelValues(string(op.OperationType)).Inc()
	}
	span.SetAttributes(attribute.Int("operations.count", len(created)))
	return created, nil
}

// Reject closes the session as rejected and discards its pending rows,
// returning how many were removed.
func (s *ApprovalService) Reject(ctx context.Context, sessionID uint) (int64, error) {
	tr := otel.Tracer("services/ApprovalService")
	ctx, span := tr.Start(ctx, "Reject",
		trace.WithAttributes(attribute.Int64("session.id", int64(sessionID))),
	)
	defer span.End()

	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.Sessions.Close(ctx, tx, sessionID, true); err != nil {
			return err
		}
		n, err := repo.DeletePendingForSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return 0, err
		}
		return 0, internalError("reject session", err)
	}

	sessionsClosedTotal.WithLabelValues(string(domain.SessionRejected)).Inc()
	span.SetAttributes(attribute.Int64("deleted", deleted))
	return deleted, nil
}
