// Package services – SessionService
//
// This file implements the session manager. A session is a bounded
// issue/return window opened by a concierge for one borrower. It leaves
// in_progress exactly once, through Close, which is always executed inside
// the caller's transaction so that the status change commits or rolls back
// together with the ledger changes it guards.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionFilter narrows List. Zero values mean "any".
type SessionFilter struct {
	Status      domain.SessionStatus
	ConciergeID uint
	UserID      uint
}

// SessionService opens, closes and lists sessions.
type SessionService struct {
	DB    *gorm.DB
	Clock Clock
	Users *UserService
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, clock Clock, users *UserService) *SessionService {
	return &SessionService{DB: db, Clock: clock, Users: users}
}

// Open starts an in-progress session for the borrower userID, supervised by
// conciergeID.
func (s *SessionService) Open(ctx context.Context, userID, conciergeID uint) (*domain.Session, error) {
	return s.OpenFor(ctx, BorrowerRef{ID: userID}, conciergeID)
}

// OpenFor is Open with the borrower given by id, login or card.
func (s *SessionService) OpenFor(ctx context.Context, ref BorrowerRef, conciergeID uint) (*domain.Session, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Open",
		trace.WithAttributes(attribute.Int64("concierge.id", int64(conciergeID))),
	)
	defer span.End()

	borrower, err := s.Users.FindBorrower(ctx, ref)
	if err != nil {
		return nil, err
	}

	c, err := repo.GetUser(ctx, s.DB, conciergeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConciergeNotFound
		}
		return nil, internalError("open session", err)
	}
	if c.Account == nil || !c.Account.Role.AtLeast(domain.RoleConcierge) {
		return nil, ErrInsufficientRole
	}

	sess := &domain.Session{
		UserID:      borrower.IdentityID(),
		ConciergeID: conciergeID,
		StartTime:   s.Clock.Now(),
		Status:      domain.SessionInProgress,
	}
	if err := repo.CreateSession(ctx, s.DB, sess); err != nil {
		return nil, internalError("open session", err)
	}
	span.SetAttributes(attribute.Int64("session.id", int64(sess.ID)))
	return sess, nil
}

// Close moves session id to approved (reject=false) or rejected, stamping
// EndTime. It runs on tx and fails with ErrSessionNotFound or
// ErrSessionEnded without writing anything.
func (s *SessionService) Close(ctx context.Context, tx *gorm.DB, id uint, reject bool) (*domain.Session, error) {
	status := domain.SessionApproved
	if reject {
		status = domain.SessionRejected
	}
	n, err := repo.CloseSession(ctx, tx, id, status, s.Clock.Now())
	if err != nil {
		return nil, internalError("close session", err)
	}
	sess, err := repo.GetSession(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("close session", err)
	}
	if n == 0 {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id uint) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("get session", err)
	}
	return sess, nil
}

// List returns a page of sessions matching f, newest first, and the total.
func (s *SessionService) List(ctx context.Context, f SessionFilter, page, pageSize int) ([]domain.Session, int64, error) {
	if f.Status != "" && f.Status != domain.SessionInProgress && !f.Status.Terminal() {
		return nil, 0, newError(ErrInvalid, "unknown session status")
	}
	offset, limit := utils.PageBounds(page, pageSize, 20)
	q := repo.SessionQuery{Status: f.Status, ConciergeID: f.ConciergeID, UserID: f.UserID}

	total, err := repo.CountSessions(ctx, s.DB, q)
	if err != nil {
		return nil, 0, internalError("count sessions", err)
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, q, offset, limit)
	if err != nil {
		return nil, 0, internalError("list sessions", err)
	}
	return items, total, nil
}
