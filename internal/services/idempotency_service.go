package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
)

// IdempotencyService records responses of unsafe requests so that a retry
// carrying the same Idempotency-Key is answered from the record.
//
// A request claims its key with Begin before doing any work, then either
// Finish stores the response or Release hands the key back. A process that
// dies in between leaves the reservation until it expires.
type IdempotencyService struct {
	DB    *gorm.DB
	Clock Clock
	TTL   time.Duration
}

// NewIdempotencyService constructs an IdempotencyService. A non-positive ttl
// falls back to 24h.
func NewIdempotencyService(db *gorm.DB, clock Clock, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{DB: db, Clock: clock, TTL: ttl}
}

// Lookup returns the live, completed record for (actorID, scope, key), or nil.
func (s *IdempotencyService) Lookup(ctx context.Context, actorID uint, scope, key string) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, actorID, scope, key, s.Clock.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internalError("idempotency lookup", err)
	}
	if rec.Pending() {
		return nil, nil
	}
	return rec, nil
}

// Begin claims key for a request fingerprinted by hash.
//
// It returns (nil, nil) when the caller now owns the key, or the stored
// record when the same request already completed. A key held by a running
// request yields ErrRequestInFlight; one that answered a different request
// yields ErrIdempotencyReused.
func (s *IdempotencyService) Begin(ctx context.Context, actorID uint, scope, key, hash string) (*domain.Idempotency, error) {
	_, err := repo.ReserveIdempotency(ctx, s.DB, actorID, scope, key, hash, s.Clock.Now(), s.TTL)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, internalError("idempotency reserve", err)
	}

	rec, err := repo.GetIdempotency(ctx, s.DB, actorID, scope, key, s.Clock.Now())
	if errors.Is(err, repo.ErrNotFound) {
		// Released or purged between the two statements.
		return nil, ErrRequestInFlight
	}
	if err != nil {
		return nil, internalError("idempotency lookup", err)
	}
	switch {
	case rec.RequestHash != hash:
		return nil, ErrIdempotencyReused
	case rec.Pending():
		return nil, ErrRequestInFlight
	}
	return rec, nil
}

// Finish stores the response for a key claimed with Begin.
func (s *IdempotencyService) Finish(ctx context.Context, actorID uint, scope, key string, status int, body []byte) error {
	if err := repo.CompleteIdempotency(ctx, s.DB, actorID, scope, key, status, body); err != nil {
		return internalError("idempotency save", err)
	}
	return nil
}

// Release gives back a key claimed with Begin whose request failed, so that
// the client may retry it.
func (s *IdempotencyService) Release(ctx context.Context, actorID uint, scope, key string) error {
	if err := repo.ReleaseIdempotency(ctx, s.DB, actorID, scope, key); err != nil {
		return internalError("idempotency release", err)
	}
	return nil
}

// PruneExpired deletes records past their TTL.
func (s *IdempotencyService) PruneExpired(ctx context.Context) (int64, error) {
	n, err := repo.DeleteExpiredIdempotency(ctx, s.DB, s.Clock.Now())
	if err != nil {
		return 0, internalError("prune idempotency", err)
	}
	return n, nil
}
