// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for POST endpoints.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, actorID uint, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("actor_id = ? AND scope = ? AND key = ? AND expires_at > ?", actorID, scope, key, now.UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReserveIdempotency claims (actorID, scope, key) for a request that is about
// to run. The row is stored with Status 0 until CompleteIdempotency fills in
// the response. An expired row holding the same key is replaced; a live one
// yields ErrDuplicate.
func ReserveIdempotency(ctx context.Context, db *gorm.DB, actorID uint, scope, key, hash string, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	now = now.UTC()
	rec := &domain.Idempotency{
		ID:          uuid.NewString(),
		ActorID:     actorID,
		Scope:       scope,
		Key:         key,
		RequestHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("actor_id = ? AND scope = ? AND key = ? AND expires_at <= ?", actorID, scope, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteIdempotency stores the response on a reservation. It returns
// ErrNotFound when no pending reservation exists for the key.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, actorID uint, scope, key string, status int, body []byte) error {
	res := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("actor_id = ? AND scope = ? AND key = ? AND status = 0", actorID, scope, key).
		Updates(map[string]any{"status": status, "body": body})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseIdempotency drops a pending reservation so the key can be retried.
// Completed records are left alone.
func ReleaseIdempotency(ctx context.Context, db *gorm.DB, actorID uint, scope, key string) error {
	return db.WithContext(ctx).
		Where("actor_id = ? AND scope = ? AND key = ? AND status = 0", actorID, scope, key).
		Delete(&domain.Idempotency{}).Error
}

// DeleteExpiredIdempotency purges records that expired at or before now.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
