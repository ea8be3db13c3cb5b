// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the revoked-token blacklist.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// BlacklistToken records token as revoked until expiresAt. Revoking the same
// token twice is a no-op.
func BlacklistToken(ctx context.Context, db *gorm.DB, token string, expiresAt time.Time) error {
	row := &domain.TokenBlacklist{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: stamp(db),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token"}}, DoNothing: true}).
		Create(row).Error
}

// IsTokenBlacklisted reports whether token was revoked and has not yet
// expired at now.
func IsTokenBlacklisted(ctx context.Context, db *gorm.DB, token string, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.TokenBlacklist{}).
		Where("token = ? AND expires_at > ?", token, now.UTC()).
		Count(&n).Error
	return n > 0, err
}

// DeleteExpiredTokens purges blacklist rows that expired before now.
func DeleteExpiredTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.TokenBlacklist{})
	return res.RowsAffected, res.Error
}
