// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for sessions.
//
// CloseSession is the single write that moves a session out of in_progress.
// It is a conditional UPDATE so that two concurrent closers cannot both
// succeed; the loser observes zero affected rows.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// SessionQuery narrows ListSessions/CountSessions. Zero values mean "any".
type SessionQuery struct {
	Status      domain.SessionStatus
	ConciergeID uint
	UserID      uint
}

// CreateSession inserts s.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	s.StartTime = s.StartTime.UTC()
	return db.WithContext(ctx).Omit(clause.Associations).Create(s).Error
}

// GetSession fetches a session by id.
func GetSession(ctx context.Context, db *gorm.DB, id uint) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CloseSession stamps end_time and sets the terminal status, but only while
// the session is still in progress. It returns the number of rows changed
// (0 or 1).
func CloseSession(ctx context.Context, db *gorm.DB, id uint, status domain.SessionStatus, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND status = ? AND end_time IS NULL", id, domain.SessionInProgress).
		Updates(map[string]any{
			"status":   status,
			"end_time": at.UTC(),
		})
	return res.RowsAffected, res.Error
}

func sessionScope(db *gorm.DB, q SessionQuery) *gorm.DB {
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.ConciergeID != 0 {
		db = db.Where("concierge_id = ?", q.ConciergeID)
	}
	if q.UserID != 0 {
		db = db.Where("user_id = ?", q.UserID)
	}
	return db
}

// CountSessions returns the number of sessions matching q.
func CountSessions(ctx context.Context, db *gorm.DB, q SessionQuery) (int64, error) {
	var total int64
	err := sessionScope(db.WithContext(ctx).Model(&domain.Session{}), q).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions matching q, newest first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, q SessionQuery, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := sessionScope(db.WithContext(ctx), q).
		Order("start_time desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
