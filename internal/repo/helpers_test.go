package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// newTestDB opens a migrated, file-backed database private to the test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := DSN(filepath.Join(t.TempDir(), "repo.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fixture struct {
	room      *domain.Room
	device    *domain.Device
	borrower  *domain.User
	concierge *domain.User
	session   *domain.Session
}

func seedFixture(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	ctx := context.Background()

	room, err := CreateRoom(ctx, db, "101")
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	dev := &domain.Device{Code: "KEY-101", Type: domain.DeviceKey, Version: domain.VersionPrimary, RoomID: room.ID}
	if err := CreateDevice(ctx, db, dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	borrower := &domain.User{Kind: domain.UserKindGuest, FirstName: "Gina", LastName: "Guest", Guest: &domain.Guest{Document: "ID-1"}}
	if err := CreateUser(ctx, db, borrower); err != nil {
		t.Fatalf("seed borrower: %v", err)
	}
	concierge := &domain.User{
		Kind: domain.UserKindAccount, FirstName: "Carl", LastName: "Desk",
		Account: &domain.Account{Login: "carl", PasswordHash: "x", Role: domain.RoleConcierge},
	}
	if err := CreateUser(ctx, db, concierge); err != nil {
		t.Fatalf("seed concierge: %v", err)
	}
	s := &domain.Session{UserID: borrower.ID, ConciergeID: concierge.ID, StartTime: time.Now().UTC(), Status: domain.SessionInProgress}
	if err := CreateSession(ctx, db, s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return fixture{room: room, device: dev, borrower: borrower, concierge: concierge, session: s}
}
