package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := repo.DSN(filepath.Join(t.TempDir(), "svc.db"))
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
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.UTC()
}

func (c *fakeClock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	conciergePassword = "front-desk-pass"
	conciergeCard     = "CARD-CONCIERGE"
)

type env struct {
	db    *gorm.DB
	clock *fakeClock

	perms     *PermissionService
	registry  *RegistryService
	users     *UserService
	auth      *AuthService
	sessions  *SessionService
	admission *AdmissionService
	history   *HistoryService
	approval  *ApprovalService
	notes     *NoteService

	concierge *domain.User
	borrower  *domain.User
	room      *domain.Room
	device    *domain.Device
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	db := repo.WithClock(newSvcDB(t), clock.Now)

	e := &env{db: db, clock: clock}
	e.perms = NewPermissionService(db, clock)
	e.registry = NewRegistryService(db)
	e.auth = NewAuthService(db, clock, "0123456789abcdef0123456789abcdef", time.Hour, bcrypt.MinCost)
	e.users = NewUserService(db, e.auth)
	e.sessions = NewSessionService(db, clock, e.users)
	e.admission = NewAdmissionService(db, clock, false)
	e.history = NewHistoryService(db)
	e.approval = NewApprovalService(db, e.auth, e.sessions, e.history)
	e.notes = NewNoteService(db)

	ctx := context.Background()
	var err error
	e.concierge, err = e.users.CreateAccount(ctx, NewAccount{
		FirstName: "Carl", LastName: "Desk", Login: "carl",
		Password: conciergePassword, CardID: conciergeCard, Role: domain.RoleConcierge,
	})
	if err != nil {
		t.Fatalf("seed concierge: %v", err)
	}
	e.borrower, err = e.users.CreateAccount(ctx, NewAccount{
		FirstName: "Bea", LastName: "Borrow", Login: "bea", Password: "bea-pass", CardID: "CARD-BEA",
	})
	if err != nil {
		t.Fatalf("seed borrower: %v", err)
	}
	e.room, err = e.registry.CreateRoom(ctx, "101")
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	e.device, err = e.registry.CreateDevice(ctx, "KEY-101", "101", domain.DeviceKey, domain.VersionPrimary)
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}
	return e
}

func (e *env) conciergeCreds() Credentials {
	return Credentials{Login: "carl", Password: conciergePassword}
}

// permit grants the borrower access to room for the hour around now.
func (e *env) permit(t *testing.T, roomID uint) {
	t.Helper()
	now := e.clock.Now()
	if _, err := e.perms.Grant(context.Background(), e.borrower.ID, roomID, now.Add(-30*time.Minute), now.Add(30*time.Minute)); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func (e *env) open(t *testing.T) *domain.Session {
	t.Helper()
	s, err := e.sessions.Open(context.Background(), e.borrower.ID, e.concierge.ID)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return s
}

func (e *env) addDevice(t *testing.T, code string, typ domain.DeviceType) *domain.Device {
	t.Helper()
	d, err := e.registry.CreateDevice(context.Background(), code, e.room.Number, typ, domain.VersionPrimary)
	if err != nil {
		t.Fatalf("create device %s: %v", code, err)
	}
	return d
}

func (e *env) pendingCount(t *testing.T, sessionID uint) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&domain.UnapprovedOperation{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		t.Fatalf("count pending: %v", err)
	}
	return n
}
