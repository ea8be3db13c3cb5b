package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/repo"
)

// StackOptions carries the settings the services need from configuration.
type StackOptions struct {
	Location            *time.Location
	JWTSecret           string
	TokenTTL            time.Duration
	BcryptCost          int
	DenyReturns         bool
	IdempotencyTTL      time.Duration
	PermissionRetention time.Duration
	JanitorInterval     time.Duration
}

// Stack is the fully wired set of application services over one database.
// The HTTP router and the CLI both build on it.
type Stack struct {
	DB    *gorm.DB
	Clock ZoneClock

	Auth        *AuthService
	Users       *UserService
	Registry    *RegistryService
	Permissions *PermissionService
	Sessions    *SessionService
	Admission   *AdmissionService
	History     *HistoryService
	Approval    *ApprovalService
	Notes       *NoteService
	Idempotency *IdempotencyService
	Janitor     *Janitor
}

// NewStack wires every service over db. Rows created through the stack are
// stamped by its clock.
func NewStack(db *gorm.DB, opts StackOptions) *Stack {
	clock := NewZoneClock(opts.Location)
	db = repo.WithClock(db, clock.Now)
	s := &Stack{DB: db, Clock: clock}

	s.Auth = NewAuthService(db, clock, opts.JWTSecret, opts.TokenTTL, opts.BcryptCost)
	s.Users = NewUserService(db, s.Auth)
	s.Registry = NewRegistryService(db)
	s.Permissions = NewPermissionService(db, clock)
	s.Sessions = NewSessionService(db, clock, s.Users)
	s.Admission = NewAdmissionService(db, clock, opts.DenyReturns)
	s.History = NewHistoryService(db)
	s.Approval = NewApprovalService(db, s.Auth, s.Sessions, s.History)
	s.Notes = NewNoteService(db)
	s.Idempotency = NewIdempotencyService(db, clock, opts.IdempotencyTTL)
	s.Janitor = NewJanitor(s.Permissions, s.Auth, s.Idempotency, opts.PermissionRetention, opts.JanitorInterval)
	return s
}
