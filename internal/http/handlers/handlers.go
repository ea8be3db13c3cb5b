// Package handlers exposes the REST endpoints of the room-access API.
//
// Handlers are transport-thin: they validate path, query and body input,
// call the application services through the interfaces below and translate
// results and service errors into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/http/middleware"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/services"
	"github.com/tbourn/room-access-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService issues and revokes bearer tokens.
type AuthService interface {
	Login(ctx context.Context, creds services.Credentials) (string, time.Time, error)
	Revoke(ctx context.Context, token string) error
}

// RegistryService manages rooms and devices.
type RegistryService interface {
	CreateRoom(ctx context.Context, number string) (*domain.Room, error)
	GetRoomByNumber(ctx context.Context, number string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	CreateDevice(ctx context.Context, code, roomNumber string, typ domain.DeviceType, version domain.DeviceVersion) (*domain.Device, error)
	GetDevice(ctx context.Context, code string) (*domain.Device, error)
	ListDevices(ctx context.Context, f services.DeviceFilter) ([]repo.DeviceRow, error)
	Stats(ctx context.Context) (int64, string, error)
}

// PermissionService reads and writes room permissions.
type PermissionService interface {
	List(ctx context.Context, f services.PermissionFilter) ([]repo.PermissionRow, error)
	Grant(ctx context.Context, userID, roomID uint, start, end time.Time) (*domain.Permission, error)
	Revoke(ctx context.Context, id uint) error
	Location() *time.Location
}

// UserService registers and resolves borrowers.
type UserService interface {
	CreateAccount(ctx context.Context, in services.NewAccount) (*domain.User, error)
	CreateGuest(ctx context.Context, in services.NewGuest) (*domain.User, error)
	Get(ctx context.Context, id uint) (domain.Borrower, error)
}

// SessionService opens and reads sessions.
type SessionService interface {
	OpenFor(ctx context.Context, ref services.BorrowerRef, conciergeID uint) (*domain.Session, error)
	Get(ctx context.Context, id uint) (*domain.Session, error)
	List(ctx context.Context, f services.SessionFilter, page, pageSize int) ([]domain.Session, int64, error)
}

// AdmissionService stages scans.
type AdmissionService interface {
	Propose(ctx context.Context, deviceCode string, sessionID uint, force bool) (*services.ProposalResult, error)
	ListPending(ctx context.Context, sessionID uint) ([]domain.UnapprovedOperation, error)
}

// ApprovalService closes sessions.
type ApprovalService interface {
	Approve(ctx context.Context, sessionID uint, creds services.Credentials) ([]domain.DeviceOperation, error)
	Reject(ctx context.Context, sessionID uint) (int64, error)
}

// HistoryService reads committed operations.
type HistoryService interface {
	ListForSession(ctx context.Context, sessionID uint) ([]domain.DeviceOperation, error)
	ListHeldBy(ctx context.Context, userID uint) ([]domain.DeviceOperation, error)
	ListForDevice(ctx context.Context, deviceID uint, page, pageSize int) ([]domain.DeviceOperation, int64, error)
}

// NoteService reads and writes notes.
type NoteService interface {
	AddUserNote(ctx context.Context, userID uint, authorID *uint, body string) (*domain.UserNote, error)
	ListUserNotes(ctx context.Context, userID uint) ([]domain.UserNote, error)
	AddDeviceNote(ctx context.Context, deviceCode string, authorID *uint, body string) (*domain.DeviceNote, error)
	ListDeviceNotes(ctx context.Context, deviceCode string) ([]domain.DeviceNote, error)
}

// IdempotencyStore reserves Idempotency-Keys and records scan responses for
// replay. Begin returns the stored record of a completed identical request,
// or nil when the caller now holds the key.
type IdempotencyStore interface {
	Begin(ctx context.Context, actorID uint, scope, key, hash string) (*domain.Idempotency, error)
	Finish(ctx context.Context, actorID uint, scope, key string, status int, body []byte) error
	Release(ctx context.Context, actorID uint, scope, key string) error
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Idempotency may be nil.
type Services struct {
	Auth        AuthService
	Registry    RegistryService
	Permissions PermissionService
	Users       UserService
	Sessions    SessionService
	Admission   AdmissionService
	Approval    ApprovalService
	History     HistoryService
	Notes       NoteService
	Idempotency IdempotencyStore
}

// Handlers groups all HTTP endpoints.
type Handlers struct {
	svc Services
}

// New constructs Handlers over svc.
func New(svc Services) *Handlers {
	return &Handlers{svc: svc}
}

//
// Helpers
//

// clampPagination reads page/page_size with defaults 1/20 and a cap of 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), 1), 1)
	pageSize = min(max(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1), maxPageSize)
	return page, pageSize
}

// pathID parses a positive numeric path parameter or answers 400.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, valid := utils.ParseID(c.Param(name))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// actor returns the authenticated caller's id. Routes that call it sit
// behind RequireRole, so the identity is present.
func actor(c *gin.Context) uint {
	id, _, _ := middleware.Identity(c)
	return id
}

// userView flattens a borrower into its user row with the variant attached.
func userView(b domain.Borrower) domain.User {
	switch v := b.(type) {
	case domain.Authenticated:
		u := v.User
		acc := v.Account
		u.Account, u.Guest = &acc, nil
		return u
	case domain.GuestBorrower:
		u := v.User
		g := v.Guest
		u.Guest, u.Account = &g, nil
		return u
	}
	return domain.User{}
}
