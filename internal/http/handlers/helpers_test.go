package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/http/middleware"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

// ---------- stubs ----------

// Each stub embeds its interface so that only the methods a test needs
// are implemented; calling anything else panics.

type stubAuth struct {
	AuthService
	token   string
	exp     time.Time
	err     error
	revoked string
}

func (s *stubAuth) Login(context.Context, services.Credentials) (string, time.Time, error) {
	return s.token, s.exp, s.err
}

func (s *stubAuth) Revoke(_ context.Context, token string) error {
	s.revoked = token
	return s.err
}

func (s *stubAuth) ParseToken(_ context.Context, token string) (*services.Claims, error) {
	switch token {
	case "concierge":
		return &services.Claims{UserID: 7, Role: domain.RoleConcierge}, nil
	case "admin":
		return &services.Claims{UserID: 1, Role: domain.RoleAdmin}, nil
	}
	return nil, services.ErrInvalidToken
}

type stubRegistry struct {
	RegistryService
	rows    []repo.DeviceRow
	filter  services.DeviceFilter
	count   int64
	stamp   string
	device  *domain.Device
	err     error
	listHit int
}

func (s *stubRegistry) ListDevices(_ context.Context, f services.DeviceFilter) ([]repo.DeviceRow, error) {
	s.listHit++
	s.filter = f
	return s.rows, s.err
}

func (s *stubRegistry) Stats(context.Context) (int64, string, error) { return s.count, s.stamp, nil }

func (s *stubRegistry) GetDevice(context.Context, string) (*domain.Device, error) {
	if s.device == nil {
		return nil, services.ErrDeviceNotFound
	}
	return s.device, nil
}

type stubPermissions struct {
	PermissionService
	loc    *time.Location
	filter services.PermissionFilter
	rows   []repo.PermissionRow
	err    error
}

func (s *stubPermissions) List(_ context.Context, f services.PermissionFilter) ([]repo.PermissionRow, error) {
	s.filter = f
	if s.rows == nil {
		return []repo.PermissionRow{}, s.err
	}
	return s.rows, s.err
}

func (s *stubPermissions) Grant(_ context.Context, userID, roomID uint, start, end time.Time) (*domain.Permission, error) {
	if !end.After(start) {
		return nil, services.ErrInvalidInterval
	}
	return &domain.Permission{ID: 5, UserID: userID, RoomID: roomID, StartsAt: start, EndsAt: end}, s.err
}

func (s *stubPermissions) Location() *time.Location { return s.loc }

type stubSessions struct {
	SessionService
	ref         services.BorrowerRef
	conciergeID uint
	filter      services.SessionFilter
}

func (s *stubSessions) OpenFor(_ context.Context, ref services.BorrowerRef, conciergeID uint) (*domain.Session, error) {
	s.ref, s.conciergeID = ref, conciergeID
	return &domain.Session{ID: 11, UserID: 3, ConciergeID: conciergeID, Status: domain.SessionInProgress}, nil
}

func (s *stubSessions) Get(_ context.Context, id uint) (*domain.Session, error) {
	if id != 11 {
		return nil, services.ErrSessionNotFound
	}
	return &domain.Session{ID: 11, Status: domain.SessionInProgress}, nil
}

func (s *stubSessions) List(_ context.Context, f services.SessionFilter, page, pageSize int) ([]domain.Session, int64, error) {
	s.filter = f
	return []domain.Session{{ID: 11}}, 41, nil
}

type stubAdmission struct {
	AdmissionService
	calls int
}

// Propose toggles like the real ledger: odd calls stage, even calls cancel.
func (s *stubAdmission) Propose(_ context.Context, code string, sessionID uint, force bool) (*services.ProposalResult, error) {
	if code == "NOPE" {
		return nil, services.ErrDeviceNotFound
	}
	s.calls++
	op := domain.UnapprovedOperation{ID: 1, DeviceID: 2, SessionID: sessionID, OperationType: domain.OperationTake, Entitled: !force}
	return &services.ProposalResult{Cancelled: s.calls%2 == 0, Operation: op}, nil
}

type stubApproval struct {
	ApprovalService
	creds services.Credentials
}

func (s *stubApproval) Approve(_ context.Context, _ uint, creds services.Credentials) ([]domain.DeviceOperation, error) {
	s.creds = creds
	if creds.CardID == "" && creds.Password != "ok" {
		return nil, services.ErrBadCredentials
	}
	return []domain.DeviceOperation{{ID: 9, OperationType: domain.OperationTake}}, nil
}

func (s *stubApproval) Reject(context.Context, uint) (int64, error) {
	return 0, services.ErrSessionEnded
}

type stubHistory struct {
	HistoryService
	page, pageSize int
}

func (s *stubHistory) ListForDevice(_ context.Context, _ uint, page, pageSize int) ([]domain.DeviceOperation, int64, error) {
	s.page, s.pageSize = page, pageSize
	return []domain.DeviceOperation{}, 0, nil
}

type stubNotes struct {
	NoteService
	author *uint
}

func (s *stubNotes) AddUserNote(_ context.Context, userID uint, authorID *uint, body string) (*domain.UserNote, error) {
	s.author = authorID
	return &domain.UserNote{ID: 1, UserID: userID, AuthorID: authorID, Body: body}, nil
}

// memIdempotency is an in-memory IdempotencyStore. A record with Status 0
// is a held reservation.
type memIdempotency struct {
	recs     map[string]*domain.Idempotency
	released int
}

func (m *memIdempotency) k(actorID uint, scope, key string) string {
	return fmt.Sprintf("%d|%s|%s", actorID, scope, key)
}

func (m *memIdempotency) Begin(_ context.Context, actorID uint, scope, key, hash string) (*domain.Idempotency, error) {
	if m.recs == nil {
		m.recs = map[string]*domain.Idempotency{}
	}
	rec, held := m.recs[m.k(actorID, scope, key)]
	switch {
	case !held:
		m.recs[m.k(actorID, scope, key)] = &domain.Idempotency{ActorID: actorID, Scope: scope, Key: key, RequestHash: hash}
		return nil, nil
	case rec.RequestHash != hash:
		return nil, services.ErrIdempotencyReused
	case rec.Pending():
		return nil, services.ErrRequestInFlight
	}
	return rec, nil
}

func (m *memIdempotency) Finish(_ context.Context, actorID uint, scope, key string, status int, body []byte) error {
	rec := m.recs[m.k(actorID, scope, key)]
	rec.Status, rec.Body = status, body
	return nil
}

func (m *memIdempotency) Release(_ context.Context, actorID uint, scope, key string) error {
	m.released++
	delete(m.recs, m.k(actorID, scope, key))
	return nil
}

// ---------- router ----------

// newTestRouter mounts h behind the real authentication and idempotency
// middleware. Every route requires at least the concierge role.
func newTestRouter(t *testing.T, h *Handlers, auth *stubAuth, mount func(g *gin.RouterGroup)) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(middleware.Authenticate(auth), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	g := r.Group("/", middleware.RequireRole(domain.RoleConcierge))
	mount(g)
	return r
}

func do(r http.Handler, method, path, token, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
