package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/room-access-backend/internal/config"
	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestStack(t *testing.T) *services.Stack {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(repo.DSN(filepath.Join(t.TempDir(), "router.db"))), &gorm.Config{
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
	return services.NewStack(db, services.StackOptions{
		Location:   time.UTC,
		JWTSecret:  "router-test-secret-0123456789",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newServer(t *testing.T, cfg config.Config) (*gin.Engine, *services.Stack) {
	t.Helper()
	st := newTestStack(t)
	r := gin.New()
	RegisterRoutes(r, st, cfg)
	return r, st
}

func call(r http.Handler, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
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

func login(t *testing.T, r http.Handler, user, pw string) string {
	t.Helper()
	w := call(r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"login": user, "password": pw})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", user, w.Code, w.Body.String())
	}
	var tr struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	return tr.Token
}

func seedAccount(t *testing.T, st *services.Stack, login string, role domain.Role) *domain.User {
	t.Helper()
	u, err := st.Users.CreateAccount(context.Background(), services.NewAccount{
		FirstName: login, LastName: "Test", Login: login, Password: login + "-pw", Role: role,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", login, err)
	}
	return u
}

func TestRegisterRoutes_HealthMetricsCORSFallbacks(t *testing.T) {
	r, _ := newServer(t, testConfig())

	w := call(r, http.MethodGet, "/health", "", nil, "Origin", "http://kiosk.local")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"db":"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-all CORS expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID on every response")
	}

	w = call(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "access_http_requests_total") {
		t.Fatalf("GET /metrics: code=%d", w.Code)
	}

	if w := call(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := call(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w := call(r, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowListAndSwagger(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://desk.example"}
	cfg.SwaggerEnabled = true
	r, _ := newServer(t, cfg)

	w := call(r, http.MethodGet, "/health", "", nil, "Origin", "https://desk.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://desk.example" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	w = call(r, http.MethodGet, "/health", "", nil, "Origin", "https://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin must not be echoed, got %q", got)
	}

	w = call(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/sessions/{id}/approve") {
		t.Fatalf("swagger doc: %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r, _ := newServer(t, testConfig())
	w := call(r, http.MethodGet, "/health", "", nil, "Accept-Encoding", "gzip")
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", w.Header())
	}
}

func TestRegisterRoutes_RoleGates(t *testing.T) {
	r, st := newServer(t, testConfig())
	seedAccount(t, st, "admin", domain.RoleAdmin)
	seedAccount(t, st, "carl", domain.RoleConcierge)
	seedAccount(t, st, "bea", domain.RoleUser)

	adminTok := login(t, r, "admin", "admin-pw")
	deskTok := login(t, r, "carl", "carl-pw")
	userTok := login(t, r, "bea", "bea-pw")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"anonymous read", http.MethodGet, "/api/v1/rooms", "", nil, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/rooms", "garbage", nil, http.StatusUnauthorized},
		{"user cannot read rooms", http.MethodGet, "/api/v1/rooms", userTok, nil, http.StatusForbidden},
		{"concierge reads rooms", http.MethodGet, "/api/v1/rooms", deskTok, nil, http.StatusOK},
		{"concierge cannot create rooms", http.MethodPost, "/api/v1/rooms", deskTok, map[string]string{"number": "1"}, http.StatusForbidden},
		{"admin creates rooms", http.MethodPost, "/api/v1/rooms", adminTok, map[string]string{"number": "1"}, http.StatusCreated},
		{"concierge cannot grant", http.MethodPost, "/api/v1/permissions", deskTok, map[string]any{}, http.StatusForbidden},
		{"concierge creates guests", http.MethodPost, "/api/v1/guests", deskTok, map[string]string{"first_name": "Gus"}, http.StatusCreated},
		{"user may log out", http.MethodPost, "/api/v1/auth/logout", userTok, nil, http.StatusNoContent},
		{"revoked token is refused", http.MethodPost, "/api/v1/auth/logout", userTok, nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := call(r, tc.method, tc.path, tc.token, tc.body)
		if w.Code != tc.want {
			t.Errorf("%s: got %d want %d (%s)", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestRegisterRoutes_SessionLifecycle(t *testing.T) {
	r, st := newServer(t, testConfig())
	seedAccount(t, st, "admin", domain.RoleAdmin)
	seedAccount(t, st, "carl", domain.RoleConcierge)
	bea := seedAccount(t, st, "bea", domain.RoleUser)
	adminTok := login(t, r, "admin", "admin-pw")
	deskTok := login(t, r, "carl", "carl-pw")

	mustStatus := func(w *httptest.ResponseRecorder, want int, what string) {
		t.Helper()
		if w.Code != want {
			t.Fatalf("%s: got %d want %d: %s", what, w.Code, want, w.Body.String())
		}
	}

	mustStatus(call(r, http.MethodPost, "/api/v1/rooms", adminTok, map[string]string{"number": "101"}), http.StatusCreated, "room")
	mustStatus(call(r, http.MethodPost, "/api/v1/devices", adminTok, map[string]string{
		"code": "KEY-101", "room_number": "101", "type": "key",
	}), http.StatusCreated, "device")

	w := call(r, http.MethodPost, "/api/v1/sessions", deskTok, map[string]any{"login": "bea"})
	mustStatus(w, http.StatusCreated, "open")
	var sess domain.Session
	_ = json.Unmarshal(w.Body.Bytes(), &sess)
	if sess.UserID != bea.ID {
		t.Fatalf("session borrower = %d; want %d", sess.UserID, bea.ID)
	}
	base := "/api/v1/sessions/" + itoa(sess.ID)

	// Unentitled take without force is refused.
	mustStatus(call(r, http.MethodPost, base+"/operations", deskTok, map[string]any{"device_code": "KEY-101"}), http.StatusForbidden, "unentitled")

	// A retried forced scan with the same key is replayed, not toggled.
	scan := map[string]any{"device_code": "KEY-101", "force": true}
	first := call(r, http.MethodPost, base+"/operations", deskTok, scan, "Idempotency-Key", "scan-1")
	mustStatus(first, http.StatusCreated, "forced scan")
	retry := call(r, http.MethodPost, base+"/operations", deskTok, scan, "Idempotency-Key", "scan-1")
	mustStatus(retry, http.StatusCreated, "retry")
	if retry.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry must be served from the idempotency store")
	}
	// The same key on an unforced scan is a different request.
	mustStatus(call(r, http.MethodPost, base+"/operations", deskTok, map[string]any{"device_code": "KEY-101"}, "Idempotency-Key", "scan-1"), http.StatusConflict, "reused key")

	w = call(r, http.MethodGet, base+"/operations", deskTok, nil)
	mustStatus(w, http.StatusOK, "pending")
	var pending []domain.UnapprovedOperation
	_ = json.Unmarshal(w.Body.Bytes(), &pending)
	if len(pending) != 1 {
		t.Fatalf("ledger must hold exactly one row, got %d", len(pending))
	}

	mustStatus(call(r, http.MethodPost, base+"/approve", deskTok, map[string]string{"login": "carl", "password": "wrong"}), http.StatusForbidden, "bad approve")
	mustStatus(call(r, http.MethodPost, base+"/approve", deskTok, map[string]string{"login": "carl", "password": "carl-pw"}), http.StatusOK, "approve")
	mustStatus(call(r, http.MethodPost, base+"/reject", deskTok, nil), http.StatusConflict, "reject after approve")

	w = call(r, http.MethodGet, "/api/v1/devices/KEY-101", deskTok, nil)
	mustStatus(w, http.StatusOK, "device")
	var dev domain.Device
	_ = json.Unmarshal(w.Body.Bytes(), &dev)
	if !dev.IsTaken || dev.LastOwnerID == nil || *dev.LastOwnerID != bea.ID {
		t.Fatalf("projection not updated: %+v", dev)
	}

	w = call(r, http.MethodGet, "/api/v1/users/"+itoa(bea.ID)+"/devices", deskTok, nil)
	mustStatus(w, http.StatusOK, "held")
	var held []domain.DeviceOperation
	_ = json.Unmarshal(w.Body.Bytes(), &held)
	if len(held) != 1 {
		t.Fatalf("bea must hold one device, got %d", len(held))
	}
}

func Test_limitBody(t *testing.T) {
	r := gin.New()
	r.Use(limitBody(8))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "1") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "1", "/api/ping": "pong"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
