package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/services"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// stubParser accepts "good-<role>" tokens for user 7.
type stubParser struct{}

func (stubParser) ParseToken(_ context.Context, token string) (*services.Claims, error) {
	switch token {
	case "good-user":
		return &services.Claims{UserID: 7, Role: domain.RoleUser}, nil
	case "good-concierge":
		return &services.Claims{UserID: 7, Role: domain.RoleConcierge}, nil
	case "revoked":
		return nil, services.ErrTokenRevoked
	}
	return nil, services.ErrInvalidToken
}

func serve(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func init() { gin.SetMode(gin.TestMode) }
