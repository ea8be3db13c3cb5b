// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's bearer token and gates routes by role.
// Authenticate runs globally and never rejects: it records who the caller
// is (or why the token was refused) so that logging, rate limiting and
// idempotency can key on the identity. RequireRole enforces it per group.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/services"
)

const (
	ctxKeyUserID    = "userID"
	ctxKeyRole      = "role"
	ctxKeyToken     = "auth.token"
	ctxKeyAuthError = "auth.error"
)

// TokenParser validates a bearer token and returns its claims.
type TokenParser interface {
	ParseToken(ctx context.Context, token string) (*services.Claims, error)
}

// Authenticate parses "Authorization: Bearer <token>" when present and
// stores the user id (decimal string under "userID"), the role and the raw
// token in the context. A refused token is remembered for RequireRole.
func Authenticate(p TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			c.Next()
			return
		}
		scheme, token, found := strings.Cut(raw, " ")
		token = strings.TrimSpace(token)
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.Set(ctxKeyAuthError, services.ErrInvalidToken)
			c.Next()
			return
		}
		claims, err := p.ParseToken(c.Request.Context(), token)
		if err != nil {
			c.Set(ctxKeyAuthError, err)
			c.Next()
			return
		}
		c.Set(ctxKeyUserID, strconv.FormatUint(uint64(claims.UserID), 10))
		c.Set(ctxKeyRole, claims.Role)
		c.Set(ctxKeyToken, token)
		c.Next()
	}
}

// RequireRole aborts with 401 when the caller is anonymous or presented a
// bad token, and with 403 when the caller's role is below min.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, role, ok := Identity(c)
		if !ok || id == 0 {
			msg := "authentication required"
			if v, exists := c.Get(ctxKeyAuthError); exists {
				if err, _ := v.(error); err != nil && errors.Is(err, services.ErrUnauthorized) {
					msg = err.Error()
				}
			}
			abortJSON(c, http.StatusUnauthorized, "unauthorized", msg)
			return
		}
		if !role.AtLeast(min) {
			abortJSON(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}

// Identity returns the authenticated user id and role.
func Identity(c *gin.Context) (uint, domain.Role, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return 0, "", false
	}
	s, _ := v.(string)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, "", false
	}
	role, _ := c.Get(ctxKeyRole)
	r, _ := role.(domain.Role)
	return uint(id), r, true
}

// BearerToken returns the validated raw token of the request.
func BearerToken(c *gin.Context) string {
	v, _ := c.Get(ctxKeyToken)
	s, _ := v.(string)
	return s
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
