// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for unsafe requests. A scan is
// a toggle: applying it twice cancels the operation the first call staged, so
// clients retrying POST /sessions/:id/operations send the same key and get the
// recorded response back. The middleware validates the header, optionally
// asks an IdempotencyLookup whether a completed record exists, and annotates
// the request context so downstream code can:
//   - read the validated key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - let a replay through the rate limiter (IsRateBypass)
//
// Design notes:
//   - Validation and context stashing live here; reserving the key, comparing
//     the request fingerprint and serving the stored body are the handler's job.
//   - Persistence stays behind the IdempotencyLookup function type.
//   - Only authenticated callers are looked up, since keys are scoped per actor.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := asString(c.Value(ctxKeyIdemKey))
	return s, s != ""
}

// IsReplay reports whether a live record exists for this request's key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencyScope names the operation a key belongs to: the method and the
// concrete request path.
func IdempotencyScope(c *gin.Context) string {
	return c.Request.Method + " " + c.Request.URL.Path
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; defaults to 200.
	MaxLen int
	// Pattern restricts the key alphabet; defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a live, completed record exists for
// (actorID, scope, key). Errors are treated as "no record".
type IdempotencyLookup func(ctx context.Context, actorID uint, scope, key string) (bool, error)

// IdempotencyValidator rejects malformed keys with 400, stashes valid ones
// and marks replays of authenticated requests. Requests without the header
// pass through untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if actor, err := strconv.ParseUint(asString(c.Value(ctxKeyUserID)), 10, 64); err == nil {
				exists, _ := lookup(c.Request.Context(), uint(actor), IdempotencyScope(c), key)
				if exists {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}
		c.Next()
	}
}
