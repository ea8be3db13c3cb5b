// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Service errors carry one kind sentinel (services.ErrNotFound, ...). The
// table below maps each kind to an HTTP status and a stable, snake_case code
// that clients branch on. Internal failures never leak their detail.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "session already ended"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/room-access-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

type errorInfo struct {
	status int
	code   string
}

var errorStatusMap = []struct {
	kind error
	info errorInfo
}{
	{services.ErrNotFound, errorInfo{http.StatusNotFound, ErrCodeNotFound}},
	{services.ErrConflict, errorInfo{http.StatusConflict, ErrCodeConflict}},
	{services.ErrForbidden, errorInfo{http.StatusForbidden, ErrCodeForbidden}},
	{services.ErrUnauthorized, errorInfo{http.StatusUnauthorized, ErrCodeUnauthorized}},
	{services.ErrInvalid, errorInfo{http.StatusBadRequest, ErrCodeBadRequest}},
}

// statusFor returns the HTTP status and code for a service error.
func statusFor(err error) (int, string) {
	for _, e := range errorStatusMap {
		if errors.Is(err, e.kind) {
			return e.info.status, e.info.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// respondError writes the envelope for a service error.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}
