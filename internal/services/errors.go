// Package services defines the business logic for rooms, devices, room
// permissions, sessions and the two-phase approval of device operations.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Every error returned by a service wraps exactly one kind sentinel
// (ErrNotFound, ErrConflict, ...). Translation into HTTP status codes is
// performed at the handler layer by walking the chain with errors.Is.
package services

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid request")
	ErrInternal     = errors.New("internal error")
)

// Error carries a kind and a human-readable detail. errors.Is matches both
// the kind and, when present, the wrapped cause.
type Error struct {
	Kind   error
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Detail
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// internalError wraps an unexpected failure as ErrInternal.
func internalError(op string, cause error) error {
	return &Error{Kind: ErrInternal, Detail: fmt.Sprintf("%s: %v", op, cause), Cause: cause}
}

// Named errors returned by the services.
var (
	ErrDeviceNotFound     = newError(ErrNotFound, "device not found")
	ErrRoomNotFound       = newError(ErrNotFound, "room not found")
	ErrSessionNotFound    = newError(ErrNotFound, "session not found")
	ErrUserNotFound       = newError(ErrNotFound, "user not found")
	ErrConciergeNotFound  = newError(ErrNotFound, "concierge not found")
	ErrPermissionNotFound = newError(ErrNotFound, "permission not found")
	ErrNoPendingOps       = newError(ErrNotFound, "no unapproved operations for this session")

	ErrSessionEnded      = newError(ErrConflict, "session already ended")
	ErrSessionNotOpen    = newError(ErrConflict, "session is not in progress")
	ErrStaleOperation    = newError(ErrConflict, "device state changed since it was scanned")
	ErrPermissionOverlap = newError(ErrConflict, "permission overlaps an existing one for this room")
	ErrDuplicateRoom     = newError(ErrConflict, "room already exists")
	ErrDuplicateDevice   = newError(ErrConflict, "device already exists")
	ErrDuplicateAccount  = newError(ErrConflict, "login or card already in use")
	ErrIdempotencyReused = newError(ErrConflict, "idempotency key was used for a different request")
	ErrRequestInFlight   = newError(ErrConflict, "a request with this idempotency key is still running")

	ErrNotEntitled      = newError(ErrForbidden, "user is not permitted to take devices from this room")
	ErrBadCredentials   = newError(ErrForbidden, "invalid credentials")
	ErrInsufficientRole = newError(ErrForbidden, "insufficient role")

	ErrInvalidToken = newError(ErrUnauthorized, "invalid or expired token")
	ErrTokenRevoked = newError(ErrUnauthorized, "token has been revoked")

	ErrInvalidInterval   = newError(ErrInvalid, "permission must end after it starts")
	ErrInvalidDeviceType = newError(ErrInvalid, "unknown device type or version")
	ErrEmptyRoomNumber   = newError(ErrInvalid, "room number is empty")
	ErrEmptyNote         = newError(ErrInvalid, "note body is empty")
	ErrMissingField      = newError(ErrInvalid, "missing required field")
)

// KindOf returns the kind sentinel wrapped by err, or ErrInternal.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrConflict, ErrForbidden, ErrUnauthorized, ErrInvalid, ErrInternal} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}
