// Package errors defines the error taxonomy shared by every layer of the
// integrity API. Services return these typed errors; the response package
// maps them onto HTTP statuses.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error carrying the HTTP status it maps to.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on the error code, so clones with overridden messages still
// compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates an Error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches an underlying cause to a new Error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Clone copies a sentinel, optionally overriding its message. Sentinels
// are shared, so callers must never mutate them directly.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

var (
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInvalidTransition      = New("INVALID_TRANSITION", http.StatusUnprocessableEntity, "attendance state transition not permitted")
	ErrPermissionDenied       = New("PERMISSION_DENIED", http.StatusForbidden, "permission denied")
	ErrInvalidState           = New("INVALID_STATE", http.StatusConflict, "operation not valid in current state")
	ErrConcurrentModification = New("CONCURRENT_MODIFICATION", http.StatusConflict, "resource was modified concurrently")
	ErrStorageTimeout         = New("STORAGE_TIMEOUT", http.StatusGatewayTimeout, "storage operation timed out")
	ErrClockDriftBlocked      = New("CLOCK_DRIFT_REJECTED", http.StatusUnprocessableEntity, "client clock drift exceeds the permitted window")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized           = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// ErrCacheMiss signals a cache lookup that found nothing; callers fall back
// to the primary store. Never surfaced over HTTP.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error. Context deadline failures
// map to the storage timeout code so slow storage reads as 504, not 500.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrStorageTimeout.Code, ErrStorageTimeout.Status, ErrStorageTimeout.Message)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}
