package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
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

// Is matches errors sharing the same code so callers can test against the
// predefined values after Clone or Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrUnknownSubject     = New("UNKNOWN_SUBJECT", http.StatusNotFound, "subject has never been seen by the course")
	ErrTeamConstraint     = New("TEAM_CONSTRAINT", http.StatusUnprocessableEntity, "team constraint violated")
	ErrInconsistentState  = New("INCONSISTENT_STATE", http.StatusInternalServerError, "stored course data is inconsistent")
	ErrHostingUnavailable = &Error{Code: "HOSTING_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "repository hosting request failed; please try again", Retryable: true}
	ErrTeamConflict       = &Error{Code: "TEAM_CONFLICT", Status: http.StatusConflict, Message: "team was formed concurrently; please try again", Retryable: true}
	ErrHostingConflict    = &Error{Code: "HOSTING_CONFLICT", Status: http.StatusConflict, Message: "repository hosting state changed concurrently; please try again", Retryable: true}
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
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

// Hosting wraps a hosting-service failure so the caller sees the generic
// retryable message while the cause stays available for logs.
func Hosting(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Retryable {
		return e
	}
	wrapped := Clone(ErrHostingUnavailable, "")
	wrapped.Err = err
	return wrapped
}

// IsRetryable reports whether re-invoking the failed operation may succeed.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
