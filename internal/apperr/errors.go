// Package apperr holds the error taxonomy the client surfaces to users.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind represents the type of error
type Kind string

const (
	KindTimeout      Kind = "TIMEOUT"
	KindUnavailable  Kind = "UNAVAILABLE"
	KindBackend      Kind = "BACKEND"
	KindNotFound     Kind = "NOT_FOUND"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindTransport    Kind = "TRANSPORT"
)

// Error is a classified client error. Message is user-facing; Status is the
// HTTP-ish code that best describes it (408 for timeouts, 503 when the
// backend is unreachable, the backend's own code otherwise).
type Error struct {
	Kind      Kind
	Status    int
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a new Error
func New(kind Kind, status int, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Status:    status,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewTimeout reports a request that hit its client-side deadline.
func NewTimeout(message string, cause error) *Error {
	return New(KindTimeout, http.StatusRequestTimeout, message, cause)
}

// NewUnavailable reports a backend that could not be reached at all.
func NewUnavailable(message string, cause error) *Error {
	return New(KindUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewBackend carries a business error reported by the backend verbatim.
func NewBackend(status int, message string) *Error {
	return New(KindBackend, status, message, nil)
}

// NewNotFound creates a new not found error
func NewNotFound(message string, cause error) *Error {
	return New(KindNotFound, http.StatusNotFound, message, cause)
}

// NewUnauthorized creates a new unauthorized error
func NewUnauthorized(message string, cause error) *Error {
	return New(KindUnauthorized, http.StatusUnauthorized, message, cause)
}

// NewInvalidInput creates a new validation error
func NewInvalidInput(message string, cause error) *Error {
	return New(KindInvalidInput, http.StatusBadRequest, message, cause)
}

// NewTransport reports a transient connection-level failure.
func NewTransport(message string, cause error) *Error {
	return New(KindTransport, 0, message, cause)
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsTimeout checks if the error is a client-side timeout
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsUnavailable checks if the backend could not be reached
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// IsInvalidInput checks if the error is a validation error
func IsInvalidInput(err error) bool { return KindOf(err) == KindInvalidInput }

// IsTransient reports whether a retry or reconnect may fix the error.
// Business and generation failures are never transient.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindUnavailable:
		return true
	}
	return false
}

// UserMessage returns the text to show a user for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
