// Package derrors defines the typed error vocabulary shared by every domain
// package. Services create errors with a stable Code plus a human-readable
// message; transports translate the Code into a protocol status without
// inspecting message text.
package derrors

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a class of failure. Codes are stable API: clients branch on
// them, messages are for humans.
type Code string

const (
	CodeInvalidInput           Code = "invalid_input"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeUnauthorized           Code = "unauthorized"
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeInvalidState           Code = "invalid_state"
	CodeAlreadyCompleted       Code = "already_completed"
	CodeRateLimited            Code = "rate_limited"
	CodeExpired                Code = "expired"
	CodeAttemptsExhausted      Code = "attempts_exhausted"
	CodeDeliveryFailed         Code = "delivery_failed"
	CodeUnavailable            Code = "unavailable"
	CodeTimeout                Code = "timeout"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeInternal               Code = "internal_error"
)

// Error carries a Code, a message, an optional retry hint, and an optional
// wrapped cause.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two domain errors by Code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithRetryAfter returns a copy of the error carrying a retry hint. Used by
// rate-limit denials so transports can emit Retry-After.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	clone := *e
	clone.RetryAfter = d
	return &clone
}

// CodeOf extracts the Code from an error chain, defaulting to CodeInternal
// for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// RetryAfterOf extracts the retry hint from an error chain, if present.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}
