package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Setup and input error codes.
const (
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrValidation           ErrorCode = "VALIDATION_ERROR"
	ErrTypeMismatch         ErrorCode = "TYPE_MISMATCH"
	ErrTokenLimitExceeded   ErrorCode = "TOKEN_LIMIT_EXCEEDED"
)

// Provider and transport error codes.
const (
	ErrAuthentication    ErrorCode = "AUTHENTICATION"
	ErrRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrNetwork           ErrorCode = "NETWORK_ERROR"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrProvider          ErrorCode = "PROVIDER_ERROR"
)

// State and dispatch error codes.
const (
	ErrResourceExhausted    ErrorCode = "RESOURCE_EXHAUSTED"
	ErrState                ErrorCode = "STATE_ERROR"
	ErrUnknownFunction      ErrorCode = "UNKNOWN_FUNCTION"
	ErrToolExecutionFailure ErrorCode = "TOOL_EXECUTION_FAILURE"
)

// Error is a structured error carrying a code, diagnostics, and optional
// human-readable recovery steps. All framework errors propagate as *Error so
// callers can branch on Code and Retryable without string matching.
type Error struct {
	Code          ErrorCode      `json:"code"`
	Message       string         `json:"message"`
	HTTPStatus    int            `json:"http_status,omitempty"`
	Retryable     bool           `json:"retryable"`
	Provider      string         `json:"provider,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	RecoverySteps []string       `json:"recovery_steps,omitempty"`
	Cause         error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithDetail adds a structured diagnostic entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithRecoverySteps attaches remediation hints shown to callers.
func (e *Error) WithRecoverySteps(steps ...string) *Error {
	e.RecoverySteps = append(e.RecoverySteps, steps...)
	return e
}

// IsRetryable checks whether err (or any error it wraps) is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from err, or "" if it is not an *Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
