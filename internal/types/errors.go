package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. Components MUST use these constants instead
// of hardcoded strings so that failure accounting stays consistent.
const (
	// Upstream transport failures (transient; the account is re-enqueued).
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeGatewayUnhealthy    ErrorCode = "gateway_unhealthy"

	// Account-terminal failures (the feature flag is disabled, the account
	// is not re-enqueued, the owner is told once).
	ErrCodeAccountCredentialInvalid ErrorCode = "account_credential_invalid"
	ErrCodeAccountBanned            ErrorCode = "account_banned"
	ErrCodeAccountNotFoundUpstream  ErrorCode = "account_not_found_upstream"

	// Delivery failures (non-fatal, counters untouched).
	ErrCodeDeliveryFailed ErrorCode = "delivery_failed"

	// Internal.
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// AppError is the standard application error type. All domain errors are
// expressed as AppError to enable consistent classification and error chain
// support via errors.Is/errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsAccountTerminal reports whether the error is an account-specific
// unrecoverable failure. Terminal failures disable the owning feature flag
// and are never retried; everything else is treated as transient.
func IsAccountTerminal(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case ErrCodeAccountCredentialInvalid, ErrCodeAccountBanned, ErrCodeAccountNotFoundUpstream:
		return true
	}
	return false
}

// TerminalReason returns a short user-facing explanation for an
// account-terminal error, used in the one-time explanatory notification.
func TerminalReason(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "an unrecoverable account error"
	}
	switch appErr.Code {
	case ErrCodeAccountCredentialInvalid:
		return "the stored credential is no longer valid"
	case ErrCodeAccountBanned:
		return "the account is suspended upstream"
	case ErrCodeAccountNotFoundUpstream:
		return "the account no longer exists upstream"
	}
	return "an unrecoverable account error"
}
