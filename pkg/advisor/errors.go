package advisor

import (
	"errors"
	"fmt"
)

// ErrorCode defines error classification codes for structured error handling.
type ErrorCode string

// Error codes for different error categories. The transport layer maps these
// onto HTTP statuses; see internal/api.
const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeGenerationFailed    ErrorCode = "GENERATION_FAILED"
	ErrCodeCostLimitExceeded   ErrorCode = "COST_LIMIT_EXCEEDED"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with classification code. RetryAfterSec
// is set for recoverable rejections (rate limit, open circuit) and left zero
// for terminal ones (validation, cost limit — the latter requires a manual
// ledger reset).
type Error struct {
	Code          ErrorCode
	Message       string
	RetryAfterSec int
	Err           error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with classification code and additional context.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsErrorCode checks if an error (anywhere in its chain) carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// RetryAfter extracts the retry hint from an error chain, in seconds.
// Returns 0 when the error carries no hint.
func RetryAfter(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfterSec
	}
	return 0
}

// retryable reports whether the retry orchestrator may re-attempt after err.
// Validation and cost-ceiling errors bypass the retry loop entirely.
func retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case ErrCodeValidation, ErrCodeCostLimitExceeded:
			return false
		}
	}
	return true
}
