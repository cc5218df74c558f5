// Package errors defines the error taxonomy shared across the registry core.
//
// Stores and gateways return package sentinel errors (wrapped with %w); services
// translate them into coded errors from this package. Transport maps codes to
// HTTP statuses without inspecting causes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers and for the HTTP layer.
type Code string

const (
	// CodeNotFound: absent from both the ledger and the index.
	CodeNotFound Code = "not_found"
	// CodeConflict: duplicate key on create; the ledger already holds the record.
	CodeConflict Code = "conflict"
	// CodeBadRequest: missing or malformed attribute, rejected before any I/O.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized: caller identity missing or invalid.
	CodeUnauthorized Code = "unauthorized"
	// CodeChannelAccess: identity's organization not permitted on the target channel.
	CodeChannelAccess Code = "channel_access_denied"
	// CodeLedgerUnavailable: session or connection failure before submission.
	CodeLedgerUnavailable Code = "ledger_unavailable"
	// CodeLedgerWrite: submit rejected by the ledger (endorsement, timeout).
	CodeLedgerWrite Code = "ledger_write_failed"
	// CodeIndexUnavailable: off-chain index degraded; only fatal for index-only operations.
	CodeIndexUnavailable Code = "index_unavailable"
	// CodeVerificationMismatch: index and ledger disagree on a record presented as verified.
	CodeVerificationMismatch Code = "verification_mismatch"
	// CodeInternal: unexpected failure; details are never surfaced raw.
	CodeInternal Code = "internal_error"
)

// Error carries a taxonomy code, a human-readable cause, and an optional wrapped error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from an error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a taxonomy code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeChannelAccess:
		return http.StatusForbidden
	case CodeLedgerUnavailable, CodeIndexUnavailable:
		return http.StatusServiceUnavailable
	case CodeLedgerWrite:
		return http.StatusBadGateway
	case CodeVerificationMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
