package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a category of expected failure. Codes are stable and
// machine-checkable; messages are for humans and may change.
type ErrorCode string

const (
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares  ErrorCode = "INSUFFICIENT_SHARES"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"

	// CodeConflict is reserved for optimistic-lock violations. Nothing
	// returns it yet; the keyed portfolio locks serialize writers instead.
	CodeConflict ErrorCode = "CONFLICT"
)

// Error is a typed domain error carrying a stable code and a human message.
// All expected trade/portfolio failures are values of this type and propagate
// unchanged to the caller.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is a *Error with the same code, so callers can
// match with errors.Is against a bare code sentinel like ErrNotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinel values for errors.Is matching. Always create returned errors with
// Errorf so they carry a concrete message.
var (
	ErrInvalidInput        = &Error{Code: CodeInvalidInput}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInsufficientFunds   = &Error{Code: CodeInsufficientFunds}
	ErrInsufficientShares  = &Error{Code: CodeInsufficientShares}
	ErrRateLimited         = &Error{Code: CodeRateLimited}
	ErrUpstreamUnavailable = &Error{Code: CodeUpstreamUnavailable}
	ErrConflict            = &Error{Code: CodeConflict}
)

// Errorf creates a typed domain error with a formatted message
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the error code from err, or empty string if err is not a
// domain error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a domain error code to an HTTP status. Non-domain errors
// map to 500; the handler layer is the only consumer.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientFunds, CodeInsufficientShares:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
