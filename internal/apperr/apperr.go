// Package apperr defines the closed set of application error codes and the
// JSON envelope they are rendered with at the API boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one failure class. The set is closed: boundary layers
// switch on these values rather than inspecting error text.
type Code string

const (
	// Authentication
	AuthMissing        Code = "NO_TOKEN"      // no credential at all
	AuthInvalid        Code = "INVALID_TOKEN" // malformed/forged, or expired with no usable refresh
	AccountInactive    Code = "ACCOUNT_INACTIVE"
	InvalidCredentials Code = "INVALID_CREDENTIALS"
	MissingFields      Code = "MISSING_FIELDS"
	MissingToken       Code = "MISSING_TOKEN"
	PermissionDenied   Code = "PERMISSION_DENIED"

	// Payments
	OrderNotFound        Code = "ORDER_NOT_FOUND"
	CustomerNotFound     Code = "CUSTOMER_NOT_FOUND"
	OrderAlreadyPaid     Code = "ORDER_ALREADY_PAID"
	NoAmountDue          Code = "NO_AMOUNT_DUE"
	AmountExceedsBalance Code = "AMOUNT_EXCEEDS_BALANCE"
	InvalidAmount        Code = "INVALID_AMOUNT"
	EmailNotFound        Code = "EMAIL_NOT_FOUND"
	GatewayError         Code = "PAYSTACK_ERROR"
	AmountMismatch       Code = "AMOUNT_MISMATCH"
	RecordNotFound       Code = "RECORD_NOT_FOUND"

	// Generic
	ValidationFailed Code = "VALIDATION_ERROR"
	Conflict         Code = "CONFLICT"
	ServerError      Code = "SERVER_ERROR"
)

// Error carries a code, a human-readable message, and the HTTP status the
// boundary layer should respond with.
type Error struct {
	Code       Code   `json:"error_code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with an explicit HTTP status.
func New(code Code, status int, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: status}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, status int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), StatusCode: status}
}

// From extracts an *Error from err, or wraps it as a SERVER_ERROR.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: ServerError, Message: "Internal server error", StatusCode: http.StatusInternalServerError}
}

// Is enables errors.Is matching on code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}
