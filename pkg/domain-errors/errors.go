// Package domainerrors defines coded errors shared by services and transports.
//
// Services return *Error values so handlers can translate them into HTTP
// responses without inspecting messages. A Reason carries the finer-grained
// kernel error kind (DuplicateRequest, InvalidTransition, ...) so callers can
// tell a conflict they may retry from one they must abort.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies an error into one of the transport-visible categories.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeExpired            Code = "expired"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Reason is a stable machine-readable error kind within a Code.
type Reason string

const (
	ReasonDuplicateRequest         Reason = "DuplicateRequest"
	ReasonInvalidTransition        Reason = "InvalidTransition"
	ReasonMissingExceptionReason   Reason = "MissingExceptionReason"
	ReasonNotSatisfied             Reason = "NotSatisfied"
	ReasonNotApplicable            Reason = "NotApplicable"
	ReasonMissingReason            Reason = "MissingReason"
	ReasonAlreadyAcknowledged      Reason = "AlreadyAcknowledged"
	ReasonNotAwaitingAuthorization Reason = "NotAwaitingAuthorization"
	ReasonRequestExpired           Reason = "RequestExpired"
	ReasonIntentInactive           Reason = "IntentInactive"
	ReasonIdempotencyMismatch      Reason = "IdempotencyKeyReused"
	ReasonInvitationUsed           Reason = "InvitationUsed"
	ReasonCapabilityUnavailable    Reason = "CapabilityUnavailable"
	ReasonPreflightFailed          Reason = "PreflightFailed"
	ReasonRequestInProgress        Reason = "RequestInProgress"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewReason creates a coded error carrying a kernel error kind.
func NewReason(code Code, reason Reason, msg string) *Error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Is reports whether err is a domain error.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// HasReason reports whether err is a domain error with the given reason.
func HasReason(err error, reason Reason) bool {
	de, ok := As(err)
	return ok && de.Reason == reason
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
