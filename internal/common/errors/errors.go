// Package errors provides coded application errors shared by every layer of
// the service. Codes map onto HTTP statuses at the handler boundary.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an application error.
type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeValidation   ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeGone         ErrorCode = "GONE"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodePrecondition ErrorCode = "PRECONDITION_FAILED"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrCodeTransport    ErrorCode = "TRANSPORT_ERROR"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error is a coded application error
type Error struct {
	Code    ErrorCode
	Message string
	Field   string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches a detail value and returns the same error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new coded error
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps err with a code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// InvalidInput reports a bad value for a single field
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

// NotFound reports a missing resource
func NotFound(resource string, id interface{}) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
	}
}

// Conflict reports an operation that is illegal in the current state
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// Precondition reports a client-side precondition that failed before any
// remote call was attempted
func Precondition(message string) *Error {
	return &Error{Code: ErrCodePrecondition, Message: message}
}

// Transport wraps a network-level failure of op
func Transport(op string, err error) *Error {
	return &Error{Code: ErrCodeTransport, Message: op + " failed", cause: err}
}

// CodeOf returns the code of the first coded error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ErrCodeValidation
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error code to the status returned to API callers
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeGone:
		return http.StatusGone
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodePrecondition:
		return http.StatusPreconditionFailed
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeUpstream, ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError carries every failed field of a local validation pass.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// Validation returns nil for an empty field map so callers can write
// `if err := errors.Validation(fields); err != nil`.
func Validation(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Join re-exports errors.Join
func Join(errs ...error) error { return stderrors.Join(errs...) }
