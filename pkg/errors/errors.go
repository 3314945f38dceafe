package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Every error that crosses a service
// boundary carries one; controllers map it to HTTP via MetadataFor.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeStateConflict      Code = "STATE_CONFLICT"
	CodeInsufficientPoints Code = "INSUFFICIENT_POINTS"
	CodeRateLimit          Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeDependency         Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces at the HTTP boundary.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// MetadataFor resolves the HTTP metadata for a code. Unknown codes fall back
// to internal-error semantics rather than leaking anything.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true}
	case CodeUnauthorized:
		return Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"}
	case CodeForbidden:
		return Metadata{HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"}
	case CodeNotFound:
		return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"}
	case CodeConflict:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"}
	case CodeStateConflict:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true}
	case CodeInsufficientPoints:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient point balance", DetailsAllowed: true}
	case CodeRateLimit:
		return Metadata{HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"}
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}
	default:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
	}
}

// Error is the coded error used throughout the services. Details, when set,
// are only exposed to clients for codes whose metadata allows it.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying cause, preserving the
// chain for errors.Is/As.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches structured details for the client-facing payload.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the typed error from anywhere in the chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
