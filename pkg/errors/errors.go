package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	// CodePaymentConfiguration marks a payment provider rejecting the partner setup.
	CodePaymentConfiguration Code = "PAYMENT_CONFIGURATION_INVALID"
	// CodeInvariant marks corrupted state that must never be retried or hidden.
	CodeInvariant Code = "INVARIANT_VIOLATION"
)

// Metadata is the HTTP face of a Code. ExposeMessage lets the caller's own
// message replace PublicMessage; it is only set for codes whose messages are
// written for clients.
type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	Retryable      bool
	DetailsAllowed bool
	ExposeMessage  bool
}

type metaFlag uint8

const (
	retryable metaFlag = 1 << iota
	withDetails
	exposeMessage
)

func meta(status int, public string, flags metaFlag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
		ExposeMessage:  flags&exposeMessage != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:           meta(http.StatusBadRequest, "validation failed", withDetails|exposeMessage),
	CodeUnauthorized:         meta(http.StatusUnauthorized, "authentication required", exposeMessage),
	CodeForbidden:            meta(http.StatusForbidden, "access denied", exposeMessage),
	CodeNotFound:             meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeConflict:             meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeStateConflict:        meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails|exposeMessage),
	CodeIdempotency:          meta(http.StatusConflict, "idempotency key reused", withDetails|exposeMessage),
	CodeRateLimit:            meta(http.StatusTooManyRequests, "rate limit exceeded", retryable|exposeMessage),
	CodeInternal:             meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:           meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
	CodePaymentConfiguration: meta(http.StatusBadGateway, "payment configuration invalid", 0),
	CodeInvariant:            meta(http.StatusInternalServerError, "internal server error", 0),
}

func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

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

// Is matches another *Error carrying the same code and message, so sentinel
// values keep matching after they are wrapped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && e.message == t.message
}

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
