// Package apperr defines the error taxonomy shared by every action.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error class.
type Kind string

const (
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindMissingContext  Kind = "MISSING_CONTEXT"
	KindInvalidHeader   Kind = "INVALID_HEADER"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindGone            Kind = "GONE"
	KindValidation      Kind = "VALIDATION_ERROR"
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	KindBadGateway      Kind = "BAD_GATEWAY"
	KindGatewayTimeout  Kind = "GATEWAY_TIMEOUT"
	KindInternal        Kind = "INTERNAL_ERROR"
	KindUnknownAction   Kind = "UNKNOWN_ACTION"
	KindConfig          Kind = "CONFIG_ERROR"
)

// Issue describes a single payload validation failure.
type Issue struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// Details carries optional structured data for the error envelope.
type Details struct {
	Issues []Issue `json:"issues,omitempty"`
}

// Error is the domain error returned by actions.
type Error struct {
	Kind    Kind
	Message string
	Details *Details
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails creates a validation style error carrying issues.
func WithDetails(kind Kind, message string, details *Details) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsTransient reports whether err signals that the authorization service was
// unreachable or slow rather than misconfigured.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindBadGateway, KindGatewayTimeout:
		return true
	}
	return false
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindMissingContext, KindInvalidHeader, KindValidation, KindUnknownAction:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGone:
		return http.StatusGone
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindBadGateway:
		return http.StatusBadGateway
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicCode is the code exposed to callers. Configuration problems are
// reported as internal errors.
func PublicCode(kind Kind) string {
	if kind == KindConfig {
		return string(KindInternal)
	}
	return string(kind)
}
