// Package apperr defines the uniform error taxonomy shared by every
// hospital-core service. Each error carries a kind that maps to an HTTP
// status, a stable machine-readable code, and a user-safe message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for HTTP mapping and logging policy.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPayloadTooLarge
	KindRateLimited
	KindUpstreamUnavailable
	KindUpstreamTimeout
)

// FieldError describes a single invalid request field.
type FieldError struct {
	Field         string      `json:"field"`
	Message       string      `json:"message"`
	RejectedValue interface{} `json:"rejectedValue,omitempty"`
}

// Error is the canonical application error.
type Error struct {
	Kind        Kind
	Code        string
	Message     string
	FieldErrors []FieldError
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logging. The cause is never
// rendered to clients.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithField appends a field-level validation error.
func (e *Error) WithField(field, message string, rejected interface{}) *Error {
	e.FieldErrors = append(e.FieldErrors, FieldError{Field: field, Message: message, RejectedValue: rejected})
	return e
}

// HTTPStatus maps the error kind to its HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "ACCESS_DENIED", Message: msg}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: msg}
}

func PayloadTooLarge() *Error {
	return &Error{Kind: KindPayloadTooLarge, Code: "PAYLOAD_TOO_LARGE", Message: "Request body exceeds the allowed size"}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "Rate limit exceeded"}
}

func UpstreamUnavailable(service string) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Code:    "UPSTREAM_UNAVAILABLE",
		Message: fmt.Sprintf("Service %s is unavailable", service),
	}
}

func UpstreamTimeout(service string) *Error {
	return &Error{
		Kind:    KindUpstreamTimeout,
		Code:    "UPSTREAM_TIMEOUT",
		Message: fmt.Sprintf("Service %s timed out", service),
	}
}

func Unexpected(msg string, cause error) *Error {
	return &Error{Kind: KindUnexpected, Code: "INTERNAL_ERROR", Message: msg, cause: cause}
}

// From extracts an *Error from err, wrapping unknown errors as Unexpected so
// callers never leak internal details to clients.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Unexpected("An unexpected error occurred", err)
}

// Envelope is the JSON error body every service returns.
type Envelope struct {
	Timestamp   string       `json:"timestamp"`
	Status      int          `json:"status"`
	Error       string       `json:"error"`
	ErrorCode   string       `json:"errorCode"`
	Message     string       `json:"message"`
	Path        string       `json:"path"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
}

// NewEnvelope renders the uniform error envelope for the given request path.
func NewEnvelope(err *Error, path string) Envelope {
	status := err.HTTPStatus()
	return Envelope{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Status:      status,
		Error:       http.StatusText(status),
		ErrorCode:   err.Code,
		Message:     err.Message,
		Path:        path,
		FieldErrors: err.FieldErrors,
	}
}
