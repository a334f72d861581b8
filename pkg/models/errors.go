package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind categorizes a failure so handlers, tool adapters, and the
// orchestrator agree on how it surfaces to the user.
type ErrorKind string

const (
	// KindAuthExpired indicates the caller's credential has expired.
	KindAuthExpired ErrorKind = "auth_expired"

	// KindAuthInvalid indicates the caller's credential is malformed,
	// has a bad signature, or is not authorized for the resource.
	KindAuthInvalid ErrorKind = "auth_invalid"

	// KindNotFound indicates the referenced resource does not exist
	// or is not visible to the caller.
	KindNotFound ErrorKind = "not_found"

	// KindValidationFailed indicates input that was rejected before
	// any downstream call was made.
	KindValidationFailed ErrorKind = "validation_failed"

	// KindRateLimited indicates the caller exceeded a usage limit.
	KindRateLimited ErrorKind = "rate_limited"

	// KindServiceUnavailable indicates a downstream dependency failed.
	KindServiceUnavailable ErrorKind = "service_unavailable"

	// KindTimeout indicates a call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindModelUnavailable indicates the inference service could not
	// serve the request.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindInternalError indicates an unclassified server-side failure.
	KindInternalError ErrorKind = "internal_error"
)

// Retryable returns true if waiting and retrying the same request may succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServiceUnavailable, KindTimeout, KindModelUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the kind to the response status it should produce.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindAuthExpired, KindAuthInvalid:
		return 401
	case KindNotFound:
		return 404
	case KindValidationFailed:
		return 400
	case KindRateLimited:
		return 429
	case KindServiceUnavailable, KindModelUnavailable:
		return 503
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// DomainError is the structured error carried across layer boundaries. It
// pairs a machine-readable kind with a message already safe to show users.
type DomainError struct {
	// Kind categorizes the failure.
	Kind ErrorKind

	// Message is a user-facing explanation. Never raw payloads, paths,
	// or stack traces.
	Message string

	// RetryAfter is how long the caller should wait before retrying.
	// Only meaningful for KindRateLimited.
	RetryAfter time.Duration

	// Cause is the underlying error, kept for logs only.
	Cause error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewDomainError creates a DomainError of the given kind. An empty message
// falls back to the kind's standard user-facing explanation.
func NewDomainError(kind ErrorKind, message string) *DomainError {
	if message == "" {
		message = UserMessage(kind)
	}
	return &DomainError{Kind: kind, Message: message}
}

// WithCause attaches the underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithRetryAfter attaches a retry hint.
func (e *DomainError) WithRetryAfter(d time.Duration) *DomainError {
	e.RetryAfter = d
	return e
}

// AsDomainError extracts a DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternalError for anything
// that is not a DomainError.
func KindOf(err error) ErrorKind {
	if de, ok := AsDomainError(err); ok {
		return de.Kind
	}
	return KindInternalError
}

// UserMessage returns the standard non-technical explanation for a kind,
// with a suggested action where one exists.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case KindAuthExpired:
		return "Your session has expired. Please sign in again."
	case KindAuthInvalid:
		return "Your session is not valid. Please sign in again."
	case KindNotFound:
		return "I couldn't find that item. Please check and try again."
	case KindValidationFailed:
		return "I couldn't process that message. Please rephrase and try again."
	case KindRateLimited:
		return "You're sending messages too quickly. Please wait a moment and try again."
	case KindServiceUnavailable:
		return "The task service is temporarily unavailable. Please try again in a moment."
	case KindTimeout:
		return "That took too long to complete. Please try again."
	case KindModelUnavailable:
		return "The assistant is temporarily unavailable. Please try again in a moment."
	default:
		return "Something went wrong on our side. Please try again."
	}
}
