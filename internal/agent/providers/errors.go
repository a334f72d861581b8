package providers

import (
	"errors"
	"fmt"
	"strings"
)

// FailoverReason categorizes a provider failure. The turn loop uses it to
// decide whether retrying the same provider can help; callers that hold
// several providers can use it to decide whether a different one would.
type FailoverReason string

const (
	// FailoverBilling indicates a billing or quota problem on the account.
	FailoverBilling FailoverReason = "billing"

	// FailoverRateLimit indicates the provider throttled the request.
	FailoverRateLimit FailoverReason = "rate_limit"

	// FailoverAuth indicates the credentials were rejected.
	FailoverAuth FailoverReason = "auth"

	// FailoverTimeout indicates the request timed out.
	FailoverTimeout FailoverReason = "timeout"

	// FailoverServerError indicates a 5xx-class failure on the provider side.
	FailoverServerError FailoverReason = "server_error"

	// FailoverInvalidRequest indicates the provider rejected the request as
	// malformed. Retrying the same request will not help.
	FailoverInvalidRequest FailoverReason = "invalid_request"

	// FailoverModelUnavailable indicates the requested model does not exist
	// or is not enabled for this account.
	FailoverModelUnavailable FailoverReason = "model_unavailable"

	// FailoverContentFilter indicates the provider's safety layer blocked
	// the request or response.
	FailoverContentFilter FailoverReason = "content_filter"

	// FailoverUnknown is used when the failure could not be classified.
	FailoverUnknown FailoverReason = "unknown"
)

// IsRetryable reports whether a retry against the same provider has a
// reasonable chance of succeeding.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the failure is tied to this provider or
// account rather than the request itself, so a different provider could
// still serve it.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverBilling, FailoverAuth, FailoverModelUnavailable:
		return true
	default:
		return false
	}
}

// ProviderError is a provider failure normalized across vendors. Each
// backend wraps its SDK errors into this shape so the rest of the system
// can reason about status, vendor error codes, and retryability uniformly.
type ProviderError struct {
	// Reason is the normalized failure category.
	Reason FailoverReason

	// Provider is the provider name, e.g. "anthropic".
	Provider string

	// Model is the model the request targeted, when known.
	Model string

	// Status is the HTTP status code, when the transport exposed one.
	Status int

	// Code is the vendor-specific error code, when present.
	Code string

	// Message is a human-readable description of the failure.
	Message string

	// RequestID identifies the failed request on the provider side, for
	// support escalation.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure is transient. The turn loop
// discovers this through an interface assertion, which keeps it decoupled
// from this package.
func (e *ProviderError) IsRetryable() bool {
	return e.Reason.IsRetryable()
}

// NewProviderError builds a ProviderError around cause, classifying it from
// the error text. Callers refine the classification with WithStatus and
// WithCode as the transport reveals more detail.
func NewProviderError(provider, model string, cause error) *ProviderError {
	e := &ProviderError{
		Reason:   FailoverUnknown,
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = ClassifyError(cause)
	}
	return e
}

// WithStatus records the HTTP status code and reclassifies from it. Status
// codes are more reliable than message text, so this overrides the initial
// classification.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

// WithCode records the vendor error code and reclassifies when the code is
// recognized. Unrecognized codes keep the previous classification.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

// WithMessage replaces the message.
func (e *ProviderError) WithMessage(message string) *ProviderError {
	e.Message = message
	return e
}

// WithRequestID records the provider-side request ID.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// ClassifyError assigns a FailoverReason from error text alone. It is the
// fallback for transports that surface neither a status code nor a vendor
// error code; matching is case-insensitive substring search.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	msg := strings.ToLower(err.Error())

	timeoutPatterns := []string{"timeout", "deadline exceeded", "context deadline", "etimedout"}
	for _, p := range timeoutPatterns {
		if strings.Contains(msg, p) {
			return FailoverTimeout
		}
	}

	rateLimitPatterns := []string{"rate limit", "rate_limit", "too many requests", "throttl", "resource exhausted", "resource_exhausted", "429"}
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return FailoverRateLimit
		}
	}

	authPatterns := []string{"unauthorized", "unauthenticated", "invalid api key", "invalid_api_key", "authentication", "access denied", "permission denied", "permission_denied", "401", "403"}
	for _, p := range authPatterns {
		if strings.Contains(msg, p) {
			return FailoverAuth
		}
	}

	billingPatterns := []string{"billing", "payment", "quota", "insufficient", "402"}
	for _, p := range billingPatterns {
		if strings.Contains(msg, p) {
			return FailoverBilling
		}
	}

	contentPatterns := []string{"content_filter", "content policy", "safety", "blocked"}
	for _, p := range contentPatterns {
		if strings.Contains(msg, p) {
			return FailoverContentFilter
		}
	}

	modelPatterns := []string{"model not found", "model_not_found", "model unavailable", "model not available", "does not exist"}
	for _, p := range modelPatterns {
		if strings.Contains(msg, p) {
			return FailoverModelUnavailable
		}
	}

	serverPatterns := []string{"internal server", "server error", "unavailable", "overloaded", "500", "502", "503", "504"}
	for _, p := range serverPatterns {
		if strings.Contains(msg, p) {
			return FailoverServerError
		}
	}

	return FailoverUnknown
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == 401 || status == 403:
		return FailoverAuth
	case status == 402:
		return FailoverBilling
	case status == 429:
		return FailoverRateLimit
	case status == 400:
		return FailoverInvalidRequest
	case status == 404:
		return FailoverModelUnavailable
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

// classifyErrorCode maps vendor error codes to reasons. The table covers the
// code vocabularies of the shipped providers: Anthropic and OpenAI error
// types, Gemini RPC statuses, and Bedrock exception names.
func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "resource_exhausted",
		"throttlingexception", "toomanyrequestsexception":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key", "permission_error",
		"unauthenticated", "permission_denied",
		"accessdeniedexception", "unrecognizedclientexception", "expiredtokenexception":
		return FailoverAuth
	case "billing_error", "insufficient_quota":
		return FailoverBilling
	case "model_not_found", "model_not_available", "not_found_error",
		"resourcenotfoundexception", "modelnotreadyexception":
		return FailoverModelUnavailable
	case "content_policy_violation", "content_filter":
		return FailoverContentFilter
	case "invalid_request_error", "invalid_argument", "failed_precondition",
		"validationexception":
		return FailoverInvalidRequest
	case "deadline_exceeded", "modeltimeoutexception":
		return FailoverTimeout
	case "server_error", "internal_error", "overloaded_error", "internal",
		"internalserverexception", "serviceunavailableexception":
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

// IsProviderError reports whether err wraps a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// GetProviderError extracts a ProviderError from err's chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is worth retrying against the same
// provider. Unclassified errors are not.
func IsRetryable(err error) bool {
	if pe, ok := GetProviderError(err); ok {
		return pe.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}

// ShouldFailover reports whether err suggests trying a different provider.
func ShouldFailover(err error) bool {
	if pe, ok := GetProviderError(err); ok {
		return pe.Reason.ShouldFailover()
	}
	return ClassifyError(err).ShouldFailover()
}
