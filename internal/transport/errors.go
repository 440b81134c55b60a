package transport

import (
	"context"
	"errors"
	"strings"
)

// Reason categorizes a transport failure for retry decisions.
type Reason string

const (
	// ReasonRateLimit indicates throttling (HTTP 429).
	ReasonRateLimit Reason = "rate_limit"

	// ReasonOverloaded indicates the provider is shedding load (HTTP 529).
	ReasonOverloaded Reason = "overloaded"

	// ReasonTimeout indicates a request or connection timeout.
	ReasonTimeout Reason = "timeout"

	// ReasonServerError indicates a provider-side failure (HTTP 5xx).
	ReasonServerError Reason = "server_error"

	// ReasonAuth indicates an authentication failure (HTTP 401, 403).
	ReasonAuth Reason = "auth"

	// ReasonInvalidRequest indicates a malformed request (HTTP 400).
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonContextLength indicates the conversation exceeded the model's
	// context window.
	ReasonContextLength Reason = "context_length"

	// ReasonUnknown is the fallback for unclassified failures.
	ReasonUnknown Reason = "unknown"
)

// Retryable reports whether a failure with this reason is worth retrying
// with backoff. Unknown failures retry; only provably permanent ones abort
// the turn immediately.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonAuth, ReasonInvalidRequest, ReasonContextLength:
		return false
	default:
		return true
	}
}

// Error is a classified transport failure.
type Error struct {
	Reason   Reason
	Provider string
	Model    string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[" + string(e.Reason) + "] " + e.Provider)
	if e.Model != "" {
		b.WriteString(" model=" + e.Model)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WrapError classifies cause and attaches provider context. Already
// classified errors pass through unchanged.
func WrapError(provider, model string, cause error) *Error {
	var classified *Error
	if errors.As(cause, &classified) {
		return classified
	}
	return &Error{
		Reason:   Classify(cause),
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
}

// Retryable reports whether err warrants a retry with backoff. Context
// cancellation is never retried; it means the caller aborted.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Reason.Retryable()
	}
	return Classify(err).Retryable()
}

// Classify inspects an error's message and returns the matching Reason.
// Provider SDKs surface failures as strings with recognizable fragments,
// so matching is on lowercase substrings.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context window") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "prompt is too long"):
		return ReasonContextLength

	case strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "529"):
		return ReasonOverloaded

	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429"):
		return ReasonRateLimit

	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "etimedout"):
		return ReasonTimeout

	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "invalid_api_key") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403"):
		return ReasonAuth

	case strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "invalid_request") ||
		strings.Contains(msg, "400"):
		return ReasonInvalidRequest

	case strings.Contains(msg, "internal server") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504"):
		return ReasonServerError
	}

	return ReasonUnknown
}
