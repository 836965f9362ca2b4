package providers

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching. The typed errors below all
// implement Is against the matching sentinel.
var (
	// ErrAuth indicates the provider rejected the credential.
	ErrAuth = errors.New("provider authentication failed")

	// ErrQuota indicates the provider reported an exhausted budget.
	ErrQuota = errors.New("provider quota exhausted")

	// ErrTransient indicates a network failure, timeout, or 5xx that
	// carries no state transition.
	ErrTransient = errors.New("transient provider failure")

	// ErrModelLoading indicates the backend model is still loading
	// (HTTP 503) and the request qualifies for the retry policy.
	ErrModelLoading = errors.New("model is loading")

	// ErrRetriesExhausted indicates the 503 retry loop ran out of
	// attempts.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// AuthError represents an authentication failure (HTTP 401 or 403).
// The caller must mark the provider errored; the state is terminal
// until an operator supplies a new credential.
type AuthError struct {
	// Provider is the provider that rejected the credential.
	Provider string

	// StatusCode is the HTTP status returned (401 or 403).
	StatusCode int

	// Message is the response body from the provider.
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// Is matches ErrAuth.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// QuotaError represents a rate or budget exhaustion response
// (HTTP 402 or 429). The caller must mark the provider exhausted;
// the state clears automatically on the next window reset.
type QuotaError struct {
	// Provider is the provider that reported exhaustion.
	Provider string

	// StatusCode is the HTTP status returned (402 or 429).
	StatusCode int

	// Message is the response body from the provider.
	Message string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("provider %q quota exhausted (HTTP %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// Is matches ErrQuota.
func (e *QuotaError) Is(target error) bool { return target == ErrQuota }

// TransientError represents a network failure, request timeout, or a
// 5xx response other than 503. It never changes provider status.
type TransientError struct {
	// Provider is the provider where the failure occurred.
	Provider string

	// StatusCode is the HTTP status, or 0 for connection-level failures.
	StatusCode int

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q transient failure (status %d): %s",
			e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q transient failure: %s", e.Provider, e.Message)
}

// Is matches ErrTransient.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Unwrap returns the underlying error for error chain support.
func (e *TransientError) Unwrap() error { return e.Cause }

// LoadingError represents an HTTP 503 from a provider whose backend
// loads models on demand. It is the only error kind the retry policy
// will retry.
type LoadingError struct {
	// Provider is the provider reporting the loading state.
	Provider string

	// Model is the model that is still loading.
	Model string

	// Message is the response body from the provider.
	Message string
}

func (e *LoadingError) Error() string {
	return fmt.Sprintf("provider %q model %q is loading (503): %s",
		e.Provider, e.Model, e.Message)
}

// Is matches ErrModelLoading.
func (e *LoadingError) Is(target error) bool { return target == ErrModelLoading }

// RetriesExhaustedError is returned when the 503 retry loop has used
// every attempt without a non-503 outcome.
type RetriesExhaustedError struct {
	// Provider is the provider that kept returning 503.
	Provider string

	// Attempts is the number of attempts made.
	Attempts int

	// LastMessage is the message of the last observed error.
	LastMessage string
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("provider %q still unavailable after %d attempts: %s",
		e.Provider, e.Attempts, e.LastMessage)
}

// Is matches ErrRetriesExhausted.
func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// ProviderError represents a non-transient provider-side failure that
// does not fit the taxonomy above (4xx other than 401/402/403/429).
// It carries no state transition.
type ProviderError struct {
	// Provider is the provider that returned the error.
	Provider string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the response body from the provider.
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// ErrorKind returns the taxonomy label for an error, used for metrics
// and journal rows: auth, quota, loading, retries_exhausted, transient,
// parse, provider, or "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrQuota):
		return "quota"
	case errors.Is(err, ErrModelLoading):
		return "loading"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, ErrTransient):
		return "transient"
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	return "provider"
}

// ParseError represents a malformed provider response.
type ParseError struct {
	// Provider is the provider that returned the malformed response.
	Provider string

	// RawResponse is the body that failed to parse.
	RawResponse string

	// Cause is the underlying decode error.
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error { return e.Cause }
