// Package providers defines the uniform client contract for inference
// providers and the shared HTTP machinery behind it.
//
// Every provider family (OpenRouter, Hugging Face, Together AI, and
// generic OpenAI-compatible endpoints) implements the Client interface
// and normalizes its native request/response shapes into the chat
// completion types declared here.
//
// # Error taxonomy
//
// HTTP failures map onto a closed set of typed errors:
//
//   - 401/403 -> AuthError (credential rejected; caller marks the
//     provider errored until a new key is supplied)
//   - 402/429 -> QuotaError (budget exhausted; self-heals on the next
//     usage window reset)
//   - 503 -> LoadingError (backend model still loading; retried
//     internally with exponential backoff)
//   - other >= 400 -> ProviderError (surfaced, no status change)
//   - network failures and timeouts -> TransientError
//
// All errors support errors.Is matching against the package sentinels.
//
// # Retry policy
//
// The Backoff type implements the bounded retry loop used for 503
// responses. The sleep function is injectable so the policy is testable
// without real delays.
package providers
