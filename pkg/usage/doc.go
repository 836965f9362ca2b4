// Package usage tracks per-provider consumption against rate and token
// budgets over a rolling reset window.
//
// Each provider owns a small state record: a status (active, exhausted,
// error, disabled), request and token counters, and the timestamp the
// current window started. The Tracker serializes mutation of any single
// provider's record behind its own mutex, so concurrent requests to
// different providers proceed independently.
//
// # Window resets
//
// Counters zero themselves once the window start is older than the
// configured interval (one hour by default). ResetIfExpired is
// idempotent and runs before every availability check, so a provider
// exhausted in one window becomes usable again in the next without any
// external sweep. The refresh package additionally sweeps all providers
// on a schedule so status reports stay fresh between requests.
package usage
