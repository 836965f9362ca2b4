package usage

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"spiralcodex/rotor/pkg/providers"
)

// DefaultWindow is the rolling reset interval for usage counters.
const DefaultWindow = time.Hour

// Counters holds one provider's consumption within the current window.
type Counters struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Requests         int

	// WindowStart is when the current window began. Counters reset once
	// this is older than the tracker's window.
	WindowStart time.Time
}

// Limits are the per-window budgets for one provider.
type Limits struct {
	// Requests is the maximum request count per window.
	Requests int

	// Tokens is the maximum total token count per window.
	Tokens int
}

// ProviderUsage is a point-in-time snapshot of one provider's state,
// safe to hand to status reporters and persistence.
type ProviderUsage struct {
	ID       string
	Status   Status
	Counters Counters
	Limits   Limits
}

// providerState is the mutable record for one provider. Its mutex
// serializes all mutation; the tracker's own lock only guards the map.
type providerState struct {
	mu       sync.Mutex
	status   Status
	counters Counters
	limits   Limits
}

// Tracker owns every provider's runtime state: status transitions,
// window resets, and budget enforcement.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*providerState
	window time.Duration
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow overrides the reset interval. Tests use short windows.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) { t.window = d }
}

// NewTracker creates an empty tracker with the default one-hour window.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		states: make(map[string]*providerState),
		window: DefaultWindow,
		logger: slog.Default().With("component", "usage.tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register creates state for a provider with zeroed counters and
// StatusActive. Re-registering an existing provider only updates its
// limits.
func (t *Tracker) Register(id string, limits Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.states[id]; ok {
		st.mu.Lock()
		st.limits = limits
		st.mu.Unlock()
		return
	}
	t.states[id] = &providerState{
		status:   StatusActive,
		counters: Counters{WindowStart: time.Now()},
		limits:   limits,
	}
}

// Remove discards a provider's state. Used when a provider is removed
// from configuration.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}

// Restore installs persisted state for a provider, replacing whatever
// is registered. Invalid statuses fall back to StatusActive with a
// warning rather than failing the load.
func (t *Tracker) Restore(id string, status Status, counters Counters, limits Limits) {
	if !status.Valid() {
		t.logger.Warn("unrecognized provider status, falling back to active",
			"provider", id,
			"status", string(status),
		)
		status = StatusActive
	}
	if counters.WindowStart.IsZero() {
		counters.WindowStart = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[id] = &providerState{
		status:   status,
		counters: counters,
		limits:   limits,
	}
}

// get returns the state record for id, or nil if unregistered.
func (t *Tracker) get(id string) *providerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[id]
}

// resetIfExpiredLocked zeroes counters when the window has elapsed, and
// clears an exhausted status with them. Caller holds st.mu.
func (t *Tracker) resetIfExpiredLocked(id string, st *providerState) {
	if time.Since(st.counters.WindowStart) < t.window {
		return
	}

	st.counters = Counters{WindowStart: time.Now()}
	if st.status == StatusExhausted {
		st.status = StatusActive
		t.logger.Info("usage window reset, provider active again", "provider", id)
	}
}

// ResetIfExpired zeroes a provider's counters if its window has
// elapsed. Idempotent and safe to call before every check.
func (t *Tracker) ResetIfExpired(id string) {
	st := t.get(id)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	t.resetIfExpiredLocked(id, st)
}

// IsAvailable reports whether a provider can serve a request right now:
// the window is reset if expired, then the provider must be active and
// below both its request and token budgets.
func (t *Tracker) IsAvailable(id string) bool {
	st := t.get(id)
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	t.resetIfExpiredLocked(id, st)

	if st.status != StatusActive {
		return false
	}
	if st.limits.Requests > 0 && st.counters.Requests >= st.limits.Requests {
		return false
	}
	if st.limits.Tokens > 0 && st.counters.TotalTokens >= st.limits.Tokens {
		return false
	}
	return true
}

// RecordRequest counts one completed HTTP exchange against the request
// budget. Crossing the budget flips the provider to exhausted.
func (t *Tracker) RecordRequest(id string) {
	st := t.get(id)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.counters.Requests++
	t.enforceLimitsLocked(id, st)
}

// RecordUsage accumulates token usage from a successful response.
// Crossing the token budget flips the provider to exhausted.
func (t *Tracker) RecordUsage(id string, u providers.TokenUsage) {
	st := t.get(id)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.counters.PromptTokens += u.PromptTokens
	st.counters.CompletionTokens += u.CompletionTokens
	st.counters.TotalTokens += u.TotalTokens
	t.enforceLimitsLocked(id, st)
}

// enforceLimitsLocked flips an active provider to exhausted once either
// budget is reached. Caller holds st.mu.
func (t *Tracker) enforceLimitsLocked(id string, st *providerState) {
	if st.status != StatusActive {
		return
	}
	if (st.limits.Requests > 0 && st.counters.Requests >= st.limits.Requests) ||
		(st.limits.Tokens > 0 && st.counters.TotalTokens >= st.limits.Tokens) {
		st.status = StatusExhausted
		t.logger.Warn("provider budget reached",
			"provider", id,
			"requests", st.counters.Requests,
			"total_tokens", st.counters.TotalTokens,
		)
	}
}

// TransitionOnError applies the status transition an error demands:
// auth failures mark the provider errored, quota failures mark it
// exhausted, and everything else leaves status untouched.
func (t *Tracker) TransitionOnError(id string, err error) {
	st := t.get(id)
	if st == nil || err == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case errors.Is(err, providers.ErrAuth):
		st.status = StatusError
		t.logger.Warn("provider credential rejected, marking errored", "provider", id)
	case errors.Is(err, providers.ErrQuota):
		st.status = StatusExhausted
		t.logger.Warn("provider reported quota exhaustion", "provider", id)
	default:
		// Transient failures are surfaced to the caller and logged only.
		t.logger.Debug("transient provider failure", "provider", id, "error", err)
	}
}

// SetStatus forces a provider's status. Operators use this to disable
// or re-enable a provider.
func (t *Tracker) SetStatus(id string, status Status) {
	st := t.get(id)
	if st == nil || !status.Valid() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status = status
}

// CredentialUpdated clears an errored provider back to active after an
// operator supplies a new credential.
func (t *Tracker) CredentialUpdated(id string) {
	st := t.get(id)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.status == StatusError {
		st.status = StatusActive
		t.logger.Info("credential updated, provider active again", "provider", id)
	}
}

// Status returns a provider's current status, without side effects.
func (t *Tracker) Status(id string) (Status, bool) {
	st := t.get(id)
	if st == nil {
		return "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status, true
}

// Snapshot returns a copy of every provider's state. Safe to use for
// status reporting and persistence without holding any tracker locks.
func (t *Tracker) Snapshot() []ProviderUsage {
	t.mu.RLock()
	ids := make([]string, 0, len(t.states))
	states := make([]*providerState, 0, len(t.states))
	for id, st := range t.states {
		ids = append(ids, id)
		states = append(states, st)
	}
	t.mu.RUnlock()

	out := make([]ProviderUsage, 0, len(ids))
	for i, st := range states {
		st.mu.Lock()
		out = append(out, ProviderUsage{
			ID:       ids[i],
			Status:   st.status,
			Counters: st.counters,
			Limits:   st.limits,
		})
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
