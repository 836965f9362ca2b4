package rotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/journal"
	"spiralcodex/rotor/pkg/providers"
	"spiralcodex/rotor/pkg/telemetry/metrics"
	"spiralcodex/rotor/pkg/usage"
)

// ErrNoProvidersAvailable is returned when no configured provider can
// serve a request.
var ErrNoProvidersAvailable = errors.New("no providers available")

// Entry pairs a provider's descriptor with its client adapter.
type Entry struct {
	Descriptor catalog.Descriptor
	Client     providers.Client
}

// RequestLog receives one journal entry per request attempt. Satisfied
// by *journal.Journal; nil disables journaling.
type RequestLog interface {
	Append(ctx context.Context, e journal.Entry) error
}

// Manager owns the ordered provider list and the rotation cursor.
type Manager struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int

	tracker *usage.Tracker
	metrics *metrics.ProviderMetrics
	log     RequestLog
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(pm *metrics.ProviderMetrics) Option {
	return func(m *Manager) { m.metrics = pm }
}

// WithRequestLog attaches a request journal.
func WithRequestLog(log RequestLog) Option {
	return func(m *Manager) { m.log = log }
}

// New creates an empty manager bound to a usage tracker.
func New(tracker *usage.Tracker, opts ...Option) *Manager {
	m := &Manager{
		tracker: tracker,
		logger:  slog.Default().With("component", "rotation"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends a provider to the rotation and registers it with the
// tracker. Adding an already-present ID replaces its entry in place.
func (m *Manager) Add(e Entry) {
	m.tracker.Register(e.Descriptor.ID, usage.Limits{
		Requests: e.Descriptor.RateLimit,
		Tokens:   e.Descriptor.TokenLimit,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].Descriptor.ID == e.Descriptor.ID {
			m.entries[i] = e
			return
		}
	}
	m.entries = append(m.entries, e)
	m.logger.Info("provider added to rotation", "provider", e.Descriptor.ID)
}

// Remove drops a provider from the rotation, discards its tracker
// state, and clamps the cursor back into range.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	for i := range m.entries {
		if m.entries[i].Descriptor.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	if len(m.entries) == 0 {
		m.cursor = 0
	} else if m.cursor >= len(m.entries) {
		m.cursor = 0
	}
	m.mu.Unlock()

	m.tracker.Remove(id)
	m.logger.Info("provider removed from rotation", "provider", id)
}

// Entries returns a copy of the rotation list in order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Providers returns the provider IDs in rotation order.
func (m *Manager) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.Descriptor.ID
	}
	return ids
}

// Cursor returns the current rotation cursor.
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SetCursor restores a persisted cursor, clamping it into range.
func (m *Manager) SetCursor(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.entries) {
		i = 0
	}
	m.cursor = i
}

// Rotate advances the cursor to the next provider. No-op when fewer
// than two providers exist.
func (m *Manager) Rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateLocked()
}

func (m *Manager) rotateLocked() {
	if len(m.entries) < 2 {
		return
	}
	m.cursor = (m.cursor + 1) % len(m.entries)
	if m.metrics != nil {
		m.metrics.RecordRotation()
	}
	m.logger.Info("rotated to provider",
		"provider", m.entries[m.cursor].Descriptor.ID,
	)
}

// Current returns the first usable provider at or after the cursor.
// The cursor advances past each unavailable entry so the next call
// starts from a fresh position; with every provider unusable it ends
// where it began and ok is false.
func (m *Manager) Current() (string, bool) {
	e, ok := m.next()
	if !ok {
		return "", false
	}
	return e.Descriptor.ID, true
}

// next is Current returning the full entry.
func (m *Manager) next() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	if n == 0 {
		return Entry{}, false
	}

	for i := 0; i < n; i++ {
		e := m.entries[m.cursor]
		available := m.tracker.IsAvailable(e.Descriptor.ID)
		if m.metrics != nil {
			m.metrics.SetAvailable(e.Descriptor.ID, available)
		}
		if available {
			return e, true
		}
		m.logger.Debug("provider unavailable, trying next",
			"provider", e.Descriptor.ID,
		)
		m.cursor = (m.cursor + 1) % n
	}
	return Entry{}, false
}

// Send delivers a chat request to the current provider, with a single
// failover hop on quota or authentication errors.
//
// The returned provider ID identifies who actually served (or last
// attempted) the request; it is empty only when no provider was
// available at all.
func (m *Manager) Send(ctx context.Context, model string, messages []providers.Message) (*providers.ChatResponse, string, error) {
	first, ok := m.next()
	if !ok {
		return nil, "", ErrNoProvidersAvailable
	}

	resp, err := m.attempt(ctx, first, model, messages)
	if err == nil {
		return resp, first.Descriptor.ID, nil
	}

	// Only quota and auth failures are absorbed into state and trigger
	// the fallback hop. Everything else surfaces immediately.
	if !errors.Is(err, providers.ErrQuota) && !errors.Is(err, providers.ErrAuth) {
		return nil, first.Descriptor.ID, err
	}

	m.tracker.TransitionOnError(first.Descriptor.ID, err)
	m.logger.Warn("provider failed, attempting failover hop",
		"provider", first.Descriptor.ID,
		"kind", providers.ErrorKind(err),
	)
	m.Rotate()

	second, ok := m.next()
	if !ok || second.Descriptor.ID == first.Descriptor.ID {
		return nil, first.Descriptor.ID, err
	}

	// One fallback hop: return the second attempt's result, success or
	// failure. A quota/auth failure here still transitions state, but
	// no further rotation happens.
	resp, retryErr := m.attempt(ctx, second, model, messages)
	if retryErr != nil {
		m.tracker.TransitionOnError(second.Descriptor.ID, retryErr)
		return nil, second.Descriptor.ID, retryErr
	}
	return resp, second.Descriptor.ID, nil
}

// attempt performs one provider call with usage accounting, metrics,
// and journaling.
func (m *Manager) attempt(ctx context.Context, e Entry, model string, messages []providers.Message) (*providers.ChatResponse, error) {
	id := e.Descriptor.ID
	start := time.Now()

	resp, err := e.Client.Chat(ctx, model, messages)
	elapsed := time.Since(start)

	kind := providers.ErrorKind(err)

	// The request counter reflects completed HTTP exchanges: responses
	// of any status count, connection-level failures do not.
	switch kind {
	case "", "auth", "quota", "provider", "parse":
		m.tracker.RecordRequest(id)
	}

	entry := journal.Entry{
		ID:        uuid.NewString(),
		Provider:  id,
		Model:     model,
		LatencyMS: elapsed.Milliseconds(),
		ErrorKind: kind,
	}

	if err == nil {
		resp.Provider = id
		entry.ResponseID = resp.ID
		entry.Model = resp.Model
		entry.PromptTokens = resp.Usage.PromptTokens
		entry.CompletionTokens = resp.Usage.CompletionTokens
		entry.TotalTokens = resp.Usage.TotalTokens

		m.tracker.RecordUsage(id, resp.Usage)
	}

	if m.metrics != nil {
		m.metrics.RecordRequest(id, entry.Model, elapsed)
		if kind != "" {
			m.metrics.RecordError(id, kind)
		}
	}
	if m.log != nil {
		if jerr := m.log.Append(ctx, entry); jerr != nil {
			m.logger.Warn("failed to journal request", "error", jerr)
		}
	}

	return resp, err
}

// Models lists models from every active provider, keyed by provider
// ID. Listing failures are logged and skip that provider rather than
// failing the aggregate.
func (m *Manager) Models(ctx context.Context) map[string][]providers.Model {
	m.mu.Lock()
	entries := make([]Entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	out := make(map[string][]providers.Model)
	for _, e := range entries {
		id := e.Descriptor.ID
		if status, ok := m.tracker.Status(id); !ok || status != usage.StatusActive {
			continue
		}
		models, err := e.Client.ListModels(ctx)
		if err != nil {
			m.logger.Warn("failed to list models",
				"provider", id,
				"error", err,
			)
			continue
		}
		out[id] = models
	}
	return out
}

// freeModelLister is implemented by adapters that can filter their
// listing down to zero-cost models from published pricing.
type freeModelLister interface {
	ListFreeModels(ctx context.Context) ([]providers.Model, error)
}

// FreeModels lists zero-cost models from every active provider.
// Adapters that publish pricing filter live; others fall back to the
// descriptor's known free-model IDs, and providers with neither are
// omitted.
func (m *Manager) FreeModels(ctx context.Context) map[string][]providers.Model {
	m.mu.Lock()
	entries := make([]Entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	out := make(map[string][]providers.Model)
	for _, e := range entries {
		id := e.Descriptor.ID
		if status, ok := m.tracker.Status(id); !ok || status != usage.StatusActive {
			continue
		}
		if lister, ok := e.Client.(freeModelLister); ok {
			models, err := lister.ListFreeModels(ctx)
			if err != nil {
				m.logger.Warn("failed to list free models",
					"provider", id,
					"error", err,
				)
				continue
			}
			out[id] = models
			continue
		}
		if len(e.Descriptor.FreeModels) == 0 {
			continue
		}
		models := make([]providers.Model, 0, len(e.Descriptor.FreeModels))
		for _, modelID := range e.Descriptor.FreeModels {
			models = append(models, providers.Model{ID: modelID, Name: modelID})
		}
		out[id] = models
	}
	return out
}

// StatusReport returns every provider's status and usage, in rotation
// order.
func (m *Manager) StatusReport() []usage.ProviderUsage {
	snapshot := m.tracker.Snapshot()
	byID := make(map[string]usage.ProviderUsage, len(snapshot))
	for _, u := range snapshot {
		byID[u.ID] = u
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]usage.ProviderUsage, 0, len(m.entries))
	for _, e := range m.entries {
		if u, ok := byID[e.Descriptor.ID]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Close closes every provider client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, e := range m.entries {
		if err := e.Client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
