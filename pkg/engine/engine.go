package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/credstore"
	"spiralcodex/rotor/pkg/journal"
	"spiralcodex/rotor/pkg/providerfactory"
	"spiralcodex/rotor/pkg/providers"
	"spiralcodex/rotor/pkg/refresh"
	"spiralcodex/rotor/pkg/rotation"
	"spiralcodex/rotor/pkg/state"
	"spiralcodex/rotor/pkg/telemetry/metrics"
	"spiralcodex/rotor/pkg/usage"
)

// Default file names inside the state directory.
const (
	stateFileName    = "state.json"
	journalFileName  = "journal.db"
	snapshotFileName = "usage.db"
)

// Config controls engine assembly.
type Config struct {
	// Dir is the state directory. Created 0700 if missing.
	Dir string

	// OverridesFile optionally points at a YAML catalog overrides
	// document applied on top of the built-in descriptors.
	OverridesFile string

	// Registry receives Prometheus collectors when non-nil.
	Registry *prometheus.Registry

	// DisableEnv skips environment-variable provider registration.
	DisableEnv bool

	// DisableJournal skips opening the request journal.
	DisableJournal bool

	// WatchState watches the state file for external edits and reloads
	// cursor and provider statuses when it changes.
	WatchState bool

	// JournalRetention bounds how long journal rows are kept. Zero
	// means the default retention.
	JournalRetention time.Duration
}

// Engine is the assembled rotation runtime.
type Engine struct {
	dir      string
	creds    *credstore.Store
	tracker  *usage.Tracker
	manager  *rotation.Manager
	store    *state.Store
	snaps    *state.SnapshotBackend
	journal  *journal.Journal
	sched    *refresh.Scheduler
	watcher  *state.Watcher
	overlays []catalog.Descriptor

	modelsMu   sync.RWMutex
	modelCache map[string][]providers.Model

	saveMu sync.Mutex
	logger *slog.Logger
}

// Open assembles an engine from the state directory.
func Open(cfg Config) (*Engine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	e := &Engine{
		dir:     cfg.Dir,
		tracker: usage.NewTracker(),
		store:   state.NewStore(filepath.Join(cfg.Dir, stateFileName)),
		logger:  slog.Default().With("component", "engine"),
	}

	creds, err := credstore.Open(cfg.Dir)
	if err != nil {
		return nil, err
	}
	e.creds = creds

	if cfg.OverridesFile != "" {
		overlays, err := catalog.LoadOverrides(cfg.OverridesFile)
		if err != nil {
			return nil, err
		}
		e.overlays = overlays
	}

	var opts []rotation.Option
	if cfg.Registry != nil {
		opts = append(opts, rotation.WithMetrics(metrics.NewProviderMetrics(cfg.Registry)))
	}
	if !cfg.DisableJournal {
		j, err := journal.Open(filepath.Join(cfg.Dir, journalFileName))
		if err != nil {
			return nil, err
		}
		e.journal = j
		opts = append(opts, rotation.WithRequestLog(j))
	}
	e.manager = rotation.New(e.tracker, opts...)

	snaps, err := state.NewSnapshotBackend(filepath.Join(cfg.Dir, snapshotFileName))
	if err != nil {
		e.closePartial()
		return nil, err
	}
	e.snaps = snaps

	if err := e.restore(); err != nil {
		e.closePartial()
		return nil, err
	}
	if !cfg.DisableEnv {
		e.registerFromEnv()
	}

	e.sched = refresh.New()
	if err := e.scheduleMaintenance(cfg); err != nil {
		e.closePartial()
		return nil, err
	}
	e.sched.Start()

	if cfg.WatchState {
		w, err := state.NewWatcher(e.store.Path(), e.onStateFileChange)
		if err != nil {
			e.logger.Warn("state file watching unavailable", "error", err)
		} else {
			e.watcher = w
		}
	}

	return e, nil
}

// closePartial releases whatever Open managed to build before failing.
func (e *Engine) closePartial() {
	if e.journal != nil {
		_ = e.journal.Close()
	}
	if e.snaps != nil {
		_ = e.snaps.Close()
	}
}

func (e *Engine) scheduleMaintenance(cfg Config) error {
	if err := e.sched.AddUsageSweep(refresh.DefaultSweepSpec, e.tracker, e.manager.Providers); err != nil {
		return err
	}
	if err := e.sched.AddSnapshotSync(refresh.DefaultSnapshotSpec, e.syncSnapshots); err != nil {
		return err
	}
	if err := e.sched.AddModelRefresh(refresh.DefaultModelRefreshSpec, e.refreshModels); err != nil {
		return err
	}
	if e.journal != nil {
		retention := cfg.JournalRetention
		if retention <= 0 {
			retention = refresh.DefaultJournalRetention
		}
		if err := e.sched.AddJournalPrune(refresh.DefaultPruneSpec, e.journal, retention); err != nil {
			return err
		}
	}
	return nil
}

// restore rebuilds providers from the persisted record, in record order
// so the saved cursor still points at the same provider.
func (e *Engine) restore() error {
	record, err := e.store.Load()
	if err != nil {
		return err
	}

	for _, entry := range record.Providers {
		e.restoreProvider(entry)
	}
	e.manager.SetCursor(record.CurrentProviderIndex)
	return nil
}

// restoreProvider rebuilds one provider from its persisted entry. Any
// failure degrades to a warning so a single broken entry cannot keep
// the engine from starting.
func (e *Engine) restoreProvider(entry state.ProviderRecord) {
	desc := e.descriptorFor(entry)

	apiKey, keyErr := e.resolveAPIKey(entry, desc)
	client, err := providerfactory.New(desc, apiKey)
	if err != nil {
		e.logger.Warn("skipping provider with invalid configuration",
			"provider", entry.Name,
			"error", err,
		)
		return
	}

	e.manager.Add(rotation.Entry{Descriptor: desc, Client: client})

	status := entry.ParsedStatus()
	counters := entry.Counters()
	if entry.Usage == nil {
		// The record carried no counters; fall back to the snapshot
		// database so a hand-edited record does not zero consumption.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if snap, ok, serr := e.snaps.Load(ctx, desc.ID); serr == nil && ok {
			counters = snap.Counters
			if entry.Status == "" {
				status = snap.Status
			}
		}
		cancel()
	}
	e.tracker.Restore(desc.ID, status, counters, usage.Limits{
		Requests: desc.RateLimit,
		Tokens:   desc.TokenLimit,
	})

	// A credential that cannot be recovered leaves the provider errored
	// until an operator stores a fresh one.
	if keyErr != nil {
		e.logger.Warn("provider credential unusable, marking errored",
			"provider", desc.ID,
			"error", keyErr,
		)
		e.tracker.SetStatus(desc.ID, usage.StatusError)
	}
}

// descriptorFor builds the effective descriptor for a persisted entry:
// the built-in (or YAML-overridden) catalog entry, with any per-record
// connection overrides applied on top.
func (e *Engine) descriptorFor(entry state.ProviderRecord) catalog.Descriptor {
	desc, ok := e.lookup(entry.Name)
	if !ok {
		desc = catalog.Descriptor{ID: entry.Name, Family: catalog.FamilyCompat}
	}

	if entry.BaseURL != "" {
		desc.BaseURL = entry.BaseURL
	}
	if entry.ModelsEndpoint != "" {
		desc.ModelsEndpoint = entry.ModelsEndpoint
	}
	if entry.ChatEndpoint != "" {
		desc.ChatEndpoint = entry.ChatEndpoint
	}
	if len(entry.Headers) > 0 {
		desc.Headers = entry.Headers
	}
	if entry.RateLimit > 0 {
		desc.RateLimit = entry.RateLimit
	}
	if entry.TokenLimit > 0 {
		desc.TokenLimit = entry.TokenLimit
	}
	catalog.ApplyDefaults(&desc)
	return desc
}

// lookup finds a descriptor in the effective catalog: the YAML-merged
// one when overrides were loaded, the built-in one otherwise.
func (e *Engine) lookup(id string) (catalog.Descriptor, bool) {
	if e.overlays == nil {
		return catalog.Lookup(id)
	}
	for _, d := range e.overlays {
		if d.ID == id {
			return d, true
		}
	}
	return catalog.Descriptor{}, false
}

// resolveAPIKey recovers a provider's API key, preferring the encrypted
// record field, then a legacy plaintext field (re-encrypted into the
// credential store immediately), then the credential store, then the
// environment. The returned error is non-nil only when a ciphertext
// exists but cannot be recovered and no other source supplied a key.
func (e *Engine) resolveAPIKey(entry state.ProviderRecord, desc catalog.Descriptor) (string, error) {
	var decryptErr error

	if entry.APIKeyEncrypted != "" {
		key, err := e.creds.Decrypt(entry.APIKeyEncrypted)
		if err == nil {
			return key, nil
		}
		decryptErr = err
	}

	if entry.APIKey != "" {
		e.logger.Warn("state record carries a plaintext API key, re-encrypting",
			"provider", entry.Name,
		)
		if err := e.creds.Put(entry.Name, entry.APIKey); err != nil {
			e.logger.Warn("failed to store re-encrypted credential",
				"provider", entry.Name,
				"error", err,
			)
		}
		return entry.APIKey, nil
	}

	if key, err := e.creds.Get(entry.Name); err == nil {
		return key, nil
	}
	if desc.EnvKey != "" {
		if key := os.Getenv(desc.EnvKey); key != "" {
			return key, nil
		}
	}
	return "", decryptErr
}

// registerFromEnv adds providers whose API keys appear in the
// environment and are not already in rotation.
func (e *Engine) registerFromEnv() {
	known := make(map[string]bool)
	for _, id := range e.manager.Providers() {
		known[id] = true
	}

	for _, reg := range catalog.FromEnv() {
		if known[reg.Descriptor.ID] {
			continue
		}
		if err := e.AddProvider(reg.Descriptor, reg.APIKey); err != nil {
			e.logger.Warn("failed to register provider from environment",
				"provider", reg.Descriptor.ID,
				"error", err,
			)
			continue
		}
		e.logger.Info("provider registered from environment",
			"provider", reg.Descriptor.ID,
			"env_key", reg.Descriptor.EnvKey,
		)
	}
}

// Send delivers a chat request through the rotation manager. The
// returned response carries the ID of the provider that served it.
func (e *Engine) Send(ctx context.Context, model string, messages []providers.Message) (*providers.ChatResponse, error) {
	resp, _, err := e.manager.Send(ctx, model, messages)
	return resp, err
}

// Models lists available models from every active provider. A live
// listing refreshes the cache; when every live listing fails, the last
// cached result is served instead.
func (e *Engine) Models(ctx context.Context) map[string][]providers.Model {
	listing := e.manager.Models(ctx)
	if len(listing) > 0 {
		e.modelsMu.Lock()
		e.modelCache = listing
		e.modelsMu.Unlock()
		return listing
	}

	e.modelsMu.RLock()
	defer e.modelsMu.RUnlock()
	return e.modelCache
}

// FreeModels lists zero-cost models from every active provider.
func (e *Engine) FreeModels(ctx context.Context) map[string][]providers.Model {
	return e.manager.FreeModels(ctx)
}

// refreshModels is the scheduled cache warmer behind Models.
func (e *Engine) refreshModels(ctx context.Context) error {
	listing := e.manager.Models(ctx)
	if len(listing) == 0 {
		return nil
	}
	e.modelsMu.Lock()
	e.modelCache = listing
	e.modelsMu.Unlock()
	return nil
}

// Status returns every provider's status and usage in rotation order.
func (e *Engine) Status() []usage.ProviderUsage {
	return e.manager.StatusReport()
}

// Current returns the provider the next request would use.
func (e *Engine) Current() (string, bool) {
	return e.manager.Current()
}

// Rotate manually advances the rotation cursor.
func (e *Engine) Rotate() {
	e.manager.Rotate()
}

// Recent returns the n most recent journal entries, newest first.
func (e *Engine) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.Recent(ctx, n)
}

// AddProvider stores the credential, builds the client, and adds the
// provider to the rotation.
func (e *Engine) AddProvider(desc catalog.Descriptor, apiKey string) error {
	if overlaid, ok := e.lookup(desc.ID); ok {
		desc = catalog.Merge([]catalog.Descriptor{overlaid}, []catalog.Descriptor{desc})[0]
	}
	catalog.ApplyDefaults(&desc)
	if err := catalog.Validate(&desc); err != nil {
		return err
	}

	client, err := providerfactory.New(desc, apiKey)
	if err != nil {
		return err
	}
	if err := e.creds.Put(desc.ID, apiKey); err != nil {
		_ = client.Close()
		return err
	}

	e.manager.Add(rotation.Entry{Descriptor: desc, Client: client})
	return e.Save()
}

// RemoveProvider drops a provider, its credential, and its snapshots.
func (e *Engine) RemoveProvider(id string) error {
	e.manager.Remove(id)

	var errs []error
	if err := e.creds.Remove(id); err != nil {
		errs = append(errs, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := e.snaps.Delete(ctx, id); err != nil {
		errs = append(errs, err)
	}
	cancel()

	if err := e.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetCredential replaces a provider's API key, rebuilds its client,
// and clears an errored status.
func (e *Engine) SetCredential(id, apiKey string) error {
	var target *rotation.Entry
	for _, entry := range e.manager.Entries() {
		if entry.Descriptor.ID == id {
			entry := entry
			target = &entry
			break
		}
	}
	if target == nil {
		return fmt.Errorf("provider %q is not configured", id)
	}

	client, err := providerfactory.New(target.Descriptor, apiKey)
	if err != nil {
		return err
	}
	if err := e.creds.Put(id, apiKey); err != nil {
		_ = client.Close()
		return err
	}

	_ = target.Client.Close()
	e.manager.Add(rotation.Entry{Descriptor: target.Descriptor, Client: client})
	e.tracker.CredentialUpdated(id)
	return e.Save()
}

// Save writes the state record: provider configuration with encrypted
// credentials, usage counters, and the rotation cursor. Legacy
// plaintext keys never survive a save.
func (e *Engine) Save() error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	snapshot := e.tracker.Snapshot()
	byID := make(map[string]usage.ProviderUsage, len(snapshot))
	for _, u := range snapshot {
		byID[u.ID] = u
	}

	record := &state.Record{CurrentProviderIndex: e.manager.Cursor()}
	for _, entry := range e.manager.Entries() {
		desc := entry.Descriptor
		p := state.ProviderRecord{
			Name:           desc.ID,
			BaseURL:        desc.BaseURL,
			ModelsEndpoint: desc.ModelsEndpoint,
			ChatEndpoint:   desc.ChatEndpoint,
			Headers:        desc.Headers,
			RateLimit:      desc.RateLimit,
			TokenLimit:     desc.TokenLimit,
		}
		if sealed, ok := e.creds.Ciphertext(desc.ID); ok {
			p.APIKeyEncrypted = sealed
		}
		if u, ok := byID[desc.ID]; ok {
			p.Status = string(u.Status)
			p.Usage = state.NewUsageRecord(u.Counters)
		}
		record.Providers = append(record.Providers, p)
	}

	return e.store.Save(record)
}

// syncSnapshots flushes every provider's tracker state into the
// snapshot database.
func (e *Engine) syncSnapshots(ctx context.Context) error {
	var errs []error
	for _, u := range e.tracker.Snapshot() {
		if err := e.snaps.Save(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onStateFileChange reloads cursor and provider statuses after an
// external edit. Connection settings and credentials require a restart;
// only cheap runtime state is picked up live.
func (e *Engine) onStateFileChange() {
	go func() {
		record, err := e.store.Load()
		if err != nil {
			e.logger.Warn("ignoring unreadable external state edit", "error", err)
			return
		}

		known := make(map[string]bool)
		for _, id := range e.manager.Providers() {
			known[id] = true
		}
		for _, entry := range record.Providers {
			if !known[entry.Name] {
				continue
			}
			e.tracker.SetStatus(entry.Name, entry.ParsedStatus())
		}
		e.manager.SetCursor(record.CurrentProviderIndex)
		e.logger.Info("applied external state file edit",
			"cursor", record.CurrentProviderIndex,
		)
	}()
}

// Close flushes state and releases every resource.
func (e *Engine) Close() error {
	var errs []error

	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.sched != nil {
		e.sched.Stop()
	}
	if err := e.Save(); err != nil {
		errs = append(errs, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := e.syncSnapshots(ctx); err != nil {
		errs = append(errs, err)
	}
	cancel()

	if err := e.manager.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.snaps != nil {
		if err := e.snaps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
