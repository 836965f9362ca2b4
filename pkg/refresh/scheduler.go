// Package refresh runs the engine's periodic maintenance: usage window
// sweeps, usage snapshot sync, model listing refresh, and journal
// pruning. Jobs are cron entries; the sweep exists so windows reset
// even for providers that receive no traffic.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"spiralcodex/rotor/pkg/journal"
	"spiralcodex/rotor/pkg/usage"
)

// Default job schedules.
const (
	DefaultSweepSpec        = "@every 1m"
	DefaultSnapshotSpec     = "@every 5m"
	DefaultModelRefreshSpec = "@every 30m"
	DefaultPruneSpec        = "@daily"

	// DefaultJournalRetention is how long request journal rows are kept.
	DefaultJournalRetention = 7 * 24 * time.Hour

	// jobTimeout bounds each maintenance job run.
	jobTimeout = 30 * time.Second
)

// Scheduler owns the cron instance and the registered maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a stopped scheduler. Register jobs, then call Start.
func New() *Scheduler {
	logger := slog.Default().With("component", "refresh")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
		)),
		logger: logger,
	}
}

// AddJob registers a named job on a cron spec. The job receives a
// context bounded by the job timeout.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Warn("maintenance job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	s.logger.Debug("maintenance job scheduled", "job", name, "spec", spec)
	return nil
}

// AddUsageSweep schedules a periodic pass that resets expired usage
// windows for every provider listed by ids. Window resets also happen
// lazily on the request path; the sweep covers idle providers so an
// exhausted one becomes active again without traffic.
func (s *Scheduler) AddUsageSweep(spec string, tracker *usage.Tracker, ids func() []string) error {
	return s.AddJob("usage-sweep", spec, func(ctx context.Context) error {
		for _, id := range ids() {
			tracker.ResetIfExpired(id)
		}
		return nil
	})
}

// AddSnapshotSync schedules a periodic flush of tracker state into the
// snapshot backend.
func (s *Scheduler) AddSnapshotSync(spec string, fn func(ctx context.Context) error) error {
	return s.AddJob("snapshot-sync", spec, fn)
}

// AddModelRefresh schedules a periodic refresh of the cached model
// listings so `models` stays current without a network round trip per
// invocation.
func (s *Scheduler) AddModelRefresh(spec string, fn func(ctx context.Context) error) error {
	return s.AddJob("model-refresh", spec, fn)
}

// AddJournalPrune schedules deletion of journal rows older than the
// retention period.
func (s *Scheduler) AddJournalPrune(spec string, j *journal.Journal, retention time.Duration) error {
	return s.AddJob("journal-prune", spec, func(ctx context.Context) error {
		n, err := j.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("pruned journal entries", "deleted", n)
		}
		return nil
	})
}

// Start begins running the registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("maintenance scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("maintenance scheduler stopped")
}

// cronLogger adapts slog to the cron logger interface so panics in
// jobs are recovered and reported through our logging.
type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Info(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
