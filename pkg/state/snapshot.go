package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"spiralcodex/rotor/pkg/usage"
)

// SnapshotBackend keeps durable per-provider usage snapshots in SQLite.
// It lets usage counters survive restarts even when the JSON record is
// missing or stale, and gives operators a queryable view of consumption.
//
// The database runs in WAL mode with a single writer connection and a
// background checkpoint loop.
type SnapshotBackend struct {
	db        *sql.DB
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	saveStmt *sql.Stmt
	loadStmt *sql.Stmt
	listStmt *sql.Stmt
}

// checkpointInterval is how often the WAL is checkpointed.
const checkpointInterval = 5 * time.Minute

// NewSnapshotBackend opens (or creates) the snapshot database at dbPath.
func NewSnapshotBackend(dbPath string) (*SnapshotBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("snapshot db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &SnapshotBackend{
		db:     db,
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "state.snapshot"),
	}

	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	if err := b.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare snapshot statements: %w", err)
	}

	go b.checkpointLoop()

	return b, nil
}

func (b *SnapshotBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS provider_usage (
		provider TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		requests INTEGER NOT NULL,
		window_start INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SnapshotBackend) prepareStatements() error {
	var err error

	b.saveStmt, err = b.db.Prepare(`
		INSERT INTO provider_usage
			(provider, status, prompt_tokens, completion_tokens, total_tokens, requests, window_start, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			status = excluded.status,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			total_tokens = excluded.total_tokens,
			requests = excluded.requests,
			window_start = excluded.window_start,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}

	b.loadStmt, err = b.db.Prepare(`
		SELECT status, prompt_tokens, completion_tokens, total_tokens, requests, window_start
		FROM provider_usage WHERE provider = ?`)
	if err != nil {
		return err
	}

	b.listStmt, err = b.db.Prepare(`
		SELECT provider, status, prompt_tokens, completion_tokens, total_tokens, requests, window_start
		FROM provider_usage ORDER BY provider`)
	return err
}

// Save upserts one provider's usage snapshot.
func (b *SnapshotBackend) Save(ctx context.Context, u usage.ProviderUsage) error {
	_, err := b.saveStmt.ExecContext(ctx,
		u.ID,
		string(u.Status),
		u.Counters.PromptTokens,
		u.Counters.CompletionTokens,
		u.Counters.TotalTokens,
		u.Counters.Requests,
		u.Counters.WindowStart.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save usage snapshot for %q: %w", u.ID, err)
	}
	return nil
}

// Load returns one provider's snapshot, or ok=false when none exists.
func (b *SnapshotBackend) Load(ctx context.Context, providerID string) (usage.ProviderUsage, bool, error) {
	var (
		status      string
		u           usage.ProviderUsage
		windowStart int64
	)
	row := b.loadStmt.QueryRowContext(ctx, providerID)
	err := row.Scan(&status,
		&u.Counters.PromptTokens,
		&u.Counters.CompletionTokens,
		&u.Counters.TotalTokens,
		&u.Counters.Requests,
		&windowStart,
	)
	if err == sql.ErrNoRows {
		return usage.ProviderUsage{}, false, nil
	}
	if err != nil {
		return usage.ProviderUsage{}, false, fmt.Errorf("failed to load usage snapshot for %q: %w", providerID, err)
	}

	u.ID = providerID
	u.Status = parseSnapshotStatus(providerID, status)
	u.Counters.WindowStart = time.Unix(windowStart, 0)
	return u, true, nil
}

// List returns every stored snapshot ordered by provider ID.
func (b *SnapshotBackend) List(ctx context.Context) ([]usage.ProviderUsage, error) {
	rows, err := b.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage snapshots: %w", err)
	}
	defer rows.Close()

	var out []usage.ProviderUsage
	for rows.Next() {
		var (
			status      string
			u           usage.ProviderUsage
			windowStart int64
		)
		if err := rows.Scan(&u.ID, &status,
			&u.Counters.PromptTokens,
			&u.Counters.CompletionTokens,
			&u.Counters.TotalTokens,
			&u.Counters.Requests,
			&windowStart,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage snapshot: %w", err)
		}
		u.Status = parseSnapshotStatus(u.ID, status)
		u.Counters.WindowStart = time.Unix(windowStart, 0)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Delete removes one provider's snapshot. No-op when absent.
func (b *SnapshotBackend) Delete(ctx context.Context, providerID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM provider_usage WHERE provider = ?`, providerID)
	if err != nil {
		return fmt.Errorf("failed to delete usage snapshot for %q: %w", providerID, err)
	}
	return nil
}

// Close stops the checkpoint loop and closes the database.
func (b *SnapshotBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.db.Close()
	})
	return err
}

// checkpointLoop periodically checkpoints the WAL so it does not grow
// unbounded between restarts.
func (b *SnapshotBackend) checkpointLoop() {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
				b.logger.Warn("snapshot WAL checkpoint failed", "error", err)
			}
		case <-b.done:
			return
		}
	}
}

// parseSnapshotStatus validates a stored status string, falling back to
// active like the JSON loader does.
func parseSnapshotStatus(providerID, raw string) usage.Status {
	status, ok := usage.ParseStatus(raw)
	if !ok {
		slog.Warn("unrecognized status in usage snapshot, falling back to active",
			"provider", providerID,
			"status", raw,
		)
		return usage.StatusActive
	}
	return status
}
