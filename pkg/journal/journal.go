// Package journal keeps a durable log of every chat request attempt:
// which provider served it, token consumption, latency, and the error
// kind when the attempt failed. Operators use it to audit rotation
// decisions after the fact; the refresh scheduler prunes old rows.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Entry is one journaled request attempt.
type Entry struct {
	// ID is the locally generated request identifier (UUID). Unique per
	// attempt even when a provider replays response IDs.
	ID string

	// ResponseID is the provider-supplied response identifier, empty for
	// failed attempts.
	ResponseID string

	// Provider is the provider that handled the attempt.
	Provider string

	// Model is the requested model.
	Model string

	// PromptTokens, CompletionTokens, and TotalTokens are zero for
	// failed attempts.
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// LatencyMS is the wall-clock duration of the attempt.
	LatencyMS int64

	// ErrorKind is empty on success, otherwise the taxonomy kind
	// (auth, quota, transient, loading, retries_exhausted, provider,
	// parse).
	ErrorKind string

	// CreatedAt is when the attempt completed.
	CreatedAt time.Time
}

// Journal is a SQLite-backed request log. Safe for concurrent use.
type Journal struct {
	db        *sql.DB
	closeOnce sync.Once
	logger    *slog.Logger
}

// Open creates or opens the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("journal db path cannot be empty")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:     db,
		logger: slog.Default().With("component", "journal"),
	}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		response_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);`
	_, err := j.db.Exec(schema)
	return err
}

// Append records one request attempt.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO requests
			(id, response_id, provider, model, prompt_tokens, completion_tokens, total_tokens, latency_ms, error_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ResponseID, e.Provider, e.Model,
		e.PromptTokens, e.CompletionTokens, e.TotalTokens,
		e.LatencyMS, e.ErrorKind, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Recent returns the n most recent entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, response_id, provider, model, prompt_tokens, completion_tokens, total_tokens, latency_ms, error_kind, created_at
		FROM requests ORDER BY created_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ResponseID, &e.Provider, &e.Model,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
			&e.LatencyMS, &e.ErrorKind, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many
// rows were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM requests WHERE created_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Debug("journal pruned", "deleted", n)
	}
	return int(n), nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		err = j.db.Close()
	})
	return err
}
