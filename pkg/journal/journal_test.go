package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := j.Append(ctx, Entry{
			ID:           fmt.Sprintf("req-%d", i),
			Provider:     "openrouter",
			Model:        "m",
			TotalTokens:  10 * i,
			LatencyMS:    int64(100 + i),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].ID != "req-4" || entries[2].ID != "req-2" {
		t.Errorf("order = %q..%q, want newest first", entries[0].ID, entries[2].ID)
	}
	if entries[0].TotalTokens != 40 {
		t.Errorf("TotalTokens = %d, want 40", entries[0].TotalTokens)
	}
}

func TestAppendFillsCreatedAt(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.Append(ctx, Entry{ID: "r", Provider: "p", Model: "m"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want filled on append")
	}
}

func TestRepeatedResponseIDsBothPersist(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	// Some providers replay the same response identifier across
	// requests. Only the local ID is the key, so both rows must land.
	if err := j.Append(ctx, Entry{ID: "req-1", ResponseID: "chatcmpl-123", Provider: "p", Model: "m"}); err != nil {
		t.Fatalf("Append(first) error = %v", err)
	}
	if err := j.Append(ctx, Entry{ID: "req-2", ResponseID: "chatcmpl-123", Provider: "p", Model: "m"}); err != nil {
		t.Fatalf("Append(second) error = %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.ResponseID != "chatcmpl-123" {
			t.Errorf("ResponseID = %q, want chatcmpl-123", e.ResponseID)
		}
	}
	if entries[0].ID == entries[1].ID {
		t.Errorf("both rows share ID %q, want distinct local IDs", entries[0].ID)
	}
}

func TestErrorKindPersisted(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.Append(ctx, Entry{ID: "r", Provider: "p", Model: "m", ErrorKind: "quota"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if entries[0].ErrorKind != "quota" {
		t.Errorf("ErrorKind = %q, want quota", entries[0].ErrorKind)
	}
}

func TestPrune(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	_ = j.Append(ctx, Entry{ID: "old-1", Provider: "p", Model: "m", CreatedAt: old})
	_ = j.Append(ctx, Entry{ID: "old-2", Provider: "p", Model: "m", CreatedAt: old})
	_ = j.Append(ctx, Entry{ID: "new-1", Provider: "p", Model: "m", CreatedAt: recent})

	n, err := j.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "new-1" {
		t.Errorf("remaining = %+v, want only new-1", entries)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
