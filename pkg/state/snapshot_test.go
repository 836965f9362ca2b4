package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spiralcodex/rotor/pkg/usage"
)

func newTestBackend(t *testing.T) *SnapshotBackend {
	t.Helper()

	b, err := NewSnapshotBackend(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("NewSnapshotBackend() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func sampleUsage(id string) usage.ProviderUsage {
	return usage.ProviderUsage{
		ID:     id,
		Status: usage.StatusActive,
		Counters: usage.Counters{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
			Requests:         4,
			WindowStart:      time.Now().Truncate(time.Second),
		},
		Limits: usage.Limits{Requests: 100, Tokens: 1000},
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	in := sampleUsage("openrouter")
	if err := b.Save(ctx, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, ok, err := b.Load(ctx, "openrouter")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() ok = false, want stored snapshot")
	}
	if out.Status != usage.StatusActive {
		t.Errorf("Status = %q, want active", out.Status)
	}
	if out.Counters.TotalTokens != 30 || out.Counters.Requests != 4 {
		t.Errorf("Counters = %+v", out.Counters)
	}
	if !out.Counters.WindowStart.Equal(in.Counters.WindowStart) {
		t.Errorf("WindowStart = %v, want %v", out.Counters.WindowStart, in.Counters.WindowStart)
	}
}

func TestSnapshotLoadMissing(t *testing.T) {
	b := newTestBackend(t)

	_, ok, err := b.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() ok = true for a missing provider")
	}
}

func TestSnapshotUpsert(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	u := sampleUsage("p")
	if err := b.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	u.Status = usage.StatusExhausted
	u.Counters.Requests = 100
	if err := b.Save(ctx, u); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	out, ok, err := b.Load(ctx, "p")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if out.Status != usage.StatusExhausted || out.Counters.Requests != 100 {
		t.Errorf("snapshot = %+v, upsert did not replace", out)
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() has %d rows after upsert, want 1", len(list))
	}
}

func TestSnapshotListOrdered(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := b.Save(ctx, sampleUsage(id)); err != nil {
			t.Fatalf("Save(%q) error = %v", id, err)
		}
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(list) != len(want) {
		t.Fatalf("got %d rows, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d].ID = %q, want %q", i, list[i].ID, id)
		}
	}
}

func TestSnapshotDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, sampleUsage("p")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := b.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, ok, err := b.Load(ctx, "p")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("snapshot still present after Delete()")
	}

	// Deleting an absent row is a no-op.
	if err := b.Delete(ctx, "p"); err != nil {
		t.Errorf("Delete() of absent row error = %v", err)
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	b, err := NewSnapshotBackend(path)
	if err != nil {
		t.Fatalf("NewSnapshotBackend() error = %v", err)
	}
	if err := b.Save(ctx, sampleUsage("p")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSnapshotBackend(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	_, ok, err := reopened.Load(ctx, "p")
	if err != nil || !ok {
		t.Fatalf("Load() after reopen = %v, %v; want stored snapshot", ok, err)
	}
}
