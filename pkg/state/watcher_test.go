package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, path string) (*Watcher, chan struct{}) {
	t.Helper()

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, fired
}

func TestWatcherFiresOnRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, fired := newTestWatcher(t, path)

	// Replace the file atomically, the way Save writes it.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(`{"currentProviderIndex":0}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired on a rename-replace of the state file")
	}
}

func TestWatcherFiresOnDirectWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, fired := newTestWatcher(t, path)

	if err := os.WriteFile(path, []byte(`{"providers":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired on an in-place write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, fired := newTestWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "journal.db"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Error("watcher fired for an unrelated file in the same directory")
	case <-time.After(200 * time.Millisecond):
	}
}
