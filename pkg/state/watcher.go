package state

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the state file for external edits and invokes a
// callback when it changes. The parent directory is watched rather than
// the file itself so atomic rename-replace writes are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	stopCh   chan struct{}
	logger   *slog.Logger
}

// NewWatcher starts watching the state file at path. onChange runs on
// the watcher goroutine; keep it short and do not call Save from it.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close() // Best effort close on error path
		return nil, fmt.Errorf("failed to watch directory %q: %w", dir, err)
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		logger:   slog.Default().With("component", "state.watcher"),
	}
	go w.loop()

	w.logger.Info("state file watcher started", "path", path)
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

// loop dispatches file events until the watcher is closed.
func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug("state file changed externally",
				"op", event.Op.String(),
			)
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("state file watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}
