package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Store reads and writes the JSON state record.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the record at path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: slog.Default().With("component", "state.store"),
	}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the state record. A missing file yields an empty record.
// Malformed per-provider entries are skipped with a warning; only a
// document that cannot be parsed at all fails the load.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Record{}, nil
		}
		return nil, fmt.Errorf("failed to read state file %q: %w", s.path, err)
	}

	// Decode the envelope with raw provider entries so one bad entry
	// cannot poison the rest.
	var envelope struct {
		Providers            []json.RawMessage `json:"providers"`
		CurrentProviderIndex int               `json:"currentProviderIndex"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse state file %q: %w", s.path, err)
	}

	record := &Record{CurrentProviderIndex: envelope.CurrentProviderIndex}
	for i, raw := range envelope.Providers {
		var entry ProviderRecord
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn("skipping malformed provider entry in state file",
				"index", i,
				"error", err,
			)
			continue
		}
		if entry.Name == "" {
			s.logger.Warn("skipping provider entry without a name", "index", i)
			continue
		}
		record.Providers = append(record.Providers, entry)
	}

	// Clamp a stale cursor into range.
	if n := len(record.Providers); n == 0 {
		record.CurrentProviderIndex = 0
	} else if record.CurrentProviderIndex < 0 || record.CurrentProviderIndex >= n {
		s.logger.Warn("clamping out-of-range rotation cursor",
			"cursor", record.CurrentProviderIndex,
			"providers", n,
		)
		record.CurrentProviderIndex = 0
	}

	return record, nil
}

// Save writes the record atomically with owner-only permissions.
func (s *Store) Save(record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Debug("state record saved",
		"path", s.path,
		"providers", len(record.Providers),
	)
	return nil
}
