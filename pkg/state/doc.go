// Package state persists the engine's configuration record: every
// provider's connection metadata, encrypted credential, status, and
// usage counters, plus the rotation cursor.
//
// The on-disk format is a single JSON document, written with owner-only
// permissions. Loading is deliberately tolerant of schema drift:
//
//   - missing optional fields default to zero values and active status
//   - unknown fields are ignored
//   - malformed per-provider entries are skipped with a warning while
//     the rest of the record loads
//   - legacy plaintext apiKey fields are accepted and re-encrypted on
//     the next save
//   - stringified enum statuses from a predecessor system
//     ("ProviderStatus.ACTIVE") parse to their canonical values
//
// A Watcher can observe the state file for external edits, and the
// SQLite-backed SnapshotBackend keeps durable usage snapshots that
// survive restarts independently of the JSON record.
package state
