// Package engine assembles the rotation runtime: catalog descriptors,
// the credential store, the usage tracker, provider clients, the
// rotation manager, and persistence. It is the single entry point the
// CLI and embedding programs use.
//
// # Lifecycle
//
// Open loads the state directory: the encryption key and credential
// ciphertexts, the JSON state record, and the SQLite usage snapshots.
// Providers found in the record are rebuilt in order so the persisted
// rotation cursor stays meaningful; providers whose API keys appear in
// the environment are registered automatically. Close flushes state
// back to disk and releases every resource.
//
// # Persistence
//
// The JSON record is the source of truth for provider configuration
// and the rotation cursor. Usage counters are additionally mirrored
// into a SQLite snapshot database so consumption survives a lost or
// hand-edited record. Legacy records carrying plaintext API keys are
// accepted on load and re-encrypted on the next save.
package engine
