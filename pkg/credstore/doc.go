// Package credstore stores provider API keys encrypted at rest.
//
// Secrets are sealed with AES-256-GCM under a locally generated key.
// The key lives in a file restricted to owner read/write (0600),
// created on first use and reused thereafter. Ciphertexts are kept in a
// JSON file next to the key, also 0600.
//
// There is no key rotation: replacing the key file invalidates every
// stored secret. Get on ciphertext sealed under a different key returns
// ErrDecryptionFailed and callers treat it as "no usable secret".
//
// Plaintext secrets exist only transiently in memory. They are never
// logged, exported, or embedded in error messages.
package credstore
