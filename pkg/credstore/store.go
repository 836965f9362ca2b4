package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Get when no secret is stored for the
	// provider.
	ErrNotFound = errors.New("credential not found")

	// ErrDecryptionFailed is returned when a stored ciphertext cannot
	// be recovered (corruption, tampering, or a replaced key file).
	// Callers must treat this as "no usable secret", not as fatal.
	ErrDecryptionFailed = errors.New("credential decryption failed")
)

// DecryptionError wraps the underlying crypto failure behind
// ErrDecryptionFailed.
type DecryptionError struct {
	Cause error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("credential decryption failed: %v", e.Cause)
}

// Is matches ErrDecryptionFailed.
func (e *DecryptionError) Is(target error) bool { return target == ErrDecryptionFailed }

// Unwrap returns the underlying error for error chain support.
func (e *DecryptionError) Unwrap() error { return e.Cause }

const (
	keyFileName     = "rotor.key"
	secretsFileName = "credentials.json"
)

// Store persists provider secrets encrypted under a locally generated
// AES-256 key. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	key         []byte
	secretsPath string
	// ciphertexts maps providerID -> base64 sealed secret.
	ciphertexts map[string]string
	logger      *slog.Logger
}

// Open creates or loads the credential store rooted at dir. The key
// file is created on first use with 0600; an existing key file with
// looser permissions is rejected.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	key, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}

	s := &Store{
		key:         key,
		secretsPath: filepath.Join(dir, secretsFileName),
		ciphertexts: make(map[string]string),
		logger:      slog.Default().With("component", "credstore"),
	}

	if err := s.loadSecrets(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadOrCreateKey reads the symmetric key file, generating it on first
// use. Permissions must be 0600 or 0400.
func loadOrCreateKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if mode := info.Mode().Perm(); mode != 0o600 && mode != 0o400 {
			return nil, fmt.Errorf("insecure permissions on key file %s: %o (expected 0600 or 0400)", path, mode)
		}
		key, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("failed to read key file: %w", rerr)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("key file %s has invalid size %d (expected %d)", path, len(key), keySize)
		}
		return key, nil

	case os.IsNotExist(err):
		key, gerr := generateKey()
		if gerr != nil {
			return nil, gerr
		}
		if werr := os.WriteFile(path, key, 0o600); werr != nil {
			return nil, fmt.Errorf("failed to write key file: %w", werr)
		}
		slog.Info("generated new credential encryption key", "path", path)
		return key, nil

	default:
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}
}

// loadSecrets reads the ciphertext map from disk. A missing file is an
// empty store.
func (s *Store) loadSecrets() error {
	data, err := os.ReadFile(s.secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := json.Unmarshal(data, &s.ciphertexts); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return nil
}

// persistLocked writes the ciphertext map with owner-only permissions.
// Caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.ciphertexts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp := s.secretsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.secretsPath); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

// Put encrypts and stores a secret for a provider, replacing any
// existing one.
func (s *Store) Put(providerID, secret string) error {
	sealed, err := seal(s.key, []byte(secret))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ciphertexts[providerID] = sealed
	if err := s.persistLocked(); err != nil {
		return err
	}

	s.logger.Info("credential stored", "provider", providerID)
	return nil
}

// Get decrypts and returns the secret for a provider. Returns
// ErrNotFound when none is stored and ErrDecryptionFailed when the
// ciphertext cannot be recovered.
func (s *Store) Get(providerID string) (string, error) {
	s.mu.Lock()
	sealed, ok := s.ciphertexts[providerID]
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("provider %q: %w", providerID, ErrNotFound)
	}

	plaintext, err := open(s.key, sealed)
	if err != nil {
		s.logger.Warn("failed to decrypt stored credential", "provider", providerID)
		return "", err
	}
	return string(plaintext), nil
}

// Remove deletes a provider's secret. Removing an absent secret is a
// no-op.
func (s *Store) Remove(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ciphertexts[providerID]; !ok {
		return nil
	}
	delete(s.ciphertexts, providerID)
	if err := s.persistLocked(); err != nil {
		return err
	}

	s.logger.Info("credential removed", "provider", providerID)
	return nil
}

// List returns the provider IDs with stored secrets, sorted. Values are
// never included.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.ciphertexts))
	for id := range s.ciphertexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ciphertext returns the stored sealed secret for a provider without
// decrypting it. The persistence layer embeds it in the state record.
func (s *Store) Ciphertext(providerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, ok := s.ciphertexts[providerID]
	return sealed, ok
}

// Encrypt seals an arbitrary secret under the store's key without
// persisting it. The persistence layer uses this to re-encrypt legacy
// plaintext keys found in old state files.
func (s *Store) Encrypt(secret string) (string, error) {
	return seal(s.key, []byte(secret))
}

// Decrypt recovers a ciphertext produced by Encrypt or Put.
func (s *Store) Decrypt(ciphertext string) (string, error) {
	plaintext, err := open(s.key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
