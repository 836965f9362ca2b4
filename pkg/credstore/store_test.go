package credstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := store.Put("openrouter", "sk-or-secret"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get("openrouter")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "sk-or-secret" {
		t.Errorf("Get() = %q, want original secret", got)
	}
}

func TestGetNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_, err = store.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSecretsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Put("together", "sk-together"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got, err := reopened.Get("together")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got != "sk-together" {
		t.Errorf("Get() = %q after reopen, want original secret", got)
	}
}

func TestTamperedCiphertextFailsDecryption(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sealed, err := store.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Flip a character in the middle of the base64 payload.
	tampered := []byte(sealed)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	_, err = store.Decrypt(string(tampered))
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestReplacedKeyFailsDecryption(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	storeA, err := Open(dirA)
	if err != nil {
		t.Fatalf("Open(A) error = %v", err)
	}
	storeB, err := Open(dirB)
	if err != nil {
		t.Fatalf("Open(B) error = %v", err)
	}

	sealed, err := storeA.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	_, err = storeB.Decrypt(sealed)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt() under a different key error = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptGarbageInput(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for _, input := range []string{"", "not base64 !!!", "QQ=="} {
		if _, err := store.Decrypt(input); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt(%q) error = %v, want ErrDecryptionFailed", input, err)
		}
	}
}

func TestKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(dir); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	if err != nil {
		t.Fatalf("Stat key file error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("key file mode = %o, want 0600", mode)
	}
}

func TestOpenRejectsLooseKeyPermissions(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(dir); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := os.Chmod(filepath.Join(dir, keyFileName), 0o644); err != nil {
		t.Fatalf("Chmod error = %v", err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatal("Open() succeeded with a world-readable key file")
	}
}

func TestCredentialsFilePermissions(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Put("p", "super-secret-value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, secretsFileName))
	if err != nil {
		t.Fatalf("Stat credentials file error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("credentials file mode = %o, want 0600", mode)
	}

	// Plaintext must never hit disk.
	data, err := os.ReadFile(filepath.Join(dir, secretsFileName))
	if err != nil {
		t.Fatalf("ReadFile error = %v", err)
	}
	if bytes.Contains(data, []byte("super-secret-value")) {
		t.Error("credentials file contains the plaintext secret")
	}
}

func TestRemoveAndList(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_ = store.Put("b-provider", "s1")
	_ = store.Put("a-provider", "s2")

	if got := store.List(); len(got) != 2 || got[0] != "a-provider" || got[1] != "b-provider" {
		t.Errorf("List() = %v, want sorted IDs", got)
	}

	if err := store.Remove("a-provider"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := store.Get("a-provider"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}

	// Removing an absent secret is a no-op.
	if err := store.Remove("never-existed"); err != nil {
		t.Errorf("Remove() of absent secret error = %v, want nil", err)
	}
}

func TestCiphertextAccessor(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = store.Put("p", "secret")

	sealed, ok := store.Ciphertext("p")
	if !ok || sealed == "" {
		t.Fatalf("Ciphertext() = %q, %v; want sealed value", sealed, ok)
	}
	if sealed == "secret" {
		t.Error("Ciphertext() returned plaintext")
	}

	got, err := store.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "secret" {
		t.Errorf("Decrypt(Ciphertext()) = %q, want original secret", got)
	}
}
