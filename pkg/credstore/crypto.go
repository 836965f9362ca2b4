package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// keySize is the AES-256 key length in bytes.
const keySize = 32

// generateKey returns a fresh random AES-256 key.
func generateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext with AES-GCM and returns base64 ciphertext
// with the nonce prepended.
func seal(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// open decrypts base64 ciphertext produced by seal. Any failure
// (malformed base64, truncated data, wrong key, tampering) collapses
// into ErrDecryptionFailed so callers never see the crypto internals.
func open(key []byte, encoded string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, &DecryptionError{Cause: fmt.Errorf("ciphertext too short")}
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}
	return plaintext, nil
}
