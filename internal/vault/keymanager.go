// Package vault implements the tenant-scoped credential vault (spec.md
// §4.1, §4.2): a master-key-backed AEAD layer (KeyManager) and the
// encrypted CRUD store built on top of it (Vault).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Errors returned by KeyManager, matching the cryptographic-error
// taxonomy in spec.md §7.
var (
	ErrAadMismatch       = errors.New("vault: aad mismatch or tampered ciphertext")
	ErrMalformed         = errors.New("vault: malformed ciphertext")
	ErrKeyUnavailable    = errors.New("vault: master key not loaded")
	ErrKeyAlreadySet     = errors.New("vault: master key already set")
	ErrInvalidKeyLength  = errors.New("vault: master key must be exactly 32 bytes")
)

// KeyManager loads the master data-encryption key and exposes AEAD
// encrypt/decrypt with caller-supplied associated data, plus a keyed
// HMAC digest primitive for deterministic lookups. Generalizes the
// teacher's internal/crypto/tenant_secrets.go (single env-var key, no
// AAD) into a struct holding the key in memory with a single allowed
// Unset -> Set transition (spec.md §9 "Global state").
type KeyManager struct {
	mu  sync.RWMutex
	key []byte // 32 bytes once set, nil before
}

// NewKeyManager returns a KeyManager with no key loaded. Call
// UpdateMasterKey (or NewKeyManagerWithKey) before any Encrypt/Decrypt
// call, or they will fail with ErrKeyUnavailable.
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// NewKeyManagerWithKey constructs a KeyManager already holding key.
// key must be exactly 32 bytes.
func NewKeyManagerWithKey(key []byte) (*KeyManager, error) {
	km := NewKeyManager()
	if err := km.UpdateMasterKey(key); err != nil {
		return nil, err
	}
	return km, nil
}

// ParseMasterKeyHex decodes a 64-hex-character master key, the format
// the teacher's TENANT_SECRET_KEY env var uses.
func ParseMasterKeyHex(keyHex string) ([]byte, error) {
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("%w: got %d hex characters, want 64", ErrInvalidKeyLength, len(keyHex))
	}
	key := make([]byte, 32)
	n, err := hex.Decode(key, []byte(keyHex))
	if err != nil {
		return nil, fmt.Errorf("vault: invalid master key hex: %w", err)
	}
	if n != 32 {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}

// UpdateMasterKey performs the one-shot bootstrap key load described in
// spec.md §4.1. Calling it a second time is a fatal configuration error
// (it returns ErrKeyAlreadySet; callers at startup should treat that as
// fatal, not retry).
func (k *KeyManager) UpdateMasterKey(key []byte) error {
	if len(key) != 32 {
		return ErrInvalidKeyLength
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key != nil {
		return ErrKeyAlreadySet
	}
	stored := make([]byte, 32)
	copy(stored, key)
	k.key = stored
	return nil
}

// Ready reports whether a master key has been loaded.
func (k *KeyManager) Ready() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key != nil
}

func (k *KeyManager) gcm() (cipher.AEAD, error) {
	k.mu.RLock()
	key := k.key
	k.mu.RUnlock()
	if key == nil {
		return nil, ErrKeyUnavailable
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt produces AES-256-GCM ciphertext bound to aad. Output layout:
// nonce ‖ ciphertext_with_auth_tag, base64-encoded (spec.md §4.1).
func (k *KeyManager) Encrypt(plaintext []byte, aad string) (string, error) {
	gcm, err := k.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, []byte(aad))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It fails with ErrAadMismatch if
// authentication fails (wrong key, wrong aad, or tampered ciphertext —
// spec.md §4.1 deliberately collapses these into one error kind so a
// decryption failure never hints at which part was wrong), ErrMalformed
// if the input is shorter than the nonce size, and ErrKeyUnavailable if
// the master key has not been loaded yet.
func (k *KeyManager) Decrypt(ciphertextB64 string, aad string) ([]byte, error) {
	gcm, err := k.gcm()
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, ErrMalformed
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		// Never retried with a different AAD (spec.md §4.1 "Failure model").
		return nil, ErrAadMismatch
	}
	return plaintext, nil
}

// HMACDigest computes a deterministic HMAC-SHA-256 over token, keyed on
// the master key, base64-encoded. Used as a lookup surrogate for
// high-entropy secrets (refresh tokens, reset tokens, API keys) so they
// can be found without storing plaintext. Generalizes the teacher's
// unkeyed hashToken (internal/auth/recovery.go, plain SHA-256) into a
// keyed HMAC so digests cannot be forged without the master key.
func (k *KeyManager) HMACDigest(token string) (string, error) {
	k.mu.RLock()
	key := k.key
	k.mu.RUnlock()
	if key == nil {
		return "", ErrKeyUnavailable
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// GenerateMasterKey generates a fresh 32-byte key, for bootstrap/rotation
// tooling (cmd/keygen), mirroring the teacher's crypto.GenerateKey.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: failed to generate random key: %w", err)
	}
	return key, nil
}
