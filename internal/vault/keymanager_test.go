package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	return key
}

func TestKeyManager_EncryptDecryptRoundTrip(t *testing.T) {
	km, err := NewKeyManagerWithKey(testKey(t))
	require.NoError(t, err)

	plaintext := []byte("super-secret-oauth-token")
	aad := "tenant-1|user-1|strava|user_oauth_tokens"

	ciphertext, err := km.Encrypt(plaintext, aad)
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)

	decrypted, err := km.Decrypt(ciphertext, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

// TestKeyManager_AadMismatch is the property test spec.md §8 item 1/4
// describes: ciphertext written under one AAD must not decrypt under a
// different one.
func TestKeyManager_AadMismatch(t *testing.T) {
	km, err := NewKeyManagerWithKey(testKey(t))
	require.NoError(t, err)

	ciphertext, err := km.Encrypt([]byte("payload"), "tenant-1|user-1|strava|user_oauth_tokens")
	require.NoError(t, err)

	cases := []string{
		"tenant-2|user-1|strava|user_oauth_tokens",
		"tenant-1|user-2|strava|user_oauth_tokens",
		"tenant-1|user-1|fitbit|user_oauth_tokens",
		"tenant-1|user-1|strava|tenant_oauth_credentials",
	}
	for _, aad := range cases {
		_, err := km.Decrypt(ciphertext, aad)
		assert.ErrorIs(t, err, ErrAadMismatch)
	}
}

func TestKeyManager_DecryptTamperedCiphertext(t *testing.T) {
	km, err := NewKeyManagerWithKey(testKey(t))
	require.NoError(t, err)

	ciphertext, err := km.Encrypt([]byte("payload"), "aad")
	require.NoError(t, err)

	tampered := ciphertext[:len(ciphertext)-4] + "abcd"
	_, err = km.Decrypt(tampered, "aad")
	assert.Error(t, err)
}

func TestKeyManager_DecryptMalformedInput(t *testing.T) {
	km, err := NewKeyManagerWithKey(testKey(t))
	require.NoError(t, err)

	_, err = km.Decrypt("dG9vc2hvcnQ=", "aad")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestKeyManager_KeyUnavailableBeforeLoad(t *testing.T) {
	km := NewKeyManager()
	assert.False(t, km.Ready())

	_, err := km.Encrypt([]byte("x"), "aad")
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = km.HMACDigest("token")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestKeyManager_UpdateMasterKeyIsOneShot(t *testing.T) {
	km := NewKeyManager()
	require.NoError(t, km.UpdateMasterKey(testKey(t)))
	assert.True(t, km.Ready())

	err := km.UpdateMasterKey(testKey(t))
	assert.ErrorIs(t, err, ErrKeyAlreadySet)
}

func TestKeyManager_UpdateMasterKeyRejectsWrongLength(t *testing.T) {
	km := NewKeyManager()
	err := km.UpdateMasterKey([]byte("too-short"))
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestParseMasterKeyHex(t *testing.T) {
	key, err := ParseMasterKeyHex(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = ParseMasterKeyHex("too-short")
	assert.Error(t, err)
}

func TestKeyManager_HMACDigestIsDeterministicAndKeyed(t *testing.T) {
	km1, err := NewKeyManagerWithKey(testKey(t))
	require.NoError(t, err)
	km2, err := NewKeyManagerWithKey(testKey(t))
	require.NoError(t, err)

	d1a, err := km1.HMACDigest("refresh-token-value")
	require.NoError(t, err)
	d1b, err := km1.HMACDigest("refresh-token-value")
	require.NoError(t, err)
	assert.Equal(t, d1a, d1b, "digest must be deterministic for the same key and input")

	d2, err := km2.HMACDigest("refresh-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, d1a, d2, "digest must depend on the key, not just the input")
}
