package authserver

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pierre-platform/security-core/internal/storage/models"
)

func TestVerifyPKCE_Plain(t *testing.T) {
	assert.NoError(t, verifyPKCE(models.PKCEPlain, "verifier123", "verifier123"))
	assert.ErrorIs(t, verifyPKCE(models.PKCEPlain, "wrong", "verifier123"), ErrPKCEVerificationFailed)
}

func TestVerifyPKCE_S256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.NoError(t, verifyPKCE(models.PKCES256, verifier, challenge))
	assert.ErrorIs(t, verifyPKCE(models.PKCES256, "different-verifier", challenge), ErrPKCEVerificationFailed)
}

func TestVerifyPKCE_EmptyInputsFail(t *testing.T) {
	assert.ErrorIs(t, verifyPKCE(models.PKCES256, "", "challenge"), ErrPKCEVerificationFailed)
	assert.ErrorIs(t, verifyPKCE(models.PKCES256, "verifier", ""), ErrPKCEVerificationFailed)
}

func TestVerifyPKCE_UnknownMethodFails(t *testing.T) {
	assert.ErrorIs(t, verifyPKCE(models.PKCEMethod("rot13"), "v", "c"), ErrPKCEVerificationFailed)
}

func TestValidPKCEMethod(t *testing.T) {
	assert.True(t, validPKCEMethod("plain"))
	assert.True(t, validPKCEMethod("S256"))
	assert.False(t, validPKCEMethod("md5"))
	assert.False(t, validPKCEMethod(""))
}
