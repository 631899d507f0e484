package authn_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierre-platform/security-core/internal/audit"
	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/config"
)

func testTierLimits() map[string]config.TierLimits {
	return map[string]config.TierLimits{
		"starter": {MonthlyLimit: 10_000, Burst: 20},
	}
}

func TestAPIKeyManager_CreateThenAuthenticateThenRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("requires database")
	}
	pool := setupAuthnTestDB(t)
	defer pool.Close()
	km := testKeyManager(t)

	mgr := authn.NewAPIKeyManager(pool, km, testTierLimits())
	tenantID := uuid.New()
	userID := uuid.New()

	issued, err := mgr.Create(context.Background(), authn.CreateInput{
		TenantID: tenantID,
		UserID:   userID,
		Name:     "ci runner",
		Tier:     "starter",
	})
	require.NoError(t, err)
	require.Contains(t, issued.RawKey, issued.Prefix)

	a := authn.NewAuthenticator(testAuthnSigner(t), pool, km, nil, audit.NewJSONLogger())
	principal, err := a.Authenticate(context.Background(), issued.RawKey)
	require.NoError(t, err)
	assert.Equal(t, tenantID, principal.TenantID)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, "starter", principal.Tier)
	assert.Equal(t, authn.AuthMethodAPIKey, principal.AuthMethod)

	summaries, err := mgr.List(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].IsActive)

	require.NoError(t, mgr.Revoke(context.Background(), issued.ID))
	_, err = a.Authenticate(context.Background(), issued.RawKey)
	assert.ErrorIs(t, err, authn.ErrUnauthenticated)
}

func TestAPIKeyManager_ExpiringKey(t *testing.T) {
	if testing.Short() {
		t.Skip("requires database")
	}
	pool := setupAuthnTestDB(t)
	defer pool.Close()
	km := testKeyManager(t)

	mgr := authn.NewAPIKeyManager(pool, km, testTierLimits())
	tenantID := uuid.New()

	issued, err := mgr.Create(context.Background(), authn.CreateInput{
		TenantID: tenantID,
		UserID:   uuid.New(),
		Name:     "short lived",
		Tier:     "starter",
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.RawKey)

	summaries, err := mgr.List(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].ExpiresAt)
}
