package authn_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierre-platform/security-core/internal/authn"
)

func TestFromContext_MissingPrincipalFails(t *testing.T) {
	_, err := authn.FromContext(context.Background())
	assert.Error(t, err)
}

func TestWithPrincipal_RoundTrip(t *testing.T) {
	p := authn.Principal{
		UserID:     uuid.New(),
		TenantID:   uuid.New(),
		Tier:       "professional",
		AuthMethod: authn.AuthMethodSession,
	}
	ctx := authn.WithPrincipal(context.Background(), p)

	got, err := authn.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestNoOverrides_AlwaysZeroValue(t *testing.T) {
	var lookup authn.NoOverrides
	override, err := lookup.TenantOverride(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, authn.TenantOverride{}, override)
}
