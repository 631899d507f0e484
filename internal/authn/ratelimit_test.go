package authn_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/config"
)

func testTiers() map[string]config.TierLimits {
	return map[string]config.TierLimits{
		"starter":      {MonthlyLimit: 10, Burst: 2},
		"professional": {MonthlyLimit: 100, Burst: 10},
		"enterprise":   {MonthlyLimit: 0, Burst: 0}, // unbounded
	}
}

func TestRateLimiter_AllowsUntilMonthlyLimitThenBlocks(t *testing.T) {
	limiter := authn.NewRateLimiter(testTiers(), authn.NewInProcessCounter())
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		d, err := limiter.Check(context.Background(), "tenant-a", "starter", authn.TenantOverride{}, now)
		require.NoError(t, err)
		assert.False(t, d.IsRateLimited, "request %d should be allowed", i+1)
	}

	d, err := limiter.Check(context.Background(), "tenant-a", "starter", authn.TenantOverride{}, now)
	require.NoError(t, err)
	assert.True(t, d.IsRateLimited)
	assert.Equal(t, int64(0), d.Remaining)
}

func TestRateLimiter_UnlimitedOverrideShortCircuits(t *testing.T) {
	limiter := authn.NewRateLimiter(testTiers(), authn.NewInProcessCounter())
	now := time.Now()

	for i := 0; i < 50; i++ {
		d, err := limiter.Check(context.Background(), "tenant-b", "starter", authn.TenantOverride{Unlimited: true}, now)
		require.NoError(t, err)
		assert.False(t, d.IsRateLimited)
		assert.Equal(t, int64(math.MaxInt64), d.Remaining)
	}
}

func TestRateLimiter_MultiplierRaisesEffectiveLimit(t *testing.T) {
	limiter := authn.NewRateLimiter(testTiers(), authn.NewInProcessCounter())
	now := time.Now()
	override := authn.TenantOverride{Multiplier: 2.0}

	var last authn.Decision
	for i := 0; i < 20; i++ {
		d, err := limiter.Check(context.Background(), "tenant-c", "starter", override, now)
		require.NoError(t, err)
		last = d
	}
	assert.False(t, last.IsRateLimited)
	assert.Equal(t, int64(20), last.Limit)
}

func TestRateLimiter_ZeroMonthlyLimitTierIsUnbounded(t *testing.T) {
	limiter := authn.NewRateLimiter(testTiers(), authn.NewInProcessCounter())
	now := time.Now()

	for i := 0; i < 1000; i++ {
		d, err := limiter.Check(context.Background(), "tenant-d", "enterprise", authn.TenantOverride{}, now)
		require.NoError(t, err)
		assert.False(t, d.IsRateLimited)
	}
}

func TestRateLimiter_TenantsAreIsolated(t *testing.T) {
	limiter := authn.NewRateLimiter(testTiers(), authn.NewInProcessCounter())
	now := time.Now()

	for i := 0; i < 10; i++ {
		_, err := limiter.Check(context.Background(), "tenant-e", "starter", authn.TenantOverride{}, now)
		require.NoError(t, err)
	}

	d, err := limiter.Check(context.Background(), "tenant-f", "starter", authn.TenantOverride{}, now)
	require.NoError(t, err)
	assert.False(t, d.IsRateLimited, "a different tenant's usage must not bleed across keys")
}

func TestRateLimiter_UnknownTierIsUnbounded(t *testing.T) {
	limiter := authn.NewRateLimiter(testTiers(), authn.NewInProcessCounter())
	d, err := limiter.Check(context.Background(), "tenant-g", "nonexistent-tier", authn.TenantOverride{}, time.Now())
	require.NoError(t, err)
	assert.False(t, d.IsRateLimited)
}

func TestInProcessCounter_MonthlyRollover(t *testing.T) {
	counter := authn.NewInProcessCounter()
	endOfJuly := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	startOfAugust := time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC)

	used, err := counter.Increment(context.Background(), "tenant-h", endOfJuly, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), used)

	used, err = counter.Increment(context.Background(), "tenant-h", startOfAugust, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used, "a new calendar month must reset the counter")
}
