package authn

import (
	"context"
	"math"
	"time"

	"github.com/pierre-platform/security-core/internal/config"
)

// Decision is the limiter's verdict, matching the shape spec.md §4.6
// names: (is_rate_limited, limit, remaining, reset_at).
type Decision struct {
	IsRateLimited bool
	Limit         int64 // 0 means unlimited
	Remaining     int64
	ResetAt       time.Time
}

// TenantOverride lets a tenant's effective limit diverge from its base
// tier: a promotional multiplier, or an unconditional unlimited flag.
type TenantOverride struct {
	Multiplier float64 // 0 means "use 1.0"
	Unlimited  bool
}

// Counter is the pluggable usage-counting backend: in-process by
// default, or Redis-backed across replicas (spec.md §9 Open Question
// #2). Both implementations satisfy this interface.
type Counter interface {
	// Increment adds delta to the tenant's usage counter for the
	// current monthly window and returns the counter's new value.
	Increment(ctx context.Context, tenantID string, now time.Time, delta int64) (int64, error)
}

// RateLimiter evaluates the tier + tenant-override matrix from
// spec.md §4.6 against a pluggable Counter.
type RateLimiter struct {
	tiers   map[string]config.TierLimits
	counter Counter
}

func NewRateLimiter(tiers map[string]config.TierLimits, counter Counter) *RateLimiter {
	return &RateLimiter{tiers: tiers, counter: counter}
}

// Check increments usage by one and reports whether the request should
// be rejected. The effective limit is floor(base * multiplier);
// Unlimited short-circuits the computation entirely.
func (l *RateLimiter) Check(ctx context.Context, tenantID, tier string, override TenantOverride, now time.Time) (Decision, error) {
	resetAt := nextMonthUTC(now)

	if override.Unlimited {
		return Decision{IsRateLimited: false, Limit: 0, Remaining: math.MaxInt64, ResetAt: resetAt}, nil
	}

	base, ok := l.tiers[tier]
	if !ok || base.MonthlyLimit == 0 {
		return Decision{IsRateLimited: false, Limit: 0, Remaining: math.MaxInt64, ResetAt: resetAt}, nil
	}

	multiplier := override.Multiplier
	if multiplier == 0 {
		multiplier = 1.0
	}
	limit := int64(math.Floor(float64(base.MonthlyLimit) * multiplier))

	used, err := l.counter.Increment(ctx, tenantID, now, 1)
	if err != nil {
		return Decision{}, err
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		IsRateLimited: used > limit,
		Limit:         limit,
		Remaining:     remaining,
		ResetAt:       resetAt,
	}, nil
}

func nextMonthUTC(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
