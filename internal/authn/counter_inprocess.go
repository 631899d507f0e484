package authn

import (
	"context"
	"sync"
	"time"
)

// InProcessCounter is the default monthly-usage Counter: a per-tenant
// counter with calendar-month rollover, protected by a mutex held
// across the read-check-increment, following the same
// sync.Map-of-per-key-state idiom as orchestrator.RateTracker and the
// teacher's IPRateLimiter (internal/api/middleware/ratelimit.go). It
// does not survive a process restart and is not shared across replicas
// — acceptable per spec.md §9 Open Question #2, where the distributed
// alternative is RedisCounter.
type InProcessCounter struct {
	counters sync.Map // key tenantID -> *monthlyCounter
}

type monthlyCounter struct {
	mu    sync.Mutex
	month string // YYYY-MM in UTC
	used  int64
}

func NewInProcessCounter() *InProcessCounter {
	return &InProcessCounter{}
}

func (c *InProcessCounter) Increment(_ context.Context, tenantID string, now time.Time, delta int64) (int64, error) {
	v, _ := c.counters.LoadOrStore(tenantID, &monthlyCounter{})
	mc := v.(*monthlyCounter)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	month := now.UTC().Format("2006-01")
	if mc.month != month {
		mc.month = month
		mc.used = 0
	}
	mc.used += delta
	return mc.used, nil
}
