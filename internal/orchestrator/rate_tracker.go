package orchestrator

import (
	"sync"
	"time"
)

// dailyCounter is a per-(tenant,provider) (daily_used, daily_failed)
// pair with midnight-UTC rollover (spec.md §4.4 "Rate tracking").
type dailyCounter struct {
	mu       sync.Mutex
	day      string // YYYY-MM-DD in UTC, the rollover key
	used     int64
	failed   int64
}

func (c *dailyCounter) rolloverIfNeeded(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if c.day != today {
		c.day = today
		c.used = 0
		c.failed = 0
	}
}

// RateTracker holds the in-process primary counters keyed by
// "tenant|provider", grounded on the teacher's sync.Map-of-limiters
// idiom (internal/api/middleware/ratelimit.go IPRateLimiter). Counters
// are the primary source of truth; a caller may additionally mirror
// them into an append-only table for cross-replica aggregation, which
// is allowed to lose small counts across a crash window.
type RateTracker struct {
	counters sync.Map // key string -> *dailyCounter
}

func NewRateTracker() *RateTracker {
	return &RateTracker{}
}

func (t *RateTracker) counterFor(key string) *dailyCounter {
	v, _ := t.counters.LoadOrStore(key, &dailyCounter{})
	return v.(*dailyCounter)
}

// Allow checks daily_used < limit before an outbound call; 0 means
// unbounded. Returns false (ErrTenantRateLimited at the call site) when
// the tenant has exhausted its daily quota for this provider.
func (t *RateTracker) Allow(tenantID, provider string, limit int64, now time.Time) bool {
	c := t.counterFor(tenantID + "|" + provider)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfNeeded(now)
	if limit <= 0 {
		return true
	}
	return c.used < limit
}

// RecordSuccess increments daily_used after a successful outbound call.
func (t *RateTracker) RecordSuccess(tenantID, provider string, now time.Time) {
	c := t.counterFor(tenantID + "|" + provider)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfNeeded(now)
	c.used++
}

// RecordFailure increments daily_failed after a failed outbound call.
func (t *RateTracker) RecordFailure(tenantID, provider string, now time.Time) {
	c := t.counterFor(tenantID + "|" + provider)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfNeeded(now)
	c.failed++
}

// Snapshot returns the current (used, failed) pair for a tenant/provider.
func (t *RateTracker) Snapshot(tenantID, provider string, now time.Time) (used, failed int64) {
	c := t.counterFor(tenantID + "|" + provider)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfNeeded(now)
	return c.used, c.failed
}
