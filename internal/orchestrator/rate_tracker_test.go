package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateTracker_AllowsUntilLimitThenBlocks(t *testing.T) {
	rt := NewRateTracker()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, rt.Allow("tenant-a", "strava", 3, now))
		rt.RecordSuccess("tenant-a", "strava", now)
	}
	assert.False(t, rt.Allow("tenant-a", "strava", 3, now))
}

func TestRateTracker_ZeroLimitIsUnbounded(t *testing.T) {
	rt := NewRateTracker()
	now := time.Now()
	for i := 0; i < 1000; i++ {
		assert.True(t, rt.Allow("tenant-a", "garmin", 0, now))
		rt.RecordSuccess("tenant-a", "garmin", now)
	}
}

func TestRateTracker_MidnightUTCRollover(t *testing.T) {
	rt := NewRateTracker()
	day1 := time.Date(2026, 7, 29, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 30, 0, 1, 0, 0, time.UTC)

	assert.True(t, rt.Allow("tenant-a", "strava", 1, day1))
	rt.RecordSuccess("tenant-a", "strava", day1)
	assert.False(t, rt.Allow("tenant-a", "strava", 1, day1))

	// past midnight UTC the counter resets
	assert.True(t, rt.Allow("tenant-a", "strava", 1, day2))
}

func TestRateTracker_TenantsAreIsolated(t *testing.T) {
	rt := NewRateTracker()
	now := time.Now()
	rt.RecordSuccess("tenant-a", "strava", now)
	rt.RecordSuccess("tenant-a", "strava", now)

	used, _ := rt.Snapshot("tenant-a", "strava", now)
	assert.Equal(t, int64(2), used)

	usedB, _ := rt.Snapshot("tenant-b", "strava", now)
	assert.Equal(t, int64(0), usedB)
}

func TestRateTracker_RecordFailureIsIndependentOfUsed(t *testing.T) {
	rt := NewRateTracker()
	now := time.Now()
	rt.RecordFailure("tenant-a", "strava", now)
	rt.RecordFailure("tenant-a", "strava", now)

	used, failed := rt.Snapshot("tenant-a", "strava", now)
	assert.Equal(t, int64(0), used)
	assert.Equal(t, int64(2), failed)
}
