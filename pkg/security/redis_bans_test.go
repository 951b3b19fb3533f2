package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTrackerTest starts a miniredis instance and returns a tracker
// bound to it plus a cleanup function.
func setupRedisTrackerTest(t *testing.T, config BanConfig) (*RedisBanTracker, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tracker := NewRedisBanTracker(client, config, nil)

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return tracker, mr, cleanup
}

func TestRedisBanTracker_ThresholdTripsBan(t *testing.T) {
	tracker, _, cleanup := setupRedisTrackerTest(t, BanConfig{MaxFailures: 3, BanLength: time.Minute})
	defer cleanup()
	ctx := context.Background()

	assert.False(t, tracker.IsBanned(ctx, "10.0.0.1"))
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.True(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.True(t, tracker.IsBanned(ctx, "10.0.0.1"))

	assert.False(t, tracker.IsBanned(ctx, "10.0.0.2"))
}

func TestRedisBanTracker_BanLiftsWithKeyTTL(t *testing.T) {
	tracker, mr, cleanup := setupRedisTrackerTest(t, BanConfig{MaxFailures: 1, BanLength: time.Minute})
	defer cleanup()
	ctx := context.Background()

	require.True(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	require.True(t, tracker.IsBanned(ctx, "10.0.0.1"))

	// Advance miniredis past the ban TTL.
	mr.FastForward(time.Minute + time.Second)
	assert.False(t, tracker.IsBanned(ctx, "10.0.0.1"))

	// The failure counter was dropped when the ban tripped, so the next
	// ban needs a full round of failures again.
	assert.True(t, tracker.RecordFailure(ctx, "10.0.0.1"))
}

func TestRedisBanTracker_FailureCounterExpires(t *testing.T) {
	tracker, mr, cleanup := setupRedisTrackerTest(t, BanConfig{MaxFailures: 3, BanLength: time.Minute})
	defer cleanup()
	ctx := context.Background()

	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))

	// Sub-threshold counters carry a TTL so one-off failures do not
	// accumulate keys forever.
	ttl := mr.TTL(tracker.failKey("10.0.0.1"))
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists(tracker.failKey("10.0.0.1")))

	// After expiry the count starts fresh.
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.True(t, tracker.RecordFailure(ctx, "10.0.0.1"))
}

func TestRedisBanTracker_ResetClearsFailures(t *testing.T) {
	tracker, _, cleanup := setupRedisTrackerTest(t, BanConfig{MaxFailures: 2, BanLength: time.Minute})
	defer cleanup()
	ctx := context.Background()

	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	tracker.Reset(ctx, "10.0.0.1")
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	assert.True(t, tracker.RecordFailure(ctx, "10.0.0.1"))
}

func TestRedisBanTracker_FailsOpenWhenUnreachable(t *testing.T) {
	tracker, mr, cleanup := setupRedisTrackerTest(t, BanConfig{MaxFailures: 1, BanLength: time.Minute})
	defer cleanup()
	ctx := context.Background()

	mr.Close()

	assert.False(t, tracker.IsBanned(ctx, "10.0.0.1"))
	assert.False(t, tracker.RecordFailure(ctx, "10.0.0.1"))
	tracker.Reset(ctx, "10.0.0.1")
}
