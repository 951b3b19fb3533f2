package security

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/citadel/pkg/observability"
)

// RedisBanTracker shares ban state across instances through Redis, for
// deployments where login attempts from one client may land on any node.
//
// On Redis errors the tracker fails open: an unreachable ban store must not
// lock every client out of the platform.
type RedisBanTracker struct {
	redis  *redis.Client
	config BanConfig
	prefix string
	log    *observability.Logger
}

// NewRedisBanTracker creates a Redis-backed ban tracker.
func NewRedisBanTracker(client *redis.Client, config BanConfig, log *observability.Logger) *RedisBanTracker {
	if config.MaxFailures <= 0 {
		config = DefaultBanConfig()
	}
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RedisBanTracker{
		redis:  client,
		config: config,
		prefix: "citadel:ban",
		log:    log,
	}
}

// IsBanned implements BanTracker. Expiry is handled by the ban key's TTL, so
// the lazy-lift semantics of the in-memory tracker come for free.
func (t *RedisBanTracker) IsBanned(ctx context.Context, client string) bool {
	n, err := t.redis.Exists(ctx, t.banKey(client)).Result()
	if err != nil {
		t.log.WithError(err).Warn("ban lookup failed, failing open")
		return false
	}
	return n > 0
}

// RecordFailure implements BanTracker.
func (t *RedisBanTracker) RecordFailure(ctx context.Context, client string) bool {
	failures, err := t.redis.Incr(ctx, t.failKey(client)).Result()
	if err != nil {
		t.log.WithError(err).Warn("failure count update failed")
		return false
	}
	if failures == 1 {
		// Counters that never trip the threshold must not linger forever.
		if err := t.redis.Expire(ctx, t.failKey(client), t.config.BanLength).Err(); err != nil {
			t.log.WithError(err).Warn("failure count expiry failed")
		}
	}

	if failures < int64(t.config.MaxFailures) {
		return false
	}

	// Threshold tripped: mark the ban and drop the counter so the next
	// failure after the ban lifts starts a fresh count.
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, t.banKey(client), "1", t.config.BanLength)
	pipe.Del(ctx, t.failKey(client))
	if _, err := pipe.Exec(ctx); err != nil {
		t.log.WithError(err).Warn("ban write failed")
		return false
	}
	return true
}

// Reset implements BanTracker.
func (t *RedisBanTracker) Reset(ctx context.Context, client string) {
	if err := t.redis.Del(ctx, t.failKey(client)).Err(); err != nil {
		t.log.WithError(err).Warn("failure count reset failed")
	}
}

func (t *RedisBanTracker) failKey(client string) string {
	return fmt.Sprintf("%s:fail:%s", t.prefix, client)
}

func (t *RedisBanTracker) banKey(client string) string {
	return fmt.Sprintf("%s:until:%s", t.prefix, client)
}
