package security

import (
	"context"
	"sync"
	"time"
)

// BanTracker tracks consecutive login failures per client address and the
// resulting temporary lockouts.
type BanTracker interface {
	// IsBanned reports whether the client is currently banned. An elapsed
	// ban is lifted lazily by this lookup, clearing the failure counter.
	IsBanned(ctx context.Context, client string) bool

	// RecordFailure counts one failed login. Returns true when this
	// failure tripped the ban threshold.
	RecordFailure(ctx context.Context, client string) bool

	// Reset clears the failure counter after a successful login.
	Reset(ctx context.Context, client string)
}

// BanConfig holds the ban state machine parameters.
type BanConfig struct {
	// MaxFailures is the number of consecutive failures that trips a ban.
	MaxFailures int
	// BanLength is how long a ban lasts.
	BanLength time.Duration
}

// DefaultBanConfig returns the default lockout parameters.
func DefaultBanConfig() BanConfig {
	return BanConfig{
		MaxFailures: 5,
		BanLength:   10 * time.Minute,
	}
}

// loginState is the per-client failure bookkeeping. bannedAt stays zero
// until the threshold trips.
type loginState struct {
	failures int
	bannedAt time.Time
}

// MemoryBanTracker keeps ban state in a mutex-guarded map. State is not
// persisted: a restart resets all counters and lifts all bans.
type MemoryBanTracker struct {
	mu     sync.Mutex
	states map[string]*loginState
	config BanConfig

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemoryBanTracker creates an in-memory ban tracker.
func NewMemoryBanTracker(config BanConfig) *MemoryBanTracker {
	if config.MaxFailures <= 0 {
		config = DefaultBanConfig()
	}
	return &MemoryBanTracker{
		states: make(map[string]*loginState),
		config: config,
		now:    time.Now,
	}
}

// IsBanned implements BanTracker.
func (t *MemoryBanTracker) IsBanned(ctx context.Context, client string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[client]
	if !ok || state.bannedAt.IsZero() {
		return false
	}
	if t.now().Sub(state.bannedAt) >= t.config.BanLength {
		// Ban elapsed: drop the entry entirely so the next failure
		// starts a fresh count.
		delete(t.states, client)
		return false
	}
	return true
}

// RecordFailure implements BanTracker.
func (t *MemoryBanTracker) RecordFailure(ctx context.Context, client string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[client]
	if !ok {
		state = &loginState{}
		t.states[client] = state
	}
	state.failures++
	if state.failures >= t.config.MaxFailures && state.bannedAt.IsZero() {
		state.bannedAt = t.now()
		return true
	}
	return false
}

// Reset implements BanTracker.
func (t *MemoryBanTracker) Reset(ctx context.Context, client string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, client)
}
