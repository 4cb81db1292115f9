// Package throttle gates repeated actions behind a per-key cooldown.
package throttle

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCooldown is the minimum interval between two allowed calls per key
const DefaultCooldown = 1500 * time.Millisecond

// Clock returns a monotonic reading as elapsed time since an arbitrary origin
type Clock func() time.Duration

// MonotonicClock returns a Clock backed by the runtime's monotonic time
func MonotonicClock() Clock {
	origin := time.Now()
	return func() time.Duration { return time.Since(origin) }
}

// Throttler is a per-key two-state gate (Idle, Cooldown).
//
// A key is Idle until its first allowed call, moves to Cooldown when a call
// is allowed, and returns to Idle implicitly once the cooldown has elapsed.
// Each key is guarded by its own compare-and-swap; no lock spans keys.
type Throttler struct {
	cooldown time.Duration
	clock    Clock
	entries  sync.Map // string -> *entry
}

type entry struct {
	last atomic.Int64 // clock reading of the last allowed call, in ns
}

// Option configures a Throttler
type Option func(*Throttler)

// WithClock replaces the monotonic clock, mostly for tests
func WithClock(c Clock) Option {
	return func(t *Throttler) {
		if c != nil {
			t.clock = c
		}
	}
}

// New creates a Throttler. A non-positive cooldown selects DefaultCooldown.
func New(cooldown time.Duration, opts ...Option) *Throttler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	t := &Throttler{
		cooldown: cooldown,
		clock:    MonotonicClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Cooldown returns the configured interval
func (t *Throttler) Cooldown() time.Duration {
	return t.cooldown
}

// Allow reports whether an action for key may fire now, and if so records
// the call so later calls within the cooldown are refused.
func (t *Throttler) Allow(key string) bool {
	now := int64(t.clock())

	v, ok := t.entries.Load(key)
	if !ok {
		fresh := &entry{}
		fresh.last.Store(now)
		actual, loaded := t.entries.LoadOrStore(key, fresh)
		if !loaded {
			return true
		}
		v = actual
	}

	e := v.(*entry)
	for {
		last := e.last.Load()
		if now-last < int64(t.cooldown) {
			return false
		}
		if e.last.CompareAndSwap(last, now) {
			return true
		}
	}
}

// Remaining returns how long key stays in cooldown; zero means Idle
func (t *Throttler) Remaining(key string) time.Duration {
	v, ok := t.entries.Load(key)
	if !ok {
		return 0
	}
	elapsed := time.Duration(int64(t.clock()) - v.(*entry).last.Load())
	if elapsed >= t.cooldown {
		return 0
	}
	return t.cooldown - elapsed
}

// KeyState describes one key for diagnostics
type KeyState struct {
	Key       string        `json:"key"`
	Cooling   bool          `json:"cooling"`
	Remaining time.Duration `json:"remaining"`
}

// Snapshot lists every key seen so far, sorted by key
func (t *Throttler) Snapshot() []KeyState {
	var states []KeyState
	t.entries.Range(func(k, _ any) bool {
		key := k.(string)
		rem := t.Remaining(key)
		states = append(states, KeyState{Key: key, Cooling: rem > 0, Remaining: rem})
		return true
	})
	sort.Slice(states, func(i, j int) bool { return states[i].Key < states[j].Key })
	return states
}
