// Package ratelimit throttles publishes per stream with a cooldown gate.
package ratelimit

import (
	"sync"
	"time"

	"github.com/open-teleop/pilot/pkg/clock"
)

// DefaultCooldown is used for streams without an explicit cooldown.
const DefaultCooldown = 50 * time.Millisecond

type gate struct {
	closed   bool
	cooldown time.Duration
	// generation invalidates expiry callbacks from an earlier gating.
	generation uint64
}

// Limiter lets at most one publish through per stream per cooldown window.
// Streams never block each other.
type Limiter struct {
	clock           clock.Clock
	defaultCooldown time.Duration

	mu    sync.Mutex
	gates map[string]*gate
}

// NewLimiter creates a Limiter. A non-positive defaultCooldown means DefaultCooldown.
func NewLimiter(c clock.Clock, defaultCooldown time.Duration) *Limiter {
	if c == nil {
		c = clock.Real()
	}
	if defaultCooldown <= 0 {
		defaultCooldown = DefaultCooldown
	}
	return &Limiter{
		clock:           c,
		defaultCooldown: defaultCooldown,
		gates:           make(map[string]*gate),
	}
}

// SetCooldown overrides the window for one stream.
func (l *Limiter) SetCooldown(stream string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g := l.gateLocked(stream)
	if d <= 0 {
		d = l.defaultCooldown
	}
	g.cooldown = d
}

// TryPublish runs publish unless the stream published within its cooldown.
// It reports whether publish ran. The gate is closed before publish is
// called and reopens after the cooldown.
func (l *Limiter) TryPublish(stream string, publish func()) bool {
	l.mu.Lock()
	g := l.gateLocked(stream)
	if g.closed {
		l.mu.Unlock()
		return false
	}
	g.closed = true
	g.generation++
	generation := g.generation
	cooldown := g.cooldown
	l.mu.Unlock()

	l.clock.AfterFunc(cooldown, func() { l.reopen(stream, generation) })
	publish()
	return true
}

// Gated reports whether the stream is currently inside its cooldown.
func (l *Limiter) Gated(stream string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[stream]
	return ok && g.closed
}

// Reset reopens the stream's gate immediately.
func (l *Limiter) Reset(stream string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok := l.gates[stream]; ok {
		g.closed = false
		g.generation++
	}
}

func (l *Limiter) reopen(stream string, generation uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok := l.gates[stream]; ok && g.generation == generation {
		g.closed = false
	}
}

func (l *Limiter) gateLocked(stream string) *gate {
	g, ok := l.gates[stream]
	if !ok {
		g = &gate{cooldown: l.defaultCooldown}
		l.gates[stream] = g
	}
	return g
}
