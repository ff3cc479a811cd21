package ratelimit

import (
	"testing"
	"time"

	"github.com/open-teleop/pilot/pkg/clock"
)

func newTestLimiter() (*Limiter, *clock.Fake) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	return NewLimiter(fake, 0), fake
}

func TestBurstWithinCooldownPublishesOnce(t *testing.T) {
	limiter, fake := newTestLimiter()
	published := 0

	for i := 0; i < 10; i++ {
		limiter.TryPublish("left", func() { published++ })
		fake.Advance(4 * time.Millisecond) // 40ms total, still inside 50ms
	}

	if published != 1 {
		t.Errorf("Expected exactly 1 publish within cooldown, got %d", published)
	}
	if !limiter.Gated("left") {
		t.Errorf("Expected stream to be gated")
	}
}

func TestSpacedEventsAllPublish(t *testing.T) {
	limiter, fake := newTestLimiter()
	published := 0

	for i := 0; i < 5; i++ {
		if !limiter.TryPublish("left", func() { published++ }) {
			t.Errorf("Publish %d unexpectedly dropped", i)
		}
		fake.Advance(DefaultCooldown + time.Millisecond)
	}

	if published != 5 {
		t.Errorf("Expected 5 publishes, got %d", published)
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	limiter, fake := newTestLimiter()
	counts := map[string]int{}

	for i := 0; i < 3; i++ {
		limiter.TryPublish("left", func() { counts["left"]++ })
		limiter.TryPublish("right", func() { counts["right"]++ })
		fake.Advance(time.Millisecond)
	}

	if counts["left"] != 1 || counts["right"] != 1 {
		t.Errorf("Expected one publish per stream, got %v", counts)
	}
}

func TestSetCooldownAndReset(t *testing.T) {
	limiter, fake := newTestLimiter()
	limiter.SetCooldown("slow", 200*time.Millisecond)
	published := 0

	limiter.TryPublish("slow", func() { published++ })
	fake.Advance(100 * time.Millisecond)
	limiter.TryPublish("slow", func() { published++ })
	if published != 1 {
		t.Fatalf("Expected custom cooldown to hold at 100ms, got %d publishes", published)
	}

	limiter.Reset("slow")
	limiter.TryPublish("slow", func() { published++ })
	if published != 2 {
		t.Fatalf("Expected publish after Reset, got %d", published)
	}

	// The expiry scheduled by the first publish must not reopen the gate
	// closed by the publish after Reset.
	fake.Advance(100 * time.Millisecond)
	if !limiter.Gated("slow") {
		t.Errorf("Stale expiry reopened the gate")
	}
	fake.Advance(100 * time.Millisecond)
	if limiter.Gated("slow") {
		t.Errorf("Expected gate to reopen after its own cooldown")
	}
}
