package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var order []int

	c.AfterFunc(20*time.Millisecond, func() { order = append(order, 2) })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, 3) })

	c.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("Expected [1 2] after 25ms, got %v", order)
	}
	if c.Pending() != 1 {
		t.Errorf("Expected 1 pending timer, got %d", c.Pending())
	}

	c.Advance(5 * time.Millisecond)
	if len(order) != 3 {
		t.Errorf("Expected third timer to fire at 30ms, got %v", order)
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Errorf("Expected Stop to report an active timer")
	}
	c.Advance(time.Second)
	if fired {
		t.Errorf("Stopped timer must not fire")
	}
	if timer.Stop() {
		t.Errorf("Second Stop should return false")
	}
}

func TestFakeNestedSchedule(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(10*time.Millisecond, tick)
		}
	}
	c.AfterFunc(10*time.Millisecond, tick)

	c.Advance(30 * time.Millisecond)
	if count != 3 {
		t.Errorf("Expected 3 chained ticks, got %d", count)
	}
	if got := c.Now().Sub(time.Unix(0, 0)); got != 30*time.Millisecond {
		t.Errorf("Expected clock at 30ms, got %v", got)
	}
}
