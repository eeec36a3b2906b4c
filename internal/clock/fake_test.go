package clock_test

import (
	"testing"
	"time"

	"github.com/doorpin/server/internal/clock"
)

var epoch = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresAtDeadline(t *testing.T) {
	c := clock.NewFake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("fired early: %d", fired)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("expected 1 call at deadline, got %d", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("one-shot fired again: %d", fired)
	}
}

func TestFake_StopPreventsCall(t *testing.T) {
	c := clock.NewFake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Fatal("Stop on pending timer should report true")
	}
	if tm.Stop() {
		t.Fatal("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", c.Pending())
	}
}

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	c := clock.NewFake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(10 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	c := clock.NewFake(epoch)
	go c.AfterFunc(time.Second, func() {})
	c.WaitForTimers(1)
	if c.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", c.Pending())
	}
}
