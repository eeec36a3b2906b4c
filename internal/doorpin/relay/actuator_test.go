package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/relay/relaytest"
	"github.com/doorpin/server/internal/logger"
)

var t0 = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

type countingMetrics struct {
	mu         sync.Mutex
	unlocks    int
	superseded int
	faults     int
}

func (m *countingMetrics) RecordUnlock()        { m.mu.Lock(); m.unlocks++; m.mu.Unlock() }
func (m *countingMetrics) RecordSuperseded()    { m.mu.Lock(); m.superseded++; m.mu.Unlock() }
func (m *countingMetrics) RecordActuatorFault() { m.mu.Lock(); m.faults++; m.mu.Unlock() }

func newActuator(t *testing.T) (*relay.Actuator, *relaytest.Driver, *clock.FakeClock, *countingMetrics) {
	t.Helper()
	clk := clock.NewFake(t0)
	drv := relaytest.New(clk.Now)
	m := &countingMetrics{}
	a := relay.NewActuator(drv, clk, 5*time.Second, logger.Discard(), relay.WithMetrics(m))
	t.Cleanup(func() { _ = a.Close() })
	return a, drv, clk, m
}

func kinds(evs []relaytest.Event) []relaytest.EventKind {
	out := make([]relaytest.EventKind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func equalKinds(a, b []relaytest.EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isDone(t *relay.Ticket) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

// ── Single unlock ───────────────────────────────────────────────────────────

func TestUnlock_HoldsThenReleases(t *testing.T) {
	a, drv, clk, _ := newActuator(t)

	tk, err := a.Unlock(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !drv.On() || !a.Energized() {
		t.Fatal("relay should be energized right after Unlock")
	}

	clk.Advance(4999 * time.Millisecond)
	if !drv.On() {
		t.Fatal("relay released before hold elapsed")
	}

	clk.Advance(time.Millisecond)
	want := []relaytest.EventKind{relaytest.Opened, relaytest.Energized, relaytest.Deenergized, relaytest.Released}
	if got := kinds(drv.Events()); !equalKinds(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if !isDone(tk) || tk.Superseded() {
		t.Errorf("ticket done=%v superseded=%v, want done and not superseded", isDone(tk), tk.Superseded())
	}
	if a.Energized() {
		t.Error("actuator still reports energized")
	}
}

func TestUnlock_DefaultHold(t *testing.T) {
	a, drv, clk, _ := newActuator(t)

	tk, err := a.Unlock(context.Background(), 0)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if tk.Hold != 5*time.Second {
		t.Errorf("Hold = %v, want default 5s", tk.Hold)
	}
	clk.Advance(5 * time.Second)
	if drv.On() {
		t.Error("relay should be released after the default hold")
	}
}

func TestUnlock_CancelledContext(t *testing.T) {
	a, drv, _, _ := newActuator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Unlock(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(drv.Events()) != 0 {
		t.Errorf("relay touched: %v", drv.Events())
	}
}

// ── Supersession ────────────────────────────────────────────────────────────

func TestUnlock_SupersedeRestartsHoldWithoutFlicker(t *testing.T) {
	a, drv, clk, m := newActuator(t)
	ctx := context.Background()

	first, err := a.Unlock(ctx, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Unlock(ctx, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if !isDone(first) || !first.Superseded() {
		t.Error("first ticket should be superseded")
	}
	if isDone(second) {
		t.Error("second ticket ended early")
	}
	if drv.Count(relaytest.Deenergized) != 0 {
		t.Fatal("relay de-energized between the two unlocks")
	}

	clk.Advance(5 * time.Second)
	evs := drv.Events()
	want := []relaytest.EventKind{
		relaytest.Opened, relaytest.Energized, relaytest.Energized,
		relaytest.Deenergized, relaytest.Released,
	}
	if got := kinds(evs); !equalKinds(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if off := evs[3]; !off.At.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("de-energize at %v, want 5s after second call", off.At)
	}
	if m.superseded != 1 || m.unlocks != 2 {
		t.Errorf("metrics unlocks=%d superseded=%d, want 2/1", m.unlocks, m.superseded)
	}
}

func TestUnlock_SupersedeMidHold(t *testing.T) {
	a, drv, clk, _ := newActuator(t)
	ctx := context.Background()

	if _, err := a.Unlock(ctx, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	clk.Advance(3 * time.Second)
	if _, err := a.Unlock(ctx, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	clk.Advance(4 * time.Second) // 7s after the first call
	if !drv.On() {
		t.Fatal("first ticket's timer released the relay")
	}
	clk.Advance(time.Second)

	if n := drv.Count(relaytest.Deenergized); n != 1 {
		t.Fatalf("de-energize events = %d, want 1", n)
	}
	if n := drv.Count(relaytest.Opened); n != 1 {
		t.Errorf("line opened %d times, want once for the whole run", n)
	}
	evs := drv.Events()
	if last := evs[len(evs)-2]; !last.At.Equal(t0.Add(8 * time.Second)) {
		t.Errorf("de-energize at %v, want t0+8s", last.At)
	}
}

func TestUnlock_ConcurrentCallersOneTerminalRelease(t *testing.T) {
	a, drv, clk, _ := newActuator(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Unlock(context.Background(), 5*time.Second); err != nil {
				t.Errorf("Unlock: %v", err)
			}
		}()
	}
	wg.Wait()

	if clk.Pending() != 1 {
		t.Fatalf("pending timers = %d, want exactly one live ticket", clk.Pending())
	}
	clk.Advance(5 * time.Second)
	if n := drv.Count(relaytest.Deenergized); n != 1 {
		t.Fatalf("de-energize events = %d, want 1", n)
	}
}

// ── Faults ──────────────────────────────────────────────────────────────────

func TestUnlock_EnergizeFailureCleansUp(t *testing.T) {
	a, drv, clk, m := newActuator(t)
	drv.FailEnergize(errors.New("line busy"))

	tk, err := a.Unlock(context.Background(), 5*time.Second)
	if !errors.Is(err, relay.ErrActuator) {
		t.Fatalf("err = %v, want ErrActuator", err)
	}
	if tk != nil {
		t.Error("expected no ticket on failure")
	}
	want := []relaytest.EventKind{relaytest.Opened, relaytest.Deenergized, relaytest.Released}
	if got := kinds(drv.Events()); !equalKinds(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if clk.Pending() != 0 || a.Energized() {
		t.Error("failed unlock left a ticket behind")
	}
	if m.faults != 1 {
		t.Errorf("faults = %d, want 1", m.faults)
	}

	drv.FailEnergize(nil)
	if _, err := a.Unlock(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Unlock after recovery: %v", err)
	}
}

func TestUnlock_OpenFailure(t *testing.T) {
	a, drv, _, _ := newActuator(t)
	drv.FailOpen(errors.New("no such chip"))

	if _, err := a.Unlock(context.Background(), time.Second); !errors.Is(err, relay.ErrActuator) {
		t.Fatalf("err = %v, want ErrActuator", err)
	}
	if len(drv.Events()) != 0 {
		t.Errorf("events = %v, want none", drv.Events())
	}
}

func TestExpiry_DeenergizeFailureStillReleasesLine(t *testing.T) {
	a, drv, clk, m := newActuator(t)

	if _, err := a.Unlock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	drv.FailDeenergize(errors.New("stuck"))
	clk.Advance(time.Second)

	if n := drv.Count(relaytest.Released); n != 1 {
		t.Fatalf("released = %d, want 1", n)
	}
	if m.faults != 1 {
		t.Errorf("faults = %d, want 1", m.faults)
	}
}

// ── Close ───────────────────────────────────────────────────────────────────

func TestClose_EndsActiveTicket(t *testing.T) {
	a, drv, clk, _ := newActuator(t)

	tk, err := a.Unlock(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !isDone(tk) || tk.Superseded() {
		t.Error("Close should end the ticket without marking it superseded")
	}
	if drv.On() || drv.Count(relaytest.Released) != 1 {
		t.Fatalf("events = %v, want relay off and released", kinds(drv.Events()))
	}

	clk.Advance(10 * time.Second)
	if n := len(drv.Events()); n != 4 {
		t.Errorf("events after Close = %d, want 4", n)
	}
	if _, err := a.Unlock(context.Background(), time.Second); !errors.Is(err, relay.ErrClosed) {
		t.Errorf("Unlock after Close: %v, want ErrClosed", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestClose_Idle(t *testing.T) {
	a, drv, _, _ := newActuator(t)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(drv.Events()) != 0 {
		t.Errorf("idle Close touched relay: %v", drv.Events())
	}
}

// ── Drivers ─────────────────────────────────────────────────────────────────

func TestLogDriver(t *testing.T) {
	line, err := relay.LogDriver{Logger: logger.Discard()}.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := line.Set(true); err != nil {
		t.Fatal(err)
	}
	if err := line.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := (relay.LogDriver{}).Open(); !errors.Is(err, relay.ErrActuator) {
		t.Errorf("nil logger: err = %v", err)
	}
}
