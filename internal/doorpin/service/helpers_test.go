package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/input"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/relay/relaytest"
	"github.com/doorpin/server/internal/doorpin/schedule"
	"github.com/doorpin/server/internal/doorpin/service"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/store/memory"
	"github.com/doorpin/server/internal/logger"
)

// 2024-01-03 is a Wednesday.
var t0 = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

type harness struct {
	store  *memory.Store
	clock  *clock.FakeClock
	relay  *relaytest.Driver
	door   *relay.Actuator
	access *service.AccessService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ms := memory.New()
	clk := clock.NewFake(t0)
	drv := relaytest.New(clk.Now)
	door := relay.NewActuator(drv, clk, 5*time.Second, logger.Discard())
	t.Cleanup(func() { _ = door.Close() })

	access := service.NewAccessService(service.AccessDeps{
		Verifier: credential.NewVerifier(ms, logger.Discard()),
		Policy:   schedule.NewEvaluator(ms, clk, time.UTC, logger.Discard()),
		Door:     door,
		Users:    ms,
		Events:   ms,
		Clock:    clk,
	}, logger.Discard())

	return &harness{store: ms, clock: clk, relay: drv, door: door, access: access}
}

func (h *harness) addUser(t *testing.T, name string, role permission.Role) store.User {
	t.Helper()
	return h.store.AddUser(store.User{Name: name, Role: role, Active: true})
}

func (h *harness) addPin(t *testing.T, u store.User, pin string) credential.PinRecord {
	t.Helper()
	rec, err := credential.NewPin(u.ID, u.Role, pin, "")
	if err != nil {
		t.Fatalf("NewPin: %v", err)
	}
	return h.store.AddPin(rec)
}

func (h *harness) addWindow(t *testing.T, u store.User, day schedule.Weekday, start, end string) {
	t.Helper()
	s, _ := schedule.ParseTimeOfDay(start)
	e, _ := schedule.ParseTimeOfDay(end)
	w, err := schedule.NewRecurringWindow(u.ID, day, s, e)
	if err != nil {
		t.Fatalf("NewRecurringWindow: %v", err)
	}
	h.store.AddRecurringWindow(w)
}

// chanSource emits whatever the test pushes into feed and fails with
// whatever is sent on fail.
type chanSource struct {
	name string
	feed chan string
	fail chan error
}

func newChanSource(name string) *chanSource {
	return &chanSource{name: name, feed: make(chan string), fail: make(chan error, 1)}
}

func (s *chanSource) Name() string { return s.name }

func (s *chanSource) Run(ctx context.Context, emit func(input.Candidate)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.fail:
			return err
		case v := <-s.feed:
			emit(input.Candidate{Value: v, Device: s.name})
		}
	}
}

func (s *chanSource) push(t *testing.T, v string) {
	t.Helper()
	select {
	case s.feed <- v:
	case <-time.After(2 * time.Second):
		t.Fatalf("source %s not consuming", s.name)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func discard() *slog.Logger { return logger.Discard() }
