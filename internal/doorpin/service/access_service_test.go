package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/relay/relaytest"
	"github.com/doorpin/server/internal/doorpin/schedule"
	"github.com/doorpin/server/internal/doorpin/service"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/types"
)

func decide(t *testing.T, h *harness, cred string) types.AccessResponse {
	t.Helper()
	resp, err := h.access.Decide(context.Background(), types.AccessRequest{Credential: cred, Device: "front"}, store.SourceReader)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	return resp
}

// ── Decide ───────────────────────────────────────────────────────────────────

func TestDecide_GrantEnergizesAndRecords(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "alice", permission.RoleUser)
	pin := h.addPin(t, u, "1234")

	resp := decide(t, h, " 1234 ")
	if !resp.Granted || resp.Reason != types.ReasonGranted {
		t.Fatalf("resp = %+v, want granted", resp)
	}
	if resp.UserID != u.ID || resp.TicketID == "" {
		t.Errorf("resp = %+v, want user %d and a ticket", resp, u.ID)
	}
	if got := h.relay.Count(relaytest.Energized); got != 1 {
		t.Errorf("energized %d times, want 1", got)
	}

	events := h.store.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.Granted || ev.Source != store.SourceReader || ev.Device != "front" {
		t.Errorf("event = %+v", ev)
	}
	if ev.CredentialKind != credential.KindPin || ev.CredentialID != pin.ID {
		t.Errorf("event credential = %s/%d, want pin/%d", ev.CredentialKind, ev.CredentialID, pin.ID)
	}
	if ev.DecidedAt.IsZero() || ev.ReceivedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestDecide_UnknownCredential(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "alice", permission.RoleUser)
	h.addPin(t, u, "1234")

	resp := decide(t, h, "9999")
	if resp.Granted || resp.Reason != types.ReasonUnknownCredential {
		t.Fatalf("resp = %+v, want unknown_credential", resp)
	}
	if h.relay.Count(relaytest.Energized) != 0 {
		t.Error("relay must not energize on a miss")
	}
	ev := h.store.Events()[0]
	if ev.UserID != 0 || ev.CredentialKind != "" {
		t.Errorf("miss event should carry no owner, got %+v", ev)
	}
}

func TestDecide_EmptyCredential(t *testing.T) {
	h := newHarness(t)
	_, err := h.access.Decide(context.Background(), types.AccessRequest{Credential: "  "}, store.SourceAPI)
	if !errors.Is(err, service.ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
	if len(h.store.Events()) != 0 {
		t.Error("rejected request must not be recorded")
	}
}

func TestDecide_GuestOutsideScheduleIsDistinctFromMiss(t *testing.T) {
	h := newHarness(t)
	g := h.addUser(t, "guest", permission.RoleGuest)
	h.addPin(t, g, "5555")
	h.addWindow(t, g, schedule.Monday, "09:00", "17:00")

	resp := decide(t, h, "5555")
	if resp.Granted || resp.Reason != types.ReasonOutsideSchedule {
		t.Fatalf("resp = %+v, want outside_schedule", resp)
	}
	if resp.UserID != g.ID {
		t.Errorf("UserID = %d, want %d", resp.UserID, g.ID)
	}
	if h.relay.Count(relaytest.Energized) != 0 {
		t.Error("relay must not energize outside schedule")
	}
}

func TestDecide_GuestInsideSchedule(t *testing.T) {
	h := newHarness(t)
	g := h.addUser(t, "guest", permission.RoleGuest)
	h.addPin(t, g, "5555")
	h.addWindow(t, g, schedule.Wednesday, "09:00", "12:00")

	if resp := decide(t, h, "5555"); !resp.Granted {
		t.Fatalf("resp = %+v, want granted at the inclusive end", resp)
	}
}

func TestDecide_InactiveCredentialNeverMatches(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "bob", permission.RoleUser)
	h.addPin(t, u, "4321")
	if err := h.store.SetActive(u.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if resp := decide(t, h, "4321"); resp.Reason != types.ReasonUnknownCredential {
		t.Fatalf("reason = %q, want unknown_credential", resp.Reason)
	}
}

type staticVerifier struct{ m credential.Match }

func (v staticVerifier) Verify(context.Context, string) (credential.Match, bool, error) {
	return v.m, true, nil
}

func TestDecide_OwnerDeactivatedAfterListing(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "bob", permission.RoleUser)
	if err := h.store.SetActive(u.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	svc := service.NewAccessService(service.AccessDeps{
		Verifier: staticVerifier{credential.Match{Kind: credential.KindRfid, UserID: u.ID, Role: u.Role}},
		Policy:   schedule.NewEvaluator(h.store, h.clock, time.UTC, discard()),
		Door:     h.door,
		Users:    h.store,
		Events:   h.store,
		Clock:    h.clock,
	}, discard())

	resp, err := svc.Decide(context.Background(), types.AccessRequest{Credential: "0012345678"}, store.SourceReader)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if resp.Granted || resp.Reason != types.ReasonInactive {
		t.Fatalf("resp = %+v, want inactive", resp)
	}
}

func TestDecide_ActuatorFaultReturnsError(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "alice", permission.RoleAdmin)
	h.addPin(t, u, "1234")
	h.relay.FailEnergize(errors.New("line busy"))

	resp, err := h.access.Decide(context.Background(), types.AccessRequest{Credential: "1234"}, store.SourceReader)
	if !errors.Is(err, relay.ErrActuator) {
		t.Fatalf("err = %v, want ErrActuator", err)
	}
	if resp.Granted || resp.Reason != types.ReasonActuatorFault {
		t.Errorf("resp = %+v, want actuator_fault", resp)
	}
	if ev := h.store.Events()[0]; ev.Granted || ev.Reason != types.ReasonActuatorFault {
		t.Errorf("event = %+v", ev)
	}
}

type countingDecisions struct{ reasons []string }

func (c *countingDecisions) RecordDecision(_, reason string) { c.reasons = append(c.reasons, reason) }

func TestDecide_RecordsMetrics(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "alice", permission.RoleUser)
	h.addPin(t, u, "1234")
	m := &countingDecisions{}

	svc := service.NewAccessService(service.AccessDeps{
		Verifier: credential.NewVerifier(h.store, discard()),
		Policy:   schedule.NewEvaluator(h.store, h.clock, time.UTC, discard()),
		Door:     h.door,
		Users:    h.store,
		Events:   h.store,
		Clock:    h.clock,
		Metrics:  m,
	}, discard())

	for _, c := range []string{"1234", "0000"} {
		if _, err := svc.Decide(context.Background(), types.AccessRequest{Credential: c}, store.SourceAPI); err != nil {
			t.Fatalf("Decide: %v", err)
		}
	}
	if len(m.reasons) != 2 || m.reasons[0] != types.ReasonGranted || m.reasons[1] != types.ReasonUnknownCredential {
		t.Errorf("reasons = %v", m.reasons)
	}
}

// ── UnlockDoor ───────────────────────────────────────────────────────────────

func TestUnlockDoor_UsesRequestedHold(t *testing.T) {
	h := newHarness(t)
	admin := h.addUser(t, "root", permission.RoleAdmin)

	ticket, err := h.access.UnlockDoor(context.Background(), admin, 7*time.Second)
	if err != nil {
		t.Fatalf("UnlockDoor: %v", err)
	}
	if ticket.Hold != 7*time.Second {
		t.Errorf("Hold = %v, want 7s", ticket.Hold)
	}
	h.clock.Advance(7 * time.Second)
	if h.relay.On() {
		t.Error("relay still energized after hold")
	}

	ev := h.store.Events()[0]
	if ev.Source != store.SourceAPI || ev.Reason != types.ReasonRemoteUnlock || ev.UserID != admin.ID {
		t.Errorf("event = %+v", ev)
	}
}

func TestUnlockDoor_GuestOutsideSchedule(t *testing.T) {
	h := newHarness(t)
	g := h.addUser(t, "guest", permission.RoleGuest)
	h.addWindow(t, g, schedule.Sunday, "00:00", "23:59")

	if _, err := h.access.UnlockDoor(context.Background(), g, 0); !errors.Is(err, service.ErrOutsideSchedule) {
		t.Fatalf("err = %v, want ErrOutsideSchedule", err)
	}
	if h.relay.Count(relaytest.Energized) != 0 {
		t.Error("relay must not energize")
	}
}

func TestUnlockDoor_InactiveActor(t *testing.T) {
	h := newHarness(t)
	u := store.User{ID: 9, Role: permission.RoleAdmin, Active: false}

	if _, err := h.access.UnlockDoor(context.Background(), u, 0); !errors.Is(err, service.ErrInactive) {
		t.Fatalf("err = %v, want ErrInactive", err)
	}
}
