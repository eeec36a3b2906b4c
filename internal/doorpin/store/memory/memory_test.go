package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/store/memory"
)

func TestListActivePins_SkipsInactiveOwners(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	alice := s.AddUser(store.User{Name: "alice", Role: permission.RoleUser, Active: true})
	bob := s.AddUser(store.User{Name: "bob", Role: permission.RoleGuest, Active: false})

	p1, _ := credential.NewPin(alice.ID, "", "1234", "front")
	p2, _ := credential.NewPin(bob.ID, "", "5678", "front")
	s.AddPin(p1)
	s.AddPin(p2)

	pins, err := s.ListActivePins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pins) != 1 || pins[0].OwnerID != alice.ID {
		t.Fatalf("pins = %+v, want only alice's", pins)
	}
	if pins[0].OwnerRole != permission.RoleUser {
		t.Errorf("OwnerRole = %q, want the owner's current role", pins[0].OwnerRole)
	}

	if err := s.SetActive(bob.ID, true); err != nil {
		t.Fatal(err)
	}
	pins, _ = s.ListActivePins(ctx)
	if len(pins) != 2 {
		t.Errorf("after reactivation got %d pins, want 2", len(pins))
	}
}

func TestGetters_NotFound(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.GetUser(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUser: %v", err)
	}
	if _, err := s.GetAPIKey(ctx, "abcd"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetAPIKey: %v", err)
	}
	if err := s.SetActive(42, false); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetActive: %v", err)
	}
}

func TestPruneOlderThan(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{100 * time.Hour, 50 * time.Hour, time.Hour} {
		if err := s.RecordEvent(ctx, store.AccessEventRecord{Source: store.SourceReader, ReceivedAt: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.PruneOlderThan(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(s.Events()) != 2 {
		t.Fatalf("pruned %d, kept %d; want 1 and 2", n, len(s.Events()))
	}
}
