// Package memory is an in-process Store for tests and dev runs without a
// database file.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/schedule"
	"github.com/doorpin/server/internal/doorpin/store"
)

type Store struct {
	mu        sync.RWMutex
	nextID    int64
	users     map[int64]store.User
	pins      []credential.PinRecord
	rfids     []credential.RfidRecord
	recurring []schedule.RecurringWindow
	oneTime   []schedule.OneTimeWindow
	apiKeys   map[string]store.APIKey
	events    []store.AccessEventRecord
}

func New() *Store {
	return &Store{
		users:   make(map[int64]store.User),
		apiKeys: make(map[string]store.APIKey),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser stores u, assigning an ID when u.ID is zero.
func (s *Store) AddUser(u store.User) store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

// SetActive flips a user's is_active flag.
func (s *Store) SetActive(userID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("SetActive %d: %w", userID, store.ErrNotFound)
	}
	u.Active = active
	s.users[userID] = u
	return nil
}

func (s *Store) AddPin(p credential.PinRecord) credential.PinRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.pins = append(s.pins, p)
	return p
}

func (s *Store) AddRfid(r credential.RfidRecord) credential.RfidRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.rfids = append(s.rfids, r)
	return r
}

func (s *Store) AddRecurringWindow(w schedule.RecurringWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recurring = append(s.recurring, w)
}

func (s *Store) AddOneTimeWindow(w schedule.OneTimeWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneTime = append(s.oneTime, w)
}

func (s *Store) AddAPIKey(k store.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	s.apiKeys[k.Suffix] = k
}

// activeLocked reports whether the owner exists and is active, and
// returns its current role.
func (s *Store) activeLocked(userID int64) (store.User, bool) {
	u, ok := s.users[userID]
	return u, ok && u.Active
}

func (s *Store) ListActivePins(context.Context) ([]credential.PinRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []credential.PinRecord
	for _, p := range s.pins {
		if u, ok := s.activeLocked(p.OwnerID); ok {
			p.OwnerRole = u.Role
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListActiveRfids(context.Context) ([]credential.RfidRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []credential.RfidRecord
	for _, r := range s.rfids {
		if u, ok := s.activeLocked(r.OwnerID); ok {
			r.OwnerRole = u.Role
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListRecurringWindows(_ context.Context, userID int64) ([]schedule.RecurringWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.RecurringWindow
	for _, w := range s.recurring {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) ListOneTimeWindows(_ context.Context, userID int64) ([]schedule.OneTimeWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.OneTimeWindow
	for _, w := range s.oneTime {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("GetUser %d: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetAPIKey(_ context.Context, suffix string) (store.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.apiKeys[suffix]
	if !ok {
		return store.APIKey{}, fmt.Errorf("GetAPIKey: %w", store.ErrNotFound)
	}
	return k, nil
}
