// Package relaytest provides a recording relay driver for tests.
package relaytest

import (
	"errors"
	"sync"
	"time"

	"github.com/doorpin/server/internal/doorpin/relay"
)

type EventKind string

const (
	Opened      EventKind = "open"
	Energized   EventKind = "on"
	Deenergized EventKind = "off"
	Released    EventKind = "close"
)

type Event struct {
	Kind EventKind
	At   time.Time
}

// Driver records every line transition, stamped with Now.
type Driver struct {
	Now func() time.Time

	mu      sync.Mutex
	events  []Event
	openErr error
	onErr   error
	offErr  error
}

func New(now func() time.Time) *Driver {
	return &Driver{Now: now}
}

func (d *Driver) Name() string { return "fake" }

// FailOpen makes the next Open calls fail with err (nil clears it).
func (d *Driver) FailOpen(err error) {
	d.mu.Lock()
	d.openErr = err
	d.mu.Unlock()
}

// FailEnergize makes Set(true) fail with err (nil clears it).
func (d *Driver) FailEnergize(err error) {
	d.mu.Lock()
	d.onErr = err
	d.mu.Unlock()
}

// FailDeenergize makes Set(false) fail with err (nil clears it).
func (d *Driver) FailDeenergize(err error) {
	d.mu.Lock()
	d.offErr = err
	d.mu.Unlock()
}

func (d *Driver) Open() (relay.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.recordLocked(Opened)
	return &line{d: d}, nil
}

// Events returns a copy of everything recorded so far.
func (d *Driver) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Count returns how many events of kind were recorded.
func (d *Driver) Count(kind EventKind) int {
	n := 0
	for _, e := range d.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// On reports whether the last energize/de-energize event energized the relay.
func (d *Driver) On() bool {
	evs := d.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		switch evs[i].Kind {
		case Energized:
			return true
		case Deenergized:
			return false
		}
	}
	return false
}

func (d *Driver) recordLocked(kind EventKind) {
	var at time.Time
	if d.Now != nil {
		at = d.Now()
	}
	d.events = append(d.events, Event{Kind: kind, At: at})
}

type line struct {
	d      *Driver
	closed bool
}

var errReleased = errors.New("relaytest: line already released")

func (l *line) Set(energized bool) error {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	if l.closed {
		return errReleased
	}
	if energized {
		if l.d.onErr != nil {
			return l.d.onErr
		}
		l.d.recordLocked(Energized)
		return nil
	}
	if l.d.offErr != nil {
		return l.d.offErr
	}
	l.d.recordLocked(Deenergized)
	return nil
}

func (l *line) Close() error {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	if l.closed {
		return errReleased
	}
	l.closed = true
	l.d.recordLocked(Released)
	return nil
}
