package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/doorpin/server/internal/clock"
)

// Metrics is the slice of the metrics collector the actuator reports to.
type Metrics interface {
	RecordUnlock()
	RecordSuperseded()
	RecordActuatorFault()
}

type nopMetrics struct{}

func (nopMetrics) RecordUnlock()        {}
func (nopMetrics) RecordSuperseded()    {}
func (nopMetrics) RecordActuatorFault() {}

// Ticket is one in-flight unlock.
type Ticket struct {
	ID        string
	StartedAt time.Time
	Hold      time.Duration

	timer      clock.Timer
	done       chan struct{}
	superseded atomic.Bool
}

// Done is closed when the ticket ends, by expiry, supersession or Close.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Superseded reports whether a newer unlock took over this ticket.
func (t *Ticket) Superseded() bool { return t.superseded.Load() }

func (t *Ticket) end(superseded bool) {
	t.superseded.Store(superseded)
	close(t.done)
}

// Actuator is the single owner of the relay. A new Unlock while one is in
// progress supersedes it: the relay stays energized and the hold restarts.
type Actuator struct {
	driver      Driver
	clock       clock.Clock
	defaultHold time.Duration
	logger      *slog.Logger
	metrics     Metrics

	mu     sync.Mutex
	line   Line // non-nil while energized
	active *Ticket
	closed bool
}

type Option func(*Actuator)

func WithMetrics(m Metrics) Option {
	return func(a *Actuator) {
		if m != nil {
			a.metrics = m
		}
	}
}

func NewActuator(driver Driver, clk clock.Clock, defaultHold time.Duration, logger *slog.Logger, opts ...Option) *Actuator {
	a := &Actuator{
		driver:      driver,
		clock:       clk,
		defaultHold: defaultHold,
		logger:      logger.With(slog.String("component", "actuator"), slog.String("driver", driver.Name())),
		metrics:     nopMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Unlock energizes the relay for hold (the default hold when hold <= 0)
// and returns without waiting for it to elapse.
func (a *Actuator) Unlock(ctx context.Context, hold time.Duration) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hold <= 0 {
		hold = a.defaultHold
	}
	if hold <= 0 {
		return nil, fmt.Errorf("Unlock: non-positive hold %s", hold)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	if prev := a.active; prev != nil {
		prev.timer.Stop()
		prev.end(true)
		a.active = nil
		a.metrics.RecordSuperseded()
		a.logger.Info("unlock superseded", slog.String("ticket_id", prev.ID))
	}

	if a.line == nil {
		line, err := a.driver.Open()
		if err != nil {
			a.metrics.RecordActuatorFault()
			a.logger.Error("relay open failed", slog.String("error", err.Error()))
			return nil, wrapFault("open", err)
		}
		a.line = line
	}

	if err := a.line.Set(true); err != nil {
		cleanupErr := a.releaseLocked()
		a.metrics.RecordActuatorFault()
		a.logger.Error("relay energize failed",
			slog.String("error", err.Error()),
			slog.Any("cleanup_error", cleanupErr),
		)
		return nil, wrapFault("energize", err)
	}

	t := &Ticket{
		ID:        uuid.NewString(),
		StartedAt: a.clock.Now(),
		Hold:      hold,
		done:      make(chan struct{}),
	}
	a.active = t
	t.timer = a.clock.AfterFunc(hold, func() { a.expire(t) })

	a.metrics.RecordUnlock()
	a.logger.Info("door unlocked", slog.String("ticket_id", t.ID), slog.Duration("hold", hold))
	return t, nil
}

func (a *Actuator) expire(t *Ticket) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != t {
		return
	}
	a.active = nil
	if err := a.releaseLocked(); err != nil {
		a.metrics.RecordActuatorFault()
		a.logger.Error("relay de-energize failed", slog.String("ticket_id", t.ID), slog.String("error", err.Error()))
	} else {
		a.logger.Info("door locked", slog.String("ticket_id", t.ID))
	}
	t.end(false)
}

// Energized reports whether an unlock is in progress.
func (a *Actuator) Energized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}

// Close ends any active ticket, de-energizes and releases the relay. Later
// Unlock calls fail with ErrClosed.
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if t := a.active; t != nil {
		t.timer.Stop()
		a.active = nil
		t.end(false)
	}
	if err := a.releaseLocked(); err != nil {
		return wrapFault("close", err)
	}
	return nil
}

// releaseLocked drives the relay off and releases the line, even when the
// first step fails.
func (a *Actuator) releaseLocked() error {
	if a.line == nil {
		return nil
	}
	err := errors.Join(a.line.Set(false), a.line.Close())
	a.line = nil
	return err
}

func wrapFault(op string, err error) error {
	if errors.Is(err, ErrActuator) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrActuator, op, err)
}
