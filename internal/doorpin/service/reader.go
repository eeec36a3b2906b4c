package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/input"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/types"
)

// MaxSingleReadTimeout bounds ReadSingle.
const MaxSingleReadTimeout = 30 * time.Second

var (
	ErrBusy        = errors.New("a single read is already in progress")
	ErrInterrupted = errors.New("single read interrupted by reader start or stop")
)

// Capture is the input side the Reader drives.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	Status() input.Status
	LiveDevices() int
	Candidates() <-chan input.Candidate
	// SetOnLost registers a callback for when every device has been lost.
	SetOnLost(func())
}

// Decider turns a candidate into an access decision.
type Decider interface {
	Decide(ctx context.Context, req types.AccessRequest, source string) (types.AccessResponse, error)
}

// Reader owns the continuous capture loop: one processor goroutine consumes
// the merged candidate stream and asks the Decider about each one.
type Reader struct {
	capture Capture
	decider Decider
	clock   clock.Clock
	logger  *slog.Logger

	// OnStatus, if set, is called with the new state after Start and Stop,
	// and with false when capture loses every device.
	OnStatus func(running bool)

	mu       sync.Mutex
	running  atomic.Bool
	single   *singleRead
	baseCtx  context.Context
	procStop context.CancelFunc
	procDone chan struct{}
}

// singleRead is a ReadSingle in flight. done is closed once it has put the
// processor and capture back the way it found them.
type singleRead struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReader(c Capture, d Decider, clk clock.Clock, logger *slog.Logger) *Reader {
	if clk == nil {
		clk = clock.Real()
	}
	r := &Reader{
		capture: c,
		decider: d,
		clock:   clk,
		logger:  logger.With(slog.String("component", "reader")),
	}
	c.SetOnLost(r.captureLost)
	return r
}

// Start begins capture and the processor loop. Starting a running reader
// logs a warning and returns nil, unless capture has lost every device, in
// which case discovery runs again. A pending ReadSingle is interrupted.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interruptSingle()
	if r.running.Load() {
		if r.capture.Status() == input.StatusRunning {
			r.logger.Warn("reader already running")
			return nil
		}
		if err := r.capture.Start(ctx); err != nil {
			return fmt.Errorf("Reader.Start: %w", err)
		}
		r.logger.Info("reader capture recovered")
		r.notify(true)
		return nil
	}
	if err := r.capture.Start(ctx); err != nil {
		return fmt.Errorf("Reader.Start: %w", err)
	}
	r.baseCtx = context.WithoutCancel(ctx)
	r.startProcessor()
	r.running.Store(true)
	r.logger.Info("reader started")
	r.notify(true)
	return nil
}

// Stop halts the processor loop and capture. Stopping a stopped reader
// logs a warning. A pending ReadSingle is interrupted first.
func (r *Reader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interruptSingle()
	if !r.running.Load() {
		r.logger.Warn("reader not running")
		return
	}
	r.stopProcessor()
	r.capture.Stop()
	r.running.Store(false)
	r.logger.Info("reader stopped")
	r.notify(false)
}

// Status is running only while the loop is on and capture still has a
// live device.
func (r *Reader) Status() input.Status {
	if r.running.Load() && r.capture.Status() == input.StatusRunning {
		return input.StatusRunning
	}
	return input.StatusStopped
}

func (r *Reader) LiveDevices() int { return r.capture.LiveDevices() }

// ReadSingle returns the next completed candidate without deciding on it.
// A running processor loop is suspended for the duration and resumed
// afterwards; otherwise capture runs only for this call. ok is false when
// timeout elapses first. Start and Stop interrupt a pending read with
// ErrInterrupted.
func (r *Reader) ReadSingle(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 || timeout > MaxSingleReadTimeout {
		timeout = MaxSingleReadTimeout
	}

	r.mu.Lock()
	if r.single != nil {
		r.mu.Unlock()
		return "", false, ErrBusy
	}
	suspended := r.running.Load()
	if suspended {
		r.stopProcessor()
		r.logger.Info("processor suspended for single read")
	} else if err := r.capture.Start(ctx); err != nil {
		r.mu.Unlock()
		return "", false, fmt.Errorf("ReadSingle: %w", err)
	}
	readCtx, cancel := context.WithCancel(ctx)
	s := &singleRead{cancel: cancel, done: make(chan struct{})}
	r.single = s
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		defer r.mu.Unlock()
		if suspended {
			r.startProcessor()
			r.logger.Info("processor resumed")
		} else {
			r.capture.Stop()
		}
		r.single = nil
		close(s.done)
	}()

	expired := make(chan struct{})
	t := r.clock.AfterFunc(timeout, func() { close(expired) })
	defer t.Stop()

	select {
	case c := <-r.capture.Candidates():
		r.logger.Info("single read captured", slog.String("device", c.Device))
		return c.Value, true, nil
	case <-expired:
		return "", false, nil
	case <-readCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		return "", false, ErrInterrupted
	}
}

// interruptSingle cancels a pending ReadSingle and waits for it to restore
// the loop. r.mu must be held; it is released while waiting.
func (r *Reader) interruptSingle() {
	for r.single != nil {
		s := r.single
		s.cancel()
		r.mu.Unlock()
		<-s.done
		r.mu.Lock()
	}
}

func (r *Reader) startProcessor() {
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.procStop = cancel
	r.procDone = make(chan struct{})
	go r.process(ctx, r.procDone)
}

func (r *Reader) stopProcessor() {
	r.procStop()
	<-r.procDone
	r.procStop = nil
}

func (r *Reader) process(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.capture.Candidates():
			r.handle(ctx, c)
		}
	}
}

func (r *Reader) handle(ctx context.Context, c input.Candidate) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while processing candidate", slog.Any("panic", p))
		}
	}()

	resp, err := r.decider.Decide(ctx, types.AccessRequest{Credential: c.Value, Device: c.Device}, store.SourceReader)
	if err != nil {
		r.logger.Error("decision failed", slog.String("device", c.Device), slog.Any("err", err))
		return
	}
	r.logger.Debug("decision",
		slog.String("device", c.Device),
		slog.Bool("granted", resp.Granted),
		slog.String("reason", resp.Reason),
	)
}

func (r *Reader) captureLost() {
	if !r.running.Load() {
		return
	}
	r.logger.Error("reader degraded, no input device left")
	r.notify(false)
}

func (r *Reader) notify(running bool) {
	if r.OnStatus != nil {
		r.OnStatus(running)
	}
}
