package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Metrics is the slice of the metrics collector the aggregator reports to.
type Metrics interface {
	RecordDeviceFault()
	SetCapturing(bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordDeviceFault() {}
func (nopMetrics) SetCapturing(bool)  {}

const candidateBuffer = 16

// Aggregator runs one goroutine per source and fans their candidates into
// a single channel that outlives Start/Stop cycles.
type Aggregator struct {
	discover Discover
	logger   *slog.Logger
	metrics  Metrics
	out      chan Candidate

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	onLost  func()
	wg      sync.WaitGroup
	live    atomic.Int32
}

func NewAggregator(discover Discover, logger *slog.Logger, m Metrics) *Aggregator {
	if m == nil {
		m = nopMetrics{}
	}
	return &Aggregator{
		discover: discover,
		logger:   logger.With(slog.String("component", "aggregator")),
		metrics:  m,
		out:      make(chan Candidate, candidateBuffer),
	}
}

// Candidates is the merged stream. It is never closed.
func (a *Aggregator) Candidates() <-chan Candidate { return a.out }

// SetOnLost registers f to be called when the last live source stops on
// its own. It takes effect on the next Start.
func (a *Aggregator) SetOnLost(f func()) {
	a.mu.Lock()
	a.onLost = f
	a.mu.Unlock()
}

// Start discovers sources and begins capturing. ctx scopes discovery only;
// capture runs until Stop. Starting a running aggregator is a no-op, unless
// every source has been lost, in which case discovery runs again.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		if a.live.Load() > 0 {
			a.logger.Warn("capture already running")
			return nil
		}
		a.logger.Info("restarting capture after losing every device")
		a.halt()
	}

	srcs, err := a.discover(ctx)
	if err != nil {
		return fmt.Errorf("Start discover: %w", err)
	}
	if len(srcs) == 0 {
		return fmt.Errorf("Start: %w", ErrNoDevices)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.live.Store(int32(len(srcs)))
	a.running = true
	a.metrics.SetCapturing(true)
	names := make([]string, 0, len(srcs))
	for _, src := range srcs {
		names = append(names, src.Name())
		a.wg.Add(1)
		go a.run(runCtx, src, a.onLost)
	}
	a.logger.Info("capture started", slog.Any("devices", names))
	return nil
}

// Stop cancels every source, waits for them to return and drops any
// candidates not yet consumed. Stopping a stopped aggregator is a no-op.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		a.logger.Warn("capture not running")
		return
	}
	a.halt()
	a.logger.Info("capture stopped")
}

// halt tears down the current run. a.mu must be held.
func (a *Aggregator) halt() {
	a.cancel()
	a.wg.Wait()
	a.drain()
	a.live.Store(0)
	a.running = false
	a.cancel = nil
	a.metrics.SetCapturing(false)
}

// Status is running only while at least one source is live. An aggregator
// that has lost every source reports stopped until the next Start.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running && a.live.Load() > 0 {
		return StatusRunning
	}
	return StatusStopped
}

// LiveDevices is the number of sources still capturing.
func (a *Aggregator) LiveDevices() int { return int(a.live.Load()) }

func (a *Aggregator) run(ctx context.Context, src Source, onLost func()) {
	defer a.wg.Done()

	err := a.runSource(ctx, src)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.metrics.RecordDeviceFault()
		a.logger.Error("input device failed", slog.String("device", src.Name()), slog.String("error", err.Error()))
	} else {
		a.logger.Warn("input device stopped", slog.String("device", src.Name()))
	}
	if a.live.Add(-1) == 0 {
		a.metrics.SetCapturing(false)
		a.logger.Error("all input devices lost, not capturing")
		if onLost != nil {
			onLost()
		}
	}
}

func (a *Aggregator) runSource(ctx context.Context, src Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src.Run(ctx, func(c Candidate) {
		select {
		case a.out <- c:
		case <-ctx.Done():
		}
	})
}

func (a *Aggregator) drain() {
	for {
		select {
		case <-a.out:
		default:
			return
		}
	}
}
