package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/store"
)

// AccessEventPruner periodically deletes audit events older than the
// retention period. A retention of 0 disables pruning.
type AccessEventPruner struct {
	store     store.AccessEventStore
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

type PrunerConfig struct {
	// RetentionDays is how many days of history to keep; 0 keeps everything.
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewAccessEventPruner creates a pruner but does not start it.
func NewAccessEventPruner(s store.AccessEventStore, cfg PrunerConfig, clk clock.Clock, logger *slog.Logger) *AccessEventPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &AccessEventPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		clock:     clk,
		logger:    logger.With(slog.String("component", "pruner")),
		done:      make(chan struct{}),
	}
}

// Start prunes once immediately, then on every interval until ctx is
// cancelled or Stop is called.
func (p *AccessEventPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("access event pruner disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("access event pruner started",
		slog.Int("retention_days", int(p.retention.Hours()/24)),
		slog.Duration("interval", p.interval),
	)
}

// Stop signals the loop to exit and waits for it. Safe to call repeatedly.
func (p *AccessEventPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *AccessEventPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.Prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs a single pass and reports how many events were removed.
func (p *AccessEventPruner) Prune(ctx context.Context) int64 {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("prune access events", slog.Any("err", err))
		return 0
	}
	if deleted > 0 {
		p.logger.Info("pruned access events",
			slog.Int64("deleted", deleted),
			slog.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return deleted
}
