package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/permission"
)

// Source is the read side of the guest schedule store.
type Source interface {
	ListRecurringWindows(ctx context.Context, userID int64) ([]RecurringWindow, error)
	ListOneTimeWindows(ctx context.Context, userID int64) ([]OneTimeWindow, error)
}

type Evaluator struct {
	src    Source
	clock  clock.Clock
	loc    *time.Location
	logger *slog.Logger
}

// NewEvaluator evaluates windows in loc (time.Local when nil), the zone the
// door's schedules are written in.
func NewEvaluator(src Source, clk clock.Clock, loc *time.Location, logger *slog.Logger) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{
		src:    src,
		clock:  clk,
		loc:    loc,
		logger: logger.With(slog.String("component", "schedule")),
	}
}

// IsAllowed reports whether userID may enter now. Only guests are
// restricted; every other role is always allowed.
func (e *Evaluator) IsAllowed(ctx context.Context, userID int64, role permission.Role) (bool, error) {
	if role != permission.RoleGuest {
		return true, nil
	}

	recurring, err := e.src.ListRecurringWindows(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("IsAllowed recurring windows: %w", err)
	}
	oneTime, err := e.src.ListOneTimeWindows(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("IsAllowed one-time windows: %w", err)
	}

	if len(recurring) == 0 && len(oneTime) == 0 {
		e.logger.Info("guest has no schedules, allowing access", slog.Int64("user_id", userID))
		return true, nil
	}
	return Allowed(e.clock.Now().In(e.loc), recurring, oneTime), nil
}
