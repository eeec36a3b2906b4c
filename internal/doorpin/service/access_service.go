package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/types"
)

var (
	ErrInvalidCredential = errors.New("credential is required")
	ErrInactive          = errors.New("user is inactive")
	ErrOutsideSchedule   = errors.New("outside allowed schedule")
)

type Verifier interface {
	Verify(ctx context.Context, candidate string) (credential.Match, bool, error)
}

type Policy interface {
	IsAllowed(ctx context.Context, userID int64, role permission.Role) (bool, error)
}

type Door interface {
	Unlock(ctx context.Context, hold time.Duration) (*relay.Ticket, error)
}

// Metrics counts decisions by reason.
type Metrics interface {
	RecordDecision(source, reason string)
}

type nopMetrics struct{}

func (nopMetrics) RecordDecision(string, string) {}

type AccessService struct {
	verifier Verifier
	policy   Policy
	door     Door
	users    store.UserStore
	events   store.AccessEventStore
	clock    clock.Clock
	metrics  Metrics
	logger   *slog.Logger
}

// AccessDeps bundles the collaborators of an AccessService. Metrics may be nil.
type AccessDeps struct {
	Verifier Verifier
	Policy   Policy
	Door     Door
	Users    store.UserStore
	Events   store.AccessEventStore
	Clock    clock.Clock
	Metrics  Metrics
}

func NewAccessService(d AccessDeps, logger *slog.Logger) *AccessService {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	return &AccessService{
		verifier: d.Verifier,
		policy:   d.Policy,
		door:     d.Door,
		users:    d.Users,
		events:   d.Events,
		clock:    d.Clock,
		metrics:  d.Metrics,
		logger:   logger.With(slog.String("component", "access")),
	}
}

// Decide verifies a candidate credential, applies the owner's schedule and
// energizes the door on a grant. A miss and a schedule deny are returned as
// non-granted responses with a nil error; errors come from the store or the
// actuator.
func (s *AccessService) Decide(ctx context.Context, req types.AccessRequest, source string) (types.AccessResponse, error) {
	receivedAt := s.clock.Now().UTC()

	candidate := strings.TrimSpace(req.Credential)
	if candidate == "" {
		return types.AccessResponse{}, ErrInvalidCredential
	}

	rec := store.AccessEventRecord{
		Source:     source,
		Device:     strings.TrimSpace(req.Device),
		ReceivedAt: receivedAt,
	}

	match, ok, err := s.verifier.Verify(ctx, candidate)
	if err != nil {
		return types.AccessResponse{}, fmt.Errorf("Decide: %w", err)
	}
	if !ok {
		return s.finish(ctx, rec, false, types.ReasonUnknownCredential, ""), nil
	}
	rec.UserID = match.UserID
	rec.CredentialKind = match.Kind
	rec.CredentialID = match.CredentialID

	u, err := s.users.GetUser(ctx, match.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.finish(ctx, rec, false, types.ReasonInactive, ""), nil
	case err != nil:
		return types.AccessResponse{}, fmt.Errorf("Decide: %w", err)
	}
	if !u.Active {
		s.logger.Warn("credential of inactive user presented", slog.Int64("user_id", u.ID))
		return s.finish(ctx, rec, false, types.ReasonInactive, ""), nil
	}

	allowed, err := s.policy.IsAllowed(ctx, u.ID, u.Role)
	if err != nil {
		return types.AccessResponse{}, fmt.Errorf("Decide: %w", err)
	}
	if !allowed {
		s.logger.Warn("access outside schedule",
			slog.Int64("user_id", u.ID),
			slog.String("device", rec.Device),
		)
		return s.finish(ctx, rec, false, types.ReasonOutsideSchedule, ""), nil
	}

	ticket, err := s.door.Unlock(ctx, 0)
	if err != nil {
		s.logger.Error("unlock failed", slog.Int64("user_id", u.ID), slog.Any("err", err))
		resp := s.finish(ctx, rec, false, types.ReasonActuatorFault, "")
		return resp, fmt.Errorf("Decide: %w", err)
	}

	s.logger.Info("access granted",
		slog.Int64("user_id", u.ID),
		slog.String("kind", string(match.Kind)),
		slog.String("device", rec.Device),
		slog.String("ticket", ticket.ID),
	)
	return s.finish(ctx, rec, true, types.ReasonGranted, ticket.ID), nil
}

// UnlockDoor energizes the door on behalf of an authenticated actor. A guest
// actor is held to their schedule like any credential would be.
func (s *AccessService) UnlockDoor(ctx context.Context, actor store.User, hold time.Duration) (*relay.Ticket, error) {
	rec := store.AccessEventRecord{
		Source:     store.SourceAPI,
		UserID:     actor.ID,
		ReceivedAt: s.clock.Now().UTC(),
	}

	if !actor.Active {
		s.finish(ctx, rec, false, types.ReasonInactive, "")
		return nil, ErrInactive
	}
	allowed, err := s.policy.IsAllowed(ctx, actor.ID, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("UnlockDoor: %w", err)
	}
	if !allowed {
		s.logger.Warn("remote unlock outside schedule", slog.Int64("user_id", actor.ID))
		s.finish(ctx, rec, false, types.ReasonOutsideSchedule, "")
		return nil, ErrOutsideSchedule
	}

	ticket, err := s.door.Unlock(ctx, hold)
	if err != nil {
		s.logger.Error("remote unlock failed", slog.Int64("user_id", actor.ID), slog.Any("err", err))
		s.finish(ctx, rec, false, types.ReasonActuatorFault, "")
		return nil, fmt.Errorf("UnlockDoor: %w", err)
	}

	s.logger.Info("door unlocked remotely",
		slog.Int64("user_id", actor.ID),
		slog.String("ticket", ticket.ID),
		slog.Duration("hold", ticket.Hold),
	)
	s.finish(ctx, rec, true, types.ReasonRemoteUnlock, ticket.ID)
	return ticket, nil
}

// finish records the decision and builds the response. A failed audit write
// does not change the decision.
func (s *AccessService) finish(ctx context.Context, rec store.AccessEventRecord, granted bool, reason, ticketID string) types.AccessResponse {
	decidedAt := s.clock.Now().UTC()
	rec.Granted = granted
	rec.Reason = reason
	rec.DecidedAt = decidedAt

	if err := s.events.RecordEvent(ctx, rec); err != nil {
		s.logger.Error("record access event", slog.Any("err", err))
	}
	s.metrics.RecordDecision(rec.Source, reason)

	return types.AccessResponse{
		OK:         true,
		Granted:    granted,
		Reason:     reason,
		UserID:     rec.UserID,
		TicketID:   ticketID,
		ServerTime: decidedAt.Format(time.RFC3339Nano),
	}
}
