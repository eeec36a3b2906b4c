package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doorpin/server/internal/doorpin/store"
)

func (s *Store) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	var device any
	if rec.Device != "" {
		device = rec.Device
	}
	// Misses carry no user or credential; the columns stay NULL.
	var userID, credKind, credID any
	if rec.UserID != 0 {
		userID = rec.UserID
	}
	if rec.CredentialKind != "" {
		credKind = string(rec.CredentialKind)
	}
	if rec.CredentialID != 0 {
		credID = rec.CredentialID
	}

	var granted int
	if rec.Granted {
		granted = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  source, device, user_id, credential_kind, credential_id,
  decision_granted, decision_reason, received_at_ms, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.Source, device, userID, credKind, credID,
			granted, rec.Reason, rec.ReceivedAt.UTC().UnixMilli(), rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes access events received before cutoff. Uses the
// idx_access_events_received index.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_events
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
