package store

import (
	"context"
	"time"

	"github.com/doorpin/server/internal/doorpin/credential"
)

// Where a decision was requested.
const (
	SourceReader = "reader"
	SourceAPI    = "api"
)

// AccessEventRecord captures a single access decision for the audit log.
// UserID and CredentialID are zero when no credential matched.
type AccessEventRecord struct {
	Source         string
	Device         string
	UserID         int64
	CredentialKind credential.Kind
	CredentialID   int64
	Granted        bool
	Reason         string
	ReceivedAt     time.Time
	DecidedAt      time.Time
}

// AccessEventStore persists access decisions as an append-only audit log.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, rec AccessEventRecord) error
	// PruneOlderThan deletes events received before cutoff and reports
	// how many were removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
