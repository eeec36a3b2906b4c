package credential

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/doorpin/server/internal/doorpin/permission"
)

// Source is the read side of the credential store. Implementations must
// only return credentials whose owners are active.
type Source interface {
	ListActivePins(ctx context.Context) ([]PinRecord, error)
	ListActiveRfids(ctx context.Context) ([]RfidRecord, error)
}

// Match identifies the credential a candidate matched and its owner.
type Match struct {
	Kind         Kind
	CredentialID int64
	UserID       int64
	Role         permission.Role
	Label        string
}

type Verifier struct {
	src    Source
	logger *slog.Logger
}

func NewVerifier(src Source, logger *slog.Logger) *Verifier {
	return &Verifier{src: src, logger: logger.With(slog.String("component", "verifier"))}
}

// Verify checks candidate against every stored PIN, then every stored RFID.
// A miss is reported as ok=false with a nil error; errors only come from
// the store. Each scan compares every record of its kind.
func (v *Verifier) Verify(ctx context.Context, candidate string) (Match, bool, error) {
	if candidate == "" {
		return Match{}, false, nil
	}

	pins, err := v.src.ListActivePins(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("Verify list pins: %w", err)
	}
	var (
		match Match
		found bool
	)
	for _, p := range pins {
		if equalHash(Hash(candidate, p.Salt), p.Hash) && !found {
			match = Match{Kind: KindPin, CredentialID: p.ID, UserID: p.OwnerID, Role: p.OwnerRole, Label: p.Label}
			found = true
		}
	}
	if found {
		return match, true, nil
	}

	rfids, err := v.src.ListActiveRfids(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("Verify list rfids: %w", err)
	}
	for _, r := range rfids {
		if equalHash(Hash(candidate, r.Salt), r.Hash) && !found {
			match = Match{Kind: KindRfid, CredentialID: r.ID, UserID: r.OwnerID, Role: r.OwnerRole, Label: r.Label}
			found = true
		}
	}
	if found {
		return match, true, nil
	}

	v.logger.Debug("candidate matched no credential",
		slog.Int("pins", len(pins)),
		slog.Int("rfids", len(rfids)),
	)
	return Match{}, false, nil
}

func equalHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
