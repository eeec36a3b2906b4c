package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doorpin/server/internal/doorpin/apikey"
)

type SeedDevOptions struct {
	// APIKey, when set, is installed for the dev admin so the HTTP API can
	// be exercised without management tooling.
	APIKey string
}

// SeedDev creates a dev apartment and an admin user, and installs the
// optional API key for that admin. Safe to run on every start.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO apartments(number, description)
VALUES ('dev', 'Development apartment');`); err != nil {
		return fmt.Errorf("seed apartments: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO users(name, email, role, apartment_id, is_active, created_at_ms)
SELECT 'Dev Admin', 'admin@doorpin.local', 'admin', id, 1, ?
FROM apartments WHERE number = 'dev';`, now); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	if opt.APIKey == "" {
		return nil
	}
	suffix, err := apikey.Suffix(opt.APIKey)
	if err != nil {
		return fmt.Errorf("seed api key: %w", err)
	}
	hash, err := apikey.Hash(opt.APIKey)
	if err != nil {
		return fmt.Errorf("seed api key: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO api_keys(key_suffix, key_hash, description, user_id, is_active, created_at_ms)
SELECT ?, ?, 'dev seed', id, 1, ?
FROM users WHERE email = 'admin@doorpin.local'
ON CONFLICT(key_suffix) DO UPDATE SET
  key_hash  = excluded.key_hash,
  user_id   = excluded.user_id,
  is_active = 1;
`, suffix, hash, now); err != nil {
		return fmt.Errorf("seed api key %s: %w", suffix, err)
	}
	return nil
}
