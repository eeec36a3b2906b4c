// Package sqlite implements store.Store on the doorpin SQLite schema.
// Reads go straight to the pool; audit-log writes go through the
// single-writer db.Worker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/doorpin/server/internal/db"
	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/schedule"
	"github.com/doorpin/server/internal/doorpin/store"
)

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

var _ store.Store = (*Store)(nil)

func (s *Store) ListActivePins(ctx context.Context) ([]credential.PinRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.user_id, u.role, p.salt, p.hashed_pin, COALESCE(p.label, '')
FROM pins p
JOIN users u ON u.id = p.user_id
WHERE u.is_active = 1
ORDER BY p.id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListActivePins query: %w", err)
	}
	defer rows.Close()

	var out []credential.PinRecord
	for rows.Next() {
		var (
			p    credential.PinRecord
			role string
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &role, &p.Salt, &p.Hash, &p.Label); err != nil {
			return nil, fmt.Errorf("ListActivePins scan: %w", err)
		}
		p.OwnerRole = permission.Role(role)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActivePins rows: %w", err)
	}
	return out, nil
}

func (s *Store) ListActiveRfids(ctx context.Context) ([]credential.RfidRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.user_id, u.role, r.salt, r.hashed_uuid, COALESCE(r.label, ''), r.last_four_digits
FROM rfids r
JOIN users u ON u.id = r.user_id
WHERE u.is_active = 1
ORDER BY r.id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRfids query: %w", err)
	}
	defer rows.Close()

	var out []credential.RfidRecord
	for rows.Next() {
		var (
			r    credential.RfidRecord
			role string
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &role, &r.Salt, &r.Hash, &r.Label, &r.LastFourDigits); err != nil {
			return nil, fmt.Errorf("ListActiveRfids scan: %w", err)
		}
		r.OwnerRole = permission.Role(role)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActiveRfids rows: %w", err)
	}
	return out, nil
}

func (s *Store) ListRecurringWindows(ctx context.Context, userID int64) ([]schedule.RecurringWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT day_of_week, start_time, end_time
FROM recurring_schedules
WHERE user_id = ?
ORDER BY day_of_week, start_time;
`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListRecurringWindows query: %w", err)
	}
	defer rows.Close()

	var out []schedule.RecurringWindow
	for rows.Next() {
		var (
			day        int
			start, end string
		)
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, fmt.Errorf("ListRecurringWindows scan: %w", err)
		}
		w, err := recurringWindow(userID, day, start, end)
		if err != nil {
			return nil, fmt.Errorf("ListRecurringWindows user %d: %w", userID, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecurringWindows rows: %w", err)
	}
	return out, nil
}

func recurringWindow(userID int64, day int, start, end string) (schedule.RecurringWindow, error) {
	st, err := schedule.ParseTimeOfDay(start)
	if err != nil {
		return schedule.RecurringWindow{}, err
	}
	et, err := schedule.ParseTimeOfDay(end)
	if err != nil {
		return schedule.RecurringWindow{}, err
	}
	return schedule.NewRecurringWindow(userID, schedule.Weekday(day), st, et)
}

func (s *Store) ListOneTimeWindows(ctx context.Context, userID int64) ([]schedule.OneTimeWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT start_date, end_date, start_time, end_time
FROM one_time_accesses
WHERE user_id = ?
ORDER BY start_date, start_time;
`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListOneTimeWindows query: %w", err)
	}
	defer rows.Close()

	var out []schedule.OneTimeWindow
	for rows.Next() {
		var sd, ed, st, et string
		if err := rows.Scan(&sd, &ed, &st, &et); err != nil {
			return nil, fmt.Errorf("ListOneTimeWindows scan: %w", err)
		}
		w, err := oneTimeWindow(userID, sd, ed, st, et)
		if err != nil {
			return nil, fmt.Errorf("ListOneTimeWindows user %d: %w", userID, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListOneTimeWindows rows: %w", err)
	}
	return out, nil
}

func oneTimeWindow(userID int64, sd, ed, st, et string) (schedule.OneTimeWindow, error) {
	startDate, err := schedule.ParseDate(sd)
	if err != nil {
		return schedule.OneTimeWindow{}, err
	}
	endDate, err := schedule.ParseDate(ed)
	if err != nil {
		return schedule.OneTimeWindow{}, err
	}
	start, err := schedule.ParseTimeOfDay(st)
	if err != nil {
		return schedule.OneTimeWindow{}, err
	}
	end, err := schedule.ParseTimeOfDay(et)
	if err != nil {
		return schedule.OneTimeWindow{}, err
	}
	return schedule.NewOneTimeWindow(userID, startDate, endDate, start, end)
}

func (s *Store) GetUser(ctx context.Context, id int64) (store.User, error) {
	var (
		u      store.User
		role   string
		active int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, COALESCE(name, ''), role, COALESCE(apartment_id, 0), is_active
FROM users
WHERE id = ?;
`, id).Scan(&u.ID, &u.Name, &role, &u.ApartmentID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("GetUser %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("GetUser query: %w", err)
	}
	u.Role = permission.Role(role)
	u.Active = active == 1
	return u, nil
}

func (s *Store) GetAPIKey(ctx context.Context, suffix string) (store.APIKey, error) {
	var (
		k         store.APIKey
		active    int
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT key_suffix, key_hash, COALESCE(description, ''), user_id, is_active, created_at_ms
FROM api_keys
WHERE key_suffix = ?;
`, suffix).Scan(&k.Suffix, &k.Hash, &k.Description, &k.UserID, &active, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return store.APIKey{}, fmt.Errorf("GetAPIKey: %w", store.ErrNotFound)
	}
	if err != nil {
		return store.APIKey{}, fmt.Errorf("GetAPIKey query: %w", err)
	}
	k.Active = active == 1
	k.CreatedAt = time.UnixMilli(createdMs).UTC()
	return k, nil
}
