package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doorpin/server/internal/db"
	"github.com/doorpin/server/internal/doorpin/credential"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production. The connection is closed when the test ends.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets its own named in-memory database; the shared cache
	// keeps it alive while the pool holds a connection.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}
	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// ends.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()
	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func exec(t *testing.T, conn *sql.DB, q string, args ...any) sql.Result {
	t.Helper()
	res, err := conn.ExecContext(context.Background(), q, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", strings.TrimSpace(q), err)
	}
	return res
}

func seedUser(t *testing.T, conn *sql.DB, name, role string, active bool) int64 {
	t.Helper()
	isActive := 0
	if active {
		isActive = 1
	}
	res := exec(t, conn, `
INSERT INTO users(name, role, is_active, created_at_ms) VALUES (?, ?, ?, ?);`,
		name, role, isActive, time.Now().UTC().UnixMilli())
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func seedPin(t *testing.T, conn *sql.DB, userID int64, plain string) {
	t.Helper()
	salt, err := credential.GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}
	exec(t, conn, `
INSERT INTO pins(user_id, hashed_pin, salt, label, created_at_ms) VALUES (?, ?, ?, 'front', ?);`,
		userID, credential.Hash(plain, salt), salt, time.Now().UTC().UnixMilli())
}

func seedRfid(t *testing.T, conn *sql.DB, userID int64, uuid string) {
	t.Helper()
	salt, err := credential.GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}
	exec(t, conn, `
INSERT INTO rfids(user_id, hashed_uuid, salt, last_four_digits, label, created_at_ms)
VALUES (?, ?, ?, ?, NULL, ?);`,
		userID, credential.Hash(uuid, salt), salt, uuid[len(uuid)-4:], time.Now().UTC().UnixMilli())
}
