package store

import (
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db, DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"identities", "requesters", "ledger_entries"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db, DBSQLite); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(db, DBSQLite); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", n)
	}
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, DBDriver("oracle")); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if err := Migrate(nil, DBSQLite); err == nil {
		t.Fatalf("expected missing db error")
	}
}
