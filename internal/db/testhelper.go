package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// OpenTestSQLite opens a migrated SQLite database in t.TempDir() and
// registers cleanup.
func OpenTestSQLite(t *testing.T) *sqlx.DB {
	t.Helper()

	conn, err := NewConnection(context.Background(), Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.sqlite"),
	})
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(conn.Close)

	if err := RunMigrations(conn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return conn.DB
}
