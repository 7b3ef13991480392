package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// RunMigrations applies every pending migration for the connection's dialect.
func RunMigrations(conn *Connection) error {
	var (
		driver database.Driver
		dir    string
		name   string
		err    error
	)

	switch conn.Driver {
	case DriverSQLite:
		dir, name = "migrations/sqlite", "sqlite3"
		driver, err = sqlite3.WithInstance(conn.DB.DB, &sqlite3.Config{})
	case DriverPostgres:
		dir, name = "migrations/postgres", "pgx5"
		driver, err = pgxmigrate.WithInstance(conn.DB.DB, &pgxmigrate.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", conn.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}

	// m.Close would also close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
