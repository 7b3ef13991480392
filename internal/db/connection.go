package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database configuration
type Config struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// Connection wraps the metadata database. Pool is only set for PostgreSQL.
type Connection struct {
	DB     *sqlx.DB
	Pool   *pgxpool.Pool
	Driver string
}

// NewConnection opens the configured backend and verifies it responds.
func NewConnection(ctx context.Context, config Config) (*Connection, error) {
	switch config.Driver {
	case DriverSQLite, "sqlite3", "":
		raw, err := OpenSQLite(config.Path, "write", 0)
		if err != nil {
			return nil, err
		}
		return &Connection{DB: sqlx.NewDb(raw, "sqlite3"), Driver: DriverSQLite}, nil
	case DriverPostgres, "pgx":
		return newPostgresConnection(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}

func newPostgresConnection(ctx context.Context, config Config) (*Connection, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 5
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{
		DB:     sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
		Pool:   pool,
		Driver: DriverPostgres,
	}, nil
}

// Close closes the database connection
func (c *Connection) Close() {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DefaultConfig returns a local SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:  DriverSQLite,
		Path:    "vendorflow.db",
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "vendorflow",
		SSLMode: "disable",
	}
}
