package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rpattn/vendorflow/internal/db"
)

var _ MetadataStore = (*Store)(nil)

// Store implements MetadataStore on top of sqlx for both SQLite and PostgreSQL.
// Queries are written with ? placeholders and rebound per driver.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore wires a store on an already migrated database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// withTx runs fn in a transaction. Errors from fn pass through; begin,
// commit and rollback failures become StorageErrors.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sqlx.Tx) error) error {
	var fnErr error
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err == nil || err == fnErr {
		return err
	}
	return storageErr(op, err)
}

func lookupErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return storageErr(op, err)
}

func encodeJSON(value any, empty string) (string, error) {
	if value == nil {
		return empty, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func decodeJSON(raw sql.NullString, target any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), target); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
