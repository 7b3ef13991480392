package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rpattn/vendorflow/internal/domain"
)

type rowModel struct {
	ID             string         `db:"id"`
	FileID         string         `db:"file_id"`
	LineNumber     int            `db:"line_number"`
	Raw            sql.NullString `db:"raw_data"`
	Normalized     sql.NullString `db:"normalized_data"`
	Canonical      sql.NullString `db:"canonical_data"`
	Status         string         `db:"status"`
	Violations     sql.NullString `db:"violations"`
	Confidence     sql.NullString `db:"confidence"`
	Suggestions    sql.NullString `db:"suggestions"`
	ReviewDecision sql.NullString `db:"review_decision"`
	ApprovedBy     sql.NullString `db:"approved_by"`
	ApprovedAt     sql.NullTime   `db:"approved_at"`
	ReviewNote     sql.NullString `db:"review_note"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (m rowModel) toDomain() (domain.RowRecord, error) {
	row := domain.RowRecord{
		ID:             m.ID,
		FileID:         m.FileID,
		LineNumber:     m.LineNumber,
		Status:         domain.RowStatus(m.Status),
		ReviewDecision: m.ReviewDecision.String,
		ApprovedBy:     m.ApprovedBy.String,
		ApprovedAt:     timePtr(m.ApprovedAt),
		ReviewNote:     m.ReviewNote.String,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	targets := []struct {
		raw    sql.NullString
		target any
	}{
		{m.Raw, &row.Raw},
		{m.Normalized, &row.Normalized},
		{m.Canonical, &row.Canonical},
		{m.Violations, &row.Violations},
		{m.Confidence, &row.Confidence},
		{m.Suggestions, &row.Suggestions},
	}
	for _, t := range targets {
		if err := decodeJSON(t.raw, t.target); err != nil {
			return domain.RowRecord{}, storageErr("decode row "+m.ID, err)
		}
	}
	if row.Violations == nil {
		row.Violations = []domain.Violation{}
	}
	return row, nil
}

const rowColumns = `id, file_id, line_number, raw_data, normalized_data, canonical_data, status,
	violations, confidence, suggestions, review_decision, approved_by, approved_at, review_note,
	created_at, updated_at`

const upsertRowSQL = `INSERT INTO file_rows (id, file_id, line_number, raw_data, normalized_data,
		canonical_data, status, violations, confidence, suggestions, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		line_number = excluded.line_number,
		raw_data = excluded.raw_data,
		normalized_data = excluded.normalized_data,
		canonical_data = excluded.canonical_data,
		status = excluded.status,
		violations = excluded.violations,
		confidence = excluded.confidence,
		suggestions = excluded.suggestions,
		updated_at = excluded.updated_at`

func (s *Store) UpsertRows(ctx context.Context, rows []domain.RowRecord) error {
	if len(rows) == 0 {
		return nil
	}

	now := s.now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin row upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, s.q(upsertRowSQL))
	if err != nil {
		return storageErr("prepare row upsert", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args, err := rowArgs(row, now)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return storageErr("upsert row "+row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit row upsert", err)
	}
	return nil
}

func rowArgs(row domain.RowRecord, now time.Time) ([]any, error) {
	raw, err := encodeJSON(row.Raw, "{}")
	if err != nil {
		return nil, err
	}
	violations := row.Violations
	if violations == nil {
		violations = []domain.Violation{}
	}
	encoded := make([]sql.NullString, 0, 5)
	for _, value := range []any{row.Normalized, row.Canonical, violations, row.Confidence, row.Suggestions} {
		text, err := encodeJSON(value, "")
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, nullString(text))
	}
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := row.Status
	if status == "" {
		status = domain.RowStatusPending
	}
	return []any{
		row.ID,
		row.FileID,
		row.LineNumber,
		raw,
		encoded[0],
		encoded[1],
		string(status),
		encoded[2].String,
		encoded[3],
		encoded[4],
		createdAt.UTC(),
		now,
	}, nil
}

func (s *Store) GetRow(ctx context.Context, id string) (domain.RowRecord, error) {
	return getRow(ctx, s.db, s.q(`SELECT `+rowColumns+` FROM file_rows WHERE id = ?`), id)
}

func getRow(ctx context.Context, q sqlx.QueryerContext, query string, id string) (domain.RowRecord, error) {
	var m rowModel
	if err := sqlx.GetContext(ctx, q, &m, query, id); err != nil {
		return domain.RowRecord{}, lookupErr("get row "+id, err)
	}
	return m.toDomain()
}

// ListRowsByFile returns every row of a file in line order.
func (s *Store) ListRowsByFile(ctx context.Context, fileID string) ([]domain.RowRecord, error) {
	var models []rowModel
	err := s.db.SelectContext(ctx, &models,
		s.q(`SELECT `+rowColumns+` FROM file_rows WHERE file_id = ? ORDER BY line_number`), fileID)
	if err != nil {
		return nil, storageErr("list rows for file "+fileID, err)
	}
	return toRows(models)
}

// ListRows pages through rows matching the filter, ordered by file then line.
func (s *Store) ListRows(ctx context.Context, filter RowFilter) ([]domain.RowRecord, error) {
	limit, offset := pageBounds(filter.Limit, filter.Offset)

	var (
		conditions []string
		args       []any
	)
	if len(filter.FileIDs) > 0 {
		conditions = append(conditions, `file_id IN (?)`)
		args = append(args, filter.FileIDs)
	}
	if filter.Status != "" {
		conditions = append(conditions, `status = ?`)
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + rowColumns + ` FROM file_rows`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY file_id, line_number LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	if len(filter.FileIDs) > 0 {
		expanded, expandedArgs, err := sqlx.In(query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to expand row filter: %w", err)
		}
		query, args = expanded, expandedArgs
	}

	var models []rowModel
	if err := s.db.SelectContext(ctx, &models, s.q(query), args...); err != nil {
		return nil, storageErr("list rows", err)
	}
	return toRows(models)
}

func (s *Store) CountRowsByStatus(ctx context.Context, fileID string) (map[domain.RowStatus]int, error) {
	var counts []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	err := s.db.SelectContext(ctx, &counts,
		s.q(`SELECT status, COUNT(*) AS count FROM file_rows WHERE file_id = ? GROUP BY status`), fileID)
	if err != nil {
		return nil, storageErr("count rows for file "+fileID, err)
	}
	out := make(map[domain.RowStatus]int, len(counts))
	for _, c := range counts {
		out[domain.RowStatus(c.Status)] = c.Count
	}
	return out, nil
}

func toRows(models []rowModel) ([]domain.RowRecord, error) {
	rows := make([]domain.RowRecord, 0, len(models))
	for _, m := range models {
		row, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
