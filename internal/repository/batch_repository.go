package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rpattn/vendorflow/internal/domain"
)

type batchModel struct {
	ID          string         `db:"id"`
	Vendor      string         `db:"vendor"`
	Status      string         `db:"status"`
	TotalRows   int            `db:"total_rows"`
	ValidRows   int            `db:"valid_rows"`
	FlaggedRows int            `db:"flagged_rows"`
	ErrorRows   int            `db:"error_rows"`
	Files       sql.NullString `db:"files"`
	Errors      sql.NullString `db:"errors"`
	StartedAt   time.Time      `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

func (m batchModel) toDomain() (domain.BatchResult, error) {
	batch := domain.BatchResult{
		ID:          m.ID,
		Vendor:      m.Vendor,
		Status:      domain.BatchStatus(m.Status),
		TotalRows:   m.TotalRows,
		ValidRows:   m.ValidRows,
		FlaggedRows: m.FlaggedRows,
		ErrorRows:   m.ErrorRows,
		StartedAt:   m.StartedAt.UTC(),
		CompletedAt: timePtr(m.CompletedAt),
	}
	if err := decodeJSON(m.Files, &batch.Files); err != nil {
		return domain.BatchResult{}, storageErr("decode files of batch "+m.ID, err)
	}
	if err := decodeJSON(m.Errors, &batch.Errors); err != nil {
		return domain.BatchResult{}, storageErr("decode errors of batch "+m.ID, err)
	}
	if batch.Errors == nil {
		batch.Errors = []string{}
	}
	return batch, nil
}

const batchColumns = `id, vendor, status, total_rows, valid_rows, flagged_rows, error_rows,
	files, errors, started_at, completed_at`

// CreateBatch records the start of a run.
func (s *Store) CreateBatch(ctx context.Context, batch domain.BatchResult) error {
	return s.writeBatch(ctx, batch, "create batch")
}

// FinishBatch stores the final summary of a run.
func (s *Store) FinishBatch(ctx context.Context, batch domain.BatchResult) error {
	return s.writeBatch(ctx, batch, "finish batch")
}

func (s *Store) writeBatch(ctx context.Context, batch domain.BatchResult, op string) error {
	files, err := encodeJSON(batch.Files, "[]")
	if err != nil {
		return err
	}
	errs, err := encodeJSON(batch.Errors, "[]")
	if err != nil {
		return err
	}
	startedAt := batch.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			total_rows = excluded.total_rows,
			valid_rows = excluded.valid_rows,
			flagged_rows = excluded.flagged_rows,
			error_rows = excluded.error_rows,
			files = excluded.files,
			errors = excluded.errors,
			completed_at = excluded.completed_at`),
		batch.ID,
		batch.Vendor,
		string(batch.Status),
		batch.TotalRows,
		batch.ValidRows,
		batch.FlaggedRows,
		batch.ErrorRows,
		files,
		errs,
		startedAt.UTC(),
		nullTime(batch.CompletedAt),
	)
	if err != nil {
		return storageErr(op+" "+batch.ID, err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (domain.BatchResult, error) {
	var m batchModel
	if err := s.db.GetContext(ctx, &m, s.q(`SELECT `+batchColumns+` FROM batches WHERE id = ?`), id); err != nil {
		return domain.BatchResult{}, lookupErr("get batch "+id, err)
	}
	return m.toDomain()
}

func (s *Store) ListBatches(ctx context.Context, limit int, offset int) ([]domain.BatchResult, error) {
	limit, offset = pageBounds(limit, offset)

	var models []batchModel
	err := s.db.SelectContext(ctx, &models,
		s.q(`SELECT `+batchColumns+` FROM batches ORDER BY started_at DESC, id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, storageErr("list batches", err)
	}

	batches := make([]domain.BatchResult, 0, len(models))
	for _, m := range models {
		batch, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
