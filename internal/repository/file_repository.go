package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rpattn/vendorflow/internal/domain"
)

type fileModel struct {
	ID           string       `db:"id"`
	FileName     string       `db:"file_name"`
	Path         string       `db:"path"`
	FileType     string       `db:"file_type"`
	Vendor       string       `db:"vendor"`
	SizeBytes    int64        `db:"size_bytes"`
	Status       string       `db:"status"`
	ArchivePath  string       `db:"archive_path"`
	ErrorMessage string       `db:"error_message"`
	RowCount     int          `db:"row_count"`
	ValidRows    int          `db:"valid_rows"`
	FlaggedRows  int          `db:"flagged_rows"`
	ErrorRows    int          `db:"error_rows"`
	CreatedAt    time.Time    `db:"created_at"`
	ProcessedAt  sql.NullTime `db:"processed_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (m fileModel) toDomain() domain.FileRecord {
	return domain.FileRecord{
		ID:           m.ID,
		FileName:     m.FileName,
		Path:         m.Path,
		FileType:     m.FileType,
		Vendor:       m.Vendor,
		SizeBytes:    m.SizeBytes,
		CreatedAt:    m.CreatedAt.UTC(),
		ProcessedAt:  timePtr(m.ProcessedAt),
		Status:       domain.FileStatus(m.Status),
		ArchivePath:  m.ArchivePath,
		ErrorMessage: m.ErrorMessage,
		RowCount:     m.RowCount,
		ValidRows:    m.ValidRows,
		FlaggedRows:  m.FlaggedRows,
		ErrorRows:    m.ErrorRows,
	}
}

const fileColumns = `id, file_name, path, file_type, vendor, size_bytes, status, archive_path,
	error_message, row_count, valid_rows, flagged_rows, error_rows, created_at, processed_at, updated_at`

// UpsertFile inserts the record or updates every mutable column. created_at
// keeps the value of the first insert.
func (s *Store) UpsertFile(ctx context.Context, file domain.FileRecord) error {
	now := s.now()
	createdAt := file.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			file_name = excluded.file_name,
			path = excluded.path,
			file_type = excluded.file_type,
			vendor = excluded.vendor,
			size_bytes = excluded.size_bytes,
			status = excluded.status,
			archive_path = excluded.archive_path,
			error_message = excluded.error_message,
			row_count = excluded.row_count,
			valid_rows = excluded.valid_rows,
			flagged_rows = excluded.flagged_rows,
			error_rows = excluded.error_rows,
			processed_at = excluded.processed_at,
			updated_at = excluded.updated_at`),
		file.ID,
		file.FileName,
		file.Path,
		file.FileType,
		file.Vendor,
		file.SizeBytes,
		string(file.Status),
		file.ArchivePath,
		file.ErrorMessage,
		file.RowCount,
		file.ValidRows,
		file.FlaggedRows,
		file.ErrorRows,
		createdAt.UTC(),
		nullTime(file.ProcessedAt),
		now,
	)
	if err != nil {
		return storageErr("upsert file "+file.ID, err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, id string) (domain.FileRecord, error) {
	var m fileModel
	if err := s.db.GetContext(ctx, &m, s.q(`SELECT `+fileColumns+` FROM files WHERE id = ?`), id); err != nil {
		return domain.FileRecord{}, lookupErr("get file "+id, err)
	}
	return m.toDomain(), nil
}

// ListFiles returns files newest first. An empty status lists every file.
func (s *Store) ListFiles(ctx context.Context, status domain.FileStatus, limit int, offset int) ([]domain.FileRecord, error) {
	limit, offset = pageBounds(limit, offset)

	query := `SELECT ` + fileColumns + ` FROM files`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var models []fileModel
	if err := s.db.SelectContext(ctx, &models, s.q(query), args...); err != nil {
		return nil, storageErr("list files", err)
	}

	files := make([]domain.FileRecord, 0, len(models))
	for _, m := range models {
		files = append(files, m.toDomain())
	}
	return files, nil
}
