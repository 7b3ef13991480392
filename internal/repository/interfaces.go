package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/vendorflow/internal/domain"
)

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// StorageError wraps a failure of the underlying database. Pipelines treat
// it as fatal for the whole run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// RowFilter narrows ListRows. Zero values mean "any".
type RowFilter struct {
	FileIDs []string
	Status  domain.RowStatus
	Limit   int
	Offset  int
}

// FileRepository persists FileRecords keyed by content hash.
type FileRepository interface {
	UpsertFile(ctx context.Context, file domain.FileRecord) error
	GetFile(ctx context.Context, id string) (domain.FileRecord, error)
	ListFiles(ctx context.Context, status domain.FileStatus, limit int, offset int) ([]domain.FileRecord, error)
}

// RowRepository persists RowRecords keyed by file id and line number.
type RowRepository interface {
	// UpsertRows writes each row as an independent upsert. Reviewer fields
	// of existing rows are left untouched.
	UpsertRows(ctx context.Context, rows []domain.RowRecord) error
	GetRow(ctx context.Context, id string) (domain.RowRecord, error)
	ListRowsByFile(ctx context.Context, fileID string) ([]domain.RowRecord, error)
	ListRows(ctx context.Context, filter RowFilter) ([]domain.RowRecord, error)
	CountRowsByStatus(ctx context.Context, fileID string) (map[domain.RowStatus]int, error)
}

// BatchRepository stores run summaries.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch domain.BatchResult) error
	FinishBatch(ctx context.Context, batch domain.BatchResult) error
	GetBatch(ctx context.Context, id string) (domain.BatchResult, error)
	ListBatches(ctx context.Context, limit int, offset int) ([]domain.BatchResult, error)
}

// ReviewRepository records reviewer decisions and their audit trail.
type ReviewRepository interface {
	RecordDecision(ctx context.Context, decision domain.ReviewDecision) (domain.RowRecord, error)
	ListDecisions(ctx context.Context, rowID string) ([]domain.ReviewDecision, error)
}

// SuggestionCacheRepository caches advisory mapping suggestions by header signature.
type SuggestionCacheRepository interface {
	GetSuggestions(ctx context.Context, signature string) ([]domain.Suggestion, bool, error)
	PutSuggestions(ctx context.Context, signature string, suggestions []domain.Suggestion) error
}

// MetadataStore is the full persistence surface used by the pipeline.
type MetadataStore interface {
	FileRepository
	RowRepository
	BatchRepository
	ReviewRepository
	SuggestionCacheRepository
}
