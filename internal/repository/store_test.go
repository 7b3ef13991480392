package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/vendorflow/internal/db"
	"github.com/rpattn/vendorflow/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(db.OpenTestSQLite(t))
}

func seedFile(t *testing.T, s *Store, id string) domain.FileRecord {
	t.Helper()
	file := domain.FileRecord{
		ID:       id,
		FileName: id + ".csv",
		Path:     "/incoming/" + id + ".csv",
		FileType: "csv",
		Status:   domain.FileStatusPending,
	}
	require.NoError(t, s.UpsertFile(context.Background(), file))
	return file
}

func TestUpsertFileKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	file := domain.FileRecord{ID: "abc", FileName: "a.csv", Path: "/a.csv", Status: domain.FileStatusProcessing, CreatedAt: created}
	require.NoError(t, s.UpsertFile(ctx, file))

	file.Status = domain.FileStatusSuccess
	file.RowCount = 3
	file.CreatedAt = created.Add(time.Hour)
	require.NoError(t, s.UpsertFile(ctx, file))

	got, err := s.GetFile(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatusSuccess, got.Status)
	assert.Equal(t, 3, got.RowCount)
	assert.True(t, got.CreatedAt.Equal(created), "created_at changed to %s", got.CreatedAt)

	files, err := s.ListFiles(ctx, domain.FileStatusSuccess, 0, 0)
	require.NoError(t, err)
	require.Len(t, files, 1)

	files, err = s.ListFiles(ctx, domain.FileStatusFailed, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGetFileNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRowsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFile(t, s, "f1")

	row := domain.NewRowRecord("f1", 1, map[string]any{"SKU": "A100", "Qty": "2"})
	row.Normalized = map[string]any{"SKU": "A100", "Qty": "2"}
	row.Canonical = map[string]any{"sku": "A100", "quantity": "2"}
	row.Confidence = map[string]float64{"sku": 1}
	row.Status = domain.RowStatusFlagged
	row.AddViolation(domain.NewViolation("required", "price is required", "price"))
	require.NoError(t, s.UpsertRows(ctx, []domain.RowRecord{row, domain.NewRowRecord("f1", 2, map[string]any{"SKU": "B"})}))

	got, err := s.GetRow(ctx, "f1_1")
	require.NoError(t, err)
	assert.Equal(t, "A100", got.Canonical["sku"])
	assert.Equal(t, domain.RowStatusFlagged, got.Status)
	require.Len(t, got.Violations, 1)
	assert.Equal(t, []string{"price"}, got.Violations[0].Fields)

	rows, err := s.ListRowsByFile(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].LineNumber)
	assert.Equal(t, 2, rows[1].LineNumber)
	assert.Empty(t, rows[1].Violations)

	counts, err := s.CountRowsByStatus(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.RowStatusFlagged])
	assert.Equal(t, 1, counts[domain.RowStatusPending])
}

func TestListRowsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFile(t, s, "f1")
	seedFile(t, s, "f2")

	var rows []domain.RowRecord
	for _, fileID := range []string{"f1", "f2"} {
		for line := 1; line <= 3; line++ {
			row := domain.NewRowRecord(fileID, line, map[string]any{"n": line})
			row.Status = domain.RowStatusFlagged
			if line == 2 {
				row.Status = domain.RowStatusValid
			}
			rows = append(rows, row)
		}
	}
	require.NoError(t, s.UpsertRows(ctx, rows))

	flagged, err := s.ListRows(ctx, RowFilter{Status: domain.RowStatusFlagged})
	require.NoError(t, err)
	assert.Len(t, flagged, 4)

	onlyF2, err := s.ListRows(ctx, RowFilter{FileIDs: []string{"f2"}, Status: domain.RowStatusFlagged})
	require.NoError(t, err)
	require.Len(t, onlyF2, 2)
	assert.Equal(t, "f2_1", onlyF2[0].ID)

	page, err := s.ListRows(ctx, RowFilter{Status: domain.RowStatusFlagged, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "f2_1", page[0].ID)
}

func TestRecordDecisionSurvivesPipelineUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFile(t, s, "f1")

	row := domain.NewRowRecord("f1", 1, map[string]any{"sku": "A"})
	row.Status = domain.RowStatusFlagged
	row.AddViolation(domain.NewViolation("duplicate", "Duplicate of row 0", "_deduplicate"))
	require.NoError(t, s.UpsertRows(ctx, []domain.RowRecord{row}))

	updated, err := s.RecordDecision(ctx, domain.ReviewDecision{
		RowID:    row.ID,
		Decision: domain.DecisionApproved,
		Reviewer: "ops@example.com",
		Comment:  "known duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.ReviewDecision)
	assert.Equal(t, "ops@example.com", updated.ApprovedBy)
	assert.Equal(t, domain.RowStatusFlagged, updated.Status)
	assert.Len(t, updated.Violations, 1)
	require.NotNil(t, updated.ApprovedAt)

	// a later pipeline write must not clear the reviewer fields
	row.Status = domain.RowStatusValid
	row.Violations = nil
	require.NoError(t, s.UpsertRows(ctx, []domain.RowRecord{row}))
	got, err := s.GetRow(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", got.ApprovedBy)
	assert.Equal(t, domain.RowStatusValid, got.Status)

	decisions, err := s.ListDecisions(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.DecisionApproved, decisions[0].Decision)
}

func TestRecordDecisionUnknownRow(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RecordDecision(context.Background(), domain.ReviewDecision{
		RowID:    "nope_1",
		Decision: domain.DecisionRejected,
		Reviewer: "ops",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptStoredRowIsStorageError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFile(t, s, "f1")

	row := domain.NewRowRecord("f1", 1, map[string]any{"sku": "A"})
	require.NoError(t, s.UpsertRows(ctx, []domain.RowRecord{row}))
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE file_rows SET canonical_data = '{bad' WHERE id = ?`), row.ID)
	require.NoError(t, err)

	_, err = s.GetRow(ctx, row.ID)
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	_, err = s.ListRowsByFile(ctx, "f1")
	assert.True(t, IsStorageError(err))
}

func TestRecordDecisionOnClosedDatabaseIsStorageError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.db.Close())

	_, err := s.RecordDecision(context.Background(), domain.ReviewDecision{
		RowID:    "f1_1",
		Decision: domain.DecisionApproved,
		Reviewer: "ops",
	})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	batch := domain.BatchResult{ID: "batch_1", StartedAt: started, Status: domain.BatchStatusRunning}
	require.NoError(t, s.CreateBatch(ctx, batch))

	done := started.Add(time.Minute)
	batch.CompletedAt = &done
	batch.Status = domain.BatchStatusPartialSuccess
	batch.Files = []domain.FileOutcome{{FileID: "f1", Path: "a.csv", Status: domain.FileStatusSuccess, RowCount: 2, ValidRows: 2}}
	batch.Errors = []string{"b.csv: unsupported format"}
	batch.Tally()
	require.NoError(t, s.FinishBatch(ctx, batch))

	got, err := s.GetBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPartialSuccess, got.Status)
	assert.Equal(t, 2, got.TotalRows)
	assert.Equal(t, []string{"f1"}, got.FileIDs())
	assert.Equal(t, []string{"b.csv: unsupported format"}, got.Errors)
	require.NotNil(t, got.CompletedAt)

	batches, err := s.ListBatches(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestSuggestionCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetSuggestions(ctx, "sig")
	require.NoError(t, err)
	assert.False(t, ok)

	want := []domain.Suggestion{{VendorField: "Qty", CanonicalField: "quantity", Confidence: 0.95}}
	require.NoError(t, s.PutSuggestions(ctx, "sig", want))

	got, ok, err := s.GetSuggestions(ctx, "sig")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
