package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/vendorflow/internal/config"
	"github.com/rpattn/vendorflow/internal/db"
	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/export"
	"github.com/rpattn/vendorflow/internal/ingestion"
	"github.com/rpattn/vendorflow/internal/reconcile"
	"github.com/rpattn/vendorflow/internal/repository"
	"github.com/rpattn/vendorflow/internal/suggest"
)

const ordersCSV = "Item Code,Qty,Price,Total\n" +
	"A100,2,5.00,10.00\n" +
	"A100,1,3,3\n" +
	"B200,2,5,11\n"

func testRules(t *testing.T) config.Rules {
	t.Helper()
	mappingRules, err := config.ParseMappingRules([]byte(`
mappings:
  Item Code: sku
  Qty: quantity
  Price: price
  Total: total
rules:
  - vendor_field: Quantity
    canonical_field: quantity
    priority: 20
    fallback: true
`))
	require.NoError(t, err)
	validationRules, err := config.ParseValidationRules([]byte(`
field_validation_rules:
  - field: sku
    rule_type: required
cross_field_rules:
  - rule_type: formula
    fields: [quantity, price, total]
    formula: "quantity * price == total"
    message: total does not match quantity * price
`))
	require.NoError(t, err)
	return config.Rules{Vendor: "acme", Mapping: mappingRules, Validation: validationRules}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *repository.Store) {
	t.Helper()
	store := repository.NewStore(db.OpenTestSQLite(t))
	runner, err := NewRunner(store, testRules(t), opts...)
	require.NoError(t, err)
	return runner, store
}

func rowsByLine(t *testing.T, store *repository.Store, fileID string) map[int]domain.RowRecord {
	t.Helper()
	rows, err := store.ListRowsByFile(context.Background(), fileID)
	require.NoError(t, err)
	out := make(map[int]domain.RowRecord, len(rows))
	for _, row := range rows {
		out[row.LineNumber] = row
	}
	return out
}

func rules(violations []domain.Violation) []string {
	var out []string
	for _, v := range violations {
		out = append(out, v.Rule)
	}
	return out
}

func TestRunMapsValidatesAndReconciles(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, WithDeduplication([]string{"sku"}, reconcile.KeepFirst, false))
	path := writeFile(t, t.TempDir(), "orders.csv", ordersCSV)

	batch, err := runner.Run(ctx, []string{path}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusSuccess, batch.Status)
	assert.Empty(t, batch.Errors)
	require.Len(t, batch.Files, 1)
	assert.Equal(t, domain.FileStatusSuccess, batch.Files[0].Status)
	assert.Equal(t, 3, batch.TotalRows)
	assert.Equal(t, 2, batch.ValidRows)
	assert.Equal(t, 1, batch.FlaggedRows)
	require.NotNil(t, batch.CompletedAt)

	rows := rowsByLine(t, store, batch.Files[0].FileID)
	assert.Equal(t, domain.RowStatusValid, rows[1].Status)
	assert.Equal(t, "A100", rows[1].Canonical["sku"])
	assert.Equal(t, 1.0, rows[1].Confidence["quantity"])

	// Duplicates are recorded but leave the verdict alone.
	assert.Equal(t, domain.RowStatusValid, rows[2].Status)
	assert.Equal(t, []string{reconcile.DuplicateRule}, rules(rows[2].Violations))

	assert.Equal(t, domain.RowStatusFlagged, rows[3].Status)
	assert.Equal(t, []string{"formula"}, rules(rows[3].Violations))
	assert.Equal(t, []string{"quantity", "price", "total"}, rows[3].Violations[0].Fields)

	stored, err := store.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusSuccess, stored.Status)
}

func TestRunDuplicatesCanAffectStatus(t *testing.T) {
	runner, store := newTestRunner(t, WithDeduplication([]string{"sku"}, reconcile.MarkAll, true))
	path := writeFile(t, t.TempDir(), "orders.csv", ordersCSV)

	batch, err := runner.Run(context.Background(), []string{path}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.ValidRows)
	assert.Equal(t, 3, batch.FlaggedRows)

	rows := rowsByLine(t, store, batch.Files[0].FileID)
	assert.Equal(t, domain.RowStatusFlagged, rows[1].Status)
	assert.Equal(t, []string{reconcile.DuplicateRule}, rules(rows[1].Violations))
	assert.Equal(t, []string{"formula"}, rules(rows[3].Violations))
}

func TestRunPrefersHigherPriorityMapping(t *testing.T) {
	runner, store := newTestRunner(t)
	path := writeFile(t, t.TempDir(), "both.csv", "Item Code,Qty,Quantity,Price,Total\nA1,2,9,1,2\nA2,,4,1,4\n")

	batch, err := runner.Run(context.Background(), []string{path}, false)
	require.NoError(t, err)

	rows := rowsByLine(t, store, batch.Files[0].FileID)
	assert.Equal(t, "2", rows[1].Canonical["quantity"])
	assert.Equal(t, domain.RowStatusValid, rows[1].Status)
	// The fallback only applies when Qty is empty.
	assert.Equal(t, "4", rows[2].Canonical["quantity"])
	assert.Equal(t, domain.RowStatusValid, rows[2].Status)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t)
	path := writeFile(t, t.TempDir(), "orders.csv", ordersCSV)

	first, err := runner.Run(ctx, []string{path}, false)
	require.NoError(t, err)
	fileID := first.Files[0].FileID
	before := rowsByLine(t, store, fileID)

	second, err := runner.Run(ctx, []string{path}, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.BatchStatusSuccess, second.Status)
	require.Len(t, second.Files, 1)
	assert.True(t, second.Files[0].Skipped)
	assert.Equal(t, 0, second.TotalRows)

	forced, err := runner.Run(ctx, []string{path}, true)
	require.NoError(t, err)
	assert.False(t, forced.Files[0].Skipped)
	assert.Equal(t, 3, forced.TotalRows)

	after := rowsByLine(t, store, fileID)
	require.Len(t, after, len(before))
	for line, row := range before {
		assert.Equal(t, row.ID, after[line].ID)
		assert.Equal(t, row.Status, after[line].Status)
		assert.Equal(t, row.Violations, after[line].Violations)
	}
}

func TestRunPartialSuccess(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, WithWorkers(2))
	dir := t.TempDir()
	good := writeFile(t, dir, "orders.csv", ordersCSV)
	bad := writeFile(t, dir, "scan.pdf", "%PDF-1.4\n")

	batch, err := runner.Run(ctx, []string{good, bad}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPartialSuccess, batch.Status)
	require.Len(t, batch.Files, 2)
	assert.Equal(t, good, batch.Files[0].Path)
	assert.Equal(t, domain.FileStatusSuccess, batch.Files[0].Status)
	assert.Equal(t, domain.FileStatusFailed, batch.Files[1].Status)
	require.Len(t, batch.Errors, 1)
	assert.True(t, strings.HasPrefix(batch.Errors[0], "scan.pdf: "))

	failed, err := store.GetFile(ctx, batch.Files[1].FileID)
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.ErrorMessage)
}

func TestRunAllFilesFailed(t *testing.T) {
	runner, _ := newTestRunner(t)
	dir := t.TempDir()

	batch, err := runner.Run(context.Background(), []string{filepath.Join(dir, "missing.csv")}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Len(t, batch.Errors, 1)
}

func TestRunEmptyBatch(t *testing.T) {
	runner, _ := newTestRunner(t)

	batch, err := runner.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusSuccess, batch.Status)
	assert.Empty(t, batch.Files)
}

type failingStore struct {
	*repository.Store
}

func (s failingStore) ListRowsByFile(context.Context, string) ([]domain.RowRecord, error) {
	return nil, &repository.StorageError{Op: "list rows", Err: assert.AnError}
}

func TestRunStorageErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(db.OpenTestSQLite(t))
	runner, err := NewRunner(failingStore{store}, testRules(t))
	require.NoError(t, err)

	dir := t.TempDir()
	first := writeFile(t, dir, "a.csv", ordersCSV)
	second := writeFile(t, dir, "b.csv", "Item Code\nZ9\n")

	batch, err := runner.Run(ctx, []string{first, second}, false)
	require.Error(t, err)
	assert.True(t, repository.IsStorageError(err))
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)

	// The file stays PROCESSING so the next run picks it up again.
	file, err := store.GetFile(ctx, batch.Files[0].FileID)
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatusProcessing, file.Status)

	stored, err := store.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, stored.Status)
}

func TestRunMarksDecodeErrorsAsError(t *testing.T) {
	runner, store := newTestRunner(t)
	path := writeFile(t, t.TempDir(), "orders.jsonl",
		`{"Item Code":"A1","Qty":"1","Price":"2","Total":"2"}`+"\n"+
			"{not json\n")

	batch, err := runner.Run(context.Background(), []string{path}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusSuccess, batch.Status)
	assert.Equal(t, 1, batch.ValidRows)
	assert.Equal(t, 1, batch.ErrorRows)

	rows := rowsByLine(t, store, batch.Files[0].FileID)
	assert.Equal(t, domain.RowStatusError, rows[2].Status)
	assert.Equal(t, []string{ingestion.DecodeRule}, rules(rows[2].Violations))
}

func TestRunAttachesSuggestions(t *testing.T) {
	store := repository.NewStore(db.OpenTestSQLite(t))
	suggester := suggest.NewService(suggest.WithCache(suggest.NewStoreCache(store)))
	runner, err := NewRunner(store, testRules(t), WithSuggestions(suggester))
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "odd.csv", "SKU,Qty,Price,Total\nA1,1,1,1\n")

	batch, err := runner.Run(context.Background(), []string{path}, false)
	require.NoError(t, err)

	rows := rowsByLine(t, store, batch.Files[0].FileID)
	// Suggestions are advisory; sku is still missing.
	assert.Equal(t, domain.RowStatusFlagged, rows[1].Status)
	require.NotEmpty(t, rows[1].Suggestions["SKU"])
	assert.Equal(t, "sku", rows[1].Suggestions["SKU"][0].CanonicalField)
}

func TestRunWritesExportsAndReport(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(db.OpenTestSQLite(t))
	out := t.TempDir()
	exporter := export.NewService(store,
		export.WithExportDirectory(filepath.Join(out, "exports")),
		export.WithReportDirectory(filepath.Join(out, "reports")),
	)
	runner, err := NewRunner(store, testRules(t),
		WithExport(exporter, export.FormatCSV),
		WithReports(exporter),
		WithArchiveDir(filepath.Join(out, "archive")),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"map", "validate", "export"}, runner.Stages())

	path := writeFile(t, t.TempDir(), "orders.csv", ordersCSV)
	batch, err := runner.Run(ctx, []string{path}, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(batch.ID, "batch_20240501_093000_"))

	for _, name := range []string{"orders_valid.csv", "orders_flagged.csv"} {
		_, err := os.Stat(filepath.Join(out, "exports", name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(out, "reports", batch.ID, "report.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "archive", batch.Files[0].FileID+".csv"))
	assert.NoError(t, err)
}

func TestProcessUpload(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t)

	outcome, err := runner.ProcessUpload(ctx, "orders.csv", strings.NewReader(ordersCSV), false)
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatusSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.RowCount)

	batches, err := store.ListBatches(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	outcome, err = runner.ProcessUpload(ctx, "scan.pdf", strings.NewReader("%PDF-1.4\n"), false)
	assert.ErrorIs(t, err, ingestion.ErrUnsupportedFormat)
	assert.Equal(t, domain.FileStatusFailed, outcome.Status)
}

func TestNewRunnerRejectsBadRules(t *testing.T) {
	store := repository.NewStore(db.OpenTestSQLite(t))

	_, err := NewRunner(store, config.Rules{})
	assert.ErrorIs(t, err, config.ErrInvalidRules)

	rules := testRules(t)
	rules.Mapping = append(rules.Mapping, domain.MappingRule{
		VendorField: "Desc", CanonicalField: "description", Kind: domain.MatchPattern, Pattern: "(",
	})
	_, err = NewRunner(store, rules)
	assert.ErrorIs(t, err, config.ErrInvalidRules)

	_, err = NewRunner(store, testRules(t), WithExport(export.NewService(store), export.Format("parquet")))
	assert.ErrorIs(t, err, config.ErrInvalidRules)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "x\n")
	writeFile(t, dir, "a.xlsx", "x")
	writeFile(t, dir, ".hidden.csv", "x\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, filepath.Join(dir, "nested"), "c.json", "[]")

	paths, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.xlsx"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "nested", "c.json"),
	}, paths)
}
