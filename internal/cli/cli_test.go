package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/vendorflow/internal/domain"
)

const cliOrders = "Item Code,Qty,Price,Total\nA100,2,5,10\nB200,2,5,11\n"

// newWorkspace writes a config.yaml plus acme rules into a temp dir and
// returns the dir.
func newWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	vendorDir := filepath.Join(dir, "rules", "vendors", "acme")
	require.NoError(t, os.MkdirAll(vendorDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "incoming"), 0o755))

	files := map[string]string{
		filepath.Join(dir, "config.yaml"): `
database:
  driver: sqlite
  path: ` + filepath.Join(dir, "vendorflow.sqlite") + `
paths:
  input_dir: ` + filepath.Join(dir, "incoming") + `
  rules_dir: ` + filepath.Join(dir, "rules") + `
  archive_dir: ` + filepath.Join(dir, "archive") + `
  export_dir: ` + filepath.Join(dir, "exports") + `
  report_dir: ` + filepath.Join(dir, "reports") + `
pipeline:
  vendor: acme
log:
  level: error
`,
		filepath.Join(dir, "rules", "canonical_schema.yaml"): "fields:\n  sku: {type: string}\n  quantity: {type: integer}\n  price: {type: decimal}\n  total: {type: decimal}\n",
		filepath.Join(vendorDir, "mapping_rules.yaml"): "mappings:\n  Item Code: sku\n  Qty: quantity\n  Price: price\n  Total: total\n",
		filepath.Join(vendorDir, "validation_rules.yaml"): `
cross_field_rules:
  - rule_type: formula
    fields: [quantity, price, total]
    formula: "quantity * price == total"
`,
		filepath.Join(dir, "incoming", "orders.csv"): cliOrders,
	}
	for path, content := range files {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunAndReview(t *testing.T) {
	dir := newWorkspace(t)

	out, err := runCLI(t, dir, "run", "-o", "json")
	require.NoError(t, err)
	var batch domain.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, domain.BatchStatusSuccess, batch.Status)
	require.Len(t, batch.Files, 1)
	assert.Equal(t, 1, batch.FlaggedRows)

	_, err = os.Stat(filepath.Join(dir, "reports", batch.ID, "report.txt"))
	assert.NoError(t, err)

	out, err = runCLI(t, dir, "flagged", "-o", "json")
	require.NoError(t, err)
	var rows []domain.RowRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	rowID := rows[0].ID

	out, err = runCLI(t, dir, "approve", rowID, "--reviewer", "dana", "--comment", "ok")
	require.NoError(t, err)
	assert.Contains(t, out, "approved by dana")

	out, err = runCLI(t, dir, "row", rowID)
	require.NoError(t, err)
	assert.Contains(t, out, "[formula]")
	assert.Contains(t, out, "approved by dana ok")

	out, err = runCLI(t, dir, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch "+batch.ID+": SUCCESS")
	assert.Contains(t, out, "orders.csv")

	reviewPath := filepath.Join(dir, "review.csv")
	out, err = runCLI(t, dir, "export-flagged", "--out", reviewPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 flagged rows")
	review, err := os.ReadFile(reviewPath)
	require.NoError(t, err)
	assert.Contains(t, string(review), "approved")

	// A second run finds nothing new.
	out, err = runCLI(t, dir, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped, already processed")
}

func TestRunReportsFailedBatch(t *testing.T) {
	dir := newWorkspace(t)
	bad := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-1.4\n"), 0o644))

	out, err := runCLI(t, dir, "run", bad)
	require.Error(t, err)
	assert.Contains(t, out, "FAILED")
}

func TestRejectUnknownRow(t *testing.T) {
	dir := newWorkspace(t)

	_, err := runCLI(t, dir, "reject", "nope_1", "--reviewer", "dana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

func TestSuggestFromArgsAndFile(t *testing.T) {
	dir := newWorkspace(t)

	out, err := runCLI(t, dir, "suggest", "SKU")
	require.NoError(t, err)
	assert.Contains(t, out, "normalized name match")

	headerFile := filepath.Join(dir, "odd.csv")
	require.NoError(t, os.WriteFile(headerFile, []byte("SKU,Total\nA,1\n"), 0o644))
	out, err = runCLI(t, dir, "suggest", "--file", headerFile, "-o", "json")
	require.NoError(t, err)
	var suggestions []domain.Suggestion
	require.NoError(t, json.Unmarshal([]byte(out), &suggestions))
	require.Len(t, suggestions, 2)
	assert.Equal(t, "SKU", suggestions[0].VendorField)
	assert.Equal(t, "sku", suggestions[0].CanonicalField)
	assert.Equal(t, "Total", suggestions[1].VendorField)
	assert.Equal(t, "total", suggestions[1].CanonicalField)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := runCLI(t, newWorkspace(t), "summary", "-o", "yaml")
	assert.Error(t, err)
}
