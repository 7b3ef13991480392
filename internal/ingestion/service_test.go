package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rpattn/vendorflow/internal/db"
	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/repository"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *repository.Store) {
	t.Helper()
	store := repository.NewStore(db.OpenTestSQLite(t))
	return NewService(store, opts...), store
}

func TestServiceIngestStoresPendingRows(t *testing.T) {
	ctx := context.Background()
	archive := t.TempDir()
	service, store := newTestService(t, WithArchiveDir(archive), WithChunkSize(2))

	data := "Item Code,Qty\nA100,2\nB200,3\nC300,4\n"
	result, err := service.Ingest(ctx, Request{FileName: "orders.csv", Path: "/in/orders.csv", Vendor: "acme", Data: strings.NewReader(data)})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	wantID := domain.FileID([]byte(data))
	if result.File.ID != wantID {
		t.Fatalf("expected file id %s, got %s", wantID, result.File.ID)
	}
	if result.Rows != 3 || result.Skipped {
		t.Fatalf("unexpected result: %+v", result)
	}

	file, err := store.GetFile(ctx, wantID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if file.Status != domain.FileStatusProcessing || file.RowCount != 3 || file.FileType != "csv" {
		t.Fatalf("unexpected file record: %+v", file)
	}
	if file.ArchivePath != filepath.Join(archive, wantID+".csv") {
		t.Fatalf("unexpected archive path %q", file.ArchivePath)
	}
	archived, err := os.ReadFile(file.ArchivePath)
	if err != nil || string(archived) != data {
		t.Fatalf("archive copy mismatch: %v", err)
	}

	rows, err := store.ListRowsByFile(ctx, wantID)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].ID != wantID+"_1" || rows[0].Raw["Item Code"] != "A100" || rows[0].Status != domain.RowStatusPending {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
}

func TestServiceIngestSkipsCompletedFile(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)
	data := "sku\nA1\n"

	first, err := service.Ingest(ctx, Request{FileName: "a.csv", Data: strings.NewReader(data)})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := service.Complete(ctx, first.File); err != nil {
		t.Fatalf("complete: %v", err)
	}

	second, err := service.Ingest(ctx, Request{FileName: "renamed.csv", Data: strings.NewReader(data)})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.Skipped || second.File.ID != first.File.ID {
		t.Fatalf("expected skip of %s, got %+v", first.File.ID, second)
	}

	forced, err := service.Ingest(ctx, Request{FileName: "a.csv", Data: strings.NewReader(data), Force: true})
	if err != nil {
		t.Fatalf("forced ingest: %v", err)
	}
	if forced.Skipped {
		t.Fatalf("expected forced ingest to reprocess")
	}
	file, err := store.GetFile(ctx, first.File.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if file.Status != domain.FileStatusProcessing {
		t.Fatalf("expected PROCESSING after forced ingest, got %s", file.Status)
	}
}

func TestServiceIngestUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)

	result, err := service.Ingest(ctx, Request{FileName: "scan.pdf", Data: strings.NewReader("%PDF-1.4 ...")})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if result.File.ID == "" {
		t.Fatalf("expected file id on failure")
	}

	failed, err := service.Fail(ctx, result.File, err)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != domain.FileStatusFailed || failed.ProcessedAt == nil {
		t.Fatalf("unexpected failed record: %+v", failed)
	}
	stored, err := store.GetFile(ctx, result.File.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if !strings.Contains(stored.ErrorMessage, "unsupported file format") {
		t.Fatalf("expected error message to be stored, got %q", stored.ErrorMessage)
	}
}

func TestServiceIngestRecordsDecodeErrors(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)

	result, err := service.Ingest(ctx, Request{FileName: "feed.jsonl", Data: strings.NewReader("{\"a\":1}\n{oops\n")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	row, err := store.GetRow(ctx, domain.RowID(result.File.ID, 2))
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if len(row.Violations) != 1 || row.Violations[0].Rule != DecodeRule {
		t.Fatalf("expected decode violation, got %+v", row.Violations)
	}
}

func TestServiceComplete(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)

	result, err := service.Ingest(ctx, Request{FileName: "a.csv", Data: strings.NewReader("sku\nA\nB\nC\n")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	rows, err := store.ListRowsByFile(ctx, result.File.ID)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	rows[0].Status = domain.RowStatusValid
	rows[1].Status = domain.RowStatusFlagged
	rows[2].Status = domain.RowStatusError
	if err := store.UpsertRows(ctx, rows); err != nil {
		t.Fatalf("upsert rows: %v", err)
	}

	file, err := service.Complete(ctx, result.File)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if file.Status != domain.FileStatusSuccess || file.ValidRows != 1 || file.FlaggedRows != 1 || file.ErrorRows != 1 || file.RowCount != 3 {
		t.Fatalf("unexpected completed record: %+v", file)
	}
}
