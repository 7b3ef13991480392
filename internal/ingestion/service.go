package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/repository"
)

const sniffSize = 512

// Store is the slice of the metadata store ingestion writes to.
type Store interface {
	repository.FileRepository
	repository.RowRepository
}

// Service registers vendor files, archives them and persists decoded rows.
type Service struct {
	store      Store
	archiveDir string
	chunkSize  int
	log        *logger.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArchiveDir keeps a copy of every ingested file as <dir>/<file id><ext>.
func WithArchiveDir(dir string) Option {
	return func(s *Service) { s.archiveDir = dir }
}

func WithChunkSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new ingestion service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		chunkSize: 500,
		log:       logger.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes one file to ingest.
type Request struct {
	FileName string
	Path     string
	Vendor   string
	Data     io.Reader
	// Force reprocesses a file that already finished successfully.
	Force bool
}

// Result reports what Ingest did with a file.
type Result struct {
	File    domain.FileRecord
	Skipped bool
	Rows    int
}

// IngestPath opens a file from disk and ingests it.
func (s *Service) IngestPath(ctx context.Context, path string, vendor string, force bool) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{File: domain.FileRecord{Path: path, FileName: filepath.Base(path)}}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return s.Ingest(ctx, Request{
		FileName: filepath.Base(path),
		Path:     path,
		Vendor:   vendor,
		Data:     f,
		Force:    force,
	})
}

// Ingest hashes the content, skips files that already succeeded, and
// otherwise stores the file as PROCESSING with one PENDING row per decoded
// record. The returned record is populated as far as ingestion got, even on
// error, so callers can mark it failed.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	record := domain.FileRecord{FileName: req.FileName, Path: req.Path, Vendor: req.Vendor}
	if req.Data == nil {
		return Result{File: record}, errors.New("ingest request has no data")
	}

	spool, err := s.spool(req)
	if err != nil {
		return Result{File: record}, err
	}
	defer spool.cleanup()

	record.ID = spool.id
	record.SizeBytes = spool.size
	log := s.log.With("file", req.FileName, "file_id", record.ID)

	existing, err := s.store.GetFile(ctx, record.ID)
	switch {
	case err == nil:
		if existing.Done() && !req.Force {
			log.Info("skipping already processed file")
			return Result{File: existing, Skipped: true}, nil
		}
		record.CreatedAt = existing.CreatedAt
	case errors.Is(err, repository.ErrNotFound):
	default:
		return Result{File: record}, err
	}

	if s.archiveDir != "" {
		archived, err := spool.archive(s.archiveDir, req.FileName)
		if err != nil {
			return Result{File: record}, err
		}
		record.ArchivePath = archived
	}

	head, err := spool.head(sniffSize)
	if err != nil {
		return Result{File: record}, err
	}
	format := Detect(req.FileName, head)
	record.FileType = string(format)
	record.Status = domain.FileStatusProcessing
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	if err := s.store.UpsertFile(ctx, record); err != nil {
		return Result{File: record}, err
	}

	decoder, err := DecoderFor(format)
	if err != nil {
		return Result{File: record}, err
	}

	data, err := spool.open()
	if err != nil {
		return Result{File: record}, err
	}
	defer data.Close()

	line := 0
	err = decoder.Decode(ctx, data, s.chunkSize, func(records []Record) error {
		rows := make([]domain.RowRecord, 0, len(records))
		for _, rec := range records {
			line++
			fields := rec.Fields
			if fields == nil {
				fields = map[string]any{}
			}
			row := domain.NewRowRecord(record.ID, line, fields)
			if rec.Err != nil {
				row.AddViolation(domain.NewViolation(DecodeRule, rec.Err.Error()))
			}
			rows = append(rows, row)
		}
		return s.store.UpsertRows(ctx, rows)
	})
	if err != nil {
		return Result{File: record, Rows: line}, fmt.Errorf("failed to decode %s: %w", req.FileName, err)
	}

	record.RowCount = line
	if err := s.store.UpsertFile(ctx, record); err != nil {
		return Result{File: record, Rows: line}, err
	}
	log.Info("file ingested", "format", format, "rows", line)
	return Result{File: record, Rows: line}, nil
}

// DecodeRule names the violation attached to rows the decoder could not read.
const DecodeRule = "decode"

// Complete marks the file SUCCESS and records its verdict counts.
func (s *Service) Complete(ctx context.Context, file domain.FileRecord) (domain.FileRecord, error) {
	counts, err := s.store.CountRowsByStatus(ctx, file.ID)
	if err != nil {
		return file, err
	}
	file.ValidRows = counts[domain.RowStatusValid]
	file.FlaggedRows = counts[domain.RowStatusFlagged]
	file.ErrorRows = counts[domain.RowStatusError]
	file.RowCount = file.ValidRows + file.FlaggedRows + file.ErrorRows + counts[domain.RowStatusPending]
	file.Status = domain.FileStatusSuccess
	file.ErrorMessage = ""
	processed := s.now()
	file.ProcessedAt = &processed
	if err := s.store.UpsertFile(ctx, file); err != nil {
		return file, err
	}
	return file, nil
}

// Fail marks the file FAILED with the cause. Files that were never
// identified cannot be recorded and are returned unchanged.
func (s *Service) Fail(ctx context.Context, file domain.FileRecord, cause error) (domain.FileRecord, error) {
	if file.ID == "" {
		return file, nil
	}
	file.Status = domain.FileStatusFailed
	if cause != nil {
		file.ErrorMessage = cause.Error()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = s.now()
	}
	processed := s.now()
	file.ProcessedAt = &processed
	if err := s.store.UpsertFile(ctx, file); err != nil {
		return file, err
	}
	return file, nil
}

// spooledFile is a local copy of the request body, hashed on the way in.
type spooledFile struct {
	path string
	id   string
	size int64
	temp bool
}

func (s *Service) spool(req Request) (*spooledFile, error) {
	dir := s.archiveDir
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".ingest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	counter := &countingWriter{w: tmp}
	id, err := domain.FileIDFromReader(io.TeeReader(req.Data, counter))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to spool %s: %w", req.FileName, err)
	}
	return &spooledFile{path: tmp.Name(), id: id, size: counter.n, temp: true}, nil
}

func (f *spooledFile) open() (*os.File, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen spooled file: %w", err)
	}
	return file, nil
}

func (f *spooledFile) head(n int) ([]byte, error) {
	file, err := f.open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read file head: %w", err)
	}
	return buf[:read], nil
}

// archive moves the spool into its content addressed location.
func (f *spooledFile) archive(dir string, fileName string) (string, error) {
	target := filepath.Join(dir, f.id+strings.ToLower(filepath.Ext(fileName)))
	if err := os.Rename(f.path, target); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", fileName, err)
	}
	f.path = target
	f.temp = false
	return target, nil
}

func (f *spooledFile) cleanup() {
	if f.temp {
		_ = os.Remove(f.path)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
