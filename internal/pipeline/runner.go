// Package pipeline drives vendor files through ingestion, mapping,
// validation, reconciliation and export, and records each run as a batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpattn/vendorflow/internal/config"
	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/export"
	"github.com/rpattn/vendorflow/internal/ingestion"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/mapping"
	"github.com/rpattn/vendorflow/internal/reconcile"
	"github.com/rpattn/vendorflow/internal/repository"
	"github.com/rpattn/vendorflow/internal/suggest"
	"github.com/rpattn/vendorflow/internal/validation"
)

// Runner processes files for one vendor. It is safe to call Run and
// ProcessUpload concurrently.
type Runner struct {
	store    repository.MetadataStore
	ingest   *ingestion.Service
	stages   []Stage
	reporter *export.Service
	vendor   string
	workers  int
	log      *logger.Logger
	now      func() time.Time
}

type options struct {
	workers       int
	chunkSize     int
	archiveDir    string
	registry      *validation.Registry
	suggester     *suggest.Service
	dedupKeys     []string
	dedupPolicy   reconcile.Policy
	affectsStatus bool
	exporter      *export.Service
	exportFormat  export.Format
	reporter      *export.Service
	log           *logger.Logger
	now           func() time.Time
}

// Option configures NewRunner.
type Option func(*options)

func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

func WithArchiveDir(dir string) Option {
	return func(o *options) { o.archiveDir = dir }
}

// WithRegistry replaces the default validation registry, e.g. to add
// checkers for custom rule kinds.
func WithRegistry(reg *validation.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithSuggestions attaches advisory suggestions for unmapped fields.
func WithSuggestions(s *suggest.Service) Option {
	return func(o *options) { o.suggester = s }
}

// WithDeduplication enables the reconcile stage on the given key fields.
func WithDeduplication(keys []string, policy reconcile.Policy, affectsStatus bool) Option {
	return func(o *options) {
		o.dedupKeys = keys
		o.dedupPolicy = policy
		o.affectsStatus = affectsStatus
	}
}

// WithExport writes valid and flagged artifacts for every processed file.
func WithExport(s *export.Service, format export.Format) Option {
	return func(o *options) {
		o.exporter = s
		o.exportFormat = format
	}
}

// WithReports writes a batch report after every run.
func WithReports(s *export.Service) Option {
	return func(o *options) { o.reporter = s }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewRunner compiles the vendor rules. Any rule problem is returned as a
// config.ErrInvalidRules error before a single file is touched.
func NewRunner(store repository.MetadataStore, rules config.Rules, opts ...Option) (*Runner, error) {
	o := options{
		workers: 1,
		log:     logger.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrNop(o.log)

	if strings.TrimSpace(rules.Vendor) == "" {
		return nil, fmt.Errorf("%w: vendor is required", config.ErrInvalidRules)
	}
	mapper, err := mapping.NewEngine(rules.Mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidRules, err)
	}
	registry := o.registry
	if registry == nil {
		registry = validation.NewRegistry(validation.WithLogger(log))
	}
	engine, err := validation.NewEngine(registry, rules.Validation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidRules, err)
	}
	if o.exporter != nil {
		if _, err := export.ExporterFor(o.exportFormat); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidRules, err)
		}
	}

	canonicalFields := rules.Schema.FieldNames()
	if len(canonicalFields) == 0 {
		canonicalFields = mappedFields(rules.Mapping)
	}

	stages := []Stage{
		NewMapStage(mapper, o.suggester, canonicalFields, log),
		NewValidateStage(engine),
	}
	if len(o.dedupKeys) > 0 {
		stages = append(stages, NewReconcileStage(o.dedupKeys, o.dedupPolicy, o.affectsStatus, log))
	}
	if o.exporter != nil {
		stages = append(stages, NewExportStage(o.exporter, o.exportFormat))
	}

	ingestOpts := []ingestion.Option{ingestion.WithLogger(log), ingestion.WithClock(o.now)}
	if o.archiveDir != "" {
		ingestOpts = append(ingestOpts, ingestion.WithArchiveDir(o.archiveDir))
	}
	if o.chunkSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithChunkSize(o.chunkSize))
	}

	return &Runner{
		store:    store,
		ingest:   ingestion.NewService(store, ingestOpts...),
		stages:   stages,
		reporter: o.reporter,
		vendor:   rules.Vendor,
		workers:  o.workers,
		log:      log.With("vendor", rules.Vendor),
		now:      o.now,
	}, nil
}

func mappedFields(rules []domain.MappingRule) []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, r := range rules {
		if _, ok := seen[r.CanonicalField]; !ok {
			seen[r.CanonicalField] = struct{}{}
			fields = append(fields, r.CanonicalField)
		}
	}
	sort.Strings(fields)
	return fields
}

// Stages lists the stage names in execution order.
func (r *Runner) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name()
	}
	return names
}

// Run processes paths as one batch. Per-file problems are recorded on the
// file and the batch carries on; a storage failure cancels the remaining
// files and is returned alongside the FAILED batch.
func (r *Runner) Run(ctx context.Context, paths []string, force bool) (domain.BatchResult, error) {
	batch, _, err := r.runBatch(ctx, len(paths), func(ctx context.Context, i int) (domain.FileOutcome, error) {
		return r.processFile(ctx, paths[i], func(ctx context.Context) (ingestion.Result, error) {
			return r.ingest.IngestPath(ctx, paths[i], r.vendor, force)
		})
	})
	return batch, err
}

// ProcessUpload runs the pipeline over one uploaded file as its own batch.
func (r *Runner) ProcessUpload(ctx context.Context, fileName string, data io.Reader, force bool) (domain.FileOutcome, error) {
	_, first, err := r.runBatch(ctx, 1, func(ctx context.Context, _ int) (domain.FileOutcome, error) {
		return r.processFile(ctx, fileName, func(ctx context.Context) (ingestion.Result, error) {
			return r.ingest.Ingest(ctx, ingestion.Request{
				FileName: filepath.Base(fileName),
				Path:     fileName,
				Vendor:   r.vendor,
				Data:     data,
				Force:    force,
			})
		})
	})
	if err != nil {
		return first.outcome, err
	}
	return first.outcome, first.err
}

type firstFile struct {
	outcome domain.FileOutcome
	err     error
}

func (r *Runner) runBatch(ctx context.Context, n int, process func(context.Context, int) (domain.FileOutcome, error)) (domain.BatchResult, firstFile, error) {
	batch := domain.BatchResult{
		ID:        domain.NewBatchID(r.now()),
		Vendor:    r.vendor,
		StartedAt: r.now(),
		Status:    domain.BatchStatusRunning,
		Files:     make([]domain.FileOutcome, n),
		Errors:    []string{},
	}
	log := r.log.With("batch_id", batch.ID)
	if err := r.store.CreateBatch(ctx, batch); err != nil {
		batch.Status = domain.BatchStatusFailed
		batch.Errors = append(batch.Errors, err.Error())
		return batch, firstFile{}, err
	}
	log.Info("batch started", "files", n, "workers", r.workers)

	fileErrs := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			outcome, err := process(gctx, i)
			batch.Files[i] = outcome
			fileErrs[i] = err
			if err != nil && isFatal(err) {
				return err
			}
			return nil
		})
	}
	fatal := g.Wait()

	for _, f := range batch.Files {
		if f.Error != "" {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s", filepath.Base(f.Path), f.Error))
		}
	}
	if fatal != nil {
		batch.Errors = append(batch.Errors, fatal.Error())
	}
	batch.Tally()
	batch.Status = batchStatus(batch, fatal)
	completed := r.now()
	batch.CompletedAt = &completed

	// The batch summary is written even when the caller's context is gone.
	if err := r.store.FinishBatch(context.WithoutCancel(ctx), batch); err != nil {
		log.Error("failed to record batch", "error", err)
		if fatal == nil {
			fatal = err
		}
	}
	log.Info("batch finished",
		"status", batch.Status,
		"rows", batch.TotalRows,
		"valid", batch.ValidRows,
		"flagged", batch.FlaggedRows,
		"errors", batch.ErrorRows,
	)

	if r.reporter != nil && fatal == nil {
		if paths, err := r.reporter.WriteReport(ctx, batch); err != nil {
			log.Warn("batch report not written", "error", err)
		} else {
			log.Debug("batch report", "json", paths.JSON, "text", paths.Text)
		}
	}

	var first firstFile
	if n > 0 {
		first = firstFile{outcome: batch.Files[0], err: fileErrs[0]}
	}
	return batch, first, fatal
}

// batchStatus is FAILED on a fatal error or when no file finished,
// PARTIAL_SUCCESS when something went wrong but at least one file finished,
// and SUCCESS otherwise.
func batchStatus(batch domain.BatchResult, fatal error) domain.BatchStatus {
	if fatal != nil {
		return domain.BatchStatusFailed
	}
	if len(batch.Errors) == 0 {
		return domain.BatchStatusSuccess
	}
	for _, f := range batch.Files {
		if f.Status == domain.FileStatusSuccess {
			return domain.BatchStatusPartialSuccess
		}
	}
	return domain.BatchStatusFailed
}

func isFatal(err error) bool {
	return repository.IsStorageError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *Runner) processFile(ctx context.Context, path string, ingest func(context.Context) (ingestion.Result, error)) (domain.FileOutcome, error) {
	outcome := domain.FileOutcome{Path: path, Status: domain.FileStatusPending}
	if err := ctx.Err(); err != nil {
		outcome.Error = "not processed: " + err.Error()
		return outcome, err
	}

	res, err := ingest(ctx)
	file := res.File
	outcome.FileID = file.ID
	if err != nil {
		return r.fail(ctx, outcome, file, err)
	}
	log := r.log.With("file_id", file.ID, "file", file.FileName)
	if res.Skipped {
		log.Info("file already processed, skipping")
		return fileOutcome(outcome, file, true), nil
	}

	for _, stage := range r.stages {
		if err := r.runStage(ctx, stage, file); err != nil {
			return r.fail(ctx, outcome, file, fmt.Errorf("%s stage: %w", stage.Name(), err))
		}
	}

	file, err = r.ingest.Complete(ctx, file)
	if err != nil {
		outcome.Status = domain.FileStatusProcessing
		outcome.Error = err.Error()
		return outcome, err
	}
	log.Info("file processed", "rows", file.RowCount, "valid", file.ValidRows, "flagged", file.FlaggedRows, "errors", file.ErrorRows)
	return fileOutcome(outcome, file, false), nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, file domain.FileRecord) error {
	rows, err := r.store.ListRowsByFile(ctx, file.ID)
	if err != nil {
		return err
	}
	out, err := stage.Run(ctx, file, rows)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return r.store.UpsertRows(ctx, out)
}

// fail records a per-file error. Fatal errors leave the file as it is so a
// later run can pick it up again.
func (r *Runner) fail(ctx context.Context, outcome domain.FileOutcome, file domain.FileRecord, cause error) (domain.FileOutcome, error) {
	outcome.Error = cause.Error()
	if isFatal(cause) {
		outcome.Status = file.Status
		return outcome, cause
	}

	r.log.Warn("file failed", "file_id", file.ID, "path", outcome.Path, "error", cause)
	outcome.Status = domain.FileStatusFailed
	if _, err := r.ingest.Fail(ctx, file, cause); err != nil {
		return outcome, err
	}
	return outcome, cause
}

func fileOutcome(outcome domain.FileOutcome, file domain.FileRecord, skipped bool) domain.FileOutcome {
	outcome.FileID = file.ID
	outcome.Status = file.Status
	outcome.Skipped = skipped
	outcome.RowCount = file.RowCount
	outcome.ValidRows = file.ValidRows
	outcome.FlaggedRows = file.FlaggedRows
	outcome.ErrorRows = file.ErrorRows
	return outcome
}

// Discover lists the regular files under dir in lexical order. Hidden files
// and directories are ignored.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover files in %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
