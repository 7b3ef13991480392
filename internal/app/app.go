// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/rpattn/vendorflow/internal/config"
	"github.com/rpattn/vendorflow/internal/db"
	"github.com/rpattn/vendorflow/internal/export"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/pipeline"
	"github.com/rpattn/vendorflow/internal/reconcile"
	"github.com/rpattn/vendorflow/internal/repository"
	"github.com/rpattn/vendorflow/internal/suggest"
)

type App struct {
	Cfg       config.Config
	Log       *logger.Logger
	Conn      *db.Connection
	Store     *repository.Store
	Suggester *suggest.Service
	Exporter  *export.Service

	closers []func()
}

// New opens the metadata store, applies migrations and builds the shared
// services. Close releases everything New acquired.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect metadata store: %w", err)
	}
	a := &App{Cfg: cfg, Log: log, Conn: conn}
	a.closers = append(a.closers, conn.Close)

	if err := db.RunMigrations(conn); err != nil {
		a.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.Store = repository.NewStore(conn.DB)

	var cache suggest.Cache = suggest.NewStoreCache(a.Store)
	if cfg.Redis.Addr != "" {
		redisCache, err := suggest.NewRedisCache(ctx, suggest.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			log.Warn("redis unavailable, caching suggestions in the metadata store", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = redisCache
			a.closers = append(a.closers, func() { _ = redisCache.Close() })
		}
	}
	a.Suggester = suggest.NewService(suggest.WithCache(cache), suggest.WithLogger(log))

	a.Exporter = export.NewService(a.Store,
		export.WithExportDirectory(cfg.Paths.ExportDir),
		export.WithReportDirectory(cfg.Paths.ReportDir),
		export.WithLogger(log),
	)
	return a, nil
}

// Rules loads the configured vendor's rule files.
func (a *App) Rules() (config.Rules, error) {
	return config.LoadRules(a.Cfg.Paths.RulesDir, a.Cfg.Pipeline.Vendor)
}

// NewRunner builds a pipeline runner from the pipeline section of the
// configuration.
func (a *App) NewRunner() (*pipeline.Runner, error) {
	rules, err := a.Rules()
	if err != nil {
		return nil, err
	}
	p := a.Cfg.Pipeline

	opts := []pipeline.Option{
		pipeline.WithWorkers(p.Workers),
		pipeline.WithChunkSize(p.ChunkSize),
		pipeline.WithArchiveDir(a.Cfg.Paths.ArchiveDir),
		pipeline.WithReports(a.Exporter),
		pipeline.WithLogger(a.Log),
	}
	if len(p.DedupKeys) > 0 {
		policy, err := reconcile.ParsePolicy(p.DedupPolicy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidRules, err)
		}
		opts = append(opts, pipeline.WithDeduplication(p.DedupKeys, policy, p.DedupAffectsStatus))
	}
	if p.ExportFormat != "" {
		format, err := export.ParseFormat(p.ExportFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidRules, err)
		}
		opts = append(opts, pipeline.WithExport(a.Exporter, format))
	}
	if p.SuggestUnmapped {
		opts = append(opts, pipeline.WithSuggestions(a.Suggester))
	}

	return pipeline.NewRunner(a.Store, rules, opts...)
}

// CanonicalFields lists the schema fields, or the mapped fields when the
// schema is empty. It returns nil when the rules cannot be loaded.
func (a *App) CanonicalFields() []string {
	rules, err := a.Rules()
	if err != nil {
		return nil
	}
	if fields := rules.Schema.FieldNames(); len(fields) > 0 {
		return fields
	}
	seen := make(map[string]bool)
	var fields []string
	for _, r := range rules.Mapping {
		if !seen[r.CanonicalField] {
			seen[r.CanonicalField] = true
			fields = append(fields, r.CanonicalField)
		}
	}
	return fields
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.Log.Sync()
}
