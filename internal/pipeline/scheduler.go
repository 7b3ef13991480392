package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
)

// Scheduler runs the pipeline over an input directory on a cron schedule.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	dir    string
	log    *logger.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new pipeline scheduler.
func NewScheduler(runner *Runner, dir string, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		dir:    dir,
		log:    logger.OrNop(log).With("dir", dir),
	}
}

// Start registers the schedule and starts the cron loop. Runs use ctx and
// stop when it is cancelled.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(schedule, func() { s.Tick(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info("pipeline scheduler started", "schedule", schedule)
	return nil
}

// Stop cancels any in-flight run and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.log.Info("pipeline scheduler stopped")
}

// Tick discovers the files in the input directory and runs one batch over
// them. It returns false when another tick is still running.
func (s *Scheduler) Tick(ctx context.Context) (domain.BatchResult, bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("previous run still in progress, skipping tick")
		return domain.BatchResult{}, false
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	paths, err := Discover(s.dir)
	if err != nil {
		s.log.Error("scan input directory", "error", err)
		return domain.BatchResult{}, true
	}
	if len(paths) == 0 {
		s.log.Debug("no files to process")
		return domain.BatchResult{}, true
	}

	batch, err := s.runner.Run(ctx, paths, false)
	if err != nil {
		s.log.Error("scheduled run failed", "batch_id", batch.ID, "error", err)
	}
	return batch, true
}
