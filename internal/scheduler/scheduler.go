// Package scheduler runs the service's periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = time.Minute

// CatalogRefresher re-fetches cached reference data.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// SessionSweeper closes idle coordinators.
type SessionSweeper interface {
	Sweep() int
}

// StorePruner deletes old durable entries.
type StorePruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config holds cron specs (with seconds field). An empty spec disables the job.
type Config struct {
	LocationRefresh string
	SessionSweep    string
	StorePrune      string
	// StoreRetention is how long an untouched entry survives a prune.
	StoreRetention time.Duration
}

// Jobs are the job targets. Nil targets are skipped.
type Jobs struct {
	Catalog  CatalogRefresher
	Sessions SessionSweeper
	Store    StorePruner
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	jobs   Jobs
	logger *slog.Logger
	now    func() time.Time
}

// New registers every configured job. An invalid cron spec is an error.
func New(cfg Config, jobs Jobs, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		cfg:    cfg,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}

	if err := s.register("location_refresh", cfg.LocationRefresh, jobs.Catalog != nil, s.RefreshLocations); err != nil {
		return nil, err
	}
	if err := s.register("session_sweep", cfg.SessionSweep, jobs.Sessions != nil, s.SweepSessions); err != nil {
		return nil, err
	}
	if err := s.register("store_prune", cfg.StorePrune, jobs.Store != nil && cfg.StoreRetention > 0, s.PruneStore); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register(name, spec string, enabled bool, fn func()) error {
	if spec == "" || !enabled {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("register %s job %q: %w", name, spec, err)
	}
	s.logger.Info("cron job registered", slog.String("job", name), slog.String("spec", spec))
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RefreshLocations re-fetches the cached location lists.
func (s *Scheduler) RefreshLocations() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.jobs.Catalog.Refresh(ctx); err != nil {
		s.logger.Error("location refresh failed", slog.Any("error", err))
	}
}

// SweepSessions closes idle search coordinators.
func (s *Scheduler) SweepSessions() {
	if n := s.jobs.Sessions.Sweep(); n > 0 {
		s.logger.Info("idle sessions swept", slog.Int("closed", n))
	}
}

// PruneStore deletes durable entries older than the retention.
func (s *Scheduler) PruneStore() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := s.jobs.Store.Prune(ctx, s.now().Add(-s.cfg.StoreRetention))
	if err != nil {
		s.logger.Error("store prune failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("stale entries pruned", slog.Int64("deleted", n))
	}
}
