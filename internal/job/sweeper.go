package job

import (
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/observability"
)

// Sweeper reclaims output trees of terminal jobs past the retention
// window on a cron schedule.
type Sweeper struct {
	store     *Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper from jobs configuration.
func NewSweeper(store *Store, cfg config.JobsConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	schedule := cfg.RetentionSchedule
	if schedule == "" {
		schedule = "0 0 * * * *"
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(cron.WithSeconds()),
		logger:    observability.WithComponent(logger, "sweeper"),
	}
}

// Start schedules the sweep and begins the cron loop.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("retention sweeper started",
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention))
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep removes every terminal job older than the retention window,
// deleting its output tree and registry entry. Returns the number of
// jobs reclaimed.
func (s *Sweeper) Sweep() int {
	cutoff := time.Now().UTC().Add(-s.retention)
	reclaimed := 0

	for _, j := range s.store.List() {
		if !j.IsTerminal() || j.CompletedAt == nil || j.CompletedAt.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(j.OutputDir); err != nil {
			s.logger.Warn("failed to remove job output tree",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()))
			continue
		}
		s.store.Delete(j.ID)
		reclaimed++
		s.logger.Info("job reclaimed",
			slog.String("job_id", j.ID),
			slog.String("status", string(j.Status)))
	}
	return reclaimed
}
