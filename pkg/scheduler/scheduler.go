// Package scheduler runs simulations of processes that carry a cron simulation schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/orchestrator"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultReloadInterval is how often schedules are re-read from persistence.
const DefaultReloadInterval = time.Minute

// Runner starts a run in the background.
type Runner interface {
	Start(ctx context.Context, ref models.ProcessRef, mode models.RunMode) (*models.ExecutionRun, error)
}

type job struct {
	entryID  cron.EntryID
	schedule string
}

// Scheduler keeps one cron entry per scheduled process in sync with persistence.
type Scheduler struct {
	processes      persistence.ProcessRepository
	runner         Runner
	logger         *slog.Logger
	reloadInterval time.Duration

	cron   *cron.Cron
	jobs   map[models.ProcessRef]job
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithReloadInterval changes how often schedules are re-read. Zero disables periodic reloads.
func WithReloadInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.reloadInterval = d }
}

// New creates a scheduler. It does nothing until Start is called.
func New(processes persistence.ProcessRepository, runner Runner, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		processes:      processes,
		runner:         runner,
		logger:         logger.With("module", "scheduler"),
		reloadInterval: DefaultReloadInterval,
		jobs:           make(map[models.ProcessRef]job),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads every scheduled process and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.cron != nil {
		s.mu.Unlock()

		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if s.reloadInterval > 0 {
		spec := fmt.Sprintf("@every %s", s.reloadInterval)

		if _, err := s.cron.AddFunc(spec, func() {
			if err := s.Reload(s.ctx); err != nil {
				s.logger.ErrorContext(s.ctx, "Failed to reload schedules", "error", err)
			}
		}); err != nil {
			s.mu.Unlock()

			return fmt.Errorf("failed to add reload job: %w", err)
		}
	}

	s.mu.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "reload_interval", s.reloadInterval)

	return nil
}

// Stop halts the cron loop and waits for running jobs up to the context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron = nil
	s.jobs = make(map[models.ProcessRef]job)
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	done := c.Stop()

	cancel()

	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload re-reads the scheduled processes and adds, replaces or removes cron entries
// so they match. Finalized processes are never scheduled.
func (s *Scheduler) Reload(ctx context.Context) error {
	processes, err := s.processes.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scheduled processes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	wanted := make(map[models.ProcessRef]string, len(processes))

	for _, p := range processes {
		if p.Status == models.ProcessStatusFinalized || p.SimulationSchedule == "" {
			continue
		}

		wanted[p.Ref()] = p.SimulationSchedule
	}

	for ref, j := range s.jobs {
		if schedule, ok := wanted[ref]; ok && schedule == j.schedule {
			continue
		}

		s.cron.Remove(j.entryID)
		delete(s.jobs, ref)

		s.logger.DebugContext(ctx, "Removed schedule", "company_id", ref.CompanyID, "process_id", ref.ProcessID)
	}

	for ref, schedule := range wanted {
		if _, ok := s.jobs[ref]; ok {
			continue
		}

		entryID, err := s.cron.AddFunc(schedule, func() { s.trigger(ref) })
		if err != nil {
			s.logger.WarnContext(ctx, "Ignoring invalid simulation schedule",
				"company_id", ref.CompanyID,
				"process_id", ref.ProcessID,
				"schedule", schedule,
				"error", err)

			continue
		}

		s.jobs[ref] = job{entryID: entryID, schedule: schedule}

		s.logger.InfoContext(ctx, "Scheduled simulation",
			"company_id", ref.CompanyID,
			"process_id", ref.ProcessID,
			"schedule", schedule,
			"entry_id", entryID)
	}

	return nil
}

// Scheduled returns the processes that currently have a cron entry.
func (s *Scheduler) Scheduled() map[models.ProcessRef]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.ProcessRef]string, len(s.jobs))
	for ref, j := range s.jobs {
		out[ref] = j.schedule
	}

	return out
}

func (s *Scheduler) trigger(ref models.ProcessRef) {
	logger := s.logger.With("company_id", ref.CompanyID, "process_id", ref.ProcessID)

	run, err := s.runner.Start(s.ctx, ref, models.RunModeSimulate)
	if err != nil {
		if skippable(err) {
			logger.InfoContext(s.ctx, "Skipping scheduled simulation", "reason", err.Error())

			return
		}

		logger.ErrorContext(s.ctx, "Scheduled simulation failed to start", "error", err)

		return
	}

	logger.InfoContext(s.ctx, "Scheduled simulation started", "run_id", run.ID)
}

// skippable reports errors that are expected for a scheduled run: the process is
// busy, finalized, gone or its graph does not validate.
func skippable(err error) bool {
	return lifecycle.IsProcessBusy(err) ||
		lifecycle.IsInvalidTransition(err) ||
		graph.IsProcessLocked(err) ||
		persistence.IsProcessNotFound(err) ||
		orchestrator.IsInvalidGraph(err) ||
		errors.Is(err, context.Canceled)
}
