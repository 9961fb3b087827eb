package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
)

// Controller serializes mutations per process and tracks the single active run of each process.
type Controller struct {
	persistence persistence.Persistence
	logger      *slog.Logger

	mu     sync.Mutex
	locks  map[models.ProcessRef]*sync.Mutex
	active map[models.ProcessRef]string
}

// NewController creates a lifecycle controller backed by the given persistence.
func NewController(p persistence.Persistence, logger *slog.Logger) *Controller {
	return &Controller{
		persistence: p,
		logger:      logger.With("module", "lifecycle"),
		locks:       make(map[models.ProcessRef]*sync.Mutex),
		active:      make(map[models.ProcessRef]string),
	}
}

// Lock acquires the critical section of one process and returns its release function.
func (c *Controller) Lock(ref models.ProcessRef) func() {
	c.mu.Lock()

	l, ok := c.locks[ref]
	if !ok {
		l = &sync.Mutex{}
		c.locks[ref] = l
	}

	c.mu.Unlock()

	l.Lock()

	return l.Unlock
}

// Active returns the id of the run that currently owns the process.
func (c *Controller) Active(ref models.ProcessRef) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runID, ok := c.active[ref]

	return runID, ok
}

// Begin registers runID as the active run of the process.
func (c *Controller) Begin(ref models.ProcessRef, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.active[ref]; ok {
		return fmt.Errorf("%w: run %s", ErrProcessBusy, current)
	}

	c.active[ref] = runID

	return nil
}

// End releases the process if runID still owns it.
func (c *Controller) End(ref models.ProcessRef, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active[ref] == runID {
		delete(c.active, ref)
	}
}

// CheckEditable rejects structural edits while a run owns the process or once it is finalized.
func (c *Controller) CheckEditable(p *models.Process) error {
	if p.Status == models.ProcessStatusFinalized {
		return graph.ErrProcessLocked
	}

	if _, busy := c.Active(p.Ref()); busy || p.Status.IsBusy() {
		return ErrProcessBusy
	}

	return nil
}

// MarkEdited moves a draft or simulated process back to active after a structural edit.
func MarkEdited(p *models.Process) error {
	switch p.Status {
	case models.ProcessStatusDraft, models.ProcessStatusSimulated:
		return Transition(p, models.ProcessStatusActive)
	default:
		return nil
	}
}

// Acquire loads the process under its lock, runs check against it, moves it into
// the busy status of the run mode and records run as its active run. The busy
// status is persisted before Acquire returns.
func (c *Controller) Acquire(
	ctx context.Context,
	ref models.ProcessRef,
	run *models.ExecutionRun,
	check func(*models.Process) error,
) (*models.Process, error) {
	unlock := c.Lock(ref)
	defer unlock()

	p, err := c.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID)
	if err != nil {
		return nil, err
	}

	if current, busy := c.Active(ref); busy {
		return nil, fmt.Errorf("%w: run %s", ErrProcessBusy, current)
	}

	if p.Status.IsBusy() {
		return nil, fmt.Errorf("%w: status %s", ErrProcessBusy, p.Status)
	}

	if check != nil {
		if err := check(p); err != nil {
			return nil, err
		}
	}

	if err := Transition(p, RunStartStatus(run.Mode)); err != nil {
		return nil, err
	}

	if err := c.Begin(ref, run.ID); err != nil {
		return nil, err
	}

	if err := c.persistence.ProcessRepository().Save(ctx, p); err != nil {
		c.End(ref, run.ID)

		return nil, fmt.Errorf("failed to mark process busy: %w", err)
	}

	c.logger.InfoContext(ctx, "Process acquired by run",
		"company_id", ref.CompanyID,
		"process_id", ref.ProcessID,
		"run_id", run.ID,
		"status", p.Status,
	)

	return p, nil
}

// Release settles the process status from the terminal run and commits the
// process together with the run report. The active run is always cleared.
func (c *Controller) Release(ctx context.Context, ref models.ProcessRef, run *models.ExecutionRun) (*models.Process, error) {
	unlock := c.Lock(ref)
	defer unlock()
	defer c.End(ref, run.ID)

	p, err := c.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID)
	if err != nil {
		return nil, err
	}

	if err := Transition(p, RunEndStatus(run)); err != nil {
		return nil, err
	}

	p.LastRunID = run.ID

	if err := c.persistence.CommitRun(ctx, p, run); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	c.logger.InfoContext(ctx, "Process released by run",
		"company_id", ref.CompanyID,
		"process_id", ref.ProcessID,
		"run_id", run.ID,
		"run_status", run.Status,
		"status", p.Status,
	)

	return p, nil
}
