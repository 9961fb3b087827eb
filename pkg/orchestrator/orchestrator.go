// Package orchestrator executes validated process graphs wave by wave against the
// calculation service.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/consolidation/pkg/calculation"
	"github.com/dukex/consolidation/pkg/eventbus"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/otelhelper"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/dukex/consolidation/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxParallelism = 4
	DefaultNodeTimeout    = 30 * time.Second
)

// Config bounds the resources of a run.
type Config struct {
	MaxParallelism int           // concurrent dispatches within a wave
	NodeTimeout    time.Duration // deadline of one calculation call
}

func (c Config) withDefaults() Config {
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = DefaultMaxParallelism
	}

	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}

	return c
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg.withDefaults() }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// Orchestrator runs simulations and finalizations. At most one run per process is
// active at a time; the lifecycle controller enforces it.
type Orchestrator struct {
	persistence persistence.Persistence
	controller  *lifecycle.Controller
	validator   *validation.Validator
	client      calculation.Client
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	config      Config

	mu   sync.Mutex
	runs map[string]*handle
}

// handle tracks one run between Acquire and Release.
type handle struct {
	ref       models.ProcessRef
	cancelled atomic.Bool
	done      chan struct{}

	mu  sync.Mutex
	run *models.ExecutionRun
	err error
}

func (h *handle) snapshot() *models.ExecutionRun {
	h.mu.Lock()
	defer h.mu.Unlock()

	return cloneRun(h.run)
}

func New(
	p persistence.Persistence,
	controller *lifecycle.Controller,
	validator *validation.Validator,
	client calculation.Client,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		persistence: p,
		controller:  controller,
		validator:   validator,
		client:      client,
		publisher:   eventbus.Discard,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "orchestrator"),
		config:      Config{}.withDefaults(),
		runs:        make(map[string]*handle),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Validate loads the process and validates its graph.
func (o *Orchestrator) Validate(ctx context.Context, ref models.ProcessRef) (models.ValidationResult, error) {
	p, err := o.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID)
	if err != nil {
		return models.ValidationResult{}, err
	}

	return o.validator.Validate(p), nil
}

// Run executes the process in the given mode and blocks until the run is terminal.
// Node failures are recorded in the returned run, never returned as errors.
func (o *Orchestrator) Run(ctx context.Context, ref models.ProcessRef, mode models.RunMode) (*models.ExecutionRun, error) {
	h, snapshot, err := o.prepare(ctx, ref, mode)
	if err != nil {
		return nil, err
	}

	o.execute(ctx, h, snapshot)

	return h.run, h.err
}

// Start launches the run in the background and returns it in the running status.
// The run outlives ctx; use Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, ref models.ProcessRef, mode models.RunMode) (*models.ExecutionRun, error) {
	h, snapshot, err := o.prepare(ctx, ref, mode)
	if err != nil {
		return nil, err
	}

	started := h.snapshot()

	go o.execute(context.WithoutCancel(ctx), h, snapshot)

	return started, nil
}

// Cancel asks an active run to stop. The wave in flight finishes; later waves never start.
func (o *Orchestrator) Cancel(ctx context.Context, companyID, runID string) error {
	h, ok := o.active(companyID, runID)
	if !ok {
		run, err := o.persistence.RunRepository().GetByID(ctx, companyID, runID)
		if err != nil {
			return err
		}

		return fmt.Errorf("%w: run %s is %s", ErrRunNotActive, runID, run.Status)
	}

	h.cancelled.Store(true)

	o.logger.InfoContext(ctx, "Run cancellation requested",
		"company_id", companyID,
		"process_id", h.ref.ProcessID,
		"run_id", runID,
	)

	return nil
}

// Wait blocks until the run is terminal or ctx is done, then returns the run report.
func (o *Orchestrator) Wait(ctx context.Context, companyID, runID string) (*models.ExecutionRun, error) {
	h, ok := o.active(companyID, runID)
	if !ok {
		return o.persistence.RunRepository().GetByID(ctx, companyID, runID)
	}

	select {
	case <-h.done:
		return h.snapshot(), h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetRun returns the current report of a run, in flight or stored.
func (o *Orchestrator) GetRun(ctx context.Context, companyID, runID string) (*models.ExecutionRun, error) {
	if h, ok := o.active(companyID, runID); ok {
		return h.snapshot(), nil
	}

	return o.persistence.RunRepository().GetByID(ctx, companyID, runID)
}

// ListRuns returns the run history of a process, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, ref models.ProcessRef) ([]*models.ExecutionRun, error) {
	if _, err := o.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID); err != nil {
		return nil, err
	}

	return o.persistence.RunRepository().ListByProcess(ctx, ref.CompanyID, ref.ProcessID)
}

// Shutdown cancels every active run and waits for them to be committed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()

	handles := make([]*handle, 0, len(o.runs))
	for _, h := range o.runs {
		h.cancelled.Store(true)
		handles = append(handles, h)
	}

	o.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (o *Orchestrator) active(companyID, runID string) (*handle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	h, ok := o.runs[runID]
	if !ok || h.ref.CompanyID != companyID {
		return nil, false
	}

	return h, true
}

func (o *Orchestrator) forget(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.runs, runID)
}

// prepare validates the process, moves it into its busy status and plans the waves.
// The returned snapshot is private to the run.
func (o *Orchestrator) prepare(ctx context.Context, ref models.ProcessRef, mode models.RunMode) (*handle, *models.Process, error) {
	if !mode.IsValid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	run := &models.ExecutionRun{
		ID:        uuid.New().String(),
		ProcessID: ref.ProcessID,
		CompanyID: ref.CompanyID,
		Mode:      mode,
		Status:    models.RunStatusPending,
		Waves:     [][]string{},
		Results:   []models.NodeResult{},
		Errors:    []models.RunError{},
		Alerts:    []models.Alert{},
		StartedAt: time.Now().UTC(),
	}

	h := &handle{ref: ref, run: run, done: make(chan struct{})}

	o.mu.Lock()
	o.runs[run.ID] = h
	o.mu.Unlock()

	var result models.ValidationResult

	p, err := o.controller.Acquire(ctx, ref, run, func(p *models.Process) error {
		result = o.validator.Validate(p)
		if !result.Valid {
			return &InvalidGraphError{Errors: result.Errors}
		}

		return nil
	})
	if err != nil {
		o.forget(run.ID)
		close(h.done)

		o.logger.InfoContext(ctx, "Run refused",
			"company_id", ref.CompanyID,
			"process_id", ref.ProcessID,
			"mode", mode,
			"error", err,
		)

		return nil, nil, err
	}

	snapshot := p.Clone()

	h.mu.Lock()
	run.Waves = Plan(snapshot)
	run.Alerts = append(run.Alerts, result.Alerts...)
	run.Metadata = map[string]any{
		"fiscal_year":     snapshot.FiscalYear,
		"max_parallelism": o.config.MaxParallelism,
	}
	// pending -> running cannot fail
	_ = lifecycle.TransitionRun(run, models.RunStatusRunning)
	h.mu.Unlock()

	if err := o.persistence.RunRepository().Save(ctx, h.snapshot()); err != nil {
		o.logger.WarnContext(ctx, "Failed to record running run", "run_id", run.ID, "error", err)
	}

	return h, snapshot, nil
}
