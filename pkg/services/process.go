package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// CreateProcessRequest represents the request to create a new consolidation process.
type CreateProcessRequest struct {
	Name               string `json:"name"                          validate:"required,min=3"`
	FiscalYear         int    `json:"fiscal_year"                   validate:"required,min=1900,max=2999"`
	SimulationSchedule string `json:"simulation_schedule,omitempty"`
}

// UpdateProcessRequest changes the given process attributes. Nil fields are left untouched;
// an empty schedule removes it.
type UpdateProcessRequest struct {
	Name               *string `json:"name,omitempty"                validate:"omitempty,min=3"`
	FiscalYear         *int    `json:"fiscal_year,omitempty"         validate:"omitempty,min=1900,max=2999"`
	SimulationSchedule *string `json:"simulation_schedule,omitempty"`
}

// Process handles process-related business operations. Every mutation runs inside the
// per-process critical section of the lifecycle controller.
type Process struct {
	persistence persistence.Persistence
	controller  *lifecycle.Controller
	catalog     *catalog.Catalog
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewProcess creates a new process service.
func NewProcess(
	persistence persistence.Persistence,
	controller *lifecycle.Controller,
	catalog *catalog.Catalog,
	validate *validator.Validate,
	logger *slog.Logger,
) *Process {
	return &Process{
		persistence: persistence,
		controller:  controller,
		catalog:     catalog,
		validate:    validate,
		logger:      logger.With("module", "process_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Process) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new draft process for the company.
func (s *Process) Create(ctx context.Context, companyID string, req CreateProcessRequest) (*models.Process, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, ErrEmptyCompanyID
	}

	if err := s.check("Create", req); err != nil {
		return nil, err
	}

	if err := checkSchedule(req.SimulationSchedule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	p := &models.Process{
		ID:                 uuid.New().String(),
		CompanyID:          companyID,
		Name:               req.Name,
		FiscalYear:         req.FiscalYear,
		Status:             models.ProcessStatusDraft,
		Nodes:              []*models.Node{},
		Connections:        []*models.Connection{},
		SimulationSchedule: req.SimulationSchedule,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.persistence.ProcessRepository().Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save process: %w", err)
	}

	s.logger.InfoContext(ctx, "Process created", "company_id", companyID, "process_id", p.ID, "fiscal_year", p.FiscalYear)

	return p, nil
}

// Get returns one process of the company.
func (s *Process) Get(ctx context.Context, ref models.ProcessRef) (*models.Process, error) {
	if err := s.check("Get", ref); err != nil {
		return nil, err
	}

	return s.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID)
}

// List returns the processes of the company, newest first.
func (s *Process) List(ctx context.Context, companyID string) ([]*models.Process, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, ErrEmptyCompanyID
	}

	return s.persistence.ProcessRepository().List(ctx, companyID)
}

// Update changes the name, fiscal year or simulation schedule of a process.
func (s *Process) Update(ctx context.Context, ref models.ProcessRef, req UpdateProcessRequest) (*models.Process, error) {
	if err := s.check("Update", req); err != nil {
		return nil, err
	}

	if req.SimulationSchedule != nil {
		if err := checkSchedule(*req.SimulationSchedule); err != nil {
			return nil, err
		}
	}

	return s.mutate(ctx, "Update", ref, false, func(p *models.Process) (bool, error) {
		if req.Name != nil {
			p.Name = *req.Name
		}

		if req.FiscalYear != nil {
			p.FiscalYear = *req.FiscalYear
		}

		if req.SimulationSchedule != nil {
			p.SimulationSchedule = *req.SimulationSchedule
		}

		p.UpdatedAt = time.Now().UTC()

		return true, nil
	})
}

// Delete removes a process. Busy and finalized processes cannot be deleted.
func (s *Process) Delete(ctx context.Context, ref models.ProcessRef) error {
	if err := s.check("Delete", ref); err != nil {
		return err
	}

	unlock := s.controller.Lock(ref)
	defer unlock()

	p, err := s.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID)
	if err != nil {
		return err
	}

	if err := s.controller.CheckEditable(p); err != nil {
		return &ServiceError{Op: "Delete", Code: "conflict", Err: err}
	}

	if err := s.persistence.ProcessRepository().Delete(ctx, ref.CompanyID, ref.ProcessID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Process deleted", "company_id", ref.CompanyID, "process_id", ref.ProcessID)

	return nil
}

// mutate loads the process under its lock, rejects edits while it is busy or
// finalized, applies fn and saves the result when fn reports a change.
// Structural edits also move a draft or simulated process to active.
func (s *Process) mutate(
	ctx context.Context,
	op string,
	ref models.ProcessRef,
	structural bool,
	fn func(p *models.Process) (bool, error),
) (*models.Process, error) {
	if err := s.check(op, ref); err != nil {
		return nil, err
	}

	unlock := s.controller.Lock(ref)
	defer unlock()

	p, err := s.persistence.ProcessRepository().GetByID(ctx, ref.CompanyID, ref.ProcessID)
	if err != nil {
		return nil, err
	}

	if err := s.controller.CheckEditable(p); err != nil {
		return nil, &ServiceError{Op: op, Code: "conflict", Err: err}
	}

	changed, err := fn(p)
	if err != nil {
		return nil, err
	}

	if !changed {
		return p, nil
	}

	if structural {
		if err := lifecycle.MarkEdited(p); err != nil {
			return nil, err
		}
	}

	if err := s.persistence.ProcessRepository().Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save process: %w", err)
	}

	s.logger.DebugContext(ctx, "Process updated", "op", op, "company_id", ref.CompanyID, "process_id", ref.ProcessID, "status", p.Status)

	return p, nil
}

func (s *Process) check(op string, req any) error {
	if err := s.validate.Struct(req); err != nil {
		return NewValidationError(op, "invalid_request", err.Error(), fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	return nil
}

func checkSchedule(expr string) error {
	if expr == "" {
		return nil
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expr, err)
	}

	return nil
}
