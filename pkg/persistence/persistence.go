// Package persistence provides the data storage abstraction for consolidation processes and runs.
package persistence

import (
	"context"

	"github.com/dukex/consolidation/pkg/models"
)

// Persistence is the storage backend used by the services, orchestrator and lifecycle controller.
type Persistence interface {
	ProcessRepository() ProcessRepository
	RunRepository() RunRepository

	// CommitRun stores the run report and the process status change together:
	// either both are written or neither is.
	CommitRun(ctx context.Context, process *models.Process, run *models.ExecutionRun) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ProcessRepository stores process aggregates. Processes are always scoped by company.
type ProcessRepository interface {
	Save(ctx context.Context, process *models.Process) error
	GetByID(ctx context.Context, companyID, processID string) (*models.Process, error)
	List(ctx context.Context, companyID string) ([]*models.Process, error)
	ListScheduled(ctx context.Context) ([]*models.Process, error)
	Delete(ctx context.Context, companyID, processID string) error
}

// RunRepository stores execution run reports.
type RunRepository interface {
	Save(ctx context.Context, run *models.ExecutionRun) error
	GetByID(ctx context.Context, companyID, runID string) (*models.ExecutionRun, error)
	// ListByProcess returns the runs of a process, newest first.
	ListByProcess(ctx context.Context, companyID, processID string) ([]*models.ExecutionRun, error)
}
