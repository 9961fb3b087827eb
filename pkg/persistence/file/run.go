package file

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
)

// RunRepository handles execution run file operations.
type RunRepository struct {
	fp *Persistence
}

// Save writes the run report.
func (rr *RunRepository) Save(_ context.Context, run *models.ExecutionRun) error {
	rr.fp.mu.Lock()
	defer rr.fp.mu.Unlock()

	if err := rr.fp.writeRun(run); err != nil {
		return persistence.NewRunError("Save", run.CompanyID, run.ID, err)
	}

	return nil
}

// GetByID returns the run or persistence.ErrRunNotFound.
func (rr *RunRepository) GetByID(_ context.Context, companyID, runID string) (*models.ExecutionRun, error) {
	rr.fp.mu.RLock()
	defer rr.fp.mu.RUnlock()

	return rr.get(companyID, runID)
}

func (rr *RunRepository) get(companyID, runID string) (*models.ExecutionRun, error) {
	if validateID(companyID) != nil || validateID(runID) != nil {
		return nil, persistence.NewRunError("GetByID", companyID, runID, persistence.ErrRunNotFound)
	}

	var run models.ExecutionRun

	err := readJSON(rr.fp.companyDir(companyID, "runs"), runID, &run)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRunError("GetByID", companyID, runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", companyID, runID, err)
	}

	return &run, nil
}

// ListByProcess returns the runs of a process, newest first.
func (rr *RunRepository) ListByProcess(_ context.Context, companyID, processID string) ([]*models.ExecutionRun, error) {
	rr.fp.mu.RLock()
	defer rr.fp.mu.RUnlock()

	if err := validateID(companyID); err != nil {
		return nil, persistence.NewRunError("ListByProcess", companyID, "", err)
	}

	ids, err := listJSON(rr.fp.companyDir(companyID, "runs"))
	if err != nil {
		return nil, persistence.NewRunError("ListByProcess", companyID, "", err)
	}

	runs := make([]*models.ExecutionRun, 0)

	for _, id := range ids {
		run, err := rr.get(companyID, id)
		if err != nil {
			return nil, err
		}

		if run.ProcessID == processID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}
