package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
)

// ProcessRepository handles process-related file operations.
type ProcessRepository struct {
	fp *Persistence
}

// Save writes the process, replacing any previous version.
func (pr *ProcessRepository) Save(_ context.Context, process *models.Process) error {
	pr.fp.mu.Lock()
	defer pr.fp.mu.Unlock()

	if err := pr.fp.writeProcess(process); err != nil {
		return persistence.NewProcessError("Save", process.CompanyID, process.ID, err)
	}

	return nil
}

// GetByID returns the process or persistence.ErrProcessNotFound.
func (pr *ProcessRepository) GetByID(_ context.Context, companyID, processID string) (*models.Process, error) {
	pr.fp.mu.RLock()
	defer pr.fp.mu.RUnlock()

	return pr.get(companyID, processID)
}

func (pr *ProcessRepository) get(companyID, processID string) (*models.Process, error) {
	if validateID(companyID) != nil || validateID(processID) != nil {
		return nil, persistence.NewProcessError("GetByID", companyID, processID, persistence.ErrProcessNotFound)
	}

	var process models.Process

	err := readJSON(pr.fp.companyDir(companyID, "processes"), processID, &process)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewProcessError("GetByID", companyID, processID, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("GetByID", companyID, processID, err)
	}

	return &process, nil
}

// List returns the processes of a company, most recently created first.
func (pr *ProcessRepository) List(_ context.Context, companyID string) ([]*models.Process, error) {
	pr.fp.mu.RLock()
	defer pr.fp.mu.RUnlock()

	if err := validateID(companyID); err != nil {
		return nil, persistence.NewProcessError("List", companyID, "", err)
	}

	processes, err := pr.listCompany(companyID)
	if err != nil {
		return nil, persistence.NewProcessError("List", companyID, "", err)
	}

	return processes, nil
}

// ListScheduled returns every process, across companies, that has a simulation schedule.
func (pr *ProcessRepository) ListScheduled(_ context.Context) ([]*models.Process, error) {
	pr.fp.mu.RLock()
	defer pr.fp.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(pr.fp.root, "companies"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Process{}, nil
		}

		return nil, persistence.NewProcessError("ListScheduled", "", "", err)
	}

	scheduled := make([]*models.Process, 0)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		processes, err := pr.listCompany(entry.Name())
		if err != nil {
			return nil, persistence.NewProcessError("ListScheduled", entry.Name(), "", err)
		}

		for _, process := range processes {
			if process.SimulationSchedule != "" {
				scheduled = append(scheduled, process)
			}
		}
	}

	return scheduled, nil
}

func (pr *ProcessRepository) listCompany(companyID string) ([]*models.Process, error) {
	ids, err := listJSON(pr.fp.companyDir(companyID, "processes"))
	if err != nil {
		return nil, err
	}

	processes := make([]*models.Process, 0, len(ids))

	for _, id := range ids {
		process, err := pr.get(companyID, id)
		if err != nil {
			return nil, err
		}

		processes = append(processes, process)
	}

	sort.Slice(processes, func(i, j int) bool {
		return processes[i].CreatedAt.After(processes[j].CreatedAt)
	})

	return processes, nil
}

// Delete removes the process file. Runs are kept as history.
func (pr *ProcessRepository) Delete(_ context.Context, companyID, processID string) error {
	pr.fp.mu.Lock()
	defer pr.fp.mu.Unlock()

	if validateID(companyID) != nil || validateID(processID) != nil {
		return persistence.NewProcessError("Delete", companyID, processID, persistence.ErrProcessNotFound)
	}

	err := os.Remove(filepath.Join(pr.fp.companyDir(companyID, "processes"), processID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewProcessError("Delete", companyID, processID, persistence.ErrProcessNotFound)
		}

		return persistence.NewProcessError("Delete", companyID, processID, err)
	}

	return nil
}
