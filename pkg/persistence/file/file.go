// Package file provides file-based persistence for consolidation processes and runs.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/goccy/go-json"
)

// Persistence implements the persistence.Persistence interface using the file system.
//
// Layout:
//
//	<root>/companies/<company>/processes/<process>.json
//	<root>/companies/<company>/runs/<run>.json
type Persistence struct {
	root        string
	mu          sync.RWMutex
	processRepo *ProcessRepository
	runRepo     *RunRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}
	fp.processRepo = &ProcessRepository{fp: fp}
	fp.runRepo = &RunRepository{fp: fp}

	return fp
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// ProcessRepository returns the process repository implementation for file persistence.
func (fp *Persistence) ProcessRepository() persistence.ProcessRepository {
	return fp.processRepo
}

// RunRepository returns the run repository implementation for file persistence.
func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

// CommitRun writes the run report and then the process. Each file is replaced
// atomically, and the process file is only touched once the run is durable.
func (fp *Persistence) CommitRun(_ context.Context, process *models.Process, run *models.ExecutionRun) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := fp.writeRun(run); err != nil {
		return persistence.NewRunError("CommitRun", run.CompanyID, run.ID, err)
	}

	if err := fp.writeProcess(process); err != nil {
		return persistence.NewProcessError("CommitRun", process.CompanyID, process.ID, err)
	}

	return nil
}

func (fp *Persistence) companyDir(companyID, kind string) string {
	return filepath.Join(fp.root, "companies", companyID, kind)
}

func (fp *Persistence) writeProcess(process *models.Process) error {
	if err := validateID(process.CompanyID); err != nil {
		return err
	}

	if err := validateID(process.ID); err != nil {
		return err
	}

	return writeJSON(fp.companyDir(process.CompanyID, "processes"), process.ID, process)
}

func (fp *Persistence) writeRun(run *models.ExecutionRun) error {
	if err := validateID(run.CompanyID); err != nil {
		return err
	}

	if err := validateID(run.ID); err != nil {
		return err
	}

	return writeJSON(fp.companyDir(run.CompanyID, "runs"), run.ID, run)
}

// validateID validates that an identifier is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier cannot be empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func writeJSON(dir, id string, value any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close %s: %w", id, err)
	}

	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to chmod %s: %w", id, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, id+".json")); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s: %w", id, err)
	}

	return nil
}

// readJSON returns os.ErrNotExist when the file is absent.
func readJSON(dir, id string, value any) error {
	data, err := os.ReadFile(filepath.Join(dir, id+".json")) // #nosec G304 -- id is validated by callers
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return nil
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
