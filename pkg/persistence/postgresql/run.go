package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/goccy/go-json"
)

// RunRepository handles execution run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const selectRun = `
	SELECT company_id, id, process_id, mode, status, waves, results, errors, alerts,
		   metadata, started_at, completed_at, execution_time_ms
	FROM execution_runs
`

// Save upserts the run report.
func (rr *RunRepository) Save(ctx context.Context, run *models.ExecutionRun) error {
	if err := saveRun(ctx, rr.db, run); err != nil {
		return persistence.NewRunError("Save", run.CompanyID, run.ID, err)
	}

	return nil
}

func saveRun(ctx context.Context, db execer, run *models.ExecutionRun) error {
	wavesJSON, err := json.Marshal(nonNil(run.Waves))
	if err != nil {
		return fmt.Errorf("failed to marshal waves: %w", err)
	}

	resultsJSON, err := json.Marshal(nonNil(run.Results))
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	errorsJSON, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	alertsJSON, err := json.Marshal(nonNil(run.Alerts))
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	metadataJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO execution_runs (
			company_id, id, process_id, mode, status, waves, results, errors, alerts,
			metadata, started_at, completed_at, execution_time_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (company_id, id) DO UPDATE SET
			status = EXCLUDED.status,
			waves = EXCLUDED.waves,
			results = EXCLUDED.results,
			errors = EXCLUDED.errors,
			alerts = EXCLUDED.alerts,
			metadata = EXCLUDED.metadata,
			completed_at = EXCLUDED.completed_at,
			execution_time_ms = EXCLUDED.execution_time_ms
	`

	_, err = db.ExecContext(ctx, query,
		run.CompanyID,
		run.ID,
		run.ProcessID,
		run.Mode,
		run.Status,
		wavesJSON,
		resultsJSON,
		errorsJSON,
		alertsJSON,
		metadataJSON,
		run.StartedAt,
		run.CompletedAt,
		run.ExecutionTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution run: %w", err)
	}

	return nil
}

// GetByID returns the run or persistence.ErrRunNotFound.
func (rr *RunRepository) GetByID(ctx context.Context, companyID, runID string) (*models.ExecutionRun, error) {
	row := rr.db.QueryRowContext(ctx, selectRun+" WHERE company_id = $1 AND id = $2", companyID, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", companyID, runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", companyID, runID, err)
	}

	return run, nil
}

// ListByProcess returns the runs of a process, newest first.
func (rr *RunRepository) ListByProcess(ctx context.Context, companyID, processID string) ([]*models.ExecutionRun, error) {
	rows, err := rr.db.QueryContext(ctx, selectRun+" WHERE company_id = $1 AND process_id = $2 ORDER BY started_at DESC", companyID, processID)
	if err != nil {
		return nil, persistence.NewRunError("ListByProcess", companyID, "", fmt.Errorf("failed to query execution runs: %w", err))
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	runs := make([]*models.ExecutionRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence.NewRunError("ListByProcess", companyID, "", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRunError("ListByProcess", companyID, "", fmt.Errorf("error iterating execution runs: %w", err))
	}

	return runs, nil
}

func scanRun(row scanner) (*models.ExecutionRun, error) {
	var (
		run                                                       models.ExecutionRun
		wavesJSON, resultsJSON, errorsJSON, alertsJSON, metaJSON []byte
	)

	err := row.Scan(
		&run.CompanyID,
		&run.ID,
		&run.ProcessID,
		&run.Mode,
		&run.Status,
		&wavesJSON,
		&resultsJSON,
		&errorsJSON,
		&alertsJSON,
		&metaJSON,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ExecutionTimeMs,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name string
		data []byte
		dest any
	}{
		{"waves", wavesJSON, &run.Waves},
		{"results", resultsJSON, &run.Results},
		{"errors", errorsJSON, &run.Errors},
		{"alerts", alertsJSON, &run.Alerts},
		{"metadata", metaJSON, &run.Metadata},
	}

	for _, f := range fields {
		if len(f.data) == 0 {
			continue
		}

		if err := json.Unmarshal(f.data, f.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}

	return &run, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
