package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/goccy/go-json"
)

// ProcessRepository handles process-related database operations.
type ProcessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewProcessRepository creates a new process repository.
func NewProcessRepository(db *sql.DB, logger *slog.Logger) *ProcessRepository {
	return &ProcessRepository{db: db, logger: logger}
}

const selectProcess = `
	SELECT
		company_id
	  , id
	  , name
	  , fiscal_year
	  , status
	  , COALESCE(last_run_id, '')
	  , COALESCE(simulation_schedule, '')
	  , created_at
	  , updated_at
	  , finalized_at
	FROM processes
`

type scanner interface {
	Scan(dest ...any) error
}

func scanProcessBase(row scanner) (*models.Process, error) {
	var process models.Process

	err := row.Scan(
		&process.CompanyID,
		&process.ID,
		&process.Name,
		&process.FiscalYear,
		&process.Status,
		&process.LastRunID,
		&process.SimulationSchedule,
		&process.CreatedAt,
		&process.UpdatedAt,
		&process.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}

	return &process, nil
}

// Save upserts the process together with its nodes and connections.
func (r *ProcessRepository) Save(ctx context.Context, process *models.Process) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewProcessError("Save", process.CompanyID, process.ID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = saveProcess(ctx, tx, process); err != nil {
		return persistence.NewProcessError("Save", process.CompanyID, process.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewProcessError("Save", process.CompanyID, process.ID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func saveProcess(ctx context.Context, tx execer, process *models.Process) error {
	now := time.Now().UTC()

	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	if process.UpdatedAt.IsZero() {
		process.UpdatedAt = now
	}

	processQuery := `
		INSERT INTO processes (company_id, id, name, fiscal_year, status, last_run_id,
			simulation_schedule, created_at, updated_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)
		ON CONFLICT (company_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			fiscal_year = EXCLUDED.fiscal_year,
			status = EXCLUDED.status,
			last_run_id = EXCLUDED.last_run_id,
			simulation_schedule = EXCLUDED.simulation_schedule,
			updated_at = EXCLUDED.updated_at,
			finalized_at = EXCLUDED.finalized_at,
			deleted_at = NULL
	`

	_, err := tx.ExecContext(ctx, processQuery,
		process.CompanyID,
		process.ID,
		process.Name,
		process.FiscalYear,
		process.Status,
		process.LastRunID,
		process.SimulationSchedule,
		process.CreatedAt,
		process.UpdatedAt,
		process.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save process base: %w", err)
	}

	// Replace nodes and connections wholesale
	_, err = tx.ExecContext(ctx, "DELETE FROM process_connections WHERE company_id = $1 AND process_id = $2", process.CompanyID, process.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM process_nodes WHERE company_id = $1 AND process_id = $2", process.CompanyID, process.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	nodeQuery := `
		INSERT INTO process_nodes (company_id, process_id, id, node_type, title, configuration,
			enabled, stop_on_error, position_x, position_y, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for i, node := range process.Nodes {
		configJSON, err := json.Marshal(node.Configuration)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, nodeQuery,
			process.CompanyID,
			process.ID,
			node.ID,
			node.Type,
			node.Title,
			configJSON,
			node.Enabled,
			node.StopOnError,
			node.Position.X,
			node.Position.Y,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	connectionQuery := `
		INSERT INTO process_connections (company_id, process_id, source_node_id, target_node_id, sort_order)
		VALUES ($1, $2, $3, $4, $5)
	`

	for i, conn := range process.Connections {
		_, err := tx.ExecContext(ctx, connectionQuery,
			process.CompanyID,
			process.ID,
			conn.SourceNodeID,
			conn.TargetNodeID,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to save connection %s -> %s: %w", conn.SourceNodeID, conn.TargetNodeID, err)
		}
	}

	return nil
}

// GetByID returns the process or persistence.ErrProcessNotFound.
func (r *ProcessRepository) GetByID(ctx context.Context, companyID, processID string) (*models.Process, error) {
	row := r.db.QueryRowContext(ctx, selectProcess+" WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL", companyID, processID)

	process, err := scanProcessBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProcessError("GetByID", companyID, processID, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("GetByID", companyID, processID, fmt.Errorf("failed to scan process: %w", err))
	}

	if err := r.loadGraph(ctx, process); err != nil {
		return nil, persistence.NewProcessError("GetByID", companyID, processID, err)
	}

	return process, nil
}

// List returns the processes of a company, most recently created first.
func (r *ProcessRepository) List(ctx context.Context, companyID string) ([]*models.Process, error) {
	processes, err := r.query(ctx, selectProcess+" WHERE company_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC", companyID)
	if err != nil {
		return nil, persistence.NewProcessError("List", companyID, "", err)
	}

	return processes, nil
}

// ListScheduled returns every process that has a simulation schedule.
func (r *ProcessRepository) ListScheduled(ctx context.Context) ([]*models.Process, error) {
	processes, err := r.query(ctx, selectProcess+" WHERE simulation_schedule IS NOT NULL AND deleted_at IS NULL ORDER BY created_at DESC")
	if err != nil {
		return nil, persistence.NewProcessError("ListScheduled", "", "", err)
	}

	return processes, nil
}

func (r *ProcessRepository) query(ctx context.Context, query string, args ...any) ([]*models.Process, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}

	processes := make([]*models.Process, 0)

	for rows.Next() {
		process, err := scanProcessBase(rows)
		if err != nil {
			_ = rows.Close()

			return nil, fmt.Errorf("failed to scan process: %w", err)
		}

		processes = append(processes, process)
	}

	if err := rows.Err(); err != nil {
		_ = rows.Close()

		return nil, fmt.Errorf("error iterating processes: %w", err)
	}

	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}

	for _, process := range processes {
		if err := r.loadGraph(ctx, process); err != nil {
			return nil, err
		}
	}

	return processes, nil
}

func (r *ProcessRepository) loadGraph(ctx context.Context, process *models.Process) error {
	nodesQuery := `
		SELECT id, node_type, title, configuration, enabled, stop_on_error, position_x, position_y
		FROM process_nodes
		WHERE company_id = $1 AND process_id = $2
		ORDER BY sort_order
	`

	rows, err := r.db.QueryContext(ctx, nodesQuery, process.CompanyID, process.ID)
	if err != nil {
		return fmt.Errorf("failed to query process nodes: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	nodes := make([]*models.Node, 0)

	for rows.Next() {
		var (
			node        models.Node
			configJSON  []byte
			stopOnError sql.NullBool
		)

		err := rows.Scan(
			&node.ID,
			&node.Type,
			&node.Title,
			&configJSON,
			&node.Enabled,
			&stopOnError,
			&node.Position.X,
			&node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		if configJSON != nil {
			if err := json.Unmarshal(configJSON, &node.Configuration); err != nil {
				return fmt.Errorf("failed to unmarshal node configuration: %w", err)
			}
		}

		if stopOnError.Valid {
			v := stopOnError.Bool
			node.StopOnError = &v
		}

		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	process.Nodes = nodes

	connectionsQuery := `
		SELECT source_node_id, target_node_id
		FROM process_connections
		WHERE company_id = $1 AND process_id = $2
		ORDER BY sort_order
	`

	connRows, err := r.db.QueryContext(ctx, connectionsQuery, process.CompanyID, process.ID)
	if err != nil {
		return fmt.Errorf("failed to query process connections: %w", err)
	}

	defer func() {
		err := connRows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	connections := make([]*models.Connection, 0)

	for connRows.Next() {
		var conn models.Connection

		if err := connRows.Scan(&conn.SourceNodeID, &conn.TargetNodeID); err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, &conn)
	}

	if err := connRows.Err(); err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	process.Connections = connections

	return nil
}

// Delete soft deletes a process by setting deleted_at timestamp.
func (r *ProcessRepository) Delete(ctx context.Context, companyID, processID string) error {
	query := `UPDATE processes SET deleted_at = NOW() WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, companyID, processID)
	if err != nil {
		return persistence.NewProcessError("Delete", companyID, processID, fmt.Errorf("failed to delete process: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewProcessError("Delete", companyID, processID, fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return persistence.NewProcessError("Delete", companyID, processID, persistence.ErrProcessNotFound)
	}

	return nil
}
