// Package postgresql provides PostgreSQL persistence for consolidation processes and runs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/dukex/consolidation/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	processRepo *ProcessRepository
	runRepo     *RunRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		processRepo: NewProcessRepository(database, logger),
		runRepo:     NewRunRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// ProcessRepository returns the process repository.
func (p *Persistence) ProcessRepository() persistence.ProcessRepository {
	return p.processRepo
}

// RunRepository returns the run repository.
func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

// CommitRun writes the run and the process in a single transaction.
func (p *Persistence) CommitRun(ctx context.Context, process *models.Process, run *models.ExecutionRun) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = saveRun(ctx, tx, run); err != nil {
		return persistence.NewRunError("CommitRun", run.CompanyID, run.ID, err)
	}

	if err = saveProcess(ctx, tx, process); err != nil {
		return persistence.NewProcessError("CommitRun", process.CompanyID, process.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
