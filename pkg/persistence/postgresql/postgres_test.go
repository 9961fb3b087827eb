package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/dukex/consolidation/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"execution_runs", "process_connections", "process_nodes", "processes", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("consolidation_test"),
			postgres.WithUsername("consolidation"),
			postgres.WithPassword("consolidation"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func newProcess() *models.Process {
	stop := true
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.Process{
		ID:         uuid.New().String(),
		CompanyID:  "acme",
		Name:       "FY2025 group close",
		FiscalYear: 2025,
		Status:     models.ProcessStatusActive,
		Nodes: []*models.Node{
			{
				ID:            "import",
				Type:          models.NodeTypeDataImport,
				Title:         "Import trial balances",
				Enabled:       true,
				Configuration: map[string]any{"source": "erp", "fiscal_period": "2025-12"},
				Position:      models.Position{X: 10, Y: 20},
			},
			{
				ID:            "fx",
				Type:          models.NodeTypeFXTranslation,
				Title:         "FX",
				Enabled:       false,
				StopOnError:   &stop,
				Configuration: map[string]any{"translation_method": "temporal", "round_to": 2.0},
			},
		},
		Connections: []*models.Connection{{SourceNodeID: "import", TargetNodeID: "fx"}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"processes", "process_nodes", "process_connections", "execution_runs"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestProcessRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ProcessRepository()

	process := newProcess()
	require.NoError(t, repo.Save(ctx, process))

	got, err := repo.GetByID(ctx, "acme", process.ID)
	require.NoError(t, err)

	assert.Equal(t, process.Name, got.Name)
	assert.Equal(t, models.ProcessStatusActive, got.Status)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "import", got.Nodes[0].ID)
	assert.Equal(t, models.Position{X: 10, Y: 20}, got.Nodes[0].Position)
	assert.Nil(t, got.Nodes[0].StopOnError)
	require.NotNil(t, got.Nodes[1].StopOnError)
	assert.True(t, *got.Nodes[1].StopOnError)
	assert.False(t, got.Nodes[1].Enabled)
	assert.Equal(t, "temporal", got.Nodes[1].Configuration["translation_method"])
	assert.Equal(t, process.Connections, got.Connections)

	// Updates replace the graph
	process.Connections = nil
	process.Nodes = process.Nodes[:1]
	process.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, process))

	got, err = repo.GetByID(ctx, "acme", process.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Len(t, got.Nodes, 1)
	assert.Empty(t, got.Connections)

	_, err = repo.GetByID(ctx, "globex", process.ID)
	assert.True(t, persistence.IsProcessNotFound(err))
}

func TestProcessRepository_ListAndDelete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ProcessRepository()

	first := newProcess()
	second := newProcess()
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second.SimulationSchedule = "0 2 * * *"

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	list, err := repo.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	scheduled, err := repo.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, second.ID, scheduled[0].ID)

	require.NoError(t, repo.Delete(ctx, "acme", first.ID))

	_, err = repo.GetByID(ctx, "acme", first.ID)
	assert.True(t, persistence.IsProcessNotFound(err))

	err = repo.Delete(ctx, "acme", first.ID)
	assert.True(t, persistence.IsProcessNotFound(err))
}

func TestPersistence_CommitRun(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	process := newProcess()
	require.NoError(t, p.ProcessRepository().Save(ctx, process))

	completed := time.Now().UTC().Truncate(time.Millisecond)
	run := &models.ExecutionRun{
		ID:        uuid.New().String(),
		ProcessID: process.ID,
		CompanyID: "acme",
		Mode:      models.RunModeFinalize,
		Status:    models.RunStatusCompleted,
		Waves:     [][]string{{"import"}},
		Results: []models.NodeResult{
			{NodeID: "import", Type: models.NodeTypeDataImport, Status: models.NodeStatusOK, Output: map[string]any{"rows": 12.0}},
		},
		Alerts:          []models.Alert{{NodeID: "import", Severity: models.AlertSeverityInfo, Code: "note", Message: "ok"}},
		StartedAt:       completed.Add(-time.Second),
		CompletedAt:     &completed,
		ExecutionTimeMs: 1000,
	}

	process.Status = models.ProcessStatusFinalized
	process.LastRunID = run.ID
	process.FinalizedAt = &completed

	require.NoError(t, p.CommitRun(ctx, process, run))

	storedProcess, err := p.ProcessRepository().GetByID(ctx, "acme", process.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessStatusFinalized, storedProcess.Status)
	assert.Equal(t, run.ID, storedProcess.LastRunID)
	require.NotNil(t, storedProcess.FinalizedAt)

	storedRun, err := p.RunRepository().GetByID(ctx, "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Waves, storedRun.Waves)
	assert.Equal(t, 12.0, storedRun.Results[0].Output["rows"])
	assert.Empty(t, storedRun.Errors)
	assert.Equal(t, int64(1000), storedRun.ExecutionTimeMs)

	runs, err := p.RunRepository().ListByProcess(ctx, "acme", process.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = p.RunRepository().GetByID(ctx, "acme", "missing")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_CommitRunIsAtomic(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	process := newProcess()
	require.NoError(t, p.ProcessRepository().Save(ctx, process))

	run := &models.ExecutionRun{
		ID:        uuid.New().String(),
		ProcessID: process.ID,
		CompanyID: "acme",
		Mode:      models.RunModeSimulate,
		Status:    models.RunStatusCompleted,
		StartedAt: time.Now().UTC(),
	}

	// An invalid status violates the processes CHECK constraint after the run row was written.
	process.Status = "exploded"

	err := p.CommitRun(ctx, process, run)
	require.Error(t, err)

	_, err = p.RunRepository().GetByID(ctx, "acme", run.ID)
	assert.True(t, persistence.IsRunNotFound(err), "run must be rolled back with the process")
}
