// Package redis provides Redis persistence for consolidation processes and runs.
//
// Keys:
//
//	consolidation:process:<company>:<id>   JSON process
//	consolidation:processes:<company>      sorted set of process ids by creation time
//	consolidation:scheduled                set of "<company>:<id>" with a simulation schedule
//	consolidation:run:<company>:<id>       JSON run
//	consolidation:runs:<company>:<process> sorted set of run ids by start time
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "consolidation"
	scheduledKey = keyPrefix + ":scheduled"
)

func processKey(companyID, processID string) string {
	return fmt.Sprintf("%s:process:%s:%s", keyPrefix, companyID, processID)
}

func processIndexKey(companyID string) string {
	return fmt.Sprintf("%s:processes:%s", keyPrefix, companyID)
}

func runKey(companyID, runID string) string {
	return fmt.Sprintf("%s:run:%s:%s", keyPrefix, companyID, runID)
}

func runIndexKey(companyID, processID string) string {
	return fmt.Sprintf("%s:runs:%s:%s", keyPrefix, companyID, processID)
}

// Persistence implements persistence.Persistence on top of a Redis client.
type Persistence struct {
	client      *goredis.Client
	logger      *slog.Logger
	processRepo *ProcessRepository
	runRepo     *RunRepository
}

// NewPersistence connects to the Redis server described by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	p := &Persistence{client: client, logger: logger}
	p.processRepo = &ProcessRepository{client: client}
	p.runRepo = &RunRepository{client: client}

	return p, nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
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

// CommitRun writes the run and the process inside one MULTI/EXEC transaction.
func (p *Persistence) CommitRun(ctx context.Context, process *models.Process, run *models.ExecutionRun) error {
	_, err := p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if err := queueRun(ctx, pipe, run); err != nil {
			return err
		}

		return queueProcess(ctx, pipe, process)
	})
	if err != nil {
		return persistence.NewProcessError("CommitRun", process.CompanyID, process.ID, err)
	}

	return nil
}

func queueProcess(ctx context.Context, pipe goredis.Pipeliner, process *models.Process) error {
	data, err := json.Marshal(process)
	if err != nil {
		return fmt.Errorf("failed to marshal process: %w", err)
	}

	member := process.CompanyID + ":" + process.ID

	pipe.Set(ctx, processKey(process.CompanyID, process.ID), data, 0)
	pipe.ZAdd(ctx, processIndexKey(process.CompanyID), goredis.Z{
		Score:  float64(process.CreatedAt.UnixNano()),
		Member: process.ID,
	})

	if process.SimulationSchedule != "" {
		pipe.SAdd(ctx, scheduledKey, member)
	} else {
		pipe.SRem(ctx, scheduledKey, member)
	}

	return nil
}

func queueRun(ctx context.Context, pipe goredis.Pipeliner, run *models.ExecutionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe.Set(ctx, runKey(run.CompanyID, run.ID), data, 0)
	pipe.ZAdd(ctx, runIndexKey(run.CompanyID, run.ProcessID), goredis.Z{
		Score:  float64(run.StartedAt.UnixNano()),
		Member: run.ID,
	})

	return nil
}

func getJSON(ctx context.Context, client *goredis.Client, key string, dest any) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

func isNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// ProcessRepository stores processes as JSON strings.
type ProcessRepository struct {
	client *goredis.Client
}

// Save writes the process and its index entries atomically.
func (r *ProcessRepository) Save(ctx context.Context, process *models.Process) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return queueProcess(ctx, pipe, process)
	})
	if err != nil {
		return persistence.NewProcessError("Save", process.CompanyID, process.ID, err)
	}

	return nil
}

// GetByID returns the process or persistence.ErrProcessNotFound.
func (r *ProcessRepository) GetByID(ctx context.Context, companyID, processID string) (*models.Process, error) {
	var process models.Process

	if err := getJSON(ctx, r.client, processKey(companyID, processID), &process); err != nil {
		if isNil(err) {
			return nil, persistence.NewProcessError("GetByID", companyID, processID, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("GetByID", companyID, processID, err)
	}

	return &process, nil
}

// List returns the processes of a company, most recently created first.
func (r *ProcessRepository) List(ctx context.Context, companyID string) ([]*models.Process, error) {
	ids, err := r.client.ZRevRange(ctx, processIndexKey(companyID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewProcessError("List", companyID, "", err)
	}

	processes := make([]*models.Process, 0, len(ids))

	for _, id := range ids {
		process, err := r.GetByID(ctx, companyID, id)
		if err != nil {
			if persistence.IsProcessNotFound(err) {
				continue
			}

			return nil, err
		}

		processes = append(processes, process)
	}

	return processes, nil
}

// ListScheduled returns every process with a simulation schedule.
func (r *ProcessRepository) ListScheduled(ctx context.Context) ([]*models.Process, error) {
	members, err := r.client.SMembers(ctx, scheduledKey).Result()
	if err != nil {
		return nil, persistence.NewProcessError("ListScheduled", "", "", err)
	}

	processes := make([]*models.Process, 0, len(members))

	for _, member := range members {
		companyID, processID, ok := strings.Cut(member, ":")
		if !ok {
			continue
		}

		process, err := r.GetByID(ctx, companyID, processID)
		if err != nil {
			if persistence.IsProcessNotFound(err) {
				continue
			}

			return nil, err
		}

		processes = append(processes, process)
	}

	return processes, nil
}

// Delete removes the process and its index entries. Runs are kept as history.
func (r *ProcessRepository) Delete(ctx context.Context, companyID, processID string) error {
	var deleted *goredis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, processKey(companyID, processID))
		pipe.ZRem(ctx, processIndexKey(companyID), processID)
		pipe.SRem(ctx, scheduledKey, companyID+":"+processID)

		return nil
	})
	if err != nil {
		return persistence.NewProcessError("Delete", companyID, processID, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewProcessError("Delete", companyID, processID, persistence.ErrProcessNotFound)
	}

	return nil
}

// RunRepository stores run reports as JSON strings.
type RunRepository struct {
	client *goredis.Client
}

// Save writes the run report and indexes it under its process.
func (r *RunRepository) Save(ctx context.Context, run *models.ExecutionRun) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return queueRun(ctx, pipe, run)
	})
	if err != nil {
		return persistence.NewRunError("Save", run.CompanyID, run.ID, err)
	}

	return nil
}

// GetByID returns the run or persistence.ErrRunNotFound.
func (r *RunRepository) GetByID(ctx context.Context, companyID, runID string) (*models.ExecutionRun, error) {
	var run models.ExecutionRun

	if err := getJSON(ctx, r.client, runKey(companyID, runID), &run); err != nil {
		if isNil(err) {
			return nil, persistence.NewRunError("GetByID", companyID, runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", companyID, runID, err)
	}

	return &run, nil
}

// ListByProcess returns the runs of a process, newest first.
func (r *RunRepository) ListByProcess(ctx context.Context, companyID, processID string) ([]*models.ExecutionRun, error) {
	ids, err := r.client.ZRevRange(ctx, runIndexKey(companyID, processID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewRunError("ListByProcess", companyID, "", err)
	}

	runs := make([]*models.ExecutionRun, 0, len(ids))

	for _, id := range ids {
		run, err := r.GetByID(ctx, companyID, id)
		if err != nil {
			if persistence.IsRunNotFound(err) {
				continue
			}

			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}
