// Package mocks provides testify mocks of the storage, event and calculation boundaries.
package mocks

import (
	"context"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockProcessRepository is a mock implementation of persistence.ProcessRepository interface.
type MockProcessRepository struct {
	mock.Mock
}

func (m *MockProcessRepository) Save(ctx context.Context, process *models.Process) error {
	args := m.Called(ctx, process)

	return args.Error(0)
}

func (m *MockProcessRepository) GetByID(ctx context.Context, companyID, processID string) (*models.Process, error) {
	args := m.Called(ctx, companyID, processID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Process), args.Error(1)
}

func (m *MockProcessRepository) List(ctx context.Context, companyID string) ([]*models.Process, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Process), args.Error(1)
}

func (m *MockProcessRepository) ListScheduled(ctx context.Context) ([]*models.Process, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Process), args.Error(1)
}

func (m *MockProcessRepository) Delete(ctx context.Context, companyID, processID string) error {
	args := m.Called(ctx, companyID, processID)

	return args.Error(0)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run *models.ExecutionRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, companyID, runID string) (*models.ExecutionRun, error) {
	args := m.Called(ctx, companyID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRun), args.Error(1)
}

func (m *MockRunRepository) ListByProcess(ctx context.Context, companyID, processID string) ([]*models.ExecutionRun, error) {
	args := m.Called(ctx, companyID, processID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRun), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Processes *MockProcessRepository
	Runs      *MockRunRepository
}

// NewMockPersistence creates a mock persistence with fresh repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Processes: &MockProcessRepository{},
		Runs:      &MockRunRepository{},
	}
}

func (m *MockPersistence) ProcessRepository() persistence.ProcessRepository {
	return m.Processes
}

func (m *MockPersistence) RunRepository() persistence.RunRepository {
	return m.Runs
}

func (m *MockPersistence) CommitRun(ctx context.Context, process *models.Process, run *models.ExecutionRun) error {
	args := m.Called(ctx, process, run)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// AssertAll asserts the expectations of the persistence and both repositories.
func (m *MockPersistence) AssertAll(t mock.TestingT) bool {
	return m.AssertExpectations(t) &&
		m.Processes.AssertExpectations(t) &&
		m.Runs.AssertExpectations(t)
}
