package mocks

import (
	"context"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockCalculationClient is a mock implementation of calculation.Client interface.
type MockCalculationClient struct {
	mock.Mock
}

func (m *MockCalculationClient) Execute(ctx context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(models.CalculationResponse), args.Error(1)
}

// ForNode matches requests addressed to nodeID.
func ForNode(nodeID string) any {
	return mock.MatchedBy(func(req models.CalculationRequest) bool {
		return req.NodeID == nodeID
	})
}
