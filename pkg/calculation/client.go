// Package calculation defines the contract with the external service that owns the
// accounting math of every node type, and an HTTP implementation of it.
package calculation

import (
	"context"

	"github.com/dukex/consolidation/pkg/models"
)

// Client executes the calculation of one node.
type Client interface {
	Execute(ctx context.Context, req models.CalculationRequest) (models.CalculationResponse, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req models.CalculationRequest) (models.CalculationResponse, error)

// Execute calls f.
func (f ClientFunc) Execute(ctx context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
	return f(ctx, req)
}
