package cmd

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/consolidation/pkg/calculation"
)

var ErrNoCalculationURL = errors.New("calculation service URL is required")

// NewCalculationClient creates the HTTP client of the calculation service.
func NewCalculationClient(logger *slog.Logger, baseURL string, retries int, retryDelay time.Duration) (calculation.Client, error) {
	if baseURL == "" {
		return nil, ErrNoCalculationURL
	}

	return calculation.NewHTTPClient(
		baseURL,
		logger,
		calculation.WithRetries(calculation.RetryConfig{Attempts: retries, Delay: retryDelay}),
	), nil
}
