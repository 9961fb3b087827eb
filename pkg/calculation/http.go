package calculation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/consolidation/pkg/models"
	"github.com/goccy/go-json"
)

const executePath = "/node/execute"

// HTTPError is returned when the calculation service answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("calculation service returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	Attempts int           // including the initial request
	Delay    time.Duration // between attempts
}

// HTTPClient posts calculation requests as JSON to {BaseURL}/node/execute.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retries RetryConfig
	logger  *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithRetries enables retries of transient failures.
func WithRetries(cfg RetryConfig) Option {
	return func(h *HTTPClient) { h.retries = cfg }
}

// NewHTTPClient creates a calculation client for the service at baseURL.
func NewHTTPClient(baseURL string, logger *slog.Logger, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		retries: RetryConfig{Attempts: 1},
		logger:  logger.With("module", "calculation_client"),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.retries.Attempts < 1 {
		h.retries.Attempts = 1
	}

	return h
}

// Execute sends one node to the calculation service. The per-node deadline is taken from ctx.
func (h *HTTPClient) Execute(ctx context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.CalculationResponse{}, fmt.Errorf("failed to marshal calculation request: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= h.retries.Attempts; attempt++ {
		resp, err := h.do(ctx, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !retryable(err) || attempt == h.retries.Attempts || ctx.Err() != nil {
			break
		}

		h.logger.WarnContext(ctx, "Calculation request failed, retrying",
			"node_id", req.NodeID,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return models.CalculationResponse{}, ctx.Err()
		case <-time.After(h.retries.Delay):
		}
	}

	return models.CalculationResponse{}, lastErr
}

func (h *HTTPClient) do(ctx context.Context, body []byte) (models.CalculationResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+executePath, bytes.NewReader(body))
	if err != nil {
		return models.CalculationResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return models.CalculationResponse{}, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			h.logger.DebugContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.CalculationResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.CalculationResponse{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	var out models.CalculationResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return models.CalculationResponse{}, fmt.Errorf("failed to decode calculation response: %w", err)
	}

	switch out.Status {
	case models.CalculationOK, models.CalculationWarning, models.CalculationError:
	default:
		return models.CalculationResponse{}, fmt.Errorf("calculation response has unknown status %q", out.Status)
	}

	return out, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	return strings.HasPrefix(err.Error(), "request failed")
}
