package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/consolidation/pkg/eventbus"
	"github.com/dukex/consolidation/pkg/events"
	"github.com/dukex/consolidation/pkg/graph"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// AlertUpstreamFailed marks a node skipped because a node it depends on failed.
const AlertUpstreamFailed = "upstream_failed"

// dispatchResult is the outcome of one calculation call.
type dispatchResult struct {
	result models.NodeResult
	kind   string // run error kind when result.Status is error
}

// execute drives the waves of a prepared run and commits it.
func (o *Orchestrator) execute(ctx context.Context, h *handle, snapshot *models.Process) {
	defer close(h.done)
	defer o.forget(h.run.ID)

	run := h.run

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.run", otelhelper.RunAttributes(run)...)
	defer span.End()

	logger := o.logger.With("company_id", run.CompanyID, "process_id", run.ProcessID, "run_id", run.ID, "mode", run.Mode)
	logger.InfoContext(ctx, "Run started", "waves", len(run.Waves))

	o.publish(ctx, h.ref, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, h.ref),
		RunID:     run.ID,
		Mode:      run.Mode,
		Waves:     run.Waves,
	})

	g := graph.Index(snapshot)
	outputs := make(map[string]map[string]any, len(g.IDs))
	doomed := make(map[string]string) // node id -> failed ancestor

	final := models.RunStatusCompleted

	for wave, ids := range run.Waves {
		if h.cancelled.Load() || ctx.Err() != nil {
			final = models.RunStatusCancelled

			break
		}

		var dispatch []*models.Node

		results := make([]models.NodeResult, 0, len(ids))

		for _, id := range ids {
			if upstream, skip := doomed[id]; skip {
				results = append(results, skippedResult(g.Nodes[id], wave, upstream))

				continue
			}

			dispatch = append(dispatch, g.Nodes[id])
		}

		stop := false
		kinds := make(map[string]string)

		// calls in flight finish even when the caller gives up; ctx is only checked between waves
		for _, dr := range o.dispatchWave(context.WithoutCancel(ctx), run, snapshot.FiscalYear, g, wave, dispatch, outputs) {
			res := dr.result
			results = append(results, res)

			o.publish(ctx, h.ref, events.NodeCompleted{
				BaseEvent:  events.NewBaseEvent(events.NodeCompletedEvent, h.ref),
				RunID:      run.ID,
				NodeID:     res.NodeID,
				NodeType:   res.Type,
				Wave:       wave,
				Status:     res.Status,
				Error:      res.Error,
				DurationMs: res.DurationMs,
			})

			if res.Status != models.NodeStatusError {
				outputs[res.NodeID] = res.Output

				continue
			}

			kinds[res.NodeID] = dr.kind

			logger.WarnContext(ctx, "Node failed", "node_id", res.NodeID, "wave", wave, "error", res.Error)

			for _, d := range g.Descendants(res.NodeID) {
				if _, seen := doomed[d]; !seen {
					doomed[d] = res.NodeID
				}
			}

			if stopsOnError(g.Nodes[res.NodeID], run.Mode) {
				stop = true
			}
		}

		slices.SortFunc(results, func(a, b models.NodeResult) int { return cmp.Compare(a.NodeID, b.NodeID) })

		h.mu.Lock()
		for _, res := range results {
			run.Results = append(run.Results, res)
			run.Alerts = append(run.Alerts, res.Alerts...)

			if res.Status == models.NodeStatusError {
				run.Errors = append(run.Errors, models.RunError{
					NodeID:  res.NodeID,
					Kind:    kinds[res.NodeID],
					Message: res.Error,
				})
			}
		}
		h.mu.Unlock()

		if stop {
			final = models.RunStatusFailed

			break
		}
	}

	o.finish(ctx, h, final)
}

// dispatchWave calls the calculation service for every node of one wave, at most
// MaxParallelism at a time. Requests are built before dispatch so that goroutines
// share no mutable state. Results come back sorted by node id.
func (o *Orchestrator) dispatchWave(
	ctx context.Context,
	run *models.ExecutionRun,
	fiscalYear int,
	g *graph.Graph,
	wave int,
	nodes []*models.Node,
	outputs map[string]map[string]any,
) []dispatchResult {
	if len(nodes) == 0 {
		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.wave",
		attribute.Int(otelhelper.WaveKey, wave),
		attribute.Int(otelhelper.WaveSizeKey, len(nodes)),
	)
	defer span.End()

	requests := make([]models.CalculationRequest, len(nodes))
	for i, node := range nodes {
		requests[i] = o.request(run, fiscalYear, g, node, outputs)
	}

	results := make([]dispatchResult, len(nodes))

	var eg errgroup.Group

	eg.SetLimit(o.config.MaxParallelism)

	for i, node := range nodes {
		eg.Go(func() error {
			results[i] = o.dispatch(ctx, node, wave, requests[i])

			return nil
		})
	}

	_ = eg.Wait()

	slices.SortFunc(results, func(a, b dispatchResult) int { return cmp.Compare(a.result.NodeID, b.result.NodeID) })

	return results
}

// request builds the calculation request of node. Upstream results hold a deep copy
// of the output of every immediate enabled predecessor that produced one.
func (o *Orchestrator) request(
	run *models.ExecutionRun,
	fiscalYear int,
	g *graph.Graph,
	node *models.Node,
	outputs map[string]map[string]any,
) models.CalculationRequest {
	upstream := make(map[string]map[string]any, len(g.Preds[node.ID]))

	for _, pred := range g.Preds[node.ID] {
		if out, ok := outputs[pred]; ok {
			copied := models.CloneMap(out)
			if copied == nil {
				copied = map[string]any{}
			}

			upstream[pred] = copied
		}
	}

	return models.CalculationRequest{
		NodeID:          node.ID,
		Type:            node.Type,
		Configuration:   models.CloneMap(node.Configuration),
		UpstreamResults: upstream,
		Mode:            run.Mode,
		ProcessID:       run.ProcessID,
		CompanyID:       run.CompanyID,
		FiscalYear:      fiscalYear,
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, node *models.Node, wave int, req models.CalculationRequest) dispatchResult {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.dispatch", otelhelper.NodeAttributes(node, wave)...)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, o.config.NodeTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Execute(callCtx, req)

	res := models.NodeResult{
		NodeID:     node.ID,
		Type:       node.Type,
		Wave:       wave,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("calculation timed out after %s: %w", o.config.NodeTimeout, err)
		}

		otelhelper.SetError(span, err)

		res.Status = models.NodeStatusError
		res.Error = err.Error()

		return dispatchResult{result: res, kind: models.RunErrorDispatch}
	}

	res.Alerts = nodeAlerts(node.ID, resp.Alerts)

	switch resp.Status {
	case models.CalculationError:
		res.Status = models.NodeStatusError
		res.Error = resp.Error

		if res.Error == "" {
			res.Error = "calculation failed"
		}

		otelhelper.SetError(span, errors.New(res.Error))

		return dispatchResult{result: res, kind: models.RunErrorCalculation}
	case models.CalculationWarning:
		res.Status = models.NodeStatusWarning
	default:
		res.Status = models.NodeStatusOK
	}

	res.Output = resp.Output
	if res.Output == nil {
		res.Output = map[string]any{}
	}

	span.SetAttributes(attribute.String(otelhelper.NodeStatusKey, string(res.Status)))

	return dispatchResult{result: res}
}

// finish settles the run, commits it with the process and announces the outcome.
func (o *Orchestrator) finish(ctx context.Context, h *handle, final models.RunStatus) {
	run := h.run

	h.mu.Lock()
	// running -> terminal cannot fail
	_ = lifecycle.TransitionRun(run, final)
	h.mu.Unlock()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(final)))

	p, err := o.controller.Release(context.WithoutCancel(ctx), h.ref, run)
	if err != nil {
		otelhelper.SetError(span, err)

		h.mu.Lock()
		h.err = err
		h.mu.Unlock()

		o.logger.ErrorContext(ctx, "Failed to commit run",
			"company_id", run.CompanyID,
			"process_id", run.ProcessID,
			"run_id", run.ID,
			"error", err,
		)

		return
	}

	executed := 0

	for _, res := range run.Results {
		if res.Status != models.NodeStatusSkipped {
			executed++
		}
	}

	o.logger.InfoContext(ctx, "Run finished",
		"company_id", run.CompanyID,
		"process_id", run.ProcessID,
		"run_id", run.ID,
		"status", run.Status,
		"process_status", p.Status,
		"nodes_executed", executed,
		"node_errors", len(run.Errors),
		"execution_time_ms", run.ExecutionTimeMs,
	)

	base := func(t events.EventType) events.BaseEvent { return events.NewBaseEvent(t, h.ref) }

	switch run.Status {
	case models.RunStatusCancelled:
		o.publish(ctx, h.ref, events.RunCancelled{
			BaseEvent:     base(events.RunCancelledEvent),
			RunID:         run.ID,
			Mode:          run.Mode,
			DurationMs:    run.ExecutionTimeMs,
			NodesExecuted: executed,
		})
	case models.RunStatusFailed:
		o.publish(ctx, h.ref, events.RunFailed{
			BaseEvent:     base(events.RunFailedEvent),
			RunID:         run.ID,
			Mode:          run.Mode,
			DurationMs:    run.ExecutionTimeMs,
			NodesExecuted: executed,
			Errors:        run.Errors,
		})
	default:
		o.publish(ctx, h.ref, events.RunCompleted{
			BaseEvent:     base(events.RunCompletedEvent),
			RunID:         run.ID,
			Mode:          run.Mode,
			DurationMs:    run.ExecutionTimeMs,
			NodesExecuted: executed,
			NodeErrors:    len(run.Errors),
		})
	}

	if p.Status == models.ProcessStatusFinalized && p.FinalizedAt != nil {
		o.publish(ctx, h.ref, events.ProcessFinalized{
			BaseEvent:   base(events.ProcessFinalizedEvent),
			RunID:       run.ID,
			FiscalYear:  p.FiscalYear,
			FinalizedAt: *p.FinalizedAt,
		})
	}
}

func (o *Orchestrator) publish(ctx context.Context, ref models.ProcessRef, event eventbus.Event) {
	if err := o.publisher.Publish(ctx, ref.ProcessID, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"process_id", ref.ProcessID,
			"error", err,
		)
	}
}

func skippedResult(node *models.Node, wave int, upstream string) models.NodeResult {
	return models.NodeResult{
		NodeID: node.ID,
		Type:   node.Type,
		Wave:   wave,
		Status: models.NodeStatusSkipped,
		Alerts: []models.Alert{{
			NodeID:   node.ID,
			Severity: models.AlertSeverityWarning,
			Code:     AlertUpstreamFailed,
			Message:  fmt.Sprintf("skipped because upstream node %s failed", upstream),
		}},
	}
}

func nodeAlerts(nodeID string, alerts []models.Alert) []models.Alert {
	if len(alerts) == 0 {
		return nil
	}

	out := make([]models.Alert, len(alerts))
	for i, a := range alerts {
		if a.NodeID == "" {
			a.NodeID = nodeID
		}

		out[i] = a
	}

	return out
}

func cloneRun(run *models.ExecutionRun) *models.ExecutionRun {
	clone := *run
	clone.Waves = slices.Clone(run.Waves)
	clone.Results = slices.Clone(run.Results)
	clone.Errors = slices.Clone(run.Errors)
	clone.Alerts = slices.Clone(run.Alerts)

	if run.CompletedAt != nil {
		t := *run.CompletedAt
		clone.CompletedAt = &t
	}

	return &clone
}
