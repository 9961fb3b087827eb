package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/consolidation/pkg/calculation"
	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/events"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/mocks"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/dukex/consolidation/pkg/persistence/file"
	"github.com/dukex/consolidation/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var ref = models.ProcessRef{CompanyID: "acme", ProcessID: "p1"}

type fixture struct {
	orch  *Orchestrator
	store *file.Persistence
}

func newFixture(t *testing.T, client calculation.Client, opts ...Option) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	orch := New(
		store,
		lifecycle.NewController(store, logger),
		validation.NewValidator(catalog.New(), logger),
		client,
		logger,
		opts...,
	)

	return &fixture{orch: orch, store: store}
}

func journal(id string) *models.Node {
	return &models.Node{
		ID:            id,
		Type:          models.NodeTypeConsolidationJournal,
		Title:         id,
		Enabled:       true,
		Configuration: map[string]any{"journal_type": "recurring", "entries": []any{}},
	}
}

func (f *fixture) save(t *testing.T, nodes []*models.Node, edges ...[2]string) *models.Process {
	t.Helper()

	p := &models.Process{
		ID:         ref.ProcessID,
		CompanyID:  ref.CompanyID,
		Name:       "FY2025 close",
		FiscalYear: 2025,
		Status:     models.ProcessStatusActive,
		Nodes:      nodes,
		CreatedAt:  time.Now().UTC(),
	}

	for _, e := range edges {
		p.Connections = append(p.Connections, &models.Connection{SourceNodeID: e[0], TargetNodeID: e[1]})
	}

	require.NoError(t, f.store.ProcessRepository().Save(t.Context(), p))

	return p
}

func (f *fixture) process(t *testing.T) *models.Process {
	t.Helper()

	p, err := f.store.ProcessRepository().GetByID(t.Context(), ref.CompanyID, ref.ProcessID)
	require.NoError(t, err)

	return p
}

// recorder answers ok with {"node": id} and keeps every request it received.
type recorder struct {
	mu       sync.Mutex
	requests map[string]models.CalculationRequest
	fail     map[string]string
}

func newRecorder(fail ...string) *recorder {
	r := &recorder{requests: map[string]models.CalculationRequest{}, fail: map[string]string{}}
	for _, id := range fail {
		r.fail[id] = "ledger does not balance"
	}

	return r
}

func (r *recorder) Execute(_ context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
	r.mu.Lock()
	r.requests[req.NodeID] = req
	r.mu.Unlock()

	if msg, ok := r.fail[req.NodeID]; ok {
		return models.CalculationResponse{Status: models.CalculationError, Error: msg}, nil
	}

	return models.CalculationResponse{
		Status: models.CalculationOK,
		Output: map[string]any{"node": req.NodeID, "lines": []any{map[string]any{"amount": 100.0}}},
	}, nil
}

func (r *recorder) called(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.requests[id]

	return ok
}

func statuses(run *models.ExecutionRun) map[string]models.NodeStatus {
	out := map[string]models.NodeStatus{}
	for _, res := range run.Results {
		out[res.NodeID] = res.Status
	}

	return out
}

func TestPlan(t *testing.T) {
	t.Parallel()

	b := journal("B")
	b.Enabled = false

	p := &models.Process{
		Nodes: []*models.Node{journal("A"), b, journal("C")},
		Connections: []*models.Connection{
			{SourceNodeID: "A", TargetNodeID: "B"},
			{SourceNodeID: "B", TargetNodeID: "C"},
			{SourceNodeID: "A", TargetNodeID: "C"},
		},
	}

	assert.Equal(t, [][]string{{"A"}, {"C"}}, Plan(p))

	b.Enabled = true
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, Plan(p))

	assert.Equal(t, [][]string{}, Plan(&models.Process{}))
}

func TestPlan_Deterministic(t *testing.T) {
	t.Parallel()

	p := &models.Process{
		Nodes: []*models.Node{journal("e"), journal("b"), journal("d"), journal("a"), journal("c")},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "d"},
			{SourceNodeID: "b", TargetNodeID: "d"},
			{SourceNodeID: "c", TargetNodeID: "e"},
		},
	}

	want := [][]string{{"a", "b", "c"}, {"d", "e"}}
	for range 20 {
		assert.Equal(t, want, Plan(p))
	}
}

func TestRun_SimulateCompletes(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	f := newFixture(t, rec)
	before := f.save(t, []*models.Node{journal("a"), journal("b"), journal("c"), journal("lonely")},
		[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "c"})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, [][]string{{"a", "lonely"}, {"b"}, {"c"}}, run.Waves)
	assert.Empty(t, run.Errors)
	assert.NotNil(t, run.CompletedAt)

	var order []string
	for _, res := range run.Results {
		order = append(order, res.NodeID)
		assert.Equal(t, models.NodeStatusOK, res.Status)
	}

	assert.Equal(t, []string{"a", "lonely", "b", "c"}, order, "results ordered by wave then id")

	require.Len(t, run.Alerts, 1, "orphan advisory carried into the run")
	assert.Equal(t, validation.AlertOrphanNode, run.Alerts[0].Code)

	assert.Equal(t, map[string]map[string]any{}, rec.requests["a"].UpstreamResults)
	assert.Equal(t, []string{"a"}, keys(rec.requests["b"].UpstreamResults))
	assert.Equal(t, []string{"a", "b"}, keys(rec.requests["c"].UpstreamResults))
	assert.Equal(t, 2025, rec.requests["c"].FiscalYear)
	assert.Equal(t, models.RunModeSimulate, rec.requests["c"].Mode)

	after := f.process(t)
	assert.Equal(t, models.ProcessStatusSimulated, after.Status)
	assert.Equal(t, run.ID, after.LastRunID)
	assert.Nil(t, after.FinalizedAt, "simulation never finalizes")
	assert.Equal(t, before.Nodes, after.Nodes, "simulation never mutates nodes")
	assert.Equal(t, before.Connections, after.Connections)

	stored, err := f.store.RunRepository().GetByID(t.Context(), "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Len(t, stored.Results, 4)
}

func keys(m map[string]map[string]any) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}

	slices.Sort(out)

	return out
}

func TestRun_UpstreamResultsAreCopies(t *testing.T) {
	t.Parallel()

	var seen sync.Map

	client := calculation.ClientFunc(func(_ context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
		if up, ok := req.UpstreamResults["a"]; ok {
			lines := up["lines"].([]any)
			seen.Store(req.NodeID, lines[0].(map[string]any)["amount"])

			lines[0].(map[string]any)["amount"] = -1.0
			up["tampered"] = true
		}

		return models.CalculationResponse{
			Status: models.CalculationOK,
			Output: map[string]any{"lines": []any{map[string]any{"amount": 100.0}}},
		}, nil
	})

	f := newFixture(t, client)
	f.save(t, []*models.Node{journal("a"), journal("b"), journal("c"), journal("d")},
		[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"a", "d"})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)

	for _, id := range []string{"b", "c", "d"} {
		amount, ok := seen.Load(id)
		require.True(t, ok, id)
		assert.Equal(t, 100.0, amount, "%s saw a mutation made by a sibling", id)
	}

	res, ok := run.Result("a")
	require.True(t, ok)
	assert.NotContains(t, res.Output, "tampered")
}

func TestRun_FinalizeSucceeds(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "p1", mock.Anything).Return(nil)

	f := newFixture(t, newRecorder(), WithPublisher(bus))
	f.save(t, []*models.Node{journal("a"), journal("b")}, [2]string{"a", "b"})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeFinalize)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	after := f.process(t)
	assert.Equal(t, models.ProcessStatusFinalized, after.Status)
	assert.NotNil(t, after.FinalizedAt)

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.NodeCompletedEvent,
		events.NodeCompletedEvent,
		events.RunCompletedEvent,
		events.ProcessFinalizedEvent,
	}, bus.PublishedTypes())

	_, err = f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	assert.True(t, lifecycle.IsInvalidTransition(err), "finalized processes cannot run again")
}

func TestRun_FinalizeFailureRollsBack(t *testing.T) {
	t.Parallel()

	rec := newRecorder("a")
	f := newFixture(t, rec)
	f.save(t, []*models.Node{journal("a"), journal("b"), journal("x")}, [2]string{"a", "b"}, [2]string{"x", "b"})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeFinalize)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, map[string]models.NodeStatus{"a": models.NodeStatusError, "x": models.NodeStatusOK}, statuses(run))
	assert.False(t, rec.called("b"), "remaining waves are abandoned")

	require.Len(t, run.Errors, 1)
	assert.Equal(t, models.RunError{NodeID: "a", Kind: models.RunErrorCalculation, Message: "ledger does not balance"}, run.Errors[0])

	after := f.process(t)
	assert.Equal(t, models.ProcessStatusActive, after.Status)
	assert.Nil(t, after.FinalizedAt)
}

func TestRun_SimulateFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	rec := newRecorder("a")
	f := newFixture(t, rec)
	f.save(t, []*models.Node{journal("a"), journal("b"), journal("c"), journal("d")},
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"d", "c"})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, map[string]models.NodeStatus{
		"a": models.NodeStatusError,
		"b": models.NodeStatusSkipped,
		"c": models.NodeStatusSkipped,
		"d": models.NodeStatusOK,
	}, statuses(run))

	assert.False(t, rec.called("b"))
	assert.False(t, rec.called("c"))

	res, _ := run.Result("c")
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertUpstreamFailed, res.Alerts[0].Code)
	assert.Contains(t, res.Alerts[0].Message, "a")

	assert.Len(t, run.Errors, 1)
	assert.Equal(t, models.ProcessStatusSimulated, f.process(t).Status)
}

func TestRun_NodeStopOnErrorOverridesMode(t *testing.T) {
	t.Parallel()

	stop := true
	a := journal("a")
	a.StopOnError = &stop

	f := newFixture(t, newRecorder("a"))
	f.save(t, []*models.Node{a, journal("b")}, [2]string{"a", "b"})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, models.ProcessStatusSimulated, f.process(t).Status)
}

func TestRun_FinalizeWithoutStopCompletesAndFinalizes(t *testing.T) {
	t.Parallel()

	keepGoing := false
	a := journal("a")
	a.StopOnError = &keepGoing

	f := newFixture(t, newRecorder("a"))
	f.save(t, []*models.Node{a, journal("b")})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeFinalize)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, "a", run.Errors[0].NodeID)

	p := f.process(t)
	assert.Equal(t, models.ProcessStatusFinalized, p.Status, "a completed run finalizes despite recorded node errors")
	assert.NotNil(t, p.FinalizedAt)
}

func TestRun_CyclicGraphRefused(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	f := newFixture(t, rec)
	f.save(t, []*models.Node{journal("X"), journal("Y")}, [2]string{"X", "Y"}, [2]string{"Y", "X"})

	_, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.Error(t, err)
	assert.True(t, IsInvalidGraph(err))

	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Errors, 1)
	assert.Equal(t, models.ValidationCyclicDependency, invalid.Errors[0].Kind)
	assert.Equal(t, []string{"X", "Y"}, invalid.Errors[0].NodeIDs)

	assert.Equal(t, models.ProcessStatusActive, f.process(t).Status)
	assert.Empty(t, rec.requests)

	runs, err := f.orch.ListRuns(t.Context(), ref)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_MissingRequiredFieldRefused(t *testing.T) {
	t.Parallel()

	fx := &models.Node{
		ID:            "fx1",
		Type:          models.NodeTypeFXTranslation,
		Enabled:       true,
		Configuration: map[string]any{"reporting_currency": "EUR"},
	}

	f := newFixture(t, newRecorder())
	f.save(t, []*models.Node{fx})

	result, err := f.orch.Validate(t.Context(), ref)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(models.ValidationMissingRequiredField))

	_, err = f.orch.Run(t.Context(), ref, models.RunModeFinalize)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestRun_InvalidMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newRecorder())
	f.save(t, []*models.Node{journal("a")})

	_, err := f.orch.Run(t.Context(), ref, "rehearse")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRun_NodeTimeout(t *testing.T) {
	t.Parallel()

	client := calculation.ClientFunc(func(ctx context.Context, _ models.CalculationRequest) (models.CalculationResponse, error) {
		<-ctx.Done()

		return models.CalculationResponse{}, ctx.Err()
	})

	f := newFixture(t, client, WithConfig(Config{NodeTimeout: 20 * time.Millisecond}))
	f.save(t, []*models.Node{journal("slow")})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)

	require.Len(t, run.Errors, 1)
	assert.Equal(t, models.RunErrorDispatch, run.Errors[0].Kind)
	assert.Contains(t, run.Errors[0].Message, "timed out")
}

func TestRun_BoundedParallelism(t *testing.T) {
	t.Parallel()

	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)

	client := calculation.ClientFunc(func(context.Context, models.CalculationRequest) (models.CalculationResponse, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)

		return models.CalculationResponse{Status: models.CalculationOK}, nil
	})

	f := newFixture(t, client, WithConfig(Config{MaxParallelism: 2}))

	var nodes []*models.Node
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5", "n6"} {
		nodes = append(nodes, journal(id))
	}

	f.save(t, nodes)

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)
	assert.Len(t, run.Results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_WarningsAndClientErrors(t *testing.T) {
	t.Parallel()

	client := &mocks.MockCalculationClient{}
	client.On("Execute", mock.Anything, mocks.ForNode("warn")).Return(models.CalculationResponse{
		Status: models.CalculationWarning,
		Alerts: []models.Alert{{Severity: models.AlertSeverityWarning, Code: "rate_stale", Message: "rate is old"}},
		Output: map[string]any{"ok": true},
	}, nil)
	client.On("Execute", mock.Anything, mocks.ForNode("down")).Return(models.CalculationResponse{}, errors.New("connection refused"))

	f := newFixture(t, client)
	f.save(t, []*models.Node{journal("warn"), journal("down")})

	run, err := f.orch.Run(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)

	assert.Equal(t, map[string]models.NodeStatus{"warn": models.NodeStatusWarning, "down": models.NodeStatusError}, statuses(run))

	warn, _ := run.Result("warn")
	require.Len(t, warn.Alerts, 1)
	assert.Equal(t, "warn", warn.Alerts[0].NodeID, "node id is filled in on node alerts")
	assert.Contains(t, run.Alerts, warn.Alerts[0])

	require.Len(t, run.Errors, 1)
	assert.Equal(t, models.RunError{NodeID: "down", Kind: models.RunErrorDispatch, Message: "connection refused"}, run.Errors[0])

	client.AssertExpectations(t)
}

func TestRun_CallerCancelLetsWaveInFlightFinish(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	var interrupted atomic.Bool

	client := calculation.ClientFunc(func(ctx context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
		if req.NodeID == "a" {
			entered <- struct{}{}
			<-release

			interrupted.Store(ctx.Err() != nil)
		}

		return models.CalculationResponse{Status: models.CalculationOK}, nil
	})

	f := newFixture(t, client)
	f.save(t, []*models.Node{journal("a"), journal("b")}, [2]string{"a", "b"})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	type outcome struct {
		run *models.ExecutionRun
		err error
	}

	done := make(chan outcome, 1)

	go func() {
		run, err := f.orch.Run(ctx, ref, models.RunModeSimulate)
		done <- outcome{run, err}
	}()

	<-entered
	cancel()
	close(release)

	var res outcome

	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	require.NoError(t, res.err)
	assert.False(t, interrupted.Load(), "the call in flight keeps its context")
	assert.Equal(t, models.RunStatusCancelled, res.run.Status)
	assert.Equal(t, map[string]models.NodeStatus{"a": models.NodeStatusOK}, statuses(res.run))
	assert.Equal(t, models.ProcessStatusSimulated, f.process(t).Status)
}

func TestStart_CancelBetweenWaves(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	client := calculation.ClientFunc(func(_ context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
		if req.NodeID == "a" {
			entered <- struct{}{}
			<-release
		}

		return models.CalculationResponse{Status: models.CalculationOK}, nil
	})

	f := newFixture(t, client)
	f.save(t, []*models.Node{journal("a"), journal("b")}, [2]string{"a", "b"})

	started, err := f.orch.Start(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, started.Status)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, started.Waves)

	<-entered

	_, err = f.orch.Start(t.Context(), ref, models.RunModeSimulate)
	assert.True(t, lifecycle.IsProcessBusy(err))

	inFlight, err := f.orch.GetRun(t.Context(), "acme", started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, inFlight.Status)

	require.NoError(t, f.orch.Cancel(t.Context(), "acme", started.ID))
	close(release)

	run, err := f.orch.Wait(t.Context(), "acme", started.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.Equal(t, map[string]models.NodeStatus{"a": models.NodeStatusOK}, statuses(run), "the wave in flight completes")
	assert.Equal(t, models.ProcessStatusSimulated, f.process(t).Status)

	err = f.orch.Cancel(t.Context(), "acme", started.ID)
	assert.True(t, IsRunNotActive(err))

	stored, err := f.orch.Wait(t.Context(), "acme", started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, stored.Status)
}

func TestCancel_OtherCompany(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	client := calculation.ClientFunc(func(context.Context, models.CalculationRequest) (models.CalculationResponse, error) {
		<-release

		return models.CalculationResponse{Status: models.CalculationOK}, nil
	})

	f := newFixture(t, client)
	f.save(t, []*models.Node{journal("a")})

	started, err := f.orch.Start(t.Context(), ref, models.RunModeSimulate)
	require.NoError(t, err)

	err = f.orch.Cancel(t.Context(), "globex", started.ID)
	assert.Error(t, err)

	close(release)

	run, err := f.orch.Wait(t.Context(), "acme", started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	client := calculation.ClientFunc(func(_ context.Context, req models.CalculationRequest) (models.CalculationResponse, error) {
		if req.NodeID == "a" {
			entered <- struct{}{}
			<-release
		}

		return models.CalculationResponse{Status: models.CalculationOK}, nil
	})

	f := newFixture(t, client)
	f.save(t, []*models.Node{journal("a"), journal("b")}, [2]string{"a", "b"})

	started, err := f.orch.Start(t.Context(), ref, models.RunModeFinalize)
	require.NoError(t, err)

	<-entered

	done := make(chan error, 1)

	go func() { done <- f.orch.Shutdown(t.Context()) }()

	require.Eventually(t, func() bool {
		h, ok := f.orch.active("acme", started.ID)

		return ok && h.cancelled.Load()
	}, 5*time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-done)

	stored, err := f.store.RunRepository().GetByID(t.Context(), "acme", started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, stored.Status)
	assert.Equal(t, models.ProcessStatusActive, f.process(t).Status, "cancelled finalization rolls back")
}
