package operations_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/operations"
	"finsight/pkg/contracts/domain"
)

// recordingHub captures every broadcast snapshot
type recordingHub struct {
	mu        sync.Mutex
	snapshots []operations.OperationSnapshot
}

func (h *recordingHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if snap, ok := metadata.(*operations.OperationSnapshot); ok && eventType == operations.EventTypeOperationSnapshot {
		h.snapshots = append(h.snapshots, *snap)
	}
}

func (h *recordingHub) last() operations.OperationSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots[len(h.snapshots)-1]
}

// fakeStep runs a configurable function
type fakeStep struct {
	operations.BaseStage
	run      func(ctx context.Context, state *operations.OperationState) error
	validate func(state *operations.OperationState) error
	calls    atomic.Int32
}

func newFakeStep(id string, deps ...string) *fakeStep {
	return &fakeStep{BaseStage: operations.NewBaseStage(id, "Step "+id, "test step", deps)}
}

func (s *fakeStep) Execute(ctx context.Context, state *operations.OperationState) error {
	s.calls.Add(1)
	if s.run != nil {
		return s.run(ctx, state)
	}
	state.RecordSummary(domain.ProcessingSummary{Stage: s.ID(), InputRecords: 2, OutputRecords: 1})
	return nil
}

func (s *fakeStep) Validate(state *operations.OperationState) error {
	if s.validate != nil {
		return s.validate(state)
	}
	return nil
}

func fastConfig() *operations.Config {
	return operations.NewConfigBuilder().
		WithRetryConfig(operations.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		}).
		Build()
}

func newManager(t *testing.T, steps ...operations.Step) (*operations.Manager, *recordingHub) {
	t.Helper()
	hub := &recordingHub{}
	manager := operations.NewManager(hub, nil, fastConfig(), nil)
	t.Cleanup(manager.GetBroadcaster().Stop)
	for _, step := range steps {
		require.NoError(t, manager.RegisterStage(step))
	}
	return manager, hub
}

func stepStatus(resp *operations.OperationResponse, id string) operations.StepStatus {
	if st, ok := resp.Steps[id]; ok {
		return st.Status
	}
	return ""
}

func TestRegistry(t *testing.T) {
	t.Run("rejects invalid steps", func(t *testing.T) {
		r := operations.NewRegistry()
		assert.Error(t, r.Register(nil))
		assert.Error(t, r.Register(newFakeStep("")))
		assert.Error(t, r.Register(newFakeStep(operations.FullPipeline)))
		require.NoError(t, r.Register(newFakeStep("a")))
		assert.Error(t, r.Register(newFakeStep("a")))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("orders by dependency then registration", func(t *testing.T) {
		r := operations.NewRegistry()
		require.NoError(t, r.Register(newFakeStep("features", "preprocess")))
		require.NoError(t, r.Register(newFakeStep("prepare")))
		require.NoError(t, r.Register(newFakeStep("preprocess", "prepare")))
		require.NoError(t, r.Register(newFakeStep("augment", "prepare")))
		require.NoError(t, r.Register(newFakeStep("ner")))

		ordered, err := r.GetDependencyOrder()
		require.NoError(t, err)
		ids := make([]string, len(ordered))
		for i, s := range ordered {
			ids[i] = s.ID()
		}
		assert.Equal(t, []string{"prepare", "preprocess", "features", "augment", "ner"}, ids)

		dependents := r.GetDependents("prepare")
		require.Len(t, dependents, 2)
		assert.Equal(t, "preprocess", dependents[0].ID())
		assert.Equal(t, "augment", dependents[1].ID())
	})

	t.Run("detects missing dependency and cycles", func(t *testing.T) {
		r := operations.NewRegistry()
		require.NoError(t, r.Register(newFakeStep("a", "missing")))
		assert.Error(t, r.ValidateDependencies())

		r = operations.NewRegistry()
		require.NoError(t, r.Register(newFakeStep("a", "b")))
		require.NoError(t, r.Register(newFakeStep("b", "a")))
		_, err := r.GetDependencyOrder()
		assert.ErrorContains(t, err, "cycle")
	})

	t.Run("types include full pipeline", func(t *testing.T) {
		r := operations.NewRegistry()
		require.NoError(t, r.Register(newFakeStep("a")))
		require.NoError(t, r.Register(newFakeStep("b", "a")))
		types := r.Types()
		require.Len(t, types, 3)
		assert.Equal(t, "b", types[1].ID)
		assert.Equal(t, []string{"a"}, types[1].Dependencies)
		assert.Equal(t, operations.FullPipeline, types[2].ID)
	})

	t.Run("unknown step is not found", func(t *testing.T) {
		_, err := operations.NewRegistry().Get("nope")
		assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
	})
}

func TestManager_ExecuteFullPipeline(t *testing.T) {
	var order []string
	var mu sync.Mutex
	track := func(id string) func(context.Context, *operations.OperationState) error {
		return func(ctx context.Context, state *operations.OperationState) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			state.RecordSummary(domain.ProcessingSummary{Stage: id, InputRecords: 3, OutputRecords: 2})
			return nil
		}
	}
	a, b, c := newFakeStep("a"), newFakeStep("b", "a"), newFakeStep("c", "b")
	a.run, b.run, c.run = track("a"), track("b"), track("c")

	manager, hub := newManager(t, c, b, a)

	var sunk []domain.ProcessingSummary
	manager.SetSummarySink(func(ctx context.Context, list []domain.ProcessingSummary) error {
		sunk = list
		return nil
	})

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "op-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, "op-1", resp.ID)
	require.Len(t, resp.Summaries, 3)
	assert.Equal(t, "c", resp.Summaries[2].Stage)
	assert.Equal(t, resp.Summaries, sunk)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, operations.StepStatusCompleted, stepStatus(resp, id))
	}

	last := hub.last()
	assert.Equal(t, operations.SnapshotCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
	require.Len(t, last.Steps, 3)
	assert.Equal(t, "Step a", last.Steps[0].Name)
	assert.NotNil(t, last.CompletedAt)

	_, err = manager.GetOperation("op-1")
	assert.ErrorIs(t, err, operations.ErrOperationNotFound)
}

func TestManager_FailureSkipsDependents(t *testing.T) {
	boom := errors.New("disk full")
	a := newFakeStep("a")
	a.run = func(context.Context, *operations.OperationState) error { return boom }
	b, c, d := newFakeStep("b", "a"), newFakeStep("c", "b"), newFakeStep("d")

	t.Run("stops by default", func(t *testing.T) {
		manager, _ := newManager(t, a, b, c, d)
		resp, err := manager.Execute(context.Background(), operations.OperationRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, operations.OperationStatusFailed, resp.Status)
		assert.Equal(t, operations.StepStatusFailed, stepStatus(resp, "a"))
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "b"))
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "c"))
		assert.Equal(t, operations.StepStatusPending, stepStatus(resp, "d"))
		assert.Equal(t, int32(1), a.calls.Load(), "plain errors are not retried")
	})

	t.Run("continues independent steps", func(t *testing.T) {
		a2 := newFakeStep("a")
		a2.run = a.run
		d2 := newFakeStep("d")
		manager, _ := newManager(t, a2, newFakeStep("b", "a"), d2)
		manager.GetConfig().ContinueOnError = true

		resp, err := manager.Execute(context.Background(), operations.OperationRequest{})
		require.Error(t, err)
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "b"))
		assert.Equal(t, operations.StepStatusCompleted, stepStatus(resp, "d"))
		assert.Equal(t, int32(1), d2.calls.Load())
	})
}

func TestManager_Retry(t *testing.T) {
	flaky := newFakeStep("flaky")
	flaky.run = func(ctx context.Context, state *operations.OperationState) error {
		if flaky.calls.Load() < 3 {
			return operations.NewExecutionError("flaky", errors.New("transient"), true)
		}
		return nil
	}
	manager, _ := newManager(t, flaky)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{Step: "flaky"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Equal(t, 3, resp.Steps["flaky"].Attempts)

	always := newFakeStep("always")
	always.run = func(context.Context, *operations.OperationState) error {
		return operations.NewExecutionError("always", errors.New("transient"), true)
	}
	manager, _ = newManager(t, always)
	_, err = manager.Execute(context.Background(), operations.OperationRequest{Step: "always"})
	require.Error(t, err)
	assert.Equal(t, int32(3), always.calls.Load())
}

func TestManager_StepTimeout(t *testing.T) {
	slow := newFakeStep("slow")
	slow.run = func(ctx context.Context, state *operations.OperationState) error {
		<-ctx.Done()
		return ctx.Err()
	}
	manager, _ := newManager(t, slow)
	manager.GetConfig().SetStageTimeout("slow", 20*time.Millisecond)
	manager.GetConfig().RetryConfig.MaxAttempts = 2

	start := time.Now()
	_, err := manager.Execute(context.Background(), operations.OperationRequest{Step: "slow"})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeTimeout, operations.GetErrorType(err))
	assert.Equal(t, int32(2), slow.calls.Load(), "timeouts are retried")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestManager_Validation(t *testing.T) {
	missing := func(*operations.OperationState) error { return errors.New("input not found") }

	t.Run("skipped inside a pipeline", func(t *testing.T) {
		a, b := newFakeStep("a"), newFakeStep("b")
		b.validate = missing
		manager, _ := newManager(t, a, b, newFakeStep("c", "b"))

		resp, err := manager.Execute(context.Background(), operations.OperationRequest{Step: operations.FullPipeline})
		require.NoError(t, err)
		assert.Equal(t, operations.StepStatusCompleted, stepStatus(resp, "a"))
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "b"))
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "c"))
		assert.Equal(t, int32(0), b.calls.Load())
	})

	t.Run("fails a single step run", func(t *testing.T) {
		b := newFakeStep("b")
		b.validate = missing
		manager, _ := newManager(t, b)

		resp, err := manager.Execute(context.Background(), operations.OperationRequest{Step: "b"})
		require.Error(t, err)
		assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
		assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	})

	t.Run("unknown step", func(t *testing.T) {
		manager, _ := newManager(t, newFakeStep("a"))
		_, err := manager.Execute(context.Background(), operations.OperationRequest{Step: "zzz"})
		assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
	})
}

func TestManager_CancelOperation(t *testing.T) {
	started := make(chan struct{})
	blocking := newFakeStep("blocking")
	blocking.run = func(ctx context.Context, state *operations.OperationState) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	manager, hub := newManager(t, blocking, newFakeStep("after", "blocking"))

	done := make(chan error, 1)
	var resp *operations.OperationResponse
	go func() {
		var err error
		resp, err = manager.Execute(context.Background(), operations.OperationRequest{ID: "cancel-me"})
		done <- err
	}()

	<-started
	running, err := manager.GetOperation("cancel-me")
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusRunning, running.Status)
	require.Len(t, manager.ListOperations(), 1)

	require.NoError(t, manager.CancelOperation("cancel-me"))
	err = <-done
	assert.Equal(t, operations.ErrorTypeCancellation, operations.GetErrorType(err))
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	assert.Equal(t, int32(1), blocking.calls.Load())
	assert.Equal(t, operations.SnapshotCancelled, hub.last().Status)

	assert.ErrorIs(t, manager.CancelOperation("cancel-me"), operations.ErrOperationNotFound)
}

func TestStatusBroadcaster(t *testing.T) {
	hub := &recordingHub{}
	sb := operations.NewStatusBroadcaster(hub, nil)
	defer sb.Stop()

	sb.CreateOperation("op", []operations.Step{newFakeStep("a"), newFakeStep("b")})
	sb.StartOperation("op")
	sb.StartStep("op", "a", "running a")
	sb.UpdateStepProgress("op", "a", 60, "more")
	sb.UpdateStepProgress("op", "a", 40, "late event")

	snap, ok := sb.GetSnapshot("op")
	require.True(t, ok)
	assert.Equal(t, operations.SnapshotRunning, snap.Status)
	assert.Equal(t, 60, snap.Steps[0].Progress, "progress never moves backwards")
	assert.Equal(t, 30, snap.Progress)
	assert.Equal(t, "Step a", snap.CurrentStep)

	sb.CompleteStep("op", "a", "done", map[string]interface{}{"output_records": 5})
	sb.SkipStep("op", "b", "no input")
	sb.CompleteOperation("op", "finished")

	snap, _ = sb.GetSnapshot("op")
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, operations.SnapshotSkipped, snap.Steps[1].Status)
	assert.Equal(t, 5, snap.Steps[0].Metadata["output_records"])

	snap.Steps[0].Metadata["output_records"] = 99
	again, _ := sb.GetSnapshot("op")
	assert.Equal(t, 5, again.Steps[0].Metadata["output_records"], "snapshots are copies")

	sb.UpdateStepProgress("op", "extra", 150, "unknown step")
	snap, _ = sb.GetSnapshot("op")
	require.Len(t, snap.Steps, 3)
	assert.Equal(t, 100, snap.Steps[2].Progress)

	assert.Equal(t, 0, sb.CleanupOldOperations(time.Hour))
	assert.Equal(t, 1, sb.CleanupOldOperations(-time.Second))
	_, ok = sb.GetSnapshot("op")
	assert.False(t, ok)
	assert.NotEmpty(t, hub.snapshots)
}

func TestErrors(t *testing.T) {
	cause := errors.New("root cause")

	wrapped := operations.WrapError(cause, "prepare", "step execution failed")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "prepare", wrapped.Step)
	assert.False(t, operations.IsRetryable(wrapped))
	assert.Contains(t, wrapped.Error(), "root cause")

	timeout := operations.NewTimeoutError("ner", "1s")
	assert.True(t, operations.IsRetryable(timeout))
	rewrapped := operations.WrapError(timeout, "other", "outer")
	assert.Equal(t, "ner", rewrapped.Step)
	assert.Equal(t, operations.ErrorTypeTimeout, operations.GetErrorType(rewrapped))
	assert.Equal(t, "step exceeded timeout of 1s", timeout.Message, "wrapping does not mutate the original")

	assert.Nil(t, operations.WrapError(nil, "x", "y"))
	assert.Equal(t, operations.ErrorTypeExecution, operations.GetErrorType(cause))
	assert.Equal(t, operations.ErrorType(""), operations.GetErrorType(nil))
	assert.Equal(t, "[cancellation] augment: operation was cancelled", operations.NewCancellationError("augment").Error())
}

func TestOperationState_Summaries(t *testing.T) {
	state := operations.NewOperationState("op")
	state.RecordSummary(domain.ProcessingSummary{Stage: "prepare"})
	first := state.Summaries()
	state.RecordSummary(domain.ProcessingSummary{Stage: "preprocess"})

	assert.Len(t, first, 1)
	assert.Len(t, state.Summaries(), 2)

	clone := state.Clone()
	state.SetConfig("k", "v")
	_, ok := clone.GetConfig("k")
	assert.False(t, ok)
}
