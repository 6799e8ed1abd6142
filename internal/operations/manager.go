package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/infrastructure"
	"finsight/pkg/contracts/domain"
)

// SummarySink receives the stage summaries of a finished operation
type SummarySink func(ctx context.Context, summaries []domain.ProcessingSummary) error

// Manager orchestrates operation execution
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	metrics     *infrastructure.PipelineMetrics
	logger      *slog.Logger
	sink        SummarySink

	mu         sync.RWMutex
	operations map[string]*runningOperation
}

type runningOperation struct {
	state  *OperationState
	cancel context.CancelFunc
}

// NewManager creates a new operation manager
func NewManager(hub WebSocketHub, registry *Registry, config *Config, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	logger = infrastructure.WithComponent(logger, "operations")

	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(hub, logger),
		logger:      logger,
		operations:  make(map[string]*runningOperation),
	}
}

// SetMetrics attaches pipeline metrics
func (m *Manager) SetMetrics(metrics *infrastructure.PipelineMetrics) {
	m.metrics = metrics
}

// SetSummarySink registers a callback for the summaries of finished operations
func (m *Manager) SetSummarySink(sink SummarySink) {
	m.sink = sink
}

// RegisterStage registers a step with the operation
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the registry for accessing registered steps
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetBroadcaster returns the status broadcaster
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Plan returns the steps a request would run, in execution order
func (m *Manager) Plan(req OperationRequest) ([]Step, error) {
	if req.IsFullPipeline() {
		steps, err := m.registry.GetDependencyOrder()
		if err != nil {
			return nil, NewFatalError("failed to get dependency order", err)
		}
		if len(steps) == 0 {
			return nil, NewFatalError("no steps registered", nil)
		}
		return steps, nil
	}
	step, err := m.registry.Get(req.Step)
	if err != nil {
		return nil, err
	}
	return []Step{step}, nil
}

// Execute runs an operation with the given request and blocks until it
// finishes. The response is returned even when the operation failed.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	state := NewOperationState(req.ID)
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	steps, err := m.Plan(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		return m.createResponse(state), err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := m.storeOperation(state, cancel); err != nil {
		return m.createResponse(state), err
	}
	defer m.removeOperation(req.ID)

	operationType := FullPipeline
	if !req.IsFullPipeline() {
		operationType = req.Step
	}
	ctx, span := infrastructure.StartSpan(ctx, "operation.execute",
		attribute.String("operation.id", req.ID),
		attribute.String("operation.type", operationType),
		attribute.Int("operation.steps", len(steps)))
	defer span.End()
	m.metrics.RecordActiveOperationChange(ctx, 1)
	defer m.metrics.RecordActiveOperationChange(ctx, -1)

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.broadcaster.CreateOperation(req.ID, steps)

	m.logOperationStart(ctx, req, operationType, len(steps))
	state.Start()
	m.broadcaster.StartOperation(req.ID)

	err = m.executeSequential(ctx, state, steps)

	switch {
	case err == nil:
		state.Complete()
		m.broadcaster.CompleteOperation(req.ID, "Operation completed successfully")
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel()
		m.broadcaster.CancelOperation(req.ID)
	default:
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
		infrastructure.RecordError(ctx, err)
	}
	m.metrics.RecordOperation(ctx, operationType, err)

	if summaries := state.Summaries(); m.sink != nil && len(summaries) > 0 {
		if sinkErr := m.sink(ctx, summaries); sinkErr != nil {
			m.logger.WarnContext(ctx, "summary_export_failed",
				slog.String("operation_id", req.ID),
				slog.String("error", sinkErr.Error()))
		}
	}

	m.logOperationComplete(ctx, req.ID, state.Duration(), string(state.CurrentStatus()))
	return m.createResponse(state), err
}

// executeSequential runs steps one by one. A failed step skips its
// dependents; independent steps keep running only with ContinueOnError.
// In a multi-step run a step whose inputs are missing is skipped rather
// than failing the operation.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	var firstErr error
	for i, step := range steps {
		stepState := state.GetStage(step.ID())

		if ctx.Err() != nil {
			m.logger.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			return NewCancellationError(step.ID())
		}
		if stepState.CurrentStatus() == StepStatusSkipped {
			continue
		}

		if err := m.checkDependencies(state, step); err != nil {
			m.skipStep(ctx, state, step, err.Error())
			continue
		}

		if err := step.Validate(state); err != nil {
			m.skipStep(ctx, state, step, fmt.Sprintf("Validation failed: %v", err))
			if len(steps) > 1 {
				continue
			}
			return NewValidationError(step.ID(), err.Error())
		}

		m.logger.InfoContext(ctx, "executing_step",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("step_number", i+1),
			slog.Int("total_steps", len(steps)))

		err := m.executeStage(ctx, state, step)
		if err == nil {
			continue
		}
		if GetErrorType(err) == ErrorTypeCancellation {
			return err
		}

		m.logStageError(ctx, state.ID, step.ID(), err)
		m.skipDependentStages(ctx, state, steps, step.ID())
		if firstErr == nil {
			firstErr = err
		}
		if !m.config.ContinueOnError {
			return firstErr
		}
	}
	return firstErr
}

// executeStage executes a single step with retry logic
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("step state for %s not found", step.ID()), nil)
	}

	ctx, span := infrastructure.StartSpan(ctx, "operation.step",
		attribute.String("operation.id", state.ID),
		attribute.String("step.id", step.ID()))
	defer span.End()

	timeout := m.config.GetStageTimeout(step.ID())
	retry := m.config.RetryConfig

	for attempt := 1; ; attempt++ {
		stepState.Start()
		m.broadcaster.StartStep(state.ID, step.ID(), fmt.Sprintf("Running %s", step.Name()))
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := step.Execute(stepCtx, state)
		timedOut := errors.Is(stepCtx.Err(), context.DeadlineExceeded)
		cancel()
		duration := time.Since(start)

		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), "Step completed successfully", stepState.MetadataCopy())
			m.logStageComplete(ctx, state.ID, step.ID(), duration)
			return nil
		}

		if ctx.Err() != nil {
			cancelErr := NewCancellationError(step.ID())
			stepState.Fail(cancelErr)
			m.broadcaster.FailStep(state.ID, step.ID(), cancelErr)
			return cancelErr
		}
		if timedOut {
			timeoutErr := NewTimeoutError(step.ID(), timeout.String())
			timeoutErr.Cause = err
			err = timeoutErr
		}

		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			infrastructure.RecordError(ctx, err)
			return WrapError(err, step.ID(), "step execution failed")
		}

		delay := m.calculateRetryDelay(attempt, retry)
		m.logger.WarnContext(ctx, "step_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			cancelErr := NewCancellationError(step.ID())
			stepState.Fail(cancelErr)
			m.broadcaster.FailStep(state.ID, step.ID(), cancelErr)
			return cancelErr
		}
	}
}

func (m *Manager) skipStep(ctx context.Context, state *OperationState, step Step, reason string) {
	if st := state.GetStage(step.ID()); st != nil {
		st.Skip(reason)
	}
	m.broadcaster.SkipStep(state.ID, step.ID(), reason)
	m.logger.InfoContext(ctx, "step_skipped",
		slog.String("operation_id", state.ID),
		slog.String("step", step.ID()),
		slog.String("reason", reason))
}

// skipDependentStages marks every pending step that depends on the failed
// step, directly or transitively, as skipped
func (m *Manager) skipDependentStages(ctx context.Context, state *OperationState, steps []Step, failedID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedID {
				continue
			}
			st := state.GetStage(step.ID())
			if st != nil && st.CurrentStatus() == StepStatusPending {
				m.skipStep(ctx, state, step, fmt.Sprintf("Dependency %s failed", failedID))
				m.skipDependentStages(ctx, state, steps, step.ID())
			}
			break
		}
	}
}

// checkDependencies verifies that dependencies taking part in this run have
// completed. Dependencies outside the run are left to the step's Validate.
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			continue
		}
		if status := depState.CurrentStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

// calculateRetryDelay grows the delay exponentially from InitialDelay
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	snapshot := state.Clone()
	return &OperationResponse{
		ID:        snapshot.ID,
		Status:    snapshot.Status,
		Duration:  state.Duration(),
		Steps:     snapshot.Steps,
		Summaries: state.Summaries(),
		Error:     snapshot.Error,
	}
}

// GetOperation retrieves a copy of a running operation's state
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, exists := m.operations[id]
	if !exists {
		return nil, ErrOperationNotFound
	}
	return op.state.Clone(), nil
}

// ListOperations returns copies of all running operations
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make([]*OperationState, 0, len(m.operations))
	for _, op := range m.operations {
		operations = append(operations, op.state.Clone())
	}
	return operations
}

// CancelOperation cancels a running operation. The operation finishes its
// current attempt boundary and reports cancelled.
func (m *Manager) CancelOperation(id string) error {
	m.mu.RLock()
	op, exists := m.operations[id]
	m.mu.RUnlock()

	if !exists {
		return ErrOperationNotFound
	}
	if op.state.CurrentStatus() != OperationStatusRunning {
		return ErrOperationNotRunning
	}
	op.cancel()
	return nil
}

func (m *Manager) storeOperation(state *OperationState, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.operations[state.ID]; exists {
		return NewFatalError(fmt.Sprintf("operation %s is already running", state.ID), nil)
	}
	m.operations[state.ID] = &runningOperation{state: state, cancel: cancel}
	return nil
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}

func (m *Manager) logOperationStart(ctx context.Context, req OperationRequest, operationType string, steps int) {
	m.logger.InfoContext(ctx, "operation_start",
		slog.String("operation_id", req.ID),
		slog.String("type", operationType),
		slog.Int("step_count", steps),
		slog.Any("parameters", req.Parameters))
}

func (m *Manager) logOperationComplete(ctx context.Context, operationID string, duration time.Duration, status string) {
	m.logger.InfoContext(ctx, "operation_complete",
		slog.String("operation_id", operationID),
		slog.String("status", status),
		slog.Duration("duration", duration))
}

func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	m.logger.ErrorContext(ctx, "operation_error",
		slog.String("operation_id", operationID),
		slog.String("error", err.Error()))
}

func (m *Manager) logStageStart(ctx context.Context, operationID, stepID string, attempt int) {
	m.logger.InfoContext(ctx, "step_start",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt))
}

func (m *Manager) logStageComplete(ctx context.Context, operationID, stepID string, duration time.Duration) {
	m.logger.InfoContext(ctx, "step_complete",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

func (m *Manager) logStageError(ctx context.Context, operationID, stepID string, err error) {
	m.logger.ErrorContext(ctx, "step_error",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("error", err.Error()))
}
