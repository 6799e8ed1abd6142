package operations

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Step represents a single unit of work in an operation
type Step interface {
	// ID returns the unique identifier for this step
	ID() string

	// Name returns the human-readable name for this step
	Name() string

	// Description explains what the step produces
	Description() string

	// Execute runs the step with the given context and operation state
	Execute(ctx context.Context, state *OperationState) error

	// Validate checks if the step can be executed with the current state
	Validate(state *OperationState) error

	// GetDependencies returns the IDs of steps that must complete before this step
	GetDependencies() []string

	// Parameters lists the request parameters the step reads
	Parameters() []ParameterDefinition
}

// StepStatus represents the current status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState represents the runtime state of a step
type StepState struct {
	mu        sync.RWMutex
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Attempts  int                    `json:"attempts"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a new step state with default values
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step as active for a new attempt
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.EndTime = nil
	s.Status = StepStatusActive
	s.Attempts++
	s.Progress = 0
	s.Error = ""
}

// Complete marks the step as completed and sets the end time
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
	s.Progress = 100
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}

// Skip marks the step as skipped with the given reason
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusSkipped
	s.Message = reason
}

// UpdateProgress updates the step progress and message
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Progress = progress
	s.Message = message
}

// SetMetadata stores a metadata value
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// CurrentStatus returns the status under the state lock
func (s *StepState) CurrentStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// MetadataCopy returns a copy of the metadata map
func (s *StepState) MetadataCopy() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		out[k] = v
	}
	return out
}

// Duration returns the duration of the step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

func (s *StepState) clone() *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &StepState{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Attempts:  s.Attempts,
		Progress:  s.Progress,
		Message:   s.Message,
		Error:     s.Error,
		Metadata:  make(map[string]interface{}, len(s.Metadata)),
	}
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// BaseStage provides common functionality for step implementations
type BaseStage struct {
	id           string
	name         string
	description  string
	dependencies []string
	parameters   []ParameterDefinition
}

// NewBaseStage creates a new base step
func NewBaseStage(id, name, description string, dependencies []string, parameters ...ParameterDefinition) BaseStage {
	if dependencies == nil {
		dependencies = []string{}
	}
	return BaseStage{
		id:           id,
		name:         name,
		description:  description,
		dependencies: dependencies,
		parameters:   parameters,
	}
}

// ID returns the step ID
func (b *BaseStage) ID() string {
	return b.id
}

// Name returns the step name
func (b *BaseStage) Name() string {
	return b.name
}

// Description returns the step description
func (b *BaseStage) Description() string {
	return b.description
}

// GetDependencies returns the step dependencies
func (b *BaseStage) GetDependencies() []string {
	return b.dependencies
}

// Parameters returns the request parameters the step reads
func (b *BaseStage) Parameters() []ParameterDefinition {
	if b.parameters == nil {
		return []ParameterDefinition{}
	}
	return b.parameters
}

// Validate provides a default validation that always passes
func (b *BaseStage) Validate(state *OperationState) error {
	if state == nil {
		return fmt.Errorf("operation state is nil")
	}
	return nil
}
