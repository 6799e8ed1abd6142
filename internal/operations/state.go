package operations

import (
	"fmt"
	"sync"
	"time"

	"finsight/pkg/contracts/domain"
)

// OperationStatusValue represents the overall operation status enum
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState represents the complete state of an operation execution
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`

	// Context passes data between steps
	Context map[string]interface{} `json:"context"`

	// Config holds the request parameters
	Config map[string]interface{} `json:"config"`

	Error string `json:"error,omitempty"`
}

// NewOperationState creates a new operation state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	p.finish(OperationStatusCompleted, nil)
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	p.finish(OperationStatusFailed, err)
}

// Cancel marks the operation as cancelled
func (p *OperationState) Cancel() {
	p.finish(OperationStatusCancelled, nil)
}

func (p *OperationState) finish(status OperationStatusValue, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = status
	if err != nil {
		p.Error = err.Error()
	}
}

// CurrentStatus returns the status under the state lock
func (p *OperationState) CurrentStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a specific step
func (p *OperationState) GetStage(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stepID]
}

// SetStage updates the state of a specific step
func (p *OperationState) SetStage(stepID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stepID] = state
}

// GetContext retrieves a value from the operation context
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext sets a value in the operation context
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// GetConfig retrieves a configuration value
func (p *OperationState) GetConfig(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Config[key]
	return val, ok
}

// SetConfig sets a configuration value
func (p *OperationState) SetConfig(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config[key] = value
}

// RecordSummary appends a stage summary to the operation context
func (p *OperationState) RecordSummary(summary domain.ProcessingSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, _ := p.Context[ContextKeySummaries].([]domain.ProcessingSummary)
	next := make([]domain.ProcessingSummary, len(prev), len(prev)+1)
	copy(next, prev)
	p.Context[ContextKeySummaries] = append(next, summary)
}

// Summaries returns the stage summaries recorded so far in execution order
func (p *OperationState) Summaries() []domain.ProcessingSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	list, _ := p.Context[ContextKeySummaries].([]domain.ProcessingSummary)
	out := make([]domain.ProcessingSummary, len(list))
	copy(out, list)
	return out
}

// Duration returns the duration of the operation execution
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// HasFailures returns true if any step has failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		if step.CurrentStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the operation state
func (p *OperationState) Clone() *OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := &OperationState{
		ID:        p.ID,
		Status:    p.Status,
		StartTime: p.StartTime,
		Steps:     make(map[string]*StepState, len(p.Steps)),
		Context:   make(map[string]interface{}, len(p.Context)),
		Config:    make(map[string]interface{}, len(p.Config)),
		Error:     p.Error,
	}
	if p.EndTime != nil {
		endTime := *p.EndTime
		clone.EndTime = &endTime
	}
	for k, v := range p.Steps {
		clone.Steps[k] = v.clone()
	}
	for k, v := range p.Context {
		clone.Context[k] = v
	}
	for k, v := range p.Config {
		clone.Config[k] = v
	}
	return clone
}

// Request parameter accessors. JSON numbers arrive as float64.

func (p *OperationState) configBool(key string, def bool) (bool, error) {
	v, ok := p.GetConfig(key)
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("parameter %s must be a boolean", key)
	}
	return b, nil
}

func (p *OperationState) configFloat(key string, def float64) (float64, error) {
	v, ok := p.GetConfig(key)
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return def, fmt.Errorf("parameter %s must be a number", key)
}

func (p *OperationState) configInt(key string, def int) (int, error) {
	f, err := p.configFloat(key, float64(def))
	if err != nil {
		return def, err
	}
	if f != float64(int(f)) {
		return def, fmt.Errorf("parameter %s must be an integer", key)
	}
	return int(f), nil
}

func (p *OperationState) configString(key, def string) (string, error) {
	v, ok := p.GetConfig(key)
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("parameter %s must be a string", key)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}
