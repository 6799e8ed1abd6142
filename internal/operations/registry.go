package operations

import (
	"fmt"
	"sync"
)

// Registry manages registered operation steps
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string // registration order
}

// NewRegistry creates a new step registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
		order: make([]string, 0),
	}
}

// Register adds a step to the registry
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}

	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}
	if id == FullPipeline {
		return fmt.Errorf("step ID %s is reserved", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step with ID %s already registered", id)
	}

	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a step by ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		return nil, NewStepNotFoundError(id)
	}
	return step, nil
}

// Has checks if a step is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.steps[id]
	return exists
}

// List returns all registered steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// ListIDs returns all registered step IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.steps)
}

// GetDependencyOrder returns steps ordered so that every step follows its
// dependencies. Among ready steps the earliest registered runs first.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %s depends on non-existent step %s", id, dep)
			}
		}
	}

	placed := make(map[string]bool, len(r.steps))
	ordered := make([]Step, 0, len(r.steps))
	for len(ordered) < len(r.order) {
		progressed := false
		for _, id := range r.order {
			if placed[id] || !r.ready(id, placed) {
				continue
			}
			placed[id] = true
			ordered = append(ordered, r.steps[id])
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("dependency cycle detected")
		}
	}

	return ordered, nil
}

func (r *Registry) ready(id string, placed map[string]bool) bool {
	for _, dep := range r.steps[id].GetDependencies() {
		if !placed[dep] {
			return false
		}
	}
	return true
}

// ValidateDependencies checks that every dependency exists and that there
// are no cycles
func (r *Registry) ValidateDependencies() error {
	_, err := r.GetDependencyOrder()
	return err
}

// GetDependents returns steps that depend directly on the given step
func (r *Registry) GetDependents(stepID string) []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make([]Step, 0)
	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if dep == stepID {
				dependents = append(dependents, r.steps[id])
				break
			}
		}
	}
	return dependents
}

// Types describes every registered step for API clients
func (r *Registry) Types() []OperationType {
	steps := r.List()
	types := make([]OperationType, 0, len(steps)+1)
	for _, step := range steps {
		types = append(types, OperationType{
			ID:           step.ID(),
			Name:         step.Name(),
			Description:  step.Description(),
			Dependencies: step.GetDependencies(),
			CanRunAlone:  true,
			Parameters:   step.Parameters(),
		})
	}
	if len(steps) > 1 {
		types = append(types, OperationType{
			ID:           FullPipeline,
			Name:         "Full Pipeline",
			Description:  "Runs every step in dependency order",
			Dependencies: []string{},
			CanRunAlone:  true,
			Parameters:   []ParameterDefinition{},
		})
	}
	return types
}
