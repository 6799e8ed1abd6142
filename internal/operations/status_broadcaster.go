package operations

import (
	"log/slog"
	"sync"
	"time"

	"finsight/internal/infrastructure"
)

// Snapshot status values
const (
	SnapshotPending   = "pending"
	SnapshotRunning   = "running"
	SnapshotCompleted = "completed"
	SnapshotFailed    = "failed"
	SnapshotSkipped   = "skipped"
	SnapshotCancelled = "cancelled"
)

// StatusBroadcaster is the single authority for operation status updates.
// It keeps the latest snapshot of every operation and broadcasts each change.
type StatusBroadcaster struct {
	mu         sync.RWMutex
	operations map[string]*OperationSnapshot
	hub        WebSocketHub
	logger     *slog.Logger
	updates    chan updateRequest
	stop       chan struct{}
	stopOnce   sync.Once
}

// OperationSnapshot represents the complete state of an operation at a point in time
type OperationSnapshot struct {
	OperationID string         `json:"operation_id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"` // 0-100
	CurrentStep string         `json:"current_step"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"` // 0-100
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type updateRequest struct {
	operationID string
	updateFunc  func(*OperationSnapshot)
	done        chan struct{}
}

// NewStatusBroadcaster creates a new status broadcaster
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	sb := &StatusBroadcaster{
		operations: make(map[string]*OperationSnapshot),
		hub:        hub,
		logger:     infrastructure.WithComponent(logger, "status_broadcaster"),
		updates:    make(chan updateRequest, 100),
		stop:       make(chan struct{}),
	}

	go sb.processUpdates()

	return sb
}

// processUpdates applies updates one at a time so snapshots never interleave
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	snapshot, exists := sb.operations[req.operationID]
	if !exists {
		now := time.Now()
		snapshot = &OperationSnapshot{
			OperationID: req.operationID,
			Status:      SnapshotPending,
			StartedAt:   now,
			UpdatedAt:   now,
			Steps:       []StepSnapshot{},
		}
		sb.operations[req.operationID] = snapshot
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			total += step.Progress
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}

	if isTerminal(snapshot.Status) && snapshot.CompletedAt == nil {
		now := time.Now()
		snapshot.CompletedAt = &now
	}

	out := snapshot.clone()
	sb.mu.Unlock()

	sb.broadcast(out)
}

func isTerminal(status string) bool {
	return status == SnapshotCompleted || status == SnapshotFailed || status == SnapshotCancelled
}

// broadcast sends the complete snapshot to all connected clients
func (sb *StatusBroadcaster) broadcast(snapshot *OperationSnapshot) {
	if sb.hub == nil {
		return
	}

	sb.logger.Debug("broadcasting operation snapshot",
		slog.String("operation_id", snapshot.OperationID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep))

	sb.hub.BroadcastUpdate(EventTypeOperationSnapshot, snapshot.OperationID, snapshot.Status, snapshot)
}

// UpdateStatus applies updateFunc to the operation snapshot and waits until
// it has been broadcast. Updates after Stop are dropped.
func (sb *StatusBroadcaster) UpdateStatus(operationID string, updateFunc func(*OperationSnapshot)) {
	req := updateRequest{
		operationID: operationID,
		updateFunc:  updateFunc,
		done:        make(chan struct{}),
	}

	select {
	case sb.updates <- req:
	case <-sb.stop:
		return
	}
	select {
	case <-req.done:
	case <-sb.stop:
	}
}

// CreateOperation resets an operation snapshot to the given pending steps
func (sb *StatusBroadcaster) CreateOperation(operationID string, steps []Step) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = SnapshotPending
		snapshot.Progress = 0
		snapshot.CurrentStep = ""
		snapshot.CompletedAt = nil
		snapshot.Error = ""
		snapshot.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: SnapshotPending,
			}
		}
		snapshot.Message = "Operation created"
	})
}

// StartOperation marks an operation as running
func (sb *StatusBroadcaster) StartOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = SnapshotRunning
		snapshot.Message = "Operation started"
	})
}

// StartStep marks a step as running
func (sb *StatusBroadcaster) StartStep(operationID, stepID string, message string) {
	sb.updateStep(operationID, stepID, func(snapshot *OperationSnapshot, step *StepSnapshot) {
		step.Status = SnapshotRunning
		step.Progress = 0
		step.Error = ""
		step.Message = message
		snapshot.CurrentStep = step.Name
	})
}

// UpdateStepProgress updates a running step's progress. Progress never moves
// backwards while the step is running.
func (sb *StatusBroadcaster) UpdateStepProgress(operationID, stepID string, progress int, message string) {
	progress = min(max(progress, 0), 100)
	sb.updateStep(operationID, stepID, func(snapshot *OperationSnapshot, step *StepSnapshot) {
		if step.Status != SnapshotRunning || progress > step.Progress {
			step.Progress = progress
		}
		step.Status = SnapshotRunning
		step.Message = message
		snapshot.CurrentStep = step.Name
	})
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(operationID, stepID string, message string, metadata map[string]interface{}) {
	sb.updateStep(operationID, stepID, func(snapshot *OperationSnapshot, step *StepSnapshot) {
		step.Status = SnapshotCompleted
		step.Progress = 100
		step.Message = message
		if metadata != nil {
			step.Metadata = metadata
		}
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(operationID, stepID string, err error) {
	sb.updateStep(operationID, stepID, func(snapshot *OperationSnapshot, step *StepSnapshot) {
		step.Status = SnapshotFailed
		if err != nil {
			step.Error = err.Error()
		}
	})
}

// SkipStep marks a step as skipped. Skipped steps count as done for overall progress.
func (sb *StatusBroadcaster) SkipStep(operationID, stepID string, reason string) {
	sb.updateStep(operationID, stepID, func(snapshot *OperationSnapshot, step *StepSnapshot) {
		step.Status = SnapshotSkipped
		step.Progress = 100
		step.Message = reason
	})
}

// updateStep finds the step by ID, appending it when the operation was
// created without it
func (sb *StatusBroadcaster) updateStep(operationID, stepID string, apply func(*OperationSnapshot, *StepSnapshot)) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				apply(snapshot, &snapshot.Steps[i])
				return
			}
		}
		snapshot.Steps = append(snapshot.Steps, StepSnapshot{ID: stepID, Name: stepID, Status: SnapshotPending})
		apply(snapshot, &snapshot.Steps[len(snapshot.Steps)-1])
	})
}

// CompleteOperation marks an operation as completed
func (sb *StatusBroadcaster) CompleteOperation(operationID string, message string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = SnapshotCompleted
		snapshot.CurrentStep = ""
		snapshot.Message = message
	})
}

// FailOperation marks an operation as failed
func (sb *StatusBroadcaster) FailOperation(operationID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = SnapshotFailed
		if err != nil {
			snapshot.Error = err.Error()
		}
		snapshot.CurrentStep = ""
	})
}

// CancelOperation marks an operation as cancelled
func (sb *StatusBroadcaster) CancelOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = SnapshotCancelled
		snapshot.CurrentStep = ""
		snapshot.Message = "Operation cancelled by user"
	})
}

// GetSnapshot returns a copy of the current snapshot for an operation
func (sb *StatusBroadcaster) GetSnapshot(operationID string) (*OperationSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.operations[operationID]
	if !exists {
		return nil, false
	}
	return snapshot.clone(), true
}

// GetAllSnapshots returns copies of all operation snapshots
func (sb *StatusBroadcaster) GetAllSnapshots() []*OperationSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshots := make([]*OperationSnapshot, 0, len(sb.operations))
	for _, snapshot := range sb.operations {
		snapshots = append(snapshots, snapshot.clone())
	}
	return snapshots
}

// CleanupOldOperations removes finished operations older than maxAge and
// returns how many were removed
func (sb *StatusBroadcaster) CleanupOldOperations(maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, snapshot := range sb.operations {
		if !isTerminal(snapshot.Status) || snapshot.CompletedAt == nil {
			continue
		}
		if age := now.Sub(*snapshot.CompletedAt); age > maxAge {
			delete(sb.operations, id)
			removed++
			sb.logger.Debug("cleaned up old operation",
				slog.String("operation_id", id),
				slog.String("status", snapshot.Status),
				slog.Duration("age", age))
		}
	}
	return removed
}

// Stop shuts down the broadcaster
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}

func (s *OperationSnapshot) clone() *OperationSnapshot {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Steps = make([]StepSnapshot, len(s.Steps))
	for i, step := range s.Steps {
		c.Steps[i] = step
		if step.Metadata != nil {
			c.Steps[i].Metadata = make(map[string]interface{}, len(step.Metadata))
			for k, v := range step.Metadata {
				c.Steps[i].Metadata[k] = v
			}
		}
	}
	return &c
}
