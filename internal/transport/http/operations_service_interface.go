package http

import (
	"context"

	"finsight/internal/operations"
)

// JobService is the asynchronous execution surface used by OperationsHandler.
// *operations.JobQueue implements it.
type JobService interface {
	Submit(ctx context.Context, req operations.OperationRequest) (*operations.Job, error)
	GetJob(id string) (*operations.Job, error)
	CancelJob(id string) (*operations.Job, error)
	ListJobs(filter operations.JobFilter) ([]*operations.Job, error)
	GetQueueStats() map[string]interface{}
}

// StepCatalog lists the registered pipeline steps.
// *operations.Registry implements it.
type StepCatalog interface {
	Types() []operations.OperationType
}

// SnapshotSource returns live progress snapshots.
// *operations.StatusBroadcaster implements it.
type SnapshotSource interface {
	GetSnapshot(operationID string) (*operations.OperationSnapshot, bool)
}
