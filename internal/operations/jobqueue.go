package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"finsight/internal/infrastructure"
	"finsight/pkg/contracts/domain"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the job can no longer change
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents an async operation job
type Job struct {
	ID          string                     `json:"id"`
	OperationID string                     `json:"operation_id"`
	StepID      string                     `json:"step_id"`
	StepName    string                     `json:"step_name"`
	Status      JobStatus                  `json:"status"`
	Progress    int                        `json:"progress"`
	Message     string                     `json:"message,omitempty"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	StartedAt   *time.Time                 `json:"started_at,omitempty"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
	TraceID     string                     `json:"trace_id,omitempty"`
	Summaries   []domain.ProcessingSummary `json:"summaries,omitempty"`
	Request     *OperationRequest          `json:"request,omitempty"`
}

// JobStore interface for job persistence
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error
}

// JobFilter for querying jobs
type JobFilter struct {
	Status      JobStatus
	OperationID string
	StepID      string
	Since       time.Time
	Limit       int
}

// JobQueue runs operations asynchronously on a fixed worker pool
type JobQueue struct {
	mu       sync.RWMutex
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	active   map[string]string // job ID to operation ID
}

// NewJobQueue creates a new job queue
func NewJobQueue(workers int, store JobStore, manager *Manager, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 2
	}
	if store == nil {
		store = NewMemoryJobStore()
	}

	return &JobQueue{
		jobs:     make(chan *Job, workers*8),
		workers:  workers,
		store:    store,
		manager:  manager,
		logger:   infrastructure.WithComponent(logger, "jobqueue"),
		shutdown: make(chan struct{}),
		active:   make(map[string]string),
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// StartJanitor periodically drops finished jobs and snapshots older than maxAge
func (q *JobQueue) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.shutdown:
				return
			case <-ticker.C:
				q.cleanup(maxAge)
			}
		}
	}()
}

func (q *JobQueue) cleanup(maxAge time.Duration) {
	snapshots := q.manager.GetBroadcaster().CleanupOldOperations(maxAge)
	jobs := 0
	if cleaner, ok := q.store.(interface {
		CleanupOldJobs(time.Duration) (int, error)
	}); ok {
		n, err := cleaner.CleanupOldJobs(maxAge)
		if err != nil {
			q.logger.Warn("job cleanup failed", slog.String("error", err.Error()))
		}
		jobs = n
	}
	if jobs > 0 || snapshots > 0 {
		q.logger.Info("cleaned up finished jobs",
			slog.Int("jobs", jobs),
			slog.Int("snapshots", snapshots))
	}
}

// Stop gracefully shuts down the job queue
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")
	q.stopOnce.Do(func() { close(q.shutdown) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-timer.C:
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Submit creates a job for req and enqueues it
func (q *JobQueue) Submit(ctx context.Context, req OperationRequest) (*Job, error) {
	steps, err := q.manager.Plan(req)
	if err != nil {
		return nil, err
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	job := &Job{
		ID:          uuid.New().String(),
		OperationID: req.ID,
		StepID:      req.Step,
		StepName:    steps[0].Name(),
		TraceID:     middleware.GetReqID(ctx),
		Request:     &req,
	}
	if req.IsFullPipeline() {
		job.StepID = FullPipeline
		job.StepName = "Full Pipeline"
	}

	q.manager.GetBroadcaster().CreateOperation(req.ID, steps)
	if err := q.Enqueue(job); err != nil {
		return nil, err
	}
	return q.store.GetJob(job.ID)
}

// Enqueue stores a job and adds it to the queue
func (q *JobQueue) Enqueue(job *Job) error {
	job.Status = JobStatusPending
	job.CreatedAt = time.Now()
	job.Message = "Job queued"

	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	queued := *job
	select {
	case q.jobs <- &queued:
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("step_id", job.StepID))
		return nil
	default:
		job.Status = JobStatusFailed
		job.Error = ErrQueueFull.Error()
		now := time.Now()
		job.CompletedAt = &now
		if err := q.store.UpdateJob(job); err != nil {
			q.logger.Error("failed to update rejected job", slog.String("error", err.Error()))
		}
		q.manager.GetBroadcaster().FailOperation(job.OperationID, ErrQueueFull)
		return ErrQueueFull
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) (*Job, error) {
	job, err := q.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, NewFatalError(fmt.Sprintf("job %s cannot be cancelled (status: %s)", id, job.Status), nil)
	}

	if job.Status == JobStatusRunning {
		// the worker records the cancelled outcome
		if err := q.manager.CancelOperation(job.OperationID); err != nil && err != ErrOperationNotFound {
			return job, err
		}
		return job, nil
	}

	job.Status = JobStatusCancelled
	job.Message = "Job cancelled"
	now := time.Now()
	job.CompletedAt = &now
	if err := q.store.UpdateJob(job); err != nil {
		return job, err
	}
	q.manager.GetBroadcaster().CancelOperation(job.OperationID)
	return job, nil
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

// processJob executes a single job through the manager
func (q *JobQueue) processJob(ctx context.Context, job *Job, logger *slog.Logger) {
	if current, err := q.store.GetJob(job.ID); err == nil && current.Status == JobStatusCancelled {
		logger.Info("skipping cancelled job", slog.String("job_id", job.ID))
		return
	}

	if job.TraceID != "" {
		ctx = context.WithValue(ctx, middleware.RequestIDKey, job.TraceID)
		ctx = infrastructure.WithTraceID(ctx, job.TraceID)
	}
	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("step_id", job.StepID))
	logger.InfoContext(ctx, "processing job started")

	q.mu.Lock()
	q.active[job.ID] = job.OperationID
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))
			q.finishJob(job, JobStatusFailed, "Internal error occurred", fmt.Sprintf("job processing panicked: %v", r), logger)
			q.manager.GetBroadcaster().FailOperation(job.OperationID, fmt.Errorf("internal error"))
		}
		q.mu.Lock()
		delete(q.active, job.ID)
		q.mu.Unlock()
	}()

	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Message = "Job started"
	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}

	req := OperationRequest{ID: job.OperationID}
	if job.Request != nil {
		req = *job.Request
		req.ID = job.OperationID
	}
	resp, err := q.manager.Execute(ctx, req)
	if resp != nil {
		job.Summaries = resp.Summaries
	}

	switch {
	case err == nil:
		q.finishJob(job, JobStatusCompleted, "Job completed successfully", "", logger)
		logger.InfoContext(ctx, "processing job completed")
	case GetErrorType(err) == ErrorTypeCancellation:
		q.finishJob(job, JobStatusCancelled, "Job cancelled", "", logger)
		logger.InfoContext(ctx, "processing job cancelled")
	default:
		q.finishJob(job, JobStatusFailed, "Job failed", err.Error(), logger)
		logger.ErrorContext(ctx, "job failed", slog.String("error", err.Error()))
	}
}

func (q *JobQueue) finishJob(job *Job, status JobStatus, message, errMsg string, logger *slog.Logger) {
	job.Status = status
	job.Message = message
	job.Error = errMsg
	if status == JobStatusCompleted {
		job.Progress = 100
	} else if snapshot, ok := q.manager.GetBroadcaster().GetSnapshot(job.OperationID); ok {
		job.Progress = snapshot.Progress
	}
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job", slog.String("error", err.Error()))
	}
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.RLock()
	activeCount := len(q.active)
	q.mu.RUnlock()

	return map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}
}
