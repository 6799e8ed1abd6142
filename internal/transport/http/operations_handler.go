package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "finsight/internal/errors"
	"finsight/internal/infrastructure"
	"finsight/internal/middleware"
	"finsight/internal/operations"
)

// pollAfterSeconds is the polling interval suggested to clients of
// unfinished jobs
const pollAfterSeconds = 2

// OperationsHandler handles pipeline operation requests
type OperationsHandler struct {
	jobs         JobService
	steps        StepCatalog
	snapshots    SnapshotSource
	validator    *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(jobs JobService, steps StepCatalog, snapshots SnapshotSource, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *OperationsHandler {
	if jobs == nil {
		panic("jobs cannot be nil")
	}
	if steps == nil {
		panic("steps cannot be nil")
	}

	return &OperationsHandler{
		jobs:         jobs,
		steps:        steps,
		snapshots:    snapshots,
		validator:    middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "operations_handler"),
	}
}

// Routes returns the operations routes
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.validator.ValidateRequest)

	r.Get("/types", h.GetOperationTypes)
	r.Post("/", h.StartOperation)
	r.Get("/{id}/status", h.GetOperationStatus)

	// async job endpoints
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJobStatus)
	r.Post("/jobs/{id}/cancel", h.CancelJob)

	return r
}

// StartRequest is the body of POST /api/operations. An empty step runs the
// full pipeline.
type StartRequest struct {
	Step       string                 `json:"step,omitempty" validate:"omitempty,max=64"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// JobResponse is a job with polling hints
type JobResponse struct {
	*operations.Job
	JobID      string `json:"job_id"`
	PollURL    string `json:"poll_url"`
	PollAfter  int    `json:"poll_after,omitempty"`
	IsComplete bool   `json:"is_complete"`
}

func newJobResponse(job *operations.Job) JobResponse {
	resp := JobResponse{
		Job:        job,
		JobID:      job.ID,
		PollURL:    fmt.Sprintf("/api/operations/jobs/%s", job.ID),
		IsComplete: job.Status.IsTerminal(),
	}
	if !resp.IsComplete {
		resp.PollAfter = pollAfterSeconds
	}
	return resp
}

// GetOperationTypes handles GET /api/operations/types
func (h *OperationsHandler) GetOperationTypes(w http.ResponseWriter, r *http.Request) {
	types := h.steps.Types()
	render.JSON(w, r, map[string]interface{}{
		"types": types,
		"count": len(types),
	})
}

// StartOperation handles POST /api/operations. The operation runs on the
// job queue; the response points at the job to poll.
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	ctx, span := otel.Tracer("operations-handler").Start(ctx, "operations_handler.start_operation",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	var req StartRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		h.errorHandler.HandleError(w, r, err)
		return
	}

	job, err := h.jobs.Submit(ctx, operations.OperationRequest{
		Step:       req.Step,
		Parameters: req.Parameters,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		h.errorHandler.HandleError(w, r, submitError(req.Step, err))
		return
	}

	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("operation.id", job.OperationID),
		attribute.String("operation.step", job.StepID),
	)
	h.logger.InfoContext(ctx, "operation submitted",
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("step", job.StepID),
		slog.String("request_id", reqID))

	w.Header().Set("Location", fmt.Sprintf("/api/operations/jobs/%s", job.ID))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, newJobResponse(job))
}

// submitError maps queue and planning failures onto API errors
func submitError(step string, err error) error {
	if errors.Is(err, operations.ErrQueueFull) {
		return apierrors.NewWithDetails(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"job queue is full, retry later", nil)
	}
	switch operations.GetErrorType(err) {
	case operations.ErrorTypeNotFound:
		return apierrors.ErrValidation("step", fmt.Sprintf("unknown step %q", step))
	case operations.ErrorTypeValidation, operations.ErrorTypeDependency:
		return apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
	}
	return apierrors.ErrOperationExecution(err)
}

// GetJobStatus handles GET /api/operations/jobs/{id}
func (h *OperationsHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")
	ctx, span := otel.Tracer("operations-handler").Start(ctx, "operations_handler.get_job_status",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations/jobs/{id}"),
			attribute.String("job.id", jobID),
		),
	)
	defer span.End()

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		span.SetStatus(codes.Error, "job not found")
		h.logger.DebugContext(ctx, "job not found", slog.String("job_id", jobID))
		h.errorHandler.HandleError(w, r, apierrors.ErrJobNotFound)
		return
	}

	span.SetAttributes(
		attribute.String("job.status", string(job.Status)),
		attribute.Int("job.progress", job.Progress),
	)
	render.JSON(w, r, newJobResponse(job))
}

// CancelJob handles POST /api/operations/jobs/{id}/cancel
func (h *OperationsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrJobNotFound)
		return
	}
	if job.Status.IsTerminal() {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusConflict, "CONFLICT",
			fmt.Sprintf("job is already %s", job.Status), map[string]string{"job_id": job.ID}))
		return
	}

	job, err = h.jobs.CancelJob(jobID)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrOperationExecution(err))
		return
	}

	h.logger.InfoContext(ctx, "job cancellation requested",
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("request_id", middleware.GetRequestID(ctx)))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, newJobResponse(job))
}

// ListJobs handles GET /api/operations/jobs
func (h *OperationsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status", []string{
		string(operations.JobStatusPending),
		string(operations.JobStatusRunning),
		string(operations.JobStatusCompleted),
		string(operations.JobStatusFailed),
		string(operations.JobStatusCancelled),
	}, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 500, 50)
	if !ok {
		return
	}

	jobs, err := h.jobs.ListJobs(operations.JobFilter{
		Status: operations.JobStatus(status),
		StepID: r.URL.Query().Get("step"),
		Limit:  limit,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrOperationExecution(err))
		return
	}

	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, newJobResponse(job))
	}
	render.JSON(w, r, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
		"queue": h.jobs.GetQueueStats(),
	})
}

// GetOperationStatus handles GET /api/operations/{id}/status
func (h *OperationsHandler) GetOperationStatus(w http.ResponseWriter, r *http.Request) {
	operationID := chi.URLParam(r, "id")
	if h.snapshots == nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrServiceUnavailable)
		return
	}

	snapshot, ok := h.snapshots.GetSnapshot(operationID)
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("operation"))
		return
	}
	render.JSON(w, r, snapshot)
}
