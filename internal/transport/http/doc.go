// Package http implements the HTTP handlers of the finsight web service.
// Handlers stay thin: they decode and validate the request, call a service
// or the job queue, and render JSON. Failures are rendered as RFC 7807
// problem details through errors.ErrorHandler.
//
// # Endpoints
//
//	POST /api/operations                    submit a pipeline run or a single step
//	GET  /api/operations/types              registered steps and their parameters
//	GET  /api/operations/{id}/status        live progress snapshot
//	GET  /api/operations/jobs               list jobs (?status=, ?step=, ?limit=)
//	GET  /api/operations/jobs/{id}          poll one job
//	POST /api/operations/jobs/{id}/cancel   cancel a pending or running job
//	GET  /api/datasets                      parsed dataset catalog
//	GET  /api/datasets/check                catalog consistency (?verify=true)
//	POST /api/analyze                       insight extraction, JSON or multipart
//	GET  /healthz, /readyz, /api/version
//
// # Asynchronous operations
//
// Operations never run on the request goroutine. StartOperation answers
// 202 Accepted with a job and polling hints:
//
//	{
//	  "job_id": "...",
//	  "operation_id": "...",
//	  "status": "pending",
//	  "poll_url": "/api/operations/jobs/...",
//	  "poll_after": 2,
//	  "is_complete": false
//	}
//
// Progress is also pushed to websocket clients as operation snapshots.
//
// # Errors
//
//	400 validation failures and unknown steps
//	404 unknown jobs, operations or a missing catalog
//	409 cancelling a finished job
//	413 oversized uploads
//	503 job queue full
package http
