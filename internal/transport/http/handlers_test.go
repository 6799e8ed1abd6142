package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/config"
	apierrors "finsight/internal/errors"
	"finsight/internal/extract"
	"finsight/internal/insight"
	"finsight/internal/middleware"
	"finsight/internal/operations"
	"finsight/internal/services"
	"finsight/internal/shared/testutil"
)

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*operations.Job
	submitErr error
	submitted []operations.OperationRequest
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*operations.Job)}
}

func (f *fakeJobs) Submit(_ context.Context, req operations.OperationRequest) (*operations.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	job := &operations.Job{
		ID:          fmt.Sprintf("job-%d", len(f.jobs)+1),
		OperationID: fmt.Sprintf("op-%d", len(f.jobs)+1),
		StepID:      req.Step,
		Status:      operations.JobStatusPending,
		CreatedAt:   time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetJob(id string) (*operations.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) CancelJob(id string) (*operations.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Status = operations.JobStatusCancelled
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) ListJobs(filter operations.JobFilter) ([]*operations.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*operations.Job
	for _, job := range f.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (f *fakeJobs) GetQueueStats() map[string]interface{} {
	return map[string]interface{}{"workers": 1}
}

type fakeSteps struct{}

func (fakeSteps) Types() []operations.OperationType {
	return []operations.OperationType{
		{ID: operations.StepIDPrepare, Name: "Prepare", CanRunAlone: true},
		{ID: operations.StepIDPreprocess, Name: "Preprocess", Dependencies: []string{operations.StepIDPrepare}},
	}
}

type fakeSnapshots map[string]*operations.OperationSnapshot

func (f fakeSnapshots) GetSnapshot(id string) (*operations.OperationSnapshot, bool) {
	s, ok := f[id]
	return s, ok
}

type testServer struct {
	router *chi.Mux
	jobs   *fakeJobs
	root   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	errorHandler := apierrors.NewErrorHandler(logger, false)
	root := t.TempDir()
	paths := &config.Paths{DataDir: root, CatalogFile: root + "/DATA_SOURCES.md"}

	jobs := newFakeJobs()
	snapshots := fakeSnapshots{"op-live": {OperationID: "op-live", Status: "running", Progress: 40}}
	registry := extract.NewRegistry()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/api/operations", NewOperationsHandler(jobs, fakeSteps{}, snapshots, errorHandler, logger).Routes())
	r.Mount("/api/datasets", NewDataHandler(services.NewDatasetService(paths, logger), logger, errorHandler).Routes())
	r.Post("/api/analyze", NewAnalyzeHandler(insight.NewAnalyzer(registry, logger), registry, 1<<20, errorHandler, logger).Analyze)

	health := NewHealthHandler(services.NewHealthService(paths, nil, jobs, logger), logger)
	r.Get("/healthz", health.HealthCheck)
	r.Get("/readyz", health.ReadinessCheck)
	r.Handle("/metrics", NewMetricsHandler(nil, errorHandler))

	return &testServer{router: r, jobs: jobs, root: root}
}

func (s *testServer) do(t *testing.T, method, target string, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestOperationsHandler_Start(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/operations", `{"step":"prepare","parameters":{"dedup":false}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "op-1", body["operation_id"])
	assert.Equal(t, "/api/operations/jobs/job-1", body["poll_url"])
	assert.Equal(t, float64(pollAfterSeconds), body["poll_after"])
	assert.Equal(t, false, body["is_complete"])
	assert.Equal(t, "/api/operations/jobs/job-1", rec.Header().Get("Location"))

	require.Len(t, s.jobs.submitted, 1)
	assert.Equal(t, "prepare", s.jobs.submitted[0].Step)
	assert.Equal(t, false, s.jobs.submitted[0].Parameters["dedup"])

	// an empty body runs the full pipeline
	rec, _ = s.do(t, http.MethodPost, "/api/operations", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "", s.jobs.submitted[1].Step)
}

func TestOperationsHandler_StartErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"invalid json", nil, `{"step":`, http.StatusBadRequest},
		{"step too long", nil, `{"step":"` + strings.Repeat("x", 65) + `"}`, http.StatusBadRequest},
		{"unknown step", operations.NewStepNotFoundError("nope"), `{"step":"nope"}`, http.StatusBadRequest},
		{"bad parameter", operations.NewValidationError("augment", "ratio must be in [0,1]"), `{"step":"augment"}`, http.StatusBadRequest},
		{"queue full", operations.ErrQueueFull, `{}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.jobs.submitErr = tt.err
			rec, body := s.do(t, http.MethodPost, "/api/operations", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, body["trace_id"])
		})
	}
}

func TestOperationsHandler_Jobs(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/operations", `{"step":"prepare"}`)

	rec, body := s.do(t, http.MethodGet, "/api/operations/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body["status"])

	rec, body = s.do(t, http.MethodGet, "/api/operations/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeJobNotFound, body["type"])

	rec, body = s.do(t, http.MethodGet, "/api/operations/jobs?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = s.do(t, http.MethodGet, "/api/operations/jobs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/operations/jobs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/operations/jobs/job-1/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, true, body["is_complete"])

	rec, _ = s.do(t, http.MethodPost, "/api/operations/jobs/job-1/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOperationsHandler_TypesAndStatus(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/operations/types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, body = s.do(t, http.MethodGet, "/api/operations/op-live/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(40), body["progress"])

	rec, _ = s.do(t, http.MethodGet, "/api/operations/op-gone/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDataHandler(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/datasets", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeCatalogNotFound, body["type"])

	testutil.WriteFile(t, s.root, "DATA_SOURCES.md", `# Data Sources

| Dataset | Source | Format | Description |
|---|---|---|---|
| Market news | https://example.com/news | HTML | Daily headlines |

| Stage | Input file | Input records | Output records | Output path |
|---|---|---|---|---|
| prepare | data/raw | 3 | 2 | data/processed/merged_dataset.jsonl |
| preprocess | data/processed/merged_dataset.jsonl | 5 | 2 | data/processed/preprocessed_dataset.jsonl |
`)

	rec, body = s.do(t, http.MethodGet, "/api/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["datasets"], 1)
	assert.Len(t, body["summaries"], 2)

	rec, body = s.do(t, http.MethodGet, "/api/datasets/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["consistent"])
	issues := body["issues"].([]interface{})
	require.Len(t, issues, 1)
	assert.Equal(t, "chain_mismatch", issues[0].(map[string]interface{})["kind"])

	rec, _ = s.do(t, http.MethodGet, "/api/datasets/check?verify=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeHandler_JSON(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/analyze",
		`{"text":"<p>The dividend yield is <b>4.1%</b>.</p>","entities":["dividend_yield"],"events":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entities := body["entities"].(map[string]interface{})
	require.Len(t, entities["dividend_yield"], 1)

	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"entities":["EPS"]}`},
		{"confidence out of range", `{"text":"x","confidence":1.5}`},
		{"unknown entity", `{"text":"x","entities":["weather"]}`},
		{"bad date", `{"text":"x","from":"01/02/2024"}`},
		{"reversed time frame", `{"text":"x","from":"2024-05-01","to":"2024-01-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, apierrors.TypeValidation, body["type"])
		})
	}
}

func multipartRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeHandler_Upload(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.serve(t, multipartRequest(t, "report.html",
		"<html><body><p>The dividend yield is <b>4.1%</b>.</p></body></html>",
		map[string]string{"entities": "dividend_yield", "events": ""}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entities := body["entities"].(map[string]interface{})
	assert.Len(t, entities["dividend_yield"], 1)

	rec, body = s.serve(t, multipartRequest(t, "payload.exe", "MZ", nil))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, body["details"].(map[string]interface{})["supported"], ".pdf")

	rec, _ = s.serve(t, multipartRequest(t, "report.txt", "text", map[string]string{"confidence": "high"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := multipartRequest(t, "big.txt", strings.Repeat("a", 2<<20), nil)
	rec, _ = s.serve(t, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.StatusOK, body["status"])

	// no websocket hub is attached
	rec, body = s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, services.StatusNotReady, body["status"])

	rec, _ = s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
