package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/shared/testutil"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline exceeded", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"wrapped cancel", fmt.Errorf("job: %w", context.Canceled), http.StatusGatewayTimeout, TypeTimeout},
		{"api validation", ErrValidation("text", "required"), http.StatusBadRequest, TypeValidation},
		{"job not found", ErrJobNotFound, http.StatusNotFound, TypeJobNotFound},
		{"catalog not found", ErrCatalogNotFound, http.StatusNotFound, TypeCatalogNotFound},
		{"rate limited", ErrRateLimitExceeded, http.StatusTooManyRequests, TypeRateLimit},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, TypePayloadTooLarge},
		{"plain not found", fmt.Errorf("step xyz not found"), http.StatusNotFound, TypeNotFound},
		{"already running", fmt.Errorf("operation already running"), http.StatusConflict, TypeOperationRunning},
		{"unknown", fmt.Errorf("disk exploded"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)

			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			rec := httptest.NewRecorder()
			handler.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, "/api/test", body["instance"])
			assert.NotContains(t, body, "stack")
			testutil.AssertLogContains(t, logs, slog.LevelError, "request failed")
		})
	}
}

func TestErrorHandler_NilErrorWritesNothing(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	handler.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, 0, rec.Body.Len())
	assert.Equal(t, 0, logs.Count())
}

func TestErrorHandler_IncludesStackWhenEnabled(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, true)

	rec := httptest.NewRecorder()
	handler.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("boom"))

	body := decodeProblem(t, rec)
	assert.Contains(t, body, "stack")
}

func TestErrorHandler_APIErrorDetails(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	handler.HandleError(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", nil), ErrValidation("confidence", "max"))

	body := decodeProblem(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, details["errors"], 1)
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	handler.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "DELETE"))
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	handler.HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/", nil), "kaboom")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "kaboom")
	testutil.AssertLogContains(t, logs, slog.LevelError, "panic recovered")
}
