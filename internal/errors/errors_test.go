package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"invalid request", InvalidRequestWithError(fmt.Errorf("bad json")), http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format"},
		{"field validation", ErrValidation("text", "required"), http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed"},
		{"not found", NotFoundError("job abc"), http.StatusNotFound, "NOT_FOUND", "job abc not found"},
		{"execution", ErrOperationExecution(fmt.Errorf("boom")), http.StatusInternalServerError, "OPERATION_EXECUTION_FAILED", "operation execution failed"},
		{"filesystem", FileSystemError("read catalog", fmt.Errorf("denied")), http.StatusInternalServerError, "FILESYSTEM_ERROR", "File system error during read catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestAPIErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrJobNotFound)

	var apiErr *APIError
	require.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestValidationErrorsDetails(t *testing.T) {
	err := NewValidationErrors([]ValidationError{
		{Field: "confidence", Message: "must be <= 1"},
		{Field: "text", Message: "required"},
	})

	data, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	var decoded struct {
		Details ValidationErrors `json:"details"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Details.Errors, 2)
	assert.Equal(t, "confidence", decoded.Details.Errors[0].Field)
}

func TestProblemDetailsMarshalFlattensExtensions(t *testing.T) {
	problem := NewProblemDetails(http.StatusNotFound, TypeJobNotFound, "Not Found", "job x not found", "/api/operations/jobs/x").
		WithExtension("trace_id", "req-1")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeJobNotFound, decoded["type"])
	assert.Equal(t, float64(http.StatusNotFound), decoded["status"])
	assert.Equal(t, "req-1", decoded["trace_id"])
	assert.Equal(t, "/api/operations/jobs/x", decoded["instance"])
}

func TestProblemDetailsExtensionsCannotOverrideStandardMembers(t *testing.T) {
	problem := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Bad Request", "", "").
		WithExtension("status", 200)

	data, err := json.Marshal(problem)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":400`)
	assert.NotContains(t, string(data), `"detail"`)
}
