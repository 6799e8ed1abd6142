package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/config"
)

func testTelemetryConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		ServiceName:   "finsight-test",
		Environment:   "test",
		EnableMetrics: true,
		EnableTracing: false,
		TraceExporter: "none",
		SampleRatio:   1.0,
	}
}

func TestOTelInitialization(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	providers, err := InitializeOTel(testTelemetryConfig(), logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.EnableTracing = true
	cfg.TraceExporter = "jaeger"

	_, err := InitializeOTel(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestPipelineMetricsExposedOnPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(testTelemetryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordStage(ctx, "prepare", StageCounts{Read: 10, Written: 8, Duplicates: 2}, 150*time.Millisecond, true)
	metrics.RecordOperation(ctx, "full_pipeline", nil)
	metrics.RecordHTTPRequest(ctx, http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "records_read_total")
	assert.Contains(t, body, "duplicates_dropped_total")
	assert.Contains(t, body, "stage_duration_seconds")
	assert.Contains(t, body, `stage="prepare"`)
}

func TestNilPipelineMetricsIsSafe(t *testing.T) {
	var metrics *PipelineMetrics
	assert.NotPanics(t, func() {
		metrics.RecordStage(context.Background(), "prepare", StageCounts{}, time.Second, false)
		metrics.RecordOperation(context.Background(), "x", assert.AnError)
		metrics.RecordActiveOperationChange(context.Background(), 1)
	})
}

func TestNoopMeterWhenMetricsDisabled(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.EnableMetrics = false

	providers, err := InitializeOTel(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Nil(t, providers.PrometheusHTTP)

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.RecordStage(context.Background(), "features", StageCounts{Read: 1}, time.Second, true)
}

func TestTraceIDFromContextWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
