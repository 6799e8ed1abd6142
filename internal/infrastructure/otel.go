package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"finsight/internal/config"
)

const (
	ServiceVersion = "1.0.0"
	MeterName      = "finsight"
)

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel initializes tracing and metrics from the telemetry configuration.
// Disabled signals fall back to no-op implementations so callers never nil-check.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = MeterName
	}

	ctx := context.Background()
	logger.InfoContext(ctx, "initializing opentelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	)

	providers := &OTelProviders{
		Logger: logger,
		Tracer: otel.Tracer(MeterName),
		Meter:  noop.NewMeterProvider().Meter(MeterName),
	}

	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return providers, nil
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout", "":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(ServiceVersion))
	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))
	return nil
}

// initializeMetrics wires a Prometheus reader into a dedicated registry
func initializeMetrics(ctx context.Context, res *resource.Resource, providers *OTelProviders) error {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))
	otel.SetMeterProvider(mp)

	providers.Logger.InfoContext(ctx, "metrics initialized", slog.String("exporter", "prometheus"))
	return nil
}

// Shutdown gracefully shuts down OpenTelemetry providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	p.Logger.InfoContext(ctx, "opentelemetry shutdown complete")
	return nil
}

// PipelineMetrics holds the dataset pipeline instruments
type PipelineMetrics struct {
	RecordsRead       metric.Int64Counter
	RecordsWritten    metric.Int64Counter
	DuplicatesDropped metric.Int64Counter
	InvalidRecords    metric.Int64Counter
	StageDuration     metric.Float64Histogram

	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	OperationExecutionsTotal  metric.Int64Counter
	OperationActiveOperations metric.Int64UpDownCounter
	OperationErrors           metric.Int64Counter

	WebSocketClients  metric.Int64UpDownCounter
	WebSocketMessages metric.Int64Counter
	WebSocketDropped  metric.Int64Counter
}

// NewPipelineMetrics creates the application metrics on the given meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	m := &PipelineMetrics{}
	var err error

	if m.RecordsRead, err = meter.Int64Counter("records_read_total",
		metric.WithDescription("Records read by pipeline stages")); err != nil {
		return nil, err
	}
	if m.RecordsWritten, err = meter.Int64Counter("records_written_total",
		metric.WithDescription("Records written by pipeline stages")); err != nil {
		return nil, err
	}
	if m.DuplicatesDropped, err = meter.Int64Counter("duplicates_dropped_total",
		metric.WithDescription("Records dropped as duplicates")); err != nil {
		return nil, err
	}
	if m.InvalidRecords, err = meter.Int64Counter("invalid_records_total",
		metric.WithDescription("Malformed or rejected records")); err != nil {
		return nil, err
	}
	if m.StageDuration, err = meter.Float64Histogram("stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.OperationExecutionsTotal, err = meter.Int64Counter("operation_executions_total",
		metric.WithDescription("Total number of operation executions")); err != nil {
		return nil, err
	}
	if m.OperationActiveOperations, err = meter.Int64UpDownCounter("operation_active_operations",
		metric.WithDescription("Number of active operations")); err != nil {
		return nil, err
	}
	if m.OperationErrors, err = meter.Int64Counter("operation_errors_total",
		metric.WithDescription("Total number of operation errors")); err != nil {
		return nil, err
	}
	if m.WebSocketClients, err = meter.Int64UpDownCounter("websocket_clients",
		metric.WithDescription("Connected WebSocket clients")); err != nil {
		return nil, err
	}
	if m.WebSocketMessages, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages delivered to WebSocket clients")); err != nil {
		return nil, err
	}
	if m.WebSocketDropped, err = meter.Int64Counter("websocket_clients_dropped_total",
		metric.WithDescription("Clients disconnected because their send buffer was full")); err != nil {
		return nil, err
	}

	return m, nil
}

// StageCounts is what a stage reports after a run
type StageCounts struct {
	Read       int
	Written    int
	Duplicates int
	Invalid    int
}

// RecordStage records counters and duration for one stage run
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, counts StageCounts, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.RecordsRead.Add(ctx, int64(counts.Read), attrs)
	m.RecordsWritten.Add(ctx, int64(counts.Written), attrs)
	m.DuplicatesDropped.Add(ctx, int64(counts.Duplicates), attrs)
	m.InvalidRecords.Add(ctx, int64(counts.Invalid), attrs)

	status := "success"
	if !success {
		status = "failure"
	}
	m.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordOperation records one operation execution
func (m *PipelineMetrics) RecordOperation(ctx context.Context, operationType string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation.type", operationType))
	m.OperationExecutionsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.OperationErrors.Add(ctx, 1, attrs)
	}
}

// RecordActiveOperationChange records changes in active operation count
func (m *PipelineMetrics) RecordActiveOperationChange(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.OperationActiveOperations.Add(ctx, delta)
}

// RecordHTTPRequest records one served request
func (m *PipelineMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordWebSocketClientChange records a client connecting (+1) or leaving (-1)
func (m *PipelineMetrics) RecordWebSocketClientChange(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.WebSocketClients.Add(ctx, delta)
}

// RecordWebSocketBroadcast records the outcome of one broadcast
func (m *PipelineMetrics) RecordWebSocketBroadcast(ctx context.Context, eventType string, delivered, dropped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("event.type", eventType))
	m.WebSocketMessages.Add(ctx, int64(delivered), attrs)
	if dropped > 0 {
		m.WebSocketDropped.Add(ctx, int64(dropped), attrs)
	}
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts the span trace ID for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// StartSpan starts a span on the global tracer
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(MeterName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
