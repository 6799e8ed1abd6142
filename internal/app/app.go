package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"finsight/internal/config"
	apierrors "finsight/internal/errors"
	"finsight/internal/extract"
	"finsight/internal/infrastructure"
	"finsight/internal/insight"
	customMiddleware "finsight/internal/middleware"
	"finsight/internal/operations"
	"finsight/internal/services"
	handlers "finsight/internal/transport/http"
	ws "finsight/internal/websocket"
	"finsight/pkg/contracts"
)

const (
	AppName = "finsight"

	// finished jobs and snapshots are kept this long for polling clients
	jobRetention    = time.Hour
	janitorInterval = 10 * time.Minute
)

// Application represents the main application container
type Application struct {
	Config         *config.Config
	Paths          *config.Paths
	Router         *chi.Mux
	Server         *http.Server
	Logger         *slog.Logger
	OTelProviders  *infrastructure.OTelProviders
	Metrics        *infrastructure.PipelineMetrics
	ErrorHandler   *apierrors.ErrorHandler
	WebSocketHub   *ws.Hub
	Manager        *operations.Manager
	JobQueue       *operations.JobQueue
	Extractors     *extract.Registry
	Analyzer       *insight.Analyzer
	HealthService  *services.HealthService
	DatasetService *services.DatasetService
}

// NewApplication wires every component for cfg. Nothing runs until Start.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version))

	paths := config.NewPaths(cfg.Paths)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.NewPipelineMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the hub, the operation manager with every
// pipeline step, the job queue and the read-only services
func (a *Application) initializeServices() error {
	a.WebSocketHub = ws.NewHub(a.Logger, a.Metrics)
	a.Extractors = extract.NewRegistry()

	opConfig := operations.NewConfig()
	for id, timeout := range opConfig.StageTimeouts {
		if limit := a.Config.Server.OperationTimeout; limit > 0 && timeout > limit {
			opConfig.SetStageTimeout(id, limit)
		}
	}

	a.Manager = operations.NewManager(a.WebSocketHub, nil, opConfig, a.Logger)
	a.Manager.SetMetrics(a.Metrics)
	a.Manager.SetSummarySink(operations.NewSummaryCSVSink(a.Paths, a.Logger))
	if err := operations.RegisterPipelineSteps(a.Manager.GetRegistry(), operations.StageDeps{
		Config:     a.Config,
		Paths:      a.Paths,
		Extractors: a.Extractors,
		Metrics:    a.Metrics,
		Logger:     a.Logger,
	}); err != nil {
		return fmt.Errorf("failed to register pipeline steps: %w", err)
	}

	a.JobQueue = operations.NewJobQueue(a.Config.Server.JobWorkers, operations.NewMemoryJobStore(), a.Manager, a.Logger)
	a.Analyzer = insight.NewAnalyzer(a.Extractors, a.Logger)
	a.HealthService = services.NewHealthService(a.Paths, a.WebSocketHub, a.JobQueue, a.Logger)
	a.DatasetService = services.NewDatasetService(a.Paths, a.Logger)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// the websocket route shares this chain, so every wrapper here must
	// keep http.Hijacker working
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
	r.Use(apierrors.RecoveryMiddleware(a.ErrorHandler))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
		ExposedHeaders: []string{customMiddleware.RequestIDHeader, "Location", "Retry-After"},
	}))

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	health := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Get("/healthz", health.HealthCheck)
		r.Get("/readyz", health.ReadinessCheck)
		r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.ErrorHandler))
	})

	r.Handle("/ws", ws.NewHandler(a.WebSocketHub, nil, a.Logger))

	a.setupAPIRoutes(r)
	a.Router = r
}

func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(apierrors.NewErrorMiddleware(a.ErrorHandler, a.Logger).Handler)
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Server.RateLimitRPS,
			a.Config.Server.RateLimitBurst,
			a.ErrorHandler,
			a.Logger,
		).Handler)
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout))

		r.Get("/version", handlers.NewHealthHandler(a.HealthService, a.Logger).Version)

		r.Mount("/operations", handlers.NewOperationsHandler(
			a.JobQueue,
			a.Manager.GetRegistry(),
			a.Manager.GetBroadcaster(),
			a.ErrorHandler,
			a.Logger,
		).Routes())

		r.Mount("/datasets", handlers.NewDataHandler(a.DatasetService, a.Logger, a.ErrorHandler).Routes())

		r.Post("/analyze", handlers.NewAnalyzeHandler(
			a.Analyzer,
			a.Extractors,
			a.Config.Server.MaxUploadBytes,
			a.ErrorHandler,
			a.Logger,
		).Analyze)
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// startBackground runs the hub, the job workers and the janitor
func (a *Application) startBackground(ctx context.Context) {
	a.WebSocketHub.Start()
	a.JobQueue.Start(ctx)
	a.JobQueue.StartJanitor(ctx, janitorInterval, jobRetention)
}

// Start starts the background services and the HTTP server. A listener
// failure calls cancel so Run can shut down.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("data_dir", a.Paths.DataDir),
		slog.Int("job_workers", a.Config.Server.JobWorkers))

	a.startBackground(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("server shutdown error: %w", err)
	}

	// running operations observe cancellation between records
	for _, state := range a.Manager.ListOperations() {
		if err := a.Manager.CancelOperation(state.ID); err != nil {
			a.Logger.DebugContext(ctx, "operation not cancelled",
				slog.String("operation_id", state.ID),
				slog.String("error", err.Error()))
		}
	}
	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "failed to stop job queue gracefully", slog.String("error", err.Error()))
	}
	a.Manager.GetBroadcaster().Stop()
	a.WebSocketHub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "server stopped unexpectedly")
	}

	// the run context may already be cancelled; shutdown gets its own
	return a.Stop(context.Background())
}
