// Package cli holds the bootstrap shared by the finsight command line tools:
// configuration, logging, telemetry and an operation manager with every
// pipeline step registered.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"finsight/internal/config"
	"finsight/internal/extract"
	"finsight/internal/infrastructure"
	"finsight/internal/operations"
	"finsight/pkg/contracts"
)

// Runtime is everything a command needs to run pipeline steps
type Runtime struct {
	Config     *config.Config
	Paths      *config.Paths
	Logger     *slog.Logger
	Metrics    *infrastructure.PipelineMetrics
	Extractors *extract.Registry
	Manager    *operations.Manager

	otel *infrastructure.OTelProviders
}

// Common are the flags every command accepts
type Common struct {
	ConfigFile string
	DataDir    string
	LogLevel   string
	Version    bool
}

// Register adds the common flags to fs
func (c *Common) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", "", "YAML config file (defaults to config.yaml or configs/config.yaml)")
	fs.StringVar(&c.DataDir, "data", "", "data directory (overrides paths.data_dir)")
	fs.StringVar(&c.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVar(&c.Version, "version", false, "print version and exit")
}

// PrintVersion prints the version line of tool when -version was given
func (c *Common) PrintVersion(w io.Writer, tool string) bool {
	if !c.Version {
		return false
	}
	fmt.Fprintln(w, contracts.GetFullVersionString(tool))
	return true
}

// LoadConfig reads the configuration and applies the common overrides
func (c *Common) LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.ConfigFile != "" {
		if !config.FileExists(c.ConfigFile) {
			return nil, fmt.Errorf("config file %s not found", c.ConfigFile)
		}
		cfg, err = config.LoadFrom(c.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if c.DataDir != "" {
		cfg.Paths.DataDir = c.DataDir
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	return cfg, nil
}

// NewRuntime initializes logging and telemetry for a command and registers
// the pipeline steps. Metrics stay in-process; nothing scrapes a CLI.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	paths := config.NewPaths(cfg.Paths)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	telemetry := cfg.Telemetry
	telemetry.EnableMetrics = false
	providers, err := infrastructure.InitializeOTel(telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	rt := &Runtime{
		Config:     cfg,
		Paths:      paths,
		Logger:     logger,
		Metrics:    metrics,
		Extractors: extract.NewRegistry(),
		otel:       providers,
	}

	rt.Manager = operations.NewManager(nil, nil, operations.NewConfig(), logger)
	rt.Manager.SetMetrics(metrics)
	rt.Manager.SetSummarySink(operations.NewSummaryCSVSink(paths, logger))
	if err := operations.RegisterPipelineSteps(rt.Manager.GetRegistry(), operations.StageDeps{
		Config:     cfg,
		Paths:      paths,
		Extractors: rt.Extractors,
		Metrics:    metrics,
		Logger:     logger,
	}); err != nil {
		return nil, fmt.Errorf("failed to register pipeline steps: %w", err)
	}
	return rt, nil
}

// NewLogger initializes the global logger. Console logging goes to stderr
// because stdout carries the command's JSON result.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	if cfg.Output == "" || cfg.Output == "console" {
		cfg.Output = "stderr"
	}
	logger, err := infrastructure.InitializeLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// RunStep executes one step, or the whole pipeline for an empty step, and
// writes the operation response to out as JSON
func (r *Runtime) RunStep(ctx context.Context, step string, params map[string]interface{}, out io.Writer) error {
	resp, err := r.Manager.Execute(ctx, operations.OperationRequest{
		Step:       step,
		Parameters: params,
	})
	if resp != nil {
		if encErr := WriteJSON(out, resp); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}

// Close flushes telemetry and closes the log file
func (r *Runtime) Close() {
	if err := r.otel.Shutdown(context.Background()); err != nil {
		r.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		slog.Warn("failed to close log file", "error", err)
	}
}

// SignalContext is cancelled on interrupt or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// SetParams returns the values of the flags that were given on the command
// line, keyed by the parameter name in names. Unset flags are left to the
// step defaults.
func SetParams(fs *flag.FlagSet, names map[string]string) map[string]interface{} {
	params := make(map[string]interface{})
	fs.Visit(func(f *flag.Flag) {
		param, ok := names[f.Name]
		if !ok {
			return
		}
		if getter, ok := f.Value.(flag.Getter); ok {
			params[param] = getter.Get()
		}
	})
	return params
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
