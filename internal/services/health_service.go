package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"finsight/internal/config"
	"finsight/internal/infrastructure"
	"finsight/pkg/contracts"
)

// HubStats is the part of the websocket hub the health checks read
type HubStats interface {
	ClientCount() int
}

// QueueStats is the part of the job queue the health checks read
type QueueStats interface {
	GetQueueStats() map[string]interface{}
}

// HealthService provides health check functionality
type HealthService struct {
	paths     *config.Paths
	hub       HubStats
	queue     QueueStats
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Health states
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// NewHealthService creates a health service. hub and queue may be nil
// for the command line tools; readiness then reports them as not ready.
func NewHealthService(paths *config.Paths, hub HubStats, queue QueueStats, logger *slog.Logger) *HealthService {
	return &HealthService{
		paths:     paths,
		hub:       hub,
		queue:     queue,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health"),
	}
}

// HealthCheck returns the liveness status with runtime details
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check",
		slog.Duration("uptime", time.Since(hs.startTime)))

	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck checks every dependency the API needs
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"data":      hs.checkDataHealth(),
			"websocket": hs.checkWebSocketHealth(),
			"jobs":      hs.checkQueueHealth(),
		},
	}

	for name, service := range status.Services {
		if service.Status != StatusReady {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("service", name),
				slog.String("message", service.Message))
		}
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "websocket hub not attached"}
	}
	return ServiceHealth{
		Status:  StatusReady,
		Details: map[string]interface{}{"clients": hs.hub.ClientCount()},
	}
}

func (hs *HealthService) checkQueueHealth() ServiceHealth {
	if hs.queue == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "job queue not attached"}
	}
	return ServiceHealth{Status: StatusReady, Details: hs.queue.GetQueueStats()}
}

// checkDataHealth checks the data directory exists and is writable
func (hs *HealthService) checkDataHealth() ServiceHealth {
	dataDir := hs.paths.DataDir
	if !config.DirExists(dataDir) {
		return ServiceHealth{
			Status:  StatusNotReady,
			Message: fmt.Sprintf("data directory not found: %s", dataDir),
		}
	}

	probe, err := os.CreateTemp(dataDir, ".health-*")
	if err != nil {
		return ServiceHealth{
			Status:  StatusNotReady,
			Message: fmt.Sprintf("cannot write to data directory: %v", err),
		}
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return ServiceHealth{
		Status:  StatusReady,
		Details: map[string]interface{}{"data_dir": filepath.Clean(dataDir)},
	}
}
