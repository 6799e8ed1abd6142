package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"finsight/internal/infrastructure"
	"finsight/internal/services"
	"finsight/pkg/contracts"
)

// HealthService is the surface used by HealthHandler.
// *services.HealthService implements it.
type HealthService interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	Version() contracts.VersionInfo
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  infrastructure.WithComponent(logger, "health_handler"),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HealthCheck(r.Context()))
}

// ReadinessCheck handles GET /readyz. A not-ready service answers 503.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.ReadinessCheck(r.Context())
	if status.Status != services.StatusReady {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
