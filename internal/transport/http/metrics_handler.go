package http

import (
	"net/http"

	apierrors "finsight/internal/errors"
)

// MetricsHandler exposes the Prometheus scrape endpoint. The exporter is
// only present when metrics are enabled.
type MetricsHandler struct {
	exporter     http.Handler
	errorHandler *apierrors.ErrorHandler
}

// NewMetricsHandler creates a new metrics handler. exporter may be nil.
func NewMetricsHandler(exporter http.Handler, errorHandler *apierrors.ErrorHandler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter, errorHandler: errorHandler}
}

// ServeHTTP implements http.Handler
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "metrics are disabled", nil))
		return
	}
	h.exporter.ServeHTTP(w, r)
}
