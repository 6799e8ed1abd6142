package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "finsight/internal/errors"
	"finsight/internal/infrastructure"
	"finsight/internal/services"
	"finsight/pkg/contracts/domain"
)

// DatasetService is the catalog surface used by DataHandler.
// *services.DatasetService implements it.
type DatasetService interface {
	Catalog(ctx context.Context) (*domain.Catalog, error)
	Check(ctx context.Context, verify bool) (*services.CheckReport, error)
}

// DataHandler serves the dataset catalog
type DataHandler struct {
	service      DatasetService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a new data handler
func NewDataHandler(service DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	return &DataHandler{
		service:      service,
		logger:       infrastructure.WithComponent(logger, "data_handler"),
		errorHandler: errorHandler,
	}
}

// Routes returns the dataset routes
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetCatalog)
	r.Get("/check", h.CheckCatalog)
	return r
}

// GetCatalog handles GET /api/datasets
func (h *DataHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	cat, err := h.service.Catalog(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, catalogError(err))
		return
	}
	render.JSON(w, r, cat)
}

// CheckCatalog handles GET /api/datasets/check. verify=true also counts the
// records of each claimed output on disk.
func (h *DataHandler) CheckCatalog(w http.ResponseWriter, r *http.Request) {
	verify := false
	if v := r.URL.Query().Get("verify"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("verify", "verify must be a boolean"))
			return
		}
		verify = b
	}

	report, err := h.service.Check(r.Context(), verify)
	if err != nil {
		h.errorHandler.HandleError(w, r, catalogError(err))
		return
	}
	if !report.Consistent {
		h.logger.WarnContext(r.Context(), "catalog inconsistent", slog.Int("issues", len(report.Issues)))
	}
	render.JSON(w, r, report)
}

func catalogError(err error) error {
	if errors.Is(err, services.ErrCatalogNotFound) {
		return apierrors.NewWithDetails(http.StatusNotFound, "CATALOG_NOT_FOUND", "dataset catalog not found", err.Error())
	}
	return apierrors.FileSystemError("catalog load", err)
}
