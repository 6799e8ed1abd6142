package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"

	apierrors "finsight/internal/errors"
	"finsight/internal/infrastructure"
	"finsight/internal/insight"
	"finsight/internal/middleware"
	"finsight/internal/validation"
	"finsight/pkg/contracts/domain"
)

// Analyzer runs insight extraction. *insight.Analyzer implements it.
type Analyzer interface {
	Analyze(ctx context.Context, text string, opts insight.Options) (*domain.Analysis, error)
	AnalyzeFile(ctx context.Context, path string, opts insight.Options) (*domain.Analysis, error)
}

// FileTypes reports which uploads can be extracted. *extract.Registry
// implements it.
type FileTypes interface {
	Supports(ext string) bool
	Extensions() []string
}

// AnalyzeOptions selects what to extract. Omitted lists fall back to the
// default selection; an explicit empty list selects nothing.
type AnalyzeOptions struct {
	Entities   []string `json:"entities,omitempty" validate:"omitempty,dive,required"`
	Events     []string `json:"events,omitempty" validate:"omitempty,dive,required"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=0.99"`
	From       string   `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To         string   `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// AnalyzeRequest is the JSON body of POST /api/analyze
type AnalyzeRequest struct {
	Text string `json:"text" validate:"required"`
	AnalyzeOptions
}

// AnalyzeHandler handles report analysis requests
type AnalyzeHandler struct {
	analyzer     Analyzer
	fileTypes    FileTypes
	maxUpload    int64
	validator    *middleware.ValidationMiddleware
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewAnalyzeHandler creates an analyze handler accepting uploads up to maxUpload bytes
func NewAnalyzeHandler(analyzer Analyzer, fileTypes FileTypes, maxUpload int64, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:     analyzer,
		fileTypes:    fileTypes,
		maxUpload:    maxUpload,
		validator:    middleware.NewValidationMiddleware(logger, errorHandler),
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "analyze_handler"),
	}
}

// Analyze handles POST /api/analyze. The body is either JSON with the text
// inline or a multipart form with a "file" part and the options as fields.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := infrastructure.StartSpan(r.Context(), "analyze_handler.analyze",
		attribute.String("http.method", r.Method),
		attribute.String("http.route", "/api/analyze"))
	defer span.End()
	r = r.WithContext(ctx)

	start := time.Now()
	var (
		analysis *domain.Analysis
		source   string
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		analysis, source, err = h.analyzeUpload(w, r)
	} else {
		source = "text"
		analysis, err = h.analyzeJSON(r)
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "analysis completed",
		slog.String("source", source),
		slog.Int("entities", len(analysis.Entities)),
		slog.Int("events", len(analysis.Events)),
		slog.Duration("duration", time.Since(start)))
	render.JSON(w, r, analysis)
}

func (h *AnalyzeHandler) analyzeJSON(r *http.Request) (*domain.Analysis, error) {
	var req AnalyzeRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		return nil, err
	}
	opts, err := req.AnalyzeOptions.options()
	if err != nil {
		return nil, err
	}
	analysis, err := h.analyzer.Analyze(r.Context(), req.Text, opts)
	if err != nil {
		return nil, analysisError(err)
	}
	return analysis, nil
}

func (h *AnalyzeHandler) analyzeUpload(w http.ResponseWriter, r *http.Request) (*domain.Analysis, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, "", err
		}
		return nil, "", apierrors.InvalidRequestWithError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", apierrors.ErrValidation("file", "a file part is required")
	}
	defer file.Close()

	if err := validation.ValidateFilename(filepath.Base(header.Filename)); err != nil {
		return nil, "", apierrors.ErrValidation("file", err.Error())
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !h.fileTypes.Supports(ext) {
		return nil, header.Filename, apierrors.NewWithDetails(http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE",
			fmt.Sprintf("unsupported file type %q", ext),
			map[string]interface{}{"supported": h.fileTypes.Extensions()})
	}

	formOpts := formOptions(r)
	if err := h.validator.ValidateStruct(formOpts); err != nil {
		return nil, header.Filename, err
	}
	opts, err := formOpts.options()
	if err != nil {
		return nil, header.Filename, err
	}

	// extractors work on paths, so the upload is spooled to disk
	tmp, err := os.CreateTemp("", "finsight-upload-*"+ext)
	if err != nil {
		return nil, header.Filename, apierrors.FileSystemError("upload", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return nil, header.Filename, apierrors.FileSystemError("upload", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, header.Filename, apierrors.FileSystemError("upload", err)
	}

	analysis, err := h.analyzer.AnalyzeFile(r.Context(), tmp.Name(), opts)
	if err != nil {
		return nil, header.Filename, analysisError(err)
	}
	return analysis, header.Filename, nil
}

// formOptions reads the options from multipart fields. Lists may be sent as
// repeated fields or comma separated.
func formOptions(r *http.Request) *AnalyzeOptions {
	opts := &AnalyzeOptions{
		Entities: formList(r, "entities"),
		Events:   formList(r, "events"),
		From:     r.FormValue("from"),
		To:       r.FormValue("to"),
	}
	if c := r.FormValue("confidence"); c != "" {
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			opts.Confidence = &v
		} else {
			invalid := -1.0
			opts.Confidence = &invalid
		}
	}
	return opts
}

func formList(r *http.Request, key string) []string {
	values, ok := r.MultipartForm.Value[key]
	if !ok {
		return nil
	}
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// options converts validated request fields to insight options
func (o AnalyzeOptions) options() (insight.Options, error) {
	opts := insight.DefaultOptions()
	if o.Entities != nil {
		opts.Entities = o.Entities
	}
	if o.Events != nil {
		opts.Events = o.Events
	}
	if o.Confidence != nil {
		opts.Confidence = *o.Confidence
	}
	if o.From != "" {
		t, err := time.Parse(time.DateOnly, o.From)
		if err != nil {
			return opts, apierrors.ErrValidation("from", "from must be a YYYY-MM-DD date")
		}
		opts.From = &t
	}
	if o.To != "" {
		t, err := time.Parse(time.DateOnly, o.To)
		if err != nil {
			return opts, apierrors.ErrValidation("to", "to must be a YYYY-MM-DD date")
		}
		opts.To = &t
	}
	if err := opts.Validate(); err != nil {
		return opts, apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
	}
	return opts, nil
}

func analysisError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return apierrors.NewWithDetails(http.StatusUnprocessableEntity, "ANALYSIS_FAILED", "document could not be analyzed", err.Error())
}
