package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/catalog"
	"finsight/internal/config"
	"finsight/internal/infrastructure"
	"finsight/pkg/contracts/domain"
)

// CheckReport is the outcome of a catalog consistency check
type CheckReport struct {
	CatalogFile string                    `json:"catalog_file"`
	Datasets    int                       `json:"datasets"`
	Summaries   int                       `json:"summaries"`
	Verified    bool                      `json:"verified"`
	Consistent  bool                      `json:"consistent"`
	Issues      []domain.ConsistencyIssue `json:"issues"`
}

// DatasetService serves the dataset catalog
type DatasetService struct {
	catalogFile string
	logger      *slog.Logger
}

// NewDatasetService creates a dataset service for the configured catalog
func NewDatasetService(paths *config.Paths, logger *slog.Logger) *DatasetService {
	return &DatasetService{
		catalogFile: paths.CatalogFile,
		logger:      infrastructure.WithComponent(logger, "datasets"),
	}
}

// Catalog loads and parses the catalog file
func (s *DatasetService) Catalog(ctx context.Context) (*domain.Catalog, error) {
	ctx, span := infrastructure.StartSpan(ctx, "datasets.catalog",
		attribute.String("catalog.file", s.catalogFile))
	defer span.End()

	cat, err := catalog.Load(s.catalogFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, s.catalogFile)
		}
		infrastructure.RecordError(ctx, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("catalog.datasets", len(cat.Datasets)),
		attribute.Int("catalog.summaries", len(cat.Summaries)))
	return cat, nil
}

// Check cross-checks the catalog's counts. With verify set the claimed
// output counts are also compared against files under the catalog's
// directory.
func (s *DatasetService) Check(ctx context.Context, verify bool) (*CheckReport, error) {
	cat, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	issues := catalog.CheckConsistency(cat)
	if verify {
		issues = append(issues, catalog.Verify(cat, filepath.Dir(s.catalogFile))...)
	}
	if issues == nil {
		issues = []domain.ConsistencyIssue{}
	}

	report := &CheckReport{
		CatalogFile: s.catalogFile,
		Datasets:    len(cat.Datasets),
		Summaries:   len(cat.Summaries),
		Verified:    verify,
		Consistent:  len(issues) == 0,
		Issues:      issues,
	}

	s.logger.InfoContext(ctx, "catalog checked",
		slog.String("catalog", s.catalogFile),
		slog.Bool("verified", verify),
		slog.Int("issues", len(issues)))
	return report, nil
}
