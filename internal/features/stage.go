package features

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/dataset"
	"finsight/internal/exporter"
	"finsight/internal/infrastructure"
	"finsight/internal/validation"
	"finsight/pkg/contracts/domain"
)

// StageName identifies the features stage
const StageName = "features"

// Options controls one features run
type Options struct {
	Input         string
	FeaturesPath  string
	TokenStatsCSV string
	TopTokens     int
	Lowercase     bool
}

// Summary reports what a features run did
type Summary struct {
	RecordsRead    int           `json:"records_read"`
	Malformed      int           `json:"malformed"`
	RecordsWritten int           `json:"records_written"`
	Vocabulary     int           `json:"vocabulary"`
	TokensExported int           `json:"tokens_exported"`
	Output         string        `json:"output"`
	TokenStats     string        `json:"token_stats"`
	Duration       time.Duration `json:"duration"`
}

// ProcessingSummary converts the run into a catalog summary row
func (s *Summary) ProcessingSummary() domain.ProcessingSummary {
	return domain.ProcessingSummary{
		Stage:         StageName,
		InputRecords:  s.RecordsRead,
		OutputRecords: s.RecordsWritten,
		OutputPath:    filepath.ToSlash(s.Output),
	}
}

// Stage computes linguistic features and token statistics
type Stage struct {
	tokens    *exporter.TokenStatsExporter
	validator *validation.FileValidator
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// NewStage creates the features stage. Token statistics are written
// through csvWriter.
func NewStage(csvWriter *exporter.CSVWriter, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Stage {
	logger = infrastructure.WithComponent(logger, "features")
	if csvWriter == nil {
		csvWriter = exporter.NewCSVWriter(nil)
	}
	return &Stage{
		tokens:    exporter.NewTokenStatsExporter(csvWriter.WithLogger(logger)),
		validator: validation.NewFileValidator(logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Run streams opts.Input once, writing one features line per record and
// then the token statistics file
func (s *Stage) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "features.run",
		attribute.String("input", opts.Input))
	defer span.End()

	summary := &Summary{Output: opts.FeaturesPath, TokenStats: opts.TokenStatsCSV}
	err := s.run(ctx, opts, summary)
	summary.Duration = time.Since(start)

	s.metrics.RecordStage(ctx, StageName, infrastructure.StageCounts{
		Read:    summary.RecordsRead,
		Written: summary.RecordsWritten,
		Invalid: summary.Malformed,
	}, summary.Duration, err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return summary, err
	}

	s.logger.InfoContext(ctx, "stage_completed",
		slog.String("stage", StageName),
		slog.Int("records_written", summary.RecordsWritten),
		slog.Int("vocabulary", summary.Vocabulary),
		slog.Int("tokens_exported", summary.TokensExported),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *Stage) run(ctx context.Context, opts Options, summary *Summary) error {
	if err := s.validator.ValidateFile(opts.Input); err != nil {
		return err
	}

	writer, err := dataset.NewWriter(opts.FeaturesPath)
	if err != nil {
		return err
	}

	counter := NewTokenCounter(opts.Lowercase)
	index := 0
	stats, err := dataset.ScanRecords(ctx, opts.Input, s.logger, func(rec domain.TextRecord, _ []byte) error {
		summary.RecordsRead++
		counter.Add(rec.Text)
		f := Compute(index, rec.Text)
		index++
		return writer.Write(f)
	})
	summary.Malformed = stats.Malformed
	summary.RecordsRead += stats.Malformed
	if err != nil {
		writer.Abort()
		return fmt.Errorf("features %s: %w", opts.Input, err)
	}
	if err := writer.Close(); err != nil {
		return err
	}
	summary.RecordsWritten = writer.Count()

	top := counter.Top(opts.TopTokens)
	if err := s.tokens.Export(top, counter.Docs(), opts.TokenStatsCSV); err != nil {
		return err
	}
	summary.Vocabulary = counter.Vocabulary()
	summary.TokensExported = len(top)
	return nil
}
