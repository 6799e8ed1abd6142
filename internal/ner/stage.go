package ner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/infrastructure"
	"finsight/internal/validation"
	"finsight/pkg/contracts/domain"
)

// StageName identifies the NER split stage
const StageName = "ner"

// ErrNoRecords is returned when cleaning leaves nothing to split
var ErrNoRecords = errors.New("no cleaned records found")

// Options controls one split run
type Options struct {
	Input       string
	OutputDir   string
	TestSize    float64
	ValFraction float64
	Seed        int64
	// MinEntityShare triggers a warning when fewer records carry an entity
	MinEntityShare float64
}

// Summary reports what a split run did
type Summary struct {
	Total        int               `json:"total"`
	Malformed    int               `json:"malformed"`
	Rejected     int               `json:"rejected"`
	Cleaned      int               `json:"cleaned"`
	WithEntities int               `json:"with_entities"`
	LabelCounts  []TagCount        `json:"label_counts"`
	Sizes        domain.SplitSizes `json:"sizes"`
	LowEntities  bool              `json:"low_entities"`
	OutputDir    string            `json:"output_dir"`
	Duration     time.Duration     `json:"duration"`
}

// ProcessingSummary converts the run into a catalog summary row
func (s *Summary) ProcessingSummary() domain.ProcessingSummary {
	return domain.ProcessingSummary{
		Stage:         StageName,
		InputRecords:  s.Total,
		OutputRecords: s.Sizes.Total(),
		OutputPath:    filepath.ToSlash(s.OutputDir),
	}
}

// Stage cleans an annotation file and writes the splits
type Stage struct {
	labels    *Labels
	validator *validation.FileValidator
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// NewStage creates the NER split stage for a tag set
func NewStage(labels *Labels, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Stage {
	logger = infrastructure.WithComponent(logger, "ner")
	return &Stage{
		labels:    labels,
		validator: validation.NewFileValidator(logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Run loads, cleans, splits and writes the dataset
func (s *Stage) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "ner.run",
		attribute.String("input", opts.Input),
		attribute.String("output_dir", opts.OutputDir))
	defer span.End()

	summary := &Summary{OutputDir: opts.OutputDir}
	err := s.run(ctx, opts, summary)
	summary.Duration = time.Since(start)

	s.metrics.RecordStage(ctx, StageName, infrastructure.StageCounts{
		Read:    summary.Total,
		Written: summary.Sizes.Total(),
		Invalid: summary.Malformed + summary.Rejected,
	}, summary.Duration, err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return summary, err
	}

	s.logger.InfoContext(ctx, "stage_completed",
		slog.String("stage", StageName),
		slog.Int("train", summary.Sizes.Train),
		slog.Int("validation", summary.Sizes.Validation),
		slog.Int("test", summary.Sizes.Test),
		slog.String("output_dir", opts.OutputDir),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *Stage) run(ctx context.Context, opts Options, summary *Summary) error {
	if err := s.validator.ValidateJSONLFile(opts.Input); err != nil {
		return err
	}
	if err := s.validator.ValidateOutputDirectory(opts.OutputDir); err != nil {
		return err
	}

	loaded, err := s.labels.LoadAndClean(ctx, opts.Input, s.logger)
	if err != nil {
		return fmt.Errorf("load annotations: %w", err)
	}
	summary.Total = loaded.Total
	summary.Malformed = loaded.Malformed
	summary.Rejected = loaded.Rejected
	summary.Cleaned = len(loaded.Records)
	summary.WithEntities = loaded.WithEntities
	summary.LabelCounts = MostCommon(loaded.LabelCounts)

	s.logger.InfoContext(ctx, "annotations loaded",
		slog.Int("raw_records", loaded.Total),
		slog.Int("cleaned_records", len(loaded.Records)))
	for _, tc := range summary.LabelCounts {
		s.logger.DebugContext(ctx, "label distribution",
			slog.String("tag", tc.Tag),
			slog.Int("count", tc.Count))
	}

	if len(loaded.Records) == 0 {
		return ErrNoRecords
	}

	share := loaded.EntityShare()
	s.logger.InfoContext(ctx, "records with entities",
		slog.Int("with_entities", loaded.WithEntities),
		slog.Int("total", len(loaded.Records)),
		slog.Float64("share", share))
	if share < opts.MinEntityShare {
		summary.LowEntities = true
		s.logger.WarnContext(ctx, "very few records contain entities, annotate more examples before training",
			slog.Float64("share", share),
			slog.Float64("threshold", opts.MinEntityShare))
	}

	records := make([]domain.NERRecord, len(loaded.Records))
	for i, r := range loaded.Records {
		records[i] = r.NERRecord
	}
	splits := Split(records, opts.TestSize, opts.ValFraction, opts.Seed)
	summary.Sizes = splits.Sizes()

	if err := WriteSplits(opts.OutputDir, splits, s.labels.Metadata()); err != nil {
		return err
	}
	return nil
}
