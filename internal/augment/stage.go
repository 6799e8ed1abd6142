package augment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/dataset"
	"finsight/internal/infrastructure"
	"finsight/internal/validation"
	"finsight/pkg/contracts/domain"
)

// StageName identifies the augmentation stage
const StageName = "augment"

// Summary reports what an augmentation run did
type Summary struct {
	RecordsRead    int           `json:"records_read"`
	Malformed      int           `json:"malformed"`
	Empty          int           `json:"empty"`
	Originals      int           `json:"originals"`
	Augmented      int           `json:"augmented"`
	LightPasses    int           `json:"light_passes"`
	RecordsWritten int           `json:"records_written"`
	Output         string        `json:"output"`
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

// Stage runs augmentation over a JSONL dataset
type Stage struct {
	augmenter *Augmenter
	validator *validation.FileValidator
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// NewStage wraps an augmenter as a pipeline stage
func NewStage(augmenter *Augmenter, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Stage {
	logger = infrastructure.WithComponent(logger, "augment")
	return &Stage{
		augmenter: augmenter,
		validator: validation.NewFileValidator(logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Run copies every non-empty record of input to output unchanged and
// follows each record chosen by the augmenter with its augmented twin.
func (s *Stage) Run(ctx context.Context, input, output string) (*Summary, error) {
	start := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "augment.run",
		attribute.String("input", input),
		attribute.String("output", output))
	defer span.End()

	summary := &Summary{Output: output}
	err := s.run(ctx, input, output, summary)
	summary.Duration = time.Since(start)

	s.metrics.RecordStage(ctx, StageName, infrastructure.StageCounts{
		Read:    summary.RecordsRead,
		Written: summary.RecordsWritten,
		Invalid: summary.Malformed + summary.Empty,
	}, summary.Duration, err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return summary, err
	}

	s.logger.InfoContext(ctx, "stage_completed",
		slog.String("stage", StageName),
		slog.Int("originals", summary.Originals),
		slog.Int("augmented", summary.Augmented),
		slog.Int("light_passes", summary.LightPasses),
		slog.Int("records_written", summary.RecordsWritten),
		slog.String("output", output),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *Stage) run(ctx context.Context, input, output string, summary *Summary) error {
	if err := s.validator.ValidateFile(input); err != nil {
		return err
	}

	writer, err := dataset.NewWriter(output)
	if err != nil {
		return err
	}

	stats, err := dataset.ScanRecords(ctx, input, s.logger, func(rec domain.TextRecord, raw []byte) error {
		summary.RecordsRead++

		rec.Text = strings.TrimSpace(rec.Text)
		if rec.Text == "" {
			summary.Empty++
			return nil
		}

		if err := writer.WriteRaw(raw); err != nil {
			return err
		}
		summary.Originals++

		if !s.augmenter.ShouldAugment() {
			return nil
		}
		if utf8.RuneCountInString(rec.Text) > LongTextRunes {
			summary.LightPasses++
		}
		if err := writer.Write(s.augmenter.AugmentRecord(rec).Augmented()); err != nil {
			return err
		}
		summary.Augmented++
		return nil
	})
	summary.Malformed = stats.Malformed
	summary.RecordsRead += stats.Malformed
	if err != nil {
		writer.Abort()
		return fmt.Errorf("augment %s: %w", input, err)
	}

	if err := writer.Close(); err != nil {
		return err
	}
	summary.RecordsWritten = writer.Count()
	return nil
}
