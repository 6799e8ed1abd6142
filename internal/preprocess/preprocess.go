// Package preprocess cleans the merged dataset: markup is stripped, text is
// renormalized, and short or mostly non-alphabetic records are dropped.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/dataset"
	"finsight/internal/infrastructure"
	"finsight/internal/textproc"
	"finsight/internal/validation"
	"finsight/pkg/contracts/domain"
)

// StageName identifies the cleaning stage
const StageName = "preprocess"

// Options controls one cleaning run
type Options struct {
	Input          string
	Output         string
	MinChars       int
	MinLetterRatio float64
	Dedup          bool
}

// Summary reports what a cleaning run did
type Summary struct {
	RecordsRead    int           `json:"records_read"`
	Malformed      int           `json:"malformed"`
	TooShort       int           `json:"too_short"`
	LowLetterRatio int           `json:"low_letter_ratio"`
	Duplicates     int           `json:"duplicates"`
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

// Reason explains why Clean rejected a text
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonTooShort       Reason = "too_short"
	ReasonLowLetterRatio Reason = "low_letter_ratio"
)

// Clean returns the cleaned text, or the reason it should be dropped
func Clean(text string, minChars int, minLetterRatio float64) (string, Reason) {
	cleaned := textproc.NormalizeText(textproc.CleanHTMLLike(text))
	if utf8.RuneCountInString(cleaned) < minChars || cleaned == "" {
		return cleaned, ReasonTooShort
	}
	if textproc.LetterRatio(cleaned) < minLetterRatio {
		return cleaned, ReasonLowLetterRatio
	}
	return cleaned, ReasonNone
}

// Preprocessor runs the cleaning stage
type Preprocessor struct {
	validator *validation.FileValidator
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// New creates a preprocessor
func New(metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Preprocessor {
	logger = infrastructure.WithComponent(logger, "preprocess")
	return &Preprocessor{
		validator: validation.NewFileValidator(logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Run streams opts.Input into opts.Output
func (p *Preprocessor) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "preprocess.run",
		attribute.String("input", opts.Input),
		attribute.String("output", opts.Output))
	defer span.End()

	summary := &Summary{Output: opts.Output}
	err := p.run(ctx, opts, summary)
	summary.Duration = time.Since(start)

	p.metrics.RecordStage(ctx, StageName, infrastructure.StageCounts{
		Read:       summary.RecordsRead,
		Written:    summary.RecordsWritten,
		Duplicates: summary.Duplicates,
		Invalid:    summary.Malformed + summary.TooShort + summary.LowLetterRatio,
	}, summary.Duration, err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return summary, err
	}

	p.logger.InfoContext(ctx, "stage_completed",
		slog.String("stage", StageName),
		slog.Int("records_read", summary.RecordsRead),
		slog.Int("malformed", summary.Malformed),
		slog.Int("too_short", summary.TooShort),
		slog.Int("low_letter_ratio", summary.LowLetterRatio),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("records_written", summary.RecordsWritten),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *Preprocessor) run(ctx context.Context, opts Options, summary *Summary) error {
	if err := p.validator.ValidateFile(opts.Input); err != nil {
		return err
	}

	writer, err := dataset.NewWriter(opts.Output)
	if err != nil {
		return err
	}

	var dedup *dataset.Deduper
	if opts.Dedup {
		dedup = dataset.NewDeduper()
	}

	stats, err := dataset.ScanRecords(ctx, opts.Input, p.logger, func(rec domain.TextRecord, _ []byte) error {
		summary.RecordsRead++

		text, reason := Clean(rec.Text, opts.MinChars, opts.MinLetterRatio)
		switch reason {
		case ReasonTooShort:
			summary.TooShort++
			return nil
		case ReasonLowLetterRatio:
			summary.LowLetterRatio++
			return nil
		}
		if dedup != nil && dedup.Seen(text) {
			summary.Duplicates++
			return nil
		}

		rec.Text = text
		return writer.Write(rec)
	})
	summary.Malformed = stats.Malformed
	summary.RecordsRead += stats.Malformed
	if err != nil {
		writer.Abort()
		return fmt.Errorf("preprocess %s: %w", opts.Input, err)
	}

	if err := writer.Close(); err != nil {
		return err
	}
	summary.RecordsWritten = writer.Count()
	return nil
}
