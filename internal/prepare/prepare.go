// Package prepare merges every supported raw source file into a single
// normalized, deduplicated JSONL dataset.
package prepare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"finsight/internal/dataset"
	"finsight/internal/extract"
	"finsight/internal/files"
	"finsight/internal/infrastructure"
	"finsight/internal/textproc"
	"finsight/internal/validation"
	"finsight/pkg/contracts/domain"
)

// StageName identifies the merge stage in summaries and metrics
const StageName = "prepare"

// Options controls one merge run
type Options struct {
	RawDir     string
	Output     string
	Dedup      bool
	KeepSource bool
	Workers    int

	// MaxRecordBytes caps one encoded line; 0 means dataset.MaxLineBytes
	MaxRecordBytes int
}

// Summary reports what a merge run did
type Summary struct {
	FilesSeen      int           `json:"files_seen"`
	FilesSkipped   int           `json:"files_skipped"`
	FilesFailed    int           `json:"files_failed"`
	RecordsRead    int           `json:"records_read"`
	Empty          int           `json:"empty"`
	Oversized      int           `json:"oversized"`
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

// Preparer runs the merge stage
type Preparer struct {
	registry  *extract.Registry
	validator *validation.FileValidator
	metrics   *infrastructure.PipelineMetrics
	logger    *slog.Logger
}

// New creates a preparer. A nil registry uses every built-in extractor.
func New(registry *extract.Registry, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Preparer {
	if registry == nil {
		registry = extract.NewRegistry()
	}
	logger = infrastructure.WithComponent(logger, "prepare")
	return &Preparer{
		registry:  registry,
		validator: validation.NewFileValidator(logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// extraction is the outcome of one file
type extraction struct {
	file  files.FileInfo
	texts []string
	err   error
	done  chan struct{}
}

// Run walks opts.RawDir, extracts files concurrently and writes records in
// sorted file order so the output is identical for any worker count.
func (p *Preparer) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "prepare.run",
		attribute.String("raw_dir", opts.RawDir),
		attribute.String("output", opts.Output))
	defer span.End()

	summary := &Summary{Output: opts.Output}
	err := p.run(ctx, opts, summary)
	summary.Duration = time.Since(start)

	p.metrics.RecordStage(ctx, StageName, infrastructure.StageCounts{
		Read:       summary.RecordsRead,
		Written:    summary.RecordsWritten,
		Duplicates: summary.Duplicates,
		Invalid:    summary.Empty + summary.Oversized,
	}, summary.Duration, err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return summary, err
	}

	p.logger.InfoContext(ctx, "stage_completed",
		slog.String("stage", StageName),
		slog.Int("files_seen", summary.FilesSeen),
		slog.Int("files_skipped", summary.FilesSkipped),
		slog.Int("files_failed", summary.FilesFailed),
		slog.Int("records_read", summary.RecordsRead),
		slog.Int("oversized", summary.Oversized),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("records_written", summary.RecordsWritten),
		slog.String("output", summary.Output),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *Preparer) run(ctx context.Context, opts Options, summary *Summary) error {
	if err := p.validator.ValidateInputDirectory(opts.RawDir); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	walk, err := p.registry.Discover(opts.RawDir)
	if err != nil {
		return fmt.Errorf("discover raw files: %w", err)
	}
	summary.FilesSeen = len(walk.Files) + len(walk.Skipped)
	summary.FilesSkipped = len(walk.Skipped)
	for _, f := range walk.Skipped {
		p.logger.DebugContext(ctx, "skipping unsupported file", slog.String("file", f.Rel))
	}
	p.logger.InfoContext(ctx, "raw files discovered",
		slog.Int("files", len(walk.Files)),
		slog.Int("skipped", len(walk.Skipped)),
		slog.Int64("bytes", files.TotalSize(walk.Files)))

	writer, err := dataset.NewWriter(opts.Output)
	if err != nil {
		return err
	}
	limit := opts.MaxRecordBytes
	if limit <= 0 {
		limit = dataset.MaxLineBytes
	}
	writer.SetMaxLineBytes(limit)

	if err := p.merge(ctx, opts, walk.Files, writer, summary); err != nil {
		writer.Abort()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	summary.RecordsWritten = writer.Count()
	return nil
}

func (p *Preparer) merge(ctx context.Context, opts Options, inputs []files.FileInfo, writer *dataset.Writer, summary *Summary) error {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]*extraction, len(inputs))
	for i, f := range inputs {
		results[i] = &extraction{file: f, done: make(chan struct{})}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// window bounds how far extraction may run ahead of the writer
	window := make(chan struct{}, workers*2)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for _, res := range results {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				defer close(res.done)
				res.texts, res.err = p.registry.Extract(gctx, res.file.Path)
				return nil
			})
		}
	}()

	var dedup *dataset.Deduper
	if opts.Dedup {
		dedup = dataset.NewDeduper()
	}

	consumeErr := func() error {
		for _, res := range results {
			select {
			case <-res.done:
			case <-gctx.Done():
				return gctx.Err()
			}
			<-window

			if err := p.consume(gctx, opts, res, dedup, writer, summary); err != nil {
				return err
			}
			res.texts = nil
		}
		return nil
	}()
	if consumeErr != nil {
		cancel()
	}

	<-launched
	waitErr := g.Wait()
	if consumeErr != nil {
		return consumeErr
	}
	return waitErr
}

func (p *Preparer) consume(ctx context.Context, opts Options, res *extraction, dedup *dataset.Deduper, writer *dataset.Writer, summary *Summary) error {
	if res.err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.FilesFailed++
		p.logger.WarnContext(ctx, "failed to extract file",
			slog.String("file", res.file.Rel),
			slog.Int("partial_records", len(res.texts)),
			slog.String("error", res.err.Error()))
	} else {
		p.logger.InfoContext(ctx, "processing file",
			slog.String("file", res.file.Rel),
			slog.Int("units", len(res.texts)))
	}

	source := ""
	if opts.KeepSource {
		source = filepath.ToSlash(res.file.Rel)
	}

	for _, raw := range res.texts {
		summary.RecordsRead++
		text := textproc.NormalizeText(raw)
		if text == "" {
			summary.Empty++
			continue
		}
		if dedup != nil && dedup.Seen(text) {
			summary.Duplicates++
			continue
		}
		err := writer.Write(domain.TextRecord{Text: text, SourceFile: source})
		if errors.Is(err, dataset.ErrLineTooLong) {
			summary.Oversized++
			p.logger.WarnContext(ctx, "skipping oversized record",
				slog.String("file", res.file.Rel),
				slog.Int("bytes", len(text)),
				slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}
