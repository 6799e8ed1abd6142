// Package collector snapshots web data sources listed in the catalog into
// the raw directory so the merge stage can pick them up as HTML files.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"finsight/internal/infrastructure"
	"finsight/pkg/contracts/domain"
)

// StageName identifies the collector in metrics
const StageName = "collect"

// WebDir is the raw sub-directory receiving page snapshots
const WebDir = "web"

// Source is one page to snapshot
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Options controls one collection run
type Options struct {
	RawDir      string
	PageTimeout time.Duration
	Overwrite   bool
}

// Result is the outcome of one source
type Result struct {
	Source Source `json:"source"`
	Path   string `json:"path,omitempty"`
	Bytes  int    `json:"bytes"`
	Error  string `json:"error,omitempty"`
}

// Summary reports what a collection run did
type Summary struct {
	Sources  int           `json:"sources"`
	Fetched  int           `json:"fetched"`
	Existing int           `json:"existing"`
	Failed   int           `json:"failed"`
	Results  []Result      `json:"results"`
	Duration time.Duration `json:"duration"`
}

// SourcesFromCatalog selects the catalog entries that are web pages: an
// http(s) URL with an HTML or web format. Names become unique file slugs.
func SourcesFromCatalog(cat *domain.Catalog) []Source {
	if cat == nil {
		return nil
	}
	var out []Source
	for _, d := range cat.Datasets {
		u, err := url.Parse(strings.TrimSpace(d.SourceURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		format := strings.ToLower(d.Format)
		if !strings.Contains(format, "html") && !strings.Contains(format, "web") {
			continue
		}
		out = append(out, Source{Name: d.Name, URL: u.String()})
	}
	return out
}

// Collector fetches sources one at a time
type Collector struct {
	fetcher Fetcher
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// New creates a collector
func New(fetcher Fetcher, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		metrics: metrics,
		logger:  infrastructure.WithComponent(logger, "collector"),
	}
}

// Collect snapshots every source into RawDir/web/<slug>.html. A failing
// page is logged and counted; only a cancelled context stops the run.
func (c *Collector) Collect(ctx context.Context, sources []Source, opts Options) (*Summary, error) {
	start := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "collector.collect",
		attribute.Int("sources", len(sources)),
		attribute.String("raw_dir", opts.RawDir))
	defer span.End()

	summary := &Summary{Sources: len(sources)}
	err := c.collect(ctx, sources, opts, summary)
	summary.Duration = time.Since(start)

	c.metrics.RecordStage(ctx, StageName, infrastructure.StageCounts{
		Read:    summary.Sources,
		Written: summary.Fetched,
		Invalid: summary.Failed,
	}, summary.Duration, err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return summary, err
	}

	c.logger.InfoContext(ctx, "stage_completed",
		slog.String("stage", StageName),
		slog.Int("sources", summary.Sources),
		slog.Int("fetched", summary.Fetched),
		slog.Int("existing", summary.Existing),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (c *Collector) collect(ctx context.Context, sources []Source, opts Options, summary *Summary) error {
	dir := filepath.Join(opts.RawDir, WebDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create web dir: %w", err)
	}

	slugs := newSlugger()
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, slugs.next(src)+".html")
		res := Result{Source: src, Path: path}

		if !opts.Overwrite {
			if _, err := os.Stat(path); err == nil {
				summary.Existing++
				summary.Results = append(summary.Results, res)
				c.logger.DebugContext(ctx, "snapshot exists", slog.String("path", path))
				continue
			}
		}

		n, err := c.fetchOne(ctx, src, path, opts.PageTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Path = ""
			res.Error = err.Error()
			summary.Failed++
			c.logger.WarnContext(ctx, "page fetch failed",
				slog.String("source", src.Name),
				slog.String("url", src.URL),
				slog.String("error", err.Error()))
		} else {
			res.Bytes = n
			summary.Fetched++
			c.logger.InfoContext(ctx, "page saved",
				slog.String("source", src.Name),
				slog.String("path", path),
				slog.Int("bytes", n))
		}
		summary.Results = append(summary.Results, res)
	}
	return nil
}

func (c *Collector) fetchOne(ctx context.Context, src Source, path string, timeout time.Duration) (int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	html, err := c.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(html) == "" {
		return 0, fmt.Errorf("empty page")
	}
	if err := writeFileAtomic(path, []byte(html)); err != nil {
		return 0, err
	}
	return len(html), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// slugger hands out unique file-safe names
type slugger struct {
	used map[string]int
}

func newSlugger() *slugger {
	return &slugger{used: make(map[string]int)}
}

func (s *slugger) next(src Source) string {
	base := Slug(src.Name)
	if base == "" {
		if u, err := url.Parse(src.URL); err == nil {
			base = Slug(u.Host + u.Path)
		}
	}
	if base == "" {
		base = "source"
	}
	s.used[base]++
	if n := s.used[base]; n > 1 {
		return base + "-" + strconv.Itoa(n)
	}
	return base
}

// Slug lower-cases s and joins its letter and digit runs with dashes
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}
