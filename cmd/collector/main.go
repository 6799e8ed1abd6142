// Command collector snapshots the web pages listed in the dataset catalog
// into the raw directory with a headless browser.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"finsight/internal/catalog"
	"finsight/internal/cli"
	"finsight/internal/collector"
)

const toolName = "collector"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("collector failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)
	overwrite := fs.Bool("overwrite", false, "fetch pages that already have a snapshot")
	timeout := fs.Duration("timeout", 0, "per page timeout (overrides collector.page_timeout)")
	headful := fs.Bool("show-browser", false, "run the browser with a window")
	only := fs.String("only", "", "comma separated source names to fetch")
	dryRun := fs.Bool("dry-run", false, "list the sources without fetching")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if common.PrintVersion(stdout, toolName) {
		return nil
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if *timeout > 0 {
		cfg.Collector.PageTimeout = *timeout
	}
	if *headful {
		cfg.Collector.Headless = false
	}
	rt, err := cli.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	cat, err := catalog.Load(rt.Paths.CatalogFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	sources := filterSources(collector.SourcesFromCatalog(cat), *only)
	rt.Logger.Info("web sources selected",
		slog.String("catalog", rt.Paths.CatalogFile),
		slog.Int("sources", len(sources)))
	if *dryRun || len(sources) == 0 {
		return cli.WriteJSON(stdout, sources)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	fetcher, err := collector.NewChromeFetcher(ctx, cfg.Collector)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	summary, err := collector.New(fetcher, rt.Metrics, rt.Logger).Collect(ctx, sources, collector.Options{
		RawDir:      rt.Paths.RawDir,
		PageTimeout: cfg.Collector.PageTimeout,
		Overwrite:   *overwrite,
	})
	if summary != nil {
		if encErr := cli.WriteJSON(stdout, summary); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}

// filterSources keeps the sources named in only. An empty list keeps all.
func filterSources(sources []collector.Source, only string) []collector.Source {
	if strings.TrimSpace(only) == "" {
		return sources
	}
	want := make(map[string]bool)
	for _, name := range strings.Split(only, ",") {
		if name = strings.TrimSpace(name); name != "" {
			want[strings.ToLower(name)] = true
		}
	}
	var out []collector.Source
	for _, src := range sources {
		if want[strings.ToLower(src.Name)] || want[collector.Slug(src.Name)] {
			out = append(out, src)
		}
	}
	return out
}
