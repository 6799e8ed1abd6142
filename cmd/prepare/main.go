// Command prepare merges every raw source file into the merged JSONL dataset.
package main

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"

	"finsight/internal/cli"
	"finsight/internal/config"
	"finsight/internal/operations"
)

const toolName = "prepare"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("prepare failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)

	// flags left unset fall back to the loaded configuration
	defaults := config.Default()
	fs.Bool("dedup", defaults.Prepare.Dedup, "drop exact duplicate texts")
	fs.Bool("keep-source", defaults.Prepare.KeepSource, "keep the source file of each record")
	fs.Int("workers", defaults.Prepare.Workers, "concurrent extraction workers")
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
	rt, err := cli.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	params := cli.SetParams(fs, map[string]string{
		"dedup":       operations.ParamDedup,
		"keep-source": operations.ParamKeepSource,
		"workers":     operations.ParamWorkers,
	})
	rt.Logger.InfoContext(ctx, "starting merge",
		slog.String("raw_dir", rt.Paths.RawDir),
		slog.String("output", rt.Paths.MergedDataset))
	return rt.RunStep(ctx, operations.StepIDPrepare, params, stdout)
}
