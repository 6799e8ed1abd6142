// Command nersplit cleans a BIO annotation export and writes the NER train,
// validation and test splits.
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

const toolName = "nersplit"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("nersplit failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)

	// flags left unset fall back to the loaded configuration
	defaults := config.Default()
	fs.String("in", "", "annotation JSONL file (defaults to the configured annotation file)")
	fs.Float64("test-size", defaults.NER.TestSize, "share held out for validation and test")
	fs.Int64("seed", defaults.NER.Seed, "shuffle seed")
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
		"in":        operations.ParamAnnotations,
		"test-size": operations.ParamTestSize,
		"seed":      operations.ParamSeed,
	})
	rt.Logger.InfoContext(ctx, "starting ner split",
		slog.String("output_dir", rt.Paths.SplitsDir))
	return rt.RunStep(ctx, operations.StepIDNER, params, stdout)
}
