// Command augment writes the augmented copy of the merged dataset.
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

const toolName = "augment"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("augment failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)

	// flags left unset fall back to the loaded configuration
	defaults := config.Default()
	fs.Float64("ratio", defaults.Augment.Ratio, "share of records that get an augmented twin")
	fs.Int64("seed", defaults.Augment.Seed, "random seed (0 seeds from the clock)")
	thesaurus := fs.String("thesaurus", "", "YAML synonym file merged over the bundled thesaurus")
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
	if *thesaurus != "" {
		cfg.Augment.ThesaurusFile = *thesaurus
	}
	rt, err := cli.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	params := cli.SetParams(fs, map[string]string{
		"ratio": operations.ParamRatio,
		"seed":  operations.ParamSeed,
	})
	rt.Logger.InfoContext(ctx, "starting augmentation",
		slog.String("input", rt.Paths.MergedDataset),
		slog.String("output", rt.Paths.AugmentedDataset))
	return rt.RunStep(ctx, operations.StepIDAugment, params, stdout)
}
