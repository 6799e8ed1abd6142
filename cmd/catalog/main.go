// Command catalog reads the dataset catalog and reports counts that
// disagree with each other or with the files on disk.
//
// Usage:
//
//	catalog [flags] list     print the parsed catalog
//	catalog [flags] check    cross-check the counts inside the catalog
//	catalog [flags] verify   check, then count the records of every output file
//
// check and verify exit with status 2 when issues are found.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"finsight/internal/cli"
	"finsight/internal/config"
	"finsight/internal/infrastructure"
	"finsight/internal/services"
)

const toolName = "catalog"

// errInconsistent signals a completed check that found issues
var errInconsistent = errors.New("catalog is inconsistent")

func main() {
	err := run(os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, errInconsistent):
		os.Exit(2)
	case err != nil:
		slog.Error("catalog failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)
	file := fs.String("file", "", "catalog markdown file (overrides paths.catalog_file)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if common.PrintVersion(stdout, toolName) {
		return nil
	}

	command := "check"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if *file != "" {
		cfg.Paths.CatalogFile = *file
	}
	logger, err := cli.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer infrastructure.CloseLogFile()

	datasets := services.NewDatasetService(config.NewPaths(cfg.Paths), logger)
	ctx := context.Background()

	switch command {
	case "list":
		cat, err := datasets.Catalog(ctx)
		if err != nil {
			return err
		}
		return cli.WriteJSON(stdout, cat)
	case "check", "verify":
		report, err := datasets.Check(ctx, command == "verify")
		if err != nil {
			return err
		}
		if err := cli.WriteJSON(stdout, report); err != nil {
			return err
		}
		if !report.Consistent {
			return errInconsistent
		}
		return nil
	}
	return fmt.Errorf("unknown command %q (want list, check or verify)", command)
}
