// Command web serves the finsight HTTP API, the websocket progress feed and
// the metrics endpoint.
package main

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"

	"finsight/internal/app"
	"finsight/internal/cli"
)

const toolName = "web"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)
	port := fs.Int("port", 0, "listen port (overrides server.port)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if common.PrintVersion(stdout, app.AppName) {
		return nil
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}
	return application.Run()
}
