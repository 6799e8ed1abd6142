// Command pipeline runs the whole dataset pipeline, or a single step with
// -step, in dependency order.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"finsight/internal/cli"
)

const toolName = "pipeline"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	var common cli.Common
	common.Register(fs)
	step := fs.String("step", "", "run only this step (empty runs the full pipeline)")
	list := fs.Bool("list", false, "list the registered steps and exit")
	var params paramFlag
	fs.Var(&params, "param", "step parameter as key=value, repeatable")
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

	if *list {
		return cli.WriteJSON(stdout, rt.Manager.GetRegistry().Types())
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	rt.Logger.InfoContext(ctx, "starting pipeline",
		slog.String("step", *step),
		slog.String("data_dir", rt.Paths.DataDir))
	return rt.RunStep(ctx, *step, params.values(), stdout)
}

// paramFlag collects key=value pairs. Values that parse as numbers or
// booleans are passed typed so the steps accept them.
type paramFlag map[string]interface{}

func (p *paramFlag) String() string {
	if p == nil || *p == nil {
		return ""
	}
	parts := make([]string, 0, len(*p))
	for k, v := range *p {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (p *paramFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("parameter %q must be key=value", s)
	}
	if *p == nil {
		*p = make(paramFlag)
	}
	(*p)[key] = parseValue(strings.TrimSpace(value))
	return nil
}

func (p paramFlag) values() map[string]interface{} {
	return p
}

func parseValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
