package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"ask/internal/config"
	"ask/internal/provider"
	providerfactory "ask/internal/provider/factory"
)

const modelsUsage = `Usage:
  ask models [--check <id>] [--config <path>]

Flags:
  --check  string  Verify that the model is offered instead of listing
  --config string  Path to the configuration file`

func listModels(ctx context.Context, args []string, s streams) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.SetOutput(s.err)
	fs.Usage = func() {
		fmt.Fprintln(s.err, modelsUsage)
	}

	var cfgPath, check string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&check, "check", "", "model id to verify")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse models flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	client, err := providerfactory.NewProvider(cfg, newLogger(s.err, debugFromEnv()))
	if err != nil {
		return err
	}

	return printModels(ctx, client, strings.TrimSpace(check), s.out)
}

func printModels(ctx context.Context, lister provider.ModelLister, check string, w io.Writer) error {
	if check != "" {
		if err := lister.CheckModel(ctx, check); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%s is available\n", check)
		return err
	}

	available, err := lister.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range available {
		if _, err := fmt.Fprintln(w, m.ID); err != nil {
			return err
		}
	}
	return nil
}
