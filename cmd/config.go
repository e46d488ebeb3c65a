package cmd

import (
	"errors"
	"flag"
	"fmt"

	"ask/internal/config"
)

func showConfig(args []string, s streams) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(s.err)

	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse config flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = s.out.Write(data)
	return err
}
