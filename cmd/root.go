package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	openaiProvider "ask/internal/provider/openai"
)

// Version is overridden at build time with -ldflags "-X ask/cmd.Version=...".
var Version = "dev"

const usage = `ask sends a question to an OpenAI-compatible API and streams the answer.

Usage:
  ask [flags] <question...>
  ask models [--check <id>]
  ask config
  ask version

Commands:
  models   List the models offered by the configured backend
  config   Print the effective configuration
  version  Print the version
  help     Show this help message

Flags:
  -r, --reasoning int  Reasoning effort 0-3 (0 none, 1 low, 2 medium, 3 high)
  -v, --verbose        Show reasoning and token usage
      --model string   Override the configured model
      --no-stream      Wait for the complete answer
      --config string  Path to the configuration file
      --trace string   Export spans to "stdout" or "otlp"
      --debug          Log at debug level and print the request body

Use "ask -- <question>" when the question starts with a command name.`

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	openaiProvider.UserAgent = "ask/" + Version
	return run(ctx, args, streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
}

func run(ctx context.Context, args []string, s streams) error {
	if len(args) == 0 {
		return printUsage(s.out)
	}

	switch args[0] {
	case "models":
		return listModels(ctx, args[1:], s)
	case "config":
		return showConfig(args[1:], s)
	case "version", "--version":
		_, err := fmt.Fprintf(s.out, "ask %s\n", Version)
		return err
	case "help", "-h", "--help":
		return printUsage(s.out)
	default:
		return ask(ctx, args, s)
	}
}

func printUsage(w io.Writer) error {
	_, err := fmt.Fprintln(w, strings.TrimSpace(usage))
	return err
}
