package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"ask/internal/chat"
	"ask/internal/config"
	providerfactory "ask/internal/provider/factory"
	"ask/internal/prompt"
	"ask/internal/reasoning"
	"ask/internal/render"
	"ask/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type askOptions struct {
	effort   reasoning.Effort
	verbose  bool
	model    string
	noStream bool
	cfgPath  string
	trace    string
	debug    bool
}

func ask(ctx context.Context, args []string, s streams) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(s.err)
	fs.Usage = func() {
		fmt.Fprintln(s.err, strings.TrimSpace(usage))
	}

	var opts askOptions
	fs.Var(&opts.effort, "r", "reasoning effort 0-3")
	fs.Var(&opts.effort, "reasoning", "reasoning effort 0-3")
	fs.BoolVar(&opts.verbose, "v", false, "show reasoning and token usage")
	fs.BoolVar(&opts.verbose, "verbose", false, "show reasoning and token usage")
	fs.StringVar(&opts.model, "model", "", "override the configured model")
	fs.BoolVar(&opts.noStream, "no-stream", false, "wait for the complete answer")
	fs.StringVar(&opts.cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&opts.trace, "trace", "", `export spans to "stdout" or "otlp"`)
	fs.BoolVar(&opts.debug, "debug", false, "log at debug level and print the request body")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse flags: %w", err)
	}

	opts.debug = opts.debug || debugFromEnv()
	logger := newLogger(s.err, opts.debug)
	slog.SetDefault(logger)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("no question given; run \"ask help\" for usage")
	}

	var stdin string
	if isPiped(s.in) {
		var err error
		if stdin, err = prompt.ReadStdin(s.in); err != nil {
			return err
		}
	}

	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return err
	}

	shutdown, err := telemetry.InitTracer(ctx, telemetry.Options{Exporter: opts.trace}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	client, err := providerfactory.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	logger.Debug("using endpoint", "endpoint", client.Endpoint())

	var svcOpts []chat.Option
	if opts.debug {
		svcOpts = append(svcOpts, chat.WithRequestDump(s.err))
	}
	svc := chat.New(client, logger, svcOpts...)

	req := chat.Request{
		Model:         selectModel(cfg, opts),
		Messages:      prompt.Messages(cfg.SystemRole, cfg.SystemPrompt, prompt.Format(stdin, question)),
		Stream:        cfg.Stream && !opts.noStream,
		Reasoning:     opts.effort,
		ShowReasoning: opts.verbose,
		Budgets:       cfg.ThinkingBudgets.Budgets(),
	}

	renderer := render.New(s.out, s.err)
	res, err := svc.Ask(ctx, req, renderer)
	if err != nil {
		return err
	}
	if err := renderer.Finish(); err != nil {
		return err
	}
	if opts.verbose {
		return renderer.Usage(res.Model, res.Usage)
	}
	return nil
}

// selectModel prefers --model, then the thinking model when reasoning is
// requested, then the configured model.
func selectModel(cfg config.Config, opts askOptions) string {
	if opts.model != "" {
		return opts.model
	}
	if opts.effort > reasoning.None && strings.TrimSpace(cfg.ThinkingModel) != "" {
		return cfg.ThinkingModel
	}
	return cfg.Model
}

func debugFromEnv() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG")))
	return v == "1" || v == "true"
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isPiped reports whether r carries piped input rather than a terminal.
func isPiped(r io.Reader) bool {
	if r == nil {
		return false
	}
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}
