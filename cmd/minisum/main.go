package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/perbu/minisum/internal/config"
	"github.com/perbu/minisum/pkg/checkpoint"
	"github.com/perbu/minisum/pkg/llm"
	"github.com/perbu/minisum/pkg/loader"
	"github.com/perbu/minisum/pkg/minisum"
	"github.com/perbu/minisum/pkg/tokens"
)

func main() {
	// Load .env file if it exists (for API keys and MINISUM_* settings)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags; file values are kept for unset flags
type options struct {
	configPath     string
	mapTemplate    string
	reduceTemplate string
	quiet          bool
}

func newFlagSet(cfg *config.Config, opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("minisum", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default: $MINISUM_CONFIG)")
	fs.StringVarP(&cfg.Provider, "provider", "p", cfg.Provider, "completion provider: openai, anthropic, ollama, gemini, echo")
	fs.StringVarP(&cfg.Model, "model", "m", cfg.Model, "model name (default: provider default)")
	fs.IntVarP(&cfg.Budget, "budget", "b", cfg.Budget, "maximum cost of the summaries sent to one reduce call")
	fs.IntVar(&cfg.MaxCollapses, "max-collapses", cfg.MaxCollapses, "maximum number of collapse iterations")
	fs.IntVarP(&cfg.Concurrency, "concurrency", "j", cfg.Concurrency, "concurrent model calls")
	fs.StringVar(&cfg.Estimator, "estimator", cfg.Estimator, "cost estimator: chars or tiktoken")
	fs.IntVar(&cfg.Chunking.Size, "chunk-size", cfg.Chunking.Size, "maximum chunk size in characters")
	fs.IntVar(&cfg.Chunking.Overlap, "chunk-overlap", cfg.Chunking.Overlap, "characters repeated between pieces of a long section")
	fs.StringVar(&cfg.Checkpoint, "checkpoint", cfg.Checkpoint, "resume file for chunk summaries (empty disables)")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "completions kept in memory (0 disables)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")
	fs.StringVar(&opts.mapTemplate, "map-template", "", "file with the chunk summary prompt template")
	fs.StringVar(&opts.reduceTemplate, "reduce-template", "", "file with the combine prompt template")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "do not show progress")
	return fs
}

// parseArgs resolves the configuration: defaults, then the config file and
// environment, then the flags that were set explicitly.
func parseArgs(args []string, stderr io.Writer) (*config.Config, *options, []string, error) {
	var opts options

	cfg, err := config.Load(configFlag(args))
	if err != nil {
		return nil, nil, nil, err
	}

	fs := newFlagSet(cfg, &opts)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	if opts.mapTemplate != "" {
		b, err := os.ReadFile(opts.mapTemplate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading map template: %w", err)
		}
		cfg.Prompts.Map = string(b)
	}
	if opts.reduceTemplate != "" {
		b, err := os.ReadFile(opts.reduceTemplate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading reduce template: %w", err)
		}
		cfg.Prompts.Reduce = string(b)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, &opts, fs.Args(), nil
}

// configFlag finds the value of --config before the flags proper are
// parsed, since the file supplies their defaults.
func configFlag(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		for _, name := range []string{"--config", "-c"} {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(a, name+"="); ok {
				return v
			}
		}
	}
	return ""
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `minisum summarizes a document or a directory of documents.

Documents are split into chunks, every chunk is summarized, and the
summaries are combined until they fit the budget and can be reduced into
a single summary, which is printed on stdout.

Usage:
  minisum [flags] <path>

Flags:
%s`, fs.FlagUsages())
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, opts, rest, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("expected exactly one path, got %d (see --help)", len(rest))
	}
	root := rest[0]

	logger := newLogger(cfg, stderr).With("run_id", uuid.NewString())

	// Step 1: Load and chunk documents
	chunks, err := loader.LoadPath(root, loader.Options{ChunkSize: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap})
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	logger.Info("documents loaded", "path", root, "chunks", len(chunks))

	// Step 2: Initialize the model client
	client, err := llm.New(cfg.Provider, cfg.Model)
	if err != nil {
		return fmt.Errorf("initializing %s client: %w", cfg.Provider, err)
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}
	var cache *llm.Cached
	if cfg.CacheSize > 0 {
		cache = llm.NewCached(client, cfg.CacheSize)
		client = cache
	}

	// client.Model carries the provider default when --model is unset
	est, err := tokens.New(cfg.Estimator, client.Model())
	if err != nil {
		return err
	}
	tpl, err := minisum.ParseTemplates(cfg.Prompts.Map, cfg.Prompts.Reduce)
	if err != nil {
		return err
	}

	pipelineOpts := []minisum.Option{
		minisum.WithBudget(cfg.Budget),
		minisum.WithMaxCollapses(cfg.MaxCollapses),
		minisum.WithConcurrency(cfg.Concurrency),
		minisum.WithEstimator(est),
		minisum.WithTemplates(tpl),
		minisum.WithLogger(logger),
	}
	if cfg.Checkpoint != "" {
		pipelineOpts = append(pipelineOpts, minisum.WithCheckpoint(checkpoint.Open(cfg.Checkpoint)))
	}

	var prog *progress
	if !opts.quiet {
		tty := false
		if f, ok := stderr.(*os.File); ok {
			tty = term.IsTerminal(int(f.Fd()))
		}
		prog = newProgress(stderr, tty)
		pipelineOpts = append(pipelineOpts, minisum.WithEvents(prog.events))
		go prog.run()
	}

	p := minisum.New(client, pipelineOpts...)
	logger.Debug("pipeline configured", "pipeline", p.String())

	// Step 3: Summarize
	res, err := p.Run(ctx, chunks)
	if prog != nil {
		prog.close()
	}
	if errors.Is(err, minisum.ErrEmptyInput) {
		fmt.Fprintf(stderr, "Nothing to summarize in %s\n", root)
		return nil
	}
	if err != nil {
		if cfg.Checkpoint != "" {
			fmt.Fprintf(stderr, "Progress saved to %s. Run again to resume.\n", cfg.Checkpoint)
		}
		return err
	}

	attrs := []any{"calls", res.Stats.Calls(), "collapses", res.Stats.Collapses}
	if cache != nil {
		attrs = append(attrs, "cache_hits", cache.Hits())
	}
	logger.Info("summary complete", attrs...)

	// Step 4: Print the summary
	fmt.Fprintln(stdout, strings.TrimSpace(res.Summary))
	return nil
}
