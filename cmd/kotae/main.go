// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/schedule"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "runs":
		runRuns()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if n, err := components.Ledger.MarkInterrupted(ctx); err != nil {
		logger.Warn("could not close interrupted index runs", zap.Error(err))
	} else if n > 0 {
		logger.Warn("previous index runs were interrupted", zap.Int64("runs", n))
	}

	rebuilder := components.Rebuilder
	if cfg.Index.RebuildOnStartOrDefault() {
		// The first rebuild finishes before serving.
		if _, err := rebuilder.Rebuild(ctx, indexer.TriggerStartup); err != nil {
			logger.Error("startup index rebuild failed; serving with existing index state", zap.Error(err))
		}
	}

	if cfg.Index.Watch {
		if cfg.Corpus.Source != config.SourceFS {
			logger.Warn("index.watch is only supported for the fs corpus source", zap.String("source", cfg.Corpus.Source))
		} else {
			w := watcher.NewWatcher(cfg.Corpus.Root, cfg.Corpus.Extension,
				func() { triggerRebuild(ctx, rebuilder, indexer.TriggerWatch, logger) },
				watcher.WithLogger(logger),
				watcher.WithDebounce(time.Duration(cfg.Index.WatchDebounceMs)*time.Millisecond))
			if err := w.Start(ctx); err != nil {
				logger.Fatal("Failed to start watcher", zap.Error(err))
			}
			logger.Info("Watching corpus for changes", zap.String("root", w.Root()))
			defer w.Stop()
		}
	}

	if cfg.Index.Schedule != "" {
		sched := schedule.NewCronScheduler(schedule.WithLogger(logger))
		job := schedule.JobFunc{JobName: "index-rebuild", Fn: func(ctx context.Context) error {
			_, err := rebuilder.Rebuild(ctx, indexer.TriggerSchedule)
			if errors.Is(err, indexer.ErrRebuildInProgress) {
				return nil
			}
			return err
		}}
		if err := sched.AddJob(job, cfg.Index.Schedule); err != nil {
			logger.Fatal("Failed to schedule index rebuilds", zap.Error(err))
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	srv := server.NewServer(
		components.Pipeline,
		rebuilder,
		components.Store,
		components.Index,
		&cfg.Server,
		logger,
		server.WithLedger(components.Ledger),
		server.WithGatherer(components.Registry),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// triggerRebuild runs a rebuild and logs the outcome. A rebuild already in progress is not an error.
func triggerRebuild(ctx context.Context, r *indexer.Rebuilder, trigger string, logger *zap.Logger) {
	_, err := r.Rebuild(ctx, trigger)
	switch {
	case errors.Is(err, indexer.ErrRebuildInProgress):
		logger.Info("rebuild skipped: another rebuild is running", zap.String("trigger", trigger))
	case err != nil && ctx.Err() == nil:
		logger.Error("rebuild failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "ask a running server to rebuild instead of indexing in this process")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serverURL != "" {
		if err := cli.NewClient(*serverURL, nil).Rebuild(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Rebuild started")
		return
	}

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	if cfg.Vector.Backend == "memory" {
		logger.Warn("the memory vector backend is not persisted; this index is discarded on exit")
	}

	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	run, err := components.Rebuilder.Rebuild(ctx, indexer.TriggerCLI)
	if run == nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	count := -1
	if n, cerr := components.Index.Count(ctx); cerr == nil {
		count = n
	}
	if werr := cli.WriteRun(os.Stdout, run, count, format); werr != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the question
// to the front of the slice so that flag.Parse() sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.NewClient(*serverURL, nil).Ask(ctx, query, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "\nAsk failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	status, err := cli.NewClient(*serverURL, &http.Client{Timeout: 30 * time.Second}).Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRuns() {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	limit := fs.Int("limit", 10, "number of runs to show")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	runs, err := cli.NewClient(*serverURL, &http.Client{Timeout: 30 * time.Second}).Runs(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing runs failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRuns(os.Stdout, runs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kotae - Answers questions about your documentation

Usage:
  kotae server [flags]            Index the corpus and start the HTTP server
  kotae index [flags]             Rebuild the vector index once
  kotae ask [flags] <question>    Stream an answer from a running server
  kotae status [flags]            Show corpus/index status of a running server
  kotae runs [flags]              List recent index runs
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Index Flags:
  --config string    Config file path
  --server string    Trigger a rebuild on a running server instead (e.g. http://localhost:8080)
  --output string    Output format: text or json (default: text)

Ask Flags:
  --server string    Server URL (default: http://localhost:8080)

Status / Runs Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)
  --limit int        Number of runs to show (runs only, default: 10)

Examples:
  kotae server
  kotae index
  kotae index --server http://localhost:8080
  kotae ask "How do I configure the webhook?"
  kotae ask how do I deploy
  kotae status --output json
  kotae runs --limit 5`)
}
