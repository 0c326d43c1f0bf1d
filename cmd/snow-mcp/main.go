// snow-mcp
//
// A standalone Go binary that exposes ServiceNow Table API operations as
// MCP tool functions:
//
//	MCP client (stdio/SSE)  →  tool call  →  ServiceNow Table API
//
// # Usage
//
//	snow-mcp [flags]
//
//	Flags:
//	  -config string   Path to config YAML file (default "config.yaml")
//	  -version         Print version information and exit
//
// # Architecture
//
// The server starts the following components based on configuration:
//
//  1. ServiceNow HTTP client with authentication
//  2. MCP server on the configured transport (stdio or SSE)
//  3. Audit event publisher (if enabled): mutations → Kafka
//  4. Observability server (if enabled): /healthz, /readyz, /metrics
//
// All components are managed via errgroup for coordinated lifecycle. On
// shutdown (SIGINT/SIGTERM), all goroutines are cancelled gracefully.
//
// Logs go to stderr: on the stdio transport, stdout belongs to the MCP
// protocol stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/config"
	"github.com/ThrownLemon/snow-mcp/internal/mcpserver"
	"github.com/ThrownLemon/snow-mcp/internal/observability"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration YAML file")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("snow-mcp %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Initialize structured logging.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting snow-mcp",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
	)

	// Load and validate configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	// Set log level from config.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Setup signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Setup config watcher for hot-reload.
	reloadCh := make(chan struct{}, 1)
	go watchConfig(ctx, *configPath, reloadCh, logger)

	for {
		// Create a sub-context for the current run.
		runCtx, runCancel := context.WithCancel(ctx)

		// Start the run in a goroutine so we can listen for signals/reloads.
		errCh := make(chan error, 1)
		go func() {
			errCh <- run(runCtx, *configPath, logger)
		}()

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			runCancel()
			cancel()
			<-errCh // wait for run to exit
			logger.Info("server shutdown complete")
			return
		case <-reloadCh:
			logger.Info("reloading configuration...")
			runCancel()
			if err := <-errCh; err != nil && err != context.Canceled {
				logger.Error("previous run exited with error on reload", "error", err)
			}
			logger.Info("restarting with new configuration")
			// continue loop to restart
		case err := <-errCh:
			runCancel()
			if err != nil && err != context.Canceled {
				logger.Error("server exited with error", "error", err)
				os.Exit(1)
			}
			logger.Info("server shutdown complete")
			return
		}
	}
}

// watchConfig uses fsnotify to watch the config file for changes.
func watchConfig(ctx context.Context, path string, reloadCh chan<- struct{}, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create config watcher", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		logger.Error("failed to watch config file", "path", path, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Trigger a reload on Write or Rename/Create (some editors do this).
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logger.Info("config file changed", "event", event.Name)
				// Debounce: some editors write multiple times.
				select {
				case reloadCh <- struct{}{}:
				default:
					// already has a reload queued
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}

// run is the main execution function, separated from main() for testability.
// It sets up all components and runs them via errgroup.
func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	// Load and validate configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration from %s: %w", configPath, err)
	}

	// 1. Initialize ServiceNow authentication.
	auth, err := servicenow.NewAuthenticator(ctx, cfg.ServiceNow, logger)
	if err != nil {
		return fmt.Errorf("initializing authenticator: %w", err)
	}
	defer auth.Close()

	// 2. Initialize the ServiceNow HTTP client.
	var clientOpts []servicenow.ClientOption
	if cfg.ServiceNow.RateLimitRPS > 0 {
		clientOpts = append(clientOpts, servicenow.WithRateLimiter(cfg.ServiceNow.RateLimitRPS))
	}
	snClient := servicenow.NewClient(cfg.ServiceNow, auth, logger, clientOpts...)
	defer snClient.Close()

	// 3. Initialize the audit publisher if enabled.
	var auditor *audit.Publisher
	if cfg.Audit.Enabled {
		auditor, err = audit.NewPublisher(cfg.Audit, logger)
		if err != nil {
			return fmt.Errorf("creating audit publisher: %w", err)
		}
		defer auditor.Close()
	}

	// 4. Build the toolset and MCP server.
	ts := mcpserver.NewToolset(snClient, auditor, logger)
	srv := mcpserver.New(cfg.Server, ts, version, logger)

	// 5. Use errgroup for coordinated goroutine lifecycle.
	g, gCtx := errgroup.WithContext(ctx)

	var obsSrv *observability.Server
	if cfg.Observability.Enabled {
		obsSrv = observability.NewServer(cfg.Observability.Addr, logger)
		defer obsSrv.SetReady(false)
		g.Go(func() error {
			return obsSrv.Start(gCtx)
		})
	}

	if auditor != nil {
		g.Go(func() error {
			return auditor.Run(gCtx)
		})
	}

	g.Go(func() error {
		return srv.Run(gCtx)
	})

	if obsSrv != nil {
		obsSrv.SetReady(true)
	}
	logger.Info("snow-mcp is ready",
		"transport", cfg.Server.Transport,
		"audit_enabled", cfg.Audit.Enabled,
		"observability_enabled", cfg.Observability.Enabled,
	)

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
