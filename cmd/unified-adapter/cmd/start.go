package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/inbound/admin"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/inbound/http"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/executor"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/config"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the adapter",
	Long: `Start the unified adapter.

The MCP surface is served in one of two modes:

1. streamable-http (default): /mcp, /admin/, /health and /metrics on
   server.http_addr.

2. stdio: MCP over stdin/stdout for a local client. The admin API is
   not served.

Examples:
  # Start with config file settings
  unified-adapter start

  # Serve MCP over stdio
  unified-adapter start --transport stdio

  # Start with a specific config file
  unified-adapter --config /path/to/config.yaml start`,
	RunE: runStart,
}

var (
	devMode       bool
	transportFlag string
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (no authentication, debug logging)")
	startCmd.Flags().StringVar(&transportFlag, "transport", "", "MCP transport: streamable-http or stdio (overrides config)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if transportFlag != "" {
		cfg.Server.Transport = transportFlag
		cfg.SetDefaults()
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)
	logger.Debug("log level configured", "level", cfg.Server.LogLevel)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := telemetry.Init(telemetry.Settings{
		Enabled:        cfg.Telemetry.Tracing,
		ServiceName:    cfg.Server.ServiceName,
		ServiceVersion: Version,
		Output:         os.Stderr,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn("failed to close components", "error", err)
		}
	}()

	reg := http.NewMetricsRegistry()
	metrics := http.NewMetrics(reg)

	requestTimeout := config.MustDuration(cfg.Execution.RequestTimeout)
	rest := executor.NewRESTExecutor(
		executor.WithTimeout(requestTimeout),
		executor.WithMaxRetries(cfg.Execution.RESTRetries),
		executor.WithLogger(logger),
	)
	message := executor.NewMessageExecutor(
		executor.WithTimeout(requestTimeout),
		executor.WithMaxRetries(cfg.Execution.MessageRetries),
		executor.WithLogger(logger),
	)
	resolver := service.NewCredentialResolver(comps.upstream, logger)
	execService := service.NewExecutionService(resolver, rest, message,
		service.WithMaxConcurrency(cfg.Execution.MaxConcurrency),
		service.WithExecutionRecorder(metrics),
		service.WithTracer(tp.Tracer()),
		service.WithExecutionLogger(logger),
	)

	mcpServer := http.NewMCPServer(cfg.Server.ServiceName, Version, cfg.Server.Instructions,
		comps.registry, execService,
		http.WithSyncInterval(config.MustDuration(cfg.Registry.ToolCacheTTL)),
		http.WithToolGauge(metrics.RegistryTools),
		http.WithMCPLogger(logger),
	)

	// The sync loop stops when the serving goroutine returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mcpServer.RunSync(gctx)
	})

	if cfg.Server.Transport == config.TransportStdio {
		logger.Info("serving MCP over stdio", "service", cfg.Server.ServiceName, "version", Version)
		g.Go(func() error {
			defer cancel()
			return mcpServer.RunStdio(gctx)
		})
		return g.Wait()
	}

	verifier := buildVerifier(cfg, logger)
	switch {
	case cfg.DevMode:
		logger.Warn("DEV MODE: authentication disabled, all requests run as anonymous")
		verifier = nil
	case verifier == nil:
		logger.Warn("no authentication configured, set auth.token or auth.clerk.jwks_url")
	}

	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithVerifier(verifier),
		http.WithMetrics(reg, metrics),
		http.WithHealthChecker(newHealthChecker(comps)),
		http.WithShutdownTimeout(config.MustDuration(cfg.Server.ShutdownTimeout)),
	}
	if cfg.Admin.Enabled {
		adminAPI := admin.NewAdminAPIHandler(
			admin.WithToolStore(comps.store),
			admin.WithRegistry(comps.registry),
			admin.WithExecutionService(execService),
			admin.WithAPILogger(logger),
			admin.WithRateLimit(cfg.Admin.RateLimitPerMinute),
		)
		opts = append(opts, http.WithAdminHandler(adminAPI.Routes()))
	}
	transport := http.NewHTTPTransport(mcpServer, opts...)

	logger.Info("starting unified adapter",
		"addr", cfg.Server.HTTPAddr,
		"version", Version,
		"database", cfg.Database.Driver,
		"admin", cfg.Admin.Enabled,
	)
	g.Go(func() error {
		defer cancel()
		return transport.Start(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("unified adapter stopped")
	return nil
}

// newHealthChecker leaves the cache check out when no shared cache is
// configured.
func newHealthChecker(c *components) *http.HealthChecker {
	var cache http.Pinger
	if c.cache != nil {
		cache = c.cache
	}
	return http.NewHealthChecker(c.store, c.registry, cache, Version)
}
