package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/agent/providers"
	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/internal/config"
	"github.com/haasonsaas/steward/internal/conversations"
	"github.com/haasonsaas/steward/internal/observability"
	"github.com/haasonsaas/steward/internal/ratelimit"
	"github.com/haasonsaas/steward/internal/taskapi"
	"github.com/haasonsaas/steward/internal/tools/taskops"
	"github.com/haasonsaas/steward/internal/web"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the steward chat service",
		Long: `Start the chat service with the configured store, provider, and tools.

The server will:
1. Load configuration from the specified file (or steward.yaml)
2. Open the conversation store (PostgreSQL or SQLite)
3. Initialize the LLM provider and the task service tools
4. Start the HTTP API and the metrics listener

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  steward serve

  # Start with custom config
  steward serve --config /etc/steward/production.yaml

  # Start with debug logging
  steward serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}

// runServe wires every component from config and serves until a shutdown
// signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)

	logger.Info("starting steward",
		"version", version,
		"commit", commit,
		"config", configPath,
		"http_port", cfg.Server.HTTPPort,
		"metrics_port", cfg.Server.MetricsPort,
		"database_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.DefaultProvider,
	)

	metrics := observability.NewMetrics(nil)

	tracer, shutdownTracer, err := observability.NewTracer(traceConfig(cfg))
	if err != nil {
		// The tracer falls back to a no-op; the service keeps running.
		logger.Warn("trace export disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()
	store = conversations.WithMetrics(store, metrics)

	taskClient, err := taskapi.NewClient(taskapi.Config{
		BaseURL: cfg.Tasks.BaseURL,
		Timeout: cfg.Tasks.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to build task service client: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize llm provider: %w", err)
	}

	registry := agent.NewRegistry()
	for _, tool := range taskops.Tools(taskClient) {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name(), err)
		}
	}
	logger.Info("tools registered", "tools", registry.Names())

	loop := agent.NewLoop(provider, registry, store, &agent.LoopConfig{
		Model:         cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
		SystemPrompt:  cfg.Chat.SystemPrompt,
		MaxToolRounds: cfg.Chat.MaxToolRounds,
		TurnTimeout:   cfg.Chat.TurnTimeout,
		ContextWindow: cfg.Chat.ContextWindow,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		PerMinute: cfg.Limits.PerMinute,
		PerHour:   cfg.Limits.PerHour,
		Enabled:   cfg.RateLimitEnabled(),
	})

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)

	handler, err := web.NewHandler(&web.Config{
		Verifier:       verifier,
		Store:          store,
		Runner:         loop,
		TaskPinger:     taskClient,
		Limiter:        limiter,
		Metrics:        metrics,
		Tracer:         tracer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxMessageLen:  cfg.Limits.MaxMessageLen,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build api handler: %w", err)
	}

	server := web.NewServer(web.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.HTTPPort,
		MetricsPort:       cfg.Server.MetricsPort,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, handler.Mount(), logger)

	// Cancel on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("steward started", "addr", server.Addr())

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("steward stopped gracefully")
	return nil
}

// openStore opens the conversation store named by database.driver.
func openStore(cfg *config.Config) (conversations.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool := conversations.DefaultPostgresConfig()
		if cfg.Database.MaxConnections > 0 {
			pool.MaxOpenConns = cfg.Database.MaxConnections
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		}
		return conversations.NewPostgresStore(cfg.Database.URL, pool)
	case "sqlite":
		return conversations.NewSQLiteStore(cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// buildProvider constructs the configured default inference backend.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	pc := cfg.LLM.Providers[name]

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       pc.Region,
			DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

func traceConfig(cfg *config.Config) observability.TraceConfig {
	tc := observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: cfg.Observability.Tracing.ServiceVersion,
		Environment:    cfg.Observability.Tracing.Environment,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	}
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = version
	}
	// An empty endpoint keeps the tracer a no-op.
	if cfg.Observability.Tracing.Enabled {
		tc.Endpoint = cfg.Observability.Tracing.Endpoint
	}
	return tc
}
