package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/regassist/regassist/internal/adapters"
	"github.com/regassist/regassist/internal/cache"
	"github.com/regassist/regassist/internal/config"
	"github.com/regassist/regassist/internal/convstore"
	"github.com/regassist/regassist/internal/gateway"
	"github.com/regassist/regassist/internal/indexer"
	"github.com/regassist/regassist/internal/llm"
	"github.com/regassist/regassist/internal/metrics"
	"github.com/regassist/regassist/internal/orchestrator"
	"github.com/regassist/regassist/internal/searchproxy"
	"github.com/regassist/regassist/internal/tools/retrieval"
	"github.com/regassist/regassist/internal/tracing"
	"github.com/regassist/regassist/pkg/models"
)

const defaultConfigPath = "regassist.yaml"

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the regulatory-assistance gateway",
		Long: `Start the gateway server:

1. Load configuration from the given file.
2. Build the LLM provider (Anthropic, with a Bedrock failover if configured).
3. Build the document cache, background indexer, and regulatory source adapters.
4. Register the fixed tool catalog and build one agentic loop shared by all agents.
5. Serve the duplex WebSocket channel.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loop, agents, err := buildLoop(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build loop: %w", err)
	}

	collector := metrics.NewCollector()
	tracer, shutdownTracer := tracing.New(tracing.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Observability.Environment,
		Endpoint:     cfg.Observability.TraceEndpoint,
		SamplingRate: cfg.Observability.TraceSampling,
		Insecure:     cfg.Observability.TraceInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()
	loop.SetMetrics(collector)
	loop.SetTracer(tracer)

	if cfg.Server.AuthSecret == "" {
		return fmt.Errorf("server.auth_secret is required")
	}
	auth := gateway.NewAuthenticator(cfg.Server.AuthSecret)
	gw := gateway.NewServer(loop, agents, auth, logger)
	gw.SetMetrics(collector)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutdown signal received, draining connections")
	grace := cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("gateway stopped gracefully")
	return nil
}

// buildLoop wires every collaborator named in config into one
// orchestrator.Loop and the agent registry it serves.
func buildLoop(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*orchestrator.Loop, *models.Registry, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build llm provider: %w", err)
	}

	store, err := buildConversationStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build conversation store: %w", err)
	}

	registry := orchestrator.NewToolRegistry()
	if err := registerTools(ctx, registry, cfg); err != nil {
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}

	loopCfg := &orchestrator.Config{
		MaxToolRounds: cfg.Limits.MaxToolRounds,
		MaxTokens:     4096,
		TurnTimeout:   cfg.Limits.TurnTimeout,
	}
	loop := orchestrator.NewLoop(provider, registry, store, loopCfg, logger)

	agents, err := cfg.BuildRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("build agent registry: %w", err)
	}

	return loop, agents, nil
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	anthropicCreds := cfg.Credentials["anthropic"]
	primary, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
		APIKey:       anthropicCreds.APIKey,
		BaseURL:      anthropicCreds.Endpoint,
		DefaultModel: cfg.LLM.Model,
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryDelay:   cfg.LLM.RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	if cfg.LLM.Failover == nil {
		return primary, nil
	}

	bedrockCreds := cfg.Credentials["bedrock"]
	secondary, err := llm.NewBedrockProvider(llm.BedrockConfig{
		Region:          cfg.LLM.Failover.Region,
		AccessKeyID:     bedrockCreds.ClientID,
		SecretAccessKey: bedrockCreds.ClientSecret,
		DefaultModel:    cfg.LLM.Failover.Model,
		MaxRetries:      cfg.LLM.MaxRetries,
		RetryDelay:      cfg.LLM.RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	return llm.NewFailoverProvider(primary, secondary, slog.Default()), nil
}

func buildConversationStore(cfg *config.Config) (orchestrator.ConversationStore, error) {
	switch cfg.Database.Backend {
	case "postgres":
		return convstore.NewPostgresStore(&convstore.PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectTimeout:  10 * time.Second,
		})
	case "sqlite":
		return convstore.NewSQLiteStore(cfg.Database.DSN)
	case "memory", "":
		return convstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}

func buildCacheStore(cfg *config.Config) (*cache.Store, error) {
	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "s3":
		s3Backend, err := cache.NewS3Backend(context.Background(), &cache.S3BackendConfig{
			Bucket: cfg.Cache.Bucket,
			Region: cfg.Cache.Region,
		})
		if err != nil {
			return nil, err
		}
		backend = s3Backend
	case "memory", "":
		backend = cache.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	return cache.NewStore(backend), nil
}

func registerTools(ctx context.Context, registry *orchestrator.ToolRegistry, cfg *config.Config) error {
	cacheStore, err := buildCacheStore(cfg)
	if err != nil {
		return err
	}

	embedderCreds := cfg.Credentials["openai"]
	embedder, err := indexer.NewOpenAIEmbedder(indexer.OpenAIEmbedderConfig{
		APIKey:  embedderCreds.APIKey,
		BaseURL: embedderCreds.Endpoint,
	})
	if err != nil {
		return err
	}

	proxyClient := searchproxy.NewClient(searchproxy.ClientConfig{
		BaseURL:              cfg.SearchProxy.URL,
		Token:                cfg.SearchProxy.Token,
		RegulatoryWriteToken: cfg.SearchProxy.RegulatoryWriteToken,
	})

	idx := indexer.NewManager(proxyClient, cacheStore, embedder)

	cfrCreds := cfg.Credentials["cfr"]
	cfrClient := adapters.NewCFRClient(adapters.CFRConfig{APIKey: cfrCreds.APIKey})

	drsCreds := cfg.Credentials["drs"]
	drsClient := adapters.NewDRSClient(adapters.DRSConfig{
		ClientID:     drsCreds.ClientID,
		ClientSecret: drsCreds.ClientSecret,
		TokenURL:     drsCreds.TokenURL,
	})

	apsCreds := cfg.Credentials["aps"]
	apsClient := adapters.NewAPSClient(adapters.APSConfig{APIKey: apsCreds.APIKey})

	retrieval.Register(registry, retrieval.Dependencies{
		Cache:    cacheStore,
		Indexer:  idx,
		Proxy:    proxyClient,
		CFR:      cfrClient,
		DRS:      drsClient,
		APS:      apsClient,
		Embedder: embedder,
	})

	return nil
}
