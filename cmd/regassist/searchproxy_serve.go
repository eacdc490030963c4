package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/regassist/regassist/internal/indexer"
	"github.com/regassist/regassist/internal/searchproxy"
)

// buildSearchProxyCmd builds the command group for the search proxy — the
// sole holder of vector-index credentials, deployed as its
// own process so the orchestrator never needs direct database access to
// the vector store.
func buildSearchProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-proxy",
		Short: "Run the vector-index search proxy",
	}
	cmd.AddCommand(buildSearchProxyServeCmd())
	return cmd
}

func buildSearchProxyServeCmd() *cobra.Command {
	var (
		addr                 string
		dsn                  string
		token                string
		regulatoryWriteToken string
		embedderAPIKey       string
		embedderBaseURL      string
		runMigrations        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the search proxy HTTP server",
		Long: `Starts the pgvector-backed search proxy: the only process in the
deployment holding vector-index credentials. Every read is filtered by
the caller's fingerprint; every write is ownership-checked; regulatory
(ownerless) writes additionally require the regulatory write token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchProxyServe(cmd.Context(), searchProxyServeOptions{
				addr:                 addr,
				dsn:                  dsn,
				token:                token,
				regulatoryWriteToken: regulatoryWriteToken,
				embedderAPIKey:       embedderAPIKey,
				embedderBaseURL:      embedderBaseURL,
				runMigrations:        runMigrations,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8081", "Listen address")
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL/CockroachDB connection string")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token authorizing search/list/delete and personal-document writes")
	cmd.Flags().StringVar(&regulatoryWriteToken, "regulatory-write-token", "", "Bearer token additionally required for regulatory (ownerless) writes")
	cmd.Flags().StringVar(&embedderAPIKey, "embedder-api-key", "", "API key for the query embedder")
	cmd.Flags().StringVar(&embedderBaseURL, "embedder-base-url", "", "Override embedder API base URL")
	cmd.Flags().BoolVar(&runMigrations, "run-migrations", true, "Apply pending schema migrations on startup")

	return cmd
}

type searchProxyServeOptions struct {
	addr                 string
	dsn                  string
	token                string
	regulatoryWriteToken string
	embedderAPIKey       string
	embedderBaseURL      string
	runMigrations        bool
}

func runSearchProxyServe(ctx context.Context, opts searchProxyServeOptions) error {
	logger := slog.Default()

	if opts.dsn == "" {
		return fmt.Errorf("--dsn is required")
	}
	if opts.token == "" {
		return fmt.Errorf("--token is required")
	}

	store, err := searchproxy.New(ctx, searchproxy.Config{
		DSN:           opts.dsn,
		RunMigrations: opts.runMigrations,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	embedder, err := indexer.NewOpenAIEmbedder(indexer.OpenAIEmbedderConfig{
		APIKey:  opts.embedderAPIKey,
		BaseURL: opts.embedderBaseURL,
	})
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	proxyServer := searchproxy.NewServer(store, embedder, searchproxy.ServerConfig{
		Token:                opts.token,
		RegulatoryWriteToken: opts.regulatoryWriteToken,
	})

	httpServer := &http.Server{Addr: opts.addr, Handler: proxyServer}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("search proxy listening", "addr", opts.addr)
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
