// Package main provides the CLI entry point for the regulatory-assistance
// conversational agent service.
//
// # Basic Usage
//
// Start the server:
//
//	regassist serve --config regassist.yaml
//
// Apply the conversation store schema ahead of time:
//
//	regassist migrate up --config regassist.yaml
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main so tests can exercise it without os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "regassist",
		Short:   "Multi-tenant regulatory-assistance conversational agent service",
		Version: version + " (commit: " + commit + ", built: " + date + ")",
		Long: `regassist serves one duplex WebSocket channel per conversation,
routing each turn through an agentic loop backed by Anthropic (with a
Bedrock failover), a fixed catalog of regulatory retrieval tools, and a
per-tenant vector search proxy.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildSearchProxyCmd(),
	)

	return rootCmd
}
