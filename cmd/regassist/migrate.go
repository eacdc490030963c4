package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/regassist/regassist/internal/config"
	"github.com/regassist/regassist/internal/convstore"
)

func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the conversation store schema",
	}
	cmd.AddCommand(buildMigrateUpCmd())
	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply the conversation store schema",
		Long: `Opens the configured database backend and applies the conversation
store schema. Idempotent: safe to run against an already-migrated
database, and safe to run before every deploy.

Has no effect for the "memory" backend, since it carries no schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runMigrateUp(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runMigrateUp(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	switch cfg.Database.Backend {
	case "postgres":
		store, err := convstore.NewPostgresStore(&convstore.PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectTimeout:  10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
		defer store.Close()
		fmt.Fprintln(out, "conversation store schema applied (postgres)")
	case "sqlite":
		store, err := convstore.NewSQLiteStore(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
		defer store.Close()
		fmt.Fprintln(out, "conversation store schema applied (sqlite)")
	case "memory", "":
		fmt.Fprintln(out, "memory backend carries no schema, nothing to do")
	default:
		return fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
	return nil
}
