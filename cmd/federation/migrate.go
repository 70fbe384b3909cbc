package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/federation-core/internal/config"
	"github.com/morezero/federation-core/pkg/db"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the KV store's Postgres schema",
	}
	cmd.AddCommand(migrateUpCmd(), migrateStatusCmd(), migrateDownCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connectForMigration()
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := context.Background()
			files, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			return db.RunMigrations(ctx, pool, files)
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connectForMigration()
			if err != nil {
				return err
			}
			defer pool.Close()

			return db.MigrationStatus(context.Background(), pool, cfg.MigrationPath)
		},
	}
}

func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (forward-only schema: reports and exits)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connectForMigration()
			if err != nil {
				return err
			}
			defer pool.Close()

			return db.MigrationDown(context.Background(), pool, cfg.MigrationPath)
		},
	}
}

func connectForMigration() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}
