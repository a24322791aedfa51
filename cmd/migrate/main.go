package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/shadowing-api/internal/config"
	"github.com/jwalitptl/shadowing-api/internal/repository/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the shadowing database schema",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		migrationCmd("up", "Apply all pending migrations", func(ctx context.Context, m *postgres.Migrator) error {
			return m.Up(ctx)
		}),
		migrationCmd("down", "Roll back the most recent migration", func(ctx context.Context, m *postgres.Migrator) error {
			return m.Down(ctx)
		}),
		migrationCmd("status", "Print the state of every migration", func(ctx context.Context, m *postgres.Migrator) error {
			return m.Status(ctx)
		}),
		migrationCmd("version", "Print the current schema version", func(ctx context.Context, m *postgres.Migrator) error {
			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}),
	)
	return root
}

func migrationCmd(use, short string, run func(context.Context, *postgres.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("database.driver is %q; migrations only apply to postgres", cfg.Database.Driver)
			}

			ctx := cmd.Context()
			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := postgres.NewMigrator(db.DB)
			if err != nil {
				return err
			}
			return run(ctx, migrator)
		},
	}
}
