package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"planner/internal/config"
	"planner/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect metadata store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := store.ParseDriver(cfg.DBDriver)
			if err != nil {
				return err
			}

			if inspect || dryRun {
				plan, err := migrationPlan(cmd.Context(), cfg, driver)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				if *jsonOutput {
					return writeJSON(plan)
				}
				return writeMigrationPlan(plan)
			}

			// Opening the store applies pending migrations, same as server start.
			st, err := store.OpenWithOptions(cmd.Context(), store.Options{Driver: driver, Path: cfg.DBPath, DSN: cfg.DatabaseURL})
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := st.Close(); err != nil {
				return err
			}

			if *jsonOutput {
				plan, err := migrationPlan(cmd.Context(), cfg, driver)
				if err != nil {
					return err
				}
				return writeJSON(plan)
			}
			return writePlain("Migrations applied successfully.\n")
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func migrationPlan(ctx context.Context, cfg *config.Config, driver store.Driver) (*store.MigrationStatus, error) {
	var (
		db  *sql.DB
		err error
	)
	if driver == store.DriverPostgres {
		db, err = store.OpenPostgresDB(ctx, cfg.DatabaseURL)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("db path is required")
		}
		db, err = store.OpenSQLiteDB(cfg.DBPath)
	}
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if driver == store.DriverPostgres {
		return store.PostgresMigrationPlan(ctx, db)
	}
	return store.MigrationPlan(db)
}

func writeMigrationPlan(plan *store.MigrationStatus) error {
	if err := writePlain("Current version: %d\nAvailable version: %d\n", plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	if len(plan.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	if err := writePlain("Pending migrations: %d\n", len(plan.Pending)); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
