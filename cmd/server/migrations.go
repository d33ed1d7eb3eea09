package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/reminder-api/internal/config"
	"github.com/phrazzld/reminder-api/internal/platform/postgres"
	"github.com/phrazzld/reminder-api/internal/platform/riverqueue"
)

// handleMigrations runs a goose command against the configured database.
// "up" also applies River's schema when River is the scheduler driver.
func handleMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	db, err := setupAppDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()

	if err := postgres.RunMigrations(ctx, db, command, logger); err != nil {
		return fmt.Errorf("migration %q failed: %w", command, err)
	}

	if command != postgres.MigrateUp || cfg.Scheduler.Driver != config.DriverRiver {
		return nil
	}

	pool, err := setupJobPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	return riverqueue.Migrate(ctx, pool, logger)
}
