package app

import (
	"context"
	"fmt"

	"subscription-backend/internal/auth"
	"subscription-backend/internal/config"
	"subscription-backend/internal/db"
	"subscription-backend/internal/maintenance"
)

// Migrate applies pending migrations and returns.
func Migrate(ctx context.Context, loadDotEnv bool) error {
	cfg := config.Load(loadDotEnv)
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer database.Close()

	return db.RunMigrations(ctx, database)
}

// Cleanup runs one expired-token sweep outside the HTTP server.
func Cleanup(ctx context.Context, loadDotEnv bool) (maintenance.CleanupResult, error) {
	cfg := config.Load(loadDotEnv)
	if err := cfg.ValidateDatabase(); err != nil {
		return maintenance.CleanupResult{}, err
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		return maintenance.CleanupResult{}, err
	}
	defer database.Close()

	cleaner := maintenance.NewCleaner(
		auth.NewRefreshTokenRepository(database),
		auth.NewResetTokenRepository(database),
		cfg.CleanupBatchSize,
	)

	result, err := cleaner.Run(ctx)
	if err != nil {
		return result, fmt.Errorf("cleanup: %w", err)
	}
	return result, nil
}
