package database

import (
	"context"
	"fmt"
)

// schema holds the idempotent DDL applied at startup. The service owns its
// tables; there is no separate migration tool in the deployment.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS trained_models (
		symbol TEXT PRIMARY KEY,
		fitted_at TIMESTAMPTZ NOT NULL,
		window_length INTEGER NOT NULL,
		validation_error DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS forecast_records (
		id UUID PRIMARY KEY,
		symbol TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		horizon_days INTEGER NOT NULL,
		model_tier TEXT NOT NULL,
		accuracy_estimate DOUBLE PRECISION NOT NULL,
		points JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecast_records_symbol ON forecast_records (symbol, requested_at DESC)`,
	`CREATE TABLE IF NOT EXISTS prediction_history (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		forecast_id UUID NOT NULL,
		symbol TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prediction_history_user ON prediction_history (user_id, requested_at DESC)`,
}

// RunMigrations applies the schema. Safe to run on every startup.
func (db *PostgresDB) RunMigrations(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	db.logger.Info("Database schema up to date")
	return nil
}
