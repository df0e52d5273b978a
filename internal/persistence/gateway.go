// Package persistence stores forecast records and per-user prediction
// history. It is never on the critical path: every write is best-effort and
// failures are logged, not surfaced.
package persistence

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"stockcast/internal/models"
)

// DatabasePool is the pgx surface the gateway needs, mockable in tests.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type Gateway struct {
	pool   DatabasePool
	logger *logrus.Logger
}

func NewGateway(pool DatabasePool, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gateway{pool: pool, logger: logger}
}

// SaveForecast records a completed forecast. Errors are swallowed after
// logging; a lost record never fails the request that produced it.
func (g *Gateway) SaveForecast(ctx context.Context, result *models.ForecastResult) {
	points, err := json.Marshal(result.Points)
	if err != nil {
		g.logger.Warnf("Failed to serialize forecast points for %s: %v", result.Symbol, err)
		return
	}

	_, err = g.pool.Exec(ctx,
		`INSERT INTO forecast_records (id, symbol, requested_at, horizon_days, model_tier, accuracy_estimate, points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.Symbol, result.RequestedAt, result.HorizonDays,
		string(result.ModelTier), result.AccuracyEstimate, points)
	if err != nil {
		g.logger.Warnf("Failed to persist forecast for %s: %v", result.Symbol, err)
	}
}

// SaveHistory appends a per-user prediction history row, best-effort.
func (g *Gateway) SaveHistory(ctx context.Context, userID string, result *models.ForecastResult) {
	if userID == "" {
		return
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO prediction_history (user_id, forecast_id, symbol, requested_at)
		 VALUES ($1, $2, $3, $4)`,
		userID, result.ID, result.Symbol, result.RequestedAt)
	if err != nil {
		g.logger.Warnf("Failed to record prediction history for user %s: %v", userID, err)
	}
}
