package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockcast/internal/models"
	"stockcast/internal/utils"
)

// Engine runs the ordered fallback chain. Tiers are attempted in strict
// priority order; the first tier that completes wins, and a tier's failure
// is never escalated to the caller unless every tier fails. No tier is
// retried within a single request.
type Engine struct {
	strategies []Strategy
	logger     *logrus.Logger
}

func NewEngine(logger *logrus.Logger, strategies ...Strategy) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{strategies: strategies, logger: logger}
}

// Forecast produces exactly horizon points for the series. The only error
// surfaced before the chain runs is InsufficientHistory: with fewer than two
// points not even the safety-net tier can fit a line.
func (e *Engine) Forecast(ctx context.Context, series *models.PriceSeries, horizon int) (*models.ForecastResult, error) {
	if series.Len() < 2 {
		return nil, utils.NewInsufficientHistoryError(2, series.Len())
	}
	if horizon < 1 {
		return nil, errors.New("forecast horizon must be at least 1 day")
	}

	var lastErr error
	for _, strategy := range e.strategies {
		attempt, err := strategy.Forecast(ctx, series, horizon)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"symbol": series.Symbol,
				"tier":   strategy.Name(),
			}).Warnf("Forecast tier failed, advancing: %v", err)
			lastErr = err
			continue
		}

		return &models.ForecastResult{
			ID:               uuid.New(),
			Symbol:           series.Symbol,
			RequestedAt:      time.Now(),
			HorizonDays:      horizon,
			Points:           attempt.Points,
			ModelTier:        strategy.Tier(),
			AccuracyEstimate: clamp01(attempt.Accuracy),
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no forecast strategies configured")
	}
	return nil, lastErr
}
