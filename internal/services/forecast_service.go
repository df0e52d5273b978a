package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stockcast/internal/forecast"
	"stockcast/internal/indicators"
	"stockcast/internal/marketdata"
	"stockcast/internal/models"
	"stockcast/internal/symbols"
	"stockcast/internal/utils"
)

// PersistenceGateway receives completed forecasts for durable storage.
// Failures there are logged by the gateway itself, never surfaced here.
type PersistenceGateway interface {
	SaveForecast(ctx context.Context, result *models.ForecastResult)
	SaveHistory(ctx context.Context, userID string, result *models.ForecastResult)
}

// ForecastRequest carries one client forecast request through the pipeline.
type ForecastRequest struct {
	Symbol       string
	ExchangeHint string
	StartDate    time.Time
	HorizonDays  int
	UserID       string
}

// ForecastResponse is the assembled reply: the forecast plus the technical
// indicator side channel. Indicators may be nil when history is too short
// for the slowest indicator; the forecast itself can still succeed.
type ForecastResponse struct {
	Result     *models.ForecastResult `json:"forecast"`
	Indicators *indicators.Summary    `json:"technicalIndicators,omitempty"`
	Cached     bool                   `json:"cached"`
}

// ForecastService orchestrates a forecast request: normalize the symbol,
// consult the result cache, fetch history, compute indicators, run the
// tiered engine, cache and persist the outcome.
type ForecastService struct {
	normalizer *symbols.Normalizer
	provider   marketdata.Provider
	engine     *forecast.Engine
	cache      forecast.ResultCache
	cacheTTL   time.Duration
	gateway    PersistenceGateway
	logger     *logrus.Logger
}

func NewForecastService(
	normalizer *symbols.Normalizer,
	provider marketdata.Provider,
	engine *forecast.Engine,
	cache forecast.ResultCache,
	cacheTTL time.Duration,
	gateway PersistenceGateway,
	logger *logrus.Logger,
) *ForecastService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ForecastService{
		normalizer: normalizer,
		provider:   provider,
		engine:     engine,
		cache:      cache,
		cacheTTL:   cacheTTL,
		gateway:    gateway,
		logger:     logger,
	}
}

// Normalize exposes symbol canonicalization to callers outside the forecast
// path (training, direct prediction).
func (s *ForecastService) Normalize(raw, exchangeHint string) string {
	return s.normalizer.Normalize(raw, exchangeHint)
}

// Forecast runs the full pipeline for one request.
func (s *ForecastService) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	symbol := s.normalizer.Normalize(req.Symbol, req.ExchangeHint)
	if symbol == "" {
		return nil, &marketdata.InvalidSymbolError{Symbol: req.Symbol}
	}
	horizon := req.HorizonDays
	if horizon < 1 {
		horizon = 7
	}

	start := req.StartDate
	if start.IsZero() {
		start = time.Now().AddDate(-1, 0, 0)
	}

	series, err := s.provider.GetHistory(ctx, symbol, start)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, utils.NewInsufficientHistoryError(2, 0)
	}

	key := forecast.Fingerprint(symbol, series)
	if cached, ok := s.cache.Get(ctx, key); ok && cached.HorizonDays == horizon {
		s.logger.WithFields(logrus.Fields{"symbol": symbol}).Debug("Forecast cache hit")
		return &ForecastResponse{
			Result:     cached,
			Indicators: s.computeIndicators(symbol, series),
			Cached:     true,
		}, nil
	}

	result, err := s.engine.Forecast(ctx, series, horizon)
	if err != nil {
		return nil, fmt.Errorf("forecast failed for %s: %w", symbol, err)
	}

	s.cache.Put(ctx, key, result, s.cacheTTL)
	if s.gateway != nil {
		s.gateway.SaveForecast(ctx, result)
		s.gateway.SaveHistory(ctx, req.UserID, result)
	}

	return &ForecastResponse{
		Result:     result,
		Indicators: s.computeIndicators(symbol, series),
	}, nil
}

// computeIndicators runs the side channel; a short series just means no
// indicator block in the response.
func (s *ForecastService) computeIndicators(symbol string, series *models.PriceSeries) *indicators.Summary {
	summary, err := indicators.Summarize(series.Closes())
	if err != nil {
		s.logger.WithFields(logrus.Fields{"symbol": symbol}).Debugf("Skipping indicators: %v", err)
		return nil
	}
	return summary
}
