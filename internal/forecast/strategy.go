package forecast

import (
	"context"
	"time"

	"stockcast/internal/models"
)

// Attempt is the raw output of one strategy before the engine assembles the
// final ForecastResult.
type Attempt struct {
	Points   []models.ForecastPoint
	Accuracy float64
}

// Strategy is one tier of the fallback chain. A strategy either produces a
// complete Attempt or returns an error; the engine never inspects partial
// output.
type Strategy interface {
	Name() string
	Tier() models.ModelTier
	Forecast(ctx context.Context, series *models.PriceSeries, horizon int) (*Attempt, error)
}

// forecastDates returns the horizon dates following the last observation,
// one calendar day apart.
func forecastDates(series *models.PriceSeries, horizon int) []time.Time {
	last := series.LastDate()
	if last.IsZero() {
		last = time.Now().Truncate(24 * time.Hour)
	}
	dates := make([]time.Time, horizon)
	for i := 0; i < horizon; i++ {
		dates[i] = last.AddDate(0, 0, i+1)
	}
	return dates
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
