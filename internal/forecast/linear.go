package forecast

import (
	"context"
	"math"

	"stockcast/internal/models"
	"stockcast/internal/utils"
)

// LinearRegressionStrategy is the unconditional safety net: an ordinary
// least-squares fit of close against day index, extrapolated over the
// horizon. It cannot fail given two or more data points. The confidence band
// is constant across the horizon since the model has no compounding
// autoregressive error; with exactly two points the residual variance is
// zero and the band collapses to the point estimate.
type LinearRegressionStrategy struct{}

func NewLinearRegressionStrategy() *LinearRegressionStrategy {
	return &LinearRegressionStrategy{}
}

func (s *LinearRegressionStrategy) Name() string { return "linear_regression" }

func (s *LinearRegressionStrategy) Tier() models.ModelTier { return models.TierLinearRegression }

func (s *LinearRegressionStrategy) Forecast(ctx context.Context, series *models.PriceSeries, horizon int) (*Attempt, error) {
	closes := series.Closes()
	n := len(closes)
	if n < 2 {
		return nil, utils.NewInsufficientHistoryError(2, n)
	}

	slope, intercept := fitLine(closes)

	// Residual standard error, zero when n == 2 (line passes through both points).
	var sse float64
	for i, y := range closes {
		fitted := intercept + slope*float64(i)
		sse += (y - fitted) * (y - fitted)
	}
	var stderr float64
	if n > 2 {
		stderr = math.Sqrt(sse / float64(n-2))
	}
	width := 1.96 * stderr

	dates := forecastDates(series, horizon)
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		predicted := intercept + slope*float64(n+i)
		points[i] = models.ForecastPoint{
			Date:       dates[i],
			Predicted:  predicted,
			LowerBound: predicted - width,
			UpperBound: predicted + width,
		}
	}

	return &Attempt{Points: points, Accuracy: rSquared(closes, slope, intercept)}, nil
}

// fitLine returns the OLS slope and intercept of y against index 0..n-1.
func fitLine(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// rSquared computes the coefficient of determination for the fitted line,
// clamped to [0,1]. A zero-variance series is a perfect fit by definition.
func rSquared(y []float64, slope, intercept float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssTot, ssRes float64
	for i, v := range y {
		fitted := intercept + slope*float64(i)
		ssRes += (v - fitted) * (v - fitted)
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return 1
	}
	return clamp01(1 - ssRes/ssTot)
}
