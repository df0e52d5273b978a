package forecast

import (
	"context"
	"math"

	"stockcast/internal/models"
)

const trainedBandPercent = 0.05

// TrainedModelBridge is the slice of the trained-model store the strategy
// needs: existence check, metadata, and a worker-delegated prediction.
type TrainedModelBridge interface {
	GetModel(ctx context.Context, symbol string) (*models.TrainedModelRecord, error)
	Predict(ctx context.Context, symbol string, days int) ([]float64, error)
}

// TrainedModelStrategy invokes a previously fitted per-symbol model through
// an isolated worker process. The worker does not expose residual
// statistics, so the confidence interval is a fixed +/-5% band.
type TrainedModelStrategy struct {
	bridge TrainedModelBridge
}

func NewTrainedModelStrategy(bridge TrainedModelBridge) *TrainedModelStrategy {
	return &TrainedModelStrategy{bridge: bridge}
}

func (s *TrainedModelStrategy) Name() string { return "trained_neural_sequence" }

func (s *TrainedModelStrategy) Tier() models.ModelTier { return models.TierTrainedNeuralSequence }

func (s *TrainedModelStrategy) Forecast(ctx context.Context, series *models.PriceSeries, horizon int) (*Attempt, error) {
	record, err := s.bridge.GetModel(ctx, series.Symbol)
	if err != nil {
		return nil, err
	}

	predictions, err := s.bridge.Predict(ctx, series.Symbol, horizon)
	if err != nil {
		return nil, err
	}

	points, err := BandedPoints(series, predictions, horizon, trainedBandPercent)
	if err != nil {
		return nil, err
	}

	return &Attempt{Points: points, Accuracy: clamp01(1 - record.ValidationError)}, nil
}

// BandedPoints assembles forecast points from raw predicted values with a
// fixed symmetric percentage band. Shared by the trained-model tier and the
// direct prediction endpoint that bypasses the chain.
func BandedPoints(series *models.PriceSeries, predictions []float64, horizon int, bandPercent float64) ([]models.ForecastPoint, error) {
	if len(predictions) < horizon {
		return nil, &TrainingError{Reason: "worker returned fewer predictions than requested"}
	}
	dates := forecastDates(series, horizon)
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		predicted := predictions[i]
		band := math.Abs(predicted) * bandPercent
		points[i] = models.ForecastPoint{
			Date:       dates[i],
			Predicted:  predicted,
			LowerBound: predicted - band,
			UpperBound: predicted + band,
		}
	}
	return points, nil
}
