package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"stockcast/internal/config"
	"stockcast/internal/models"
)

const cloudBandPercent = 0.05

// CloudInferenceStrategy sends the full closing-price series to a remote
// sequence-forecasting endpoint. Remote services disagree on payload and
// response shapes, so several are attempted and normalized. The confidence
// band is a fixed +/-5% and the accuracy estimate is approximated from the
// relative error between the last known price and the final predicted point,
// not a true backtest.
type CloudInferenceStrategy struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewCloudInferenceStrategy(cfg *config.InferenceConfig) *CloudInferenceStrategy {
	return &CloudInferenceStrategy{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: config.Duration(cfg.Timeout, 30*time.Second),
		},
	}
}

func (s *CloudInferenceStrategy) Name() string { return "cloud_inference" }

func (s *CloudInferenceStrategy) Tier() models.ModelTier { return models.TierCloudInference }

func (s *CloudInferenceStrategy) Forecast(ctx context.Context, series *models.PriceSeries, horizon int) (*Attempt, error) {
	if s.endpoint == "" || s.apiKey == "" {
		return nil, &ExternalInferenceError{Reason: "no inference credential configured"}
	}

	closes := series.Closes()
	payloads := []interface{}{
		map[string]interface{}{"inputs": closes, "horizon": horizon},
		map[string]interface{}{"data": map[string]interface{}{"prices": closes, "days": horizon}},
	}

	var lastErr error
	var predictions []float64
	for _, payload := range payloads {
		predictions, lastErr = s.call(ctx, payload)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, &ExternalInferenceError{Reason: "all payload shapes rejected", Err: lastErr}
	}
	if len(predictions) < horizon {
		return nil, &ExternalInferenceError{
			Reason: fmt.Sprintf("remote returned %d predictions, need %d", len(predictions), horizon),
		}
	}
	predictions = predictions[:horizon]

	dates := forecastDates(series, horizon)
	points := make([]models.ForecastPoint, horizon)
	for i, predicted := range predictions {
		if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
			return nil, &ExternalInferenceError{Reason: "remote returned non-finite prediction"}
		}
		band := math.Abs(predicted) * cloudBandPercent
		points[i] = models.ForecastPoint{
			Date:       dates[i],
			Predicted:  predicted,
			LowerBound: predicted - band,
			UpperBound: predicted + band,
		}
	}

	accuracy := 0.5
	if last := series.LastClose(); last != 0 {
		final := predictions[len(predictions)-1]
		accuracy = clamp01(1 - math.Abs(final-last)/math.Abs(last))
	}

	return &Attempt{Points: points, Accuracy: accuracy}, nil
}

func (s *CloudInferenceStrategy) call(ctx context.Context, payload interface{}) ([]float64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference endpoint returned status %d: %s", resp.StatusCode, string(data))
	}

	return parsePredictions(data)
}

// parsePredictions normalizes the response shapes seen in the wild: a flat
// array, an object with a "predictions" field, or a nested JSON-encoded
// string of either.
func parsePredictions(data []byte) ([]float64, error) {
	var flat []float64
	if err := json.Unmarshal(data, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}

	var wrapped struct {
		Predictions json.RawMessage `json:"predictions"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Predictions) > 0 {
		if err := json.Unmarshal(wrapped.Predictions, &flat); err == nil && len(flat) > 0 {
			return flat, nil
		}
		// Nested JSON-encoded string, e.g. {"predictions": "[1.0, 2.0]"}.
		var nested string
		if err := json.Unmarshal(wrapped.Predictions, &nested); err == nil {
			if err := json.Unmarshal([]byte(nested), &flat); err == nil && len(flat) > 0 {
				return flat, nil
			}
		}
	}

	// Whole body as a JSON-encoded string of an array.
	var nested string
	if err := json.Unmarshal(data, &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &flat); err == nil && len(flat) > 0 {
			return flat, nil
		}
	}

	return nil, fmt.Errorf("unrecognized inference response shape: %s", truncate(string(data), 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
