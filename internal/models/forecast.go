package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ModelTier identifies which strategy of the fallback chain produced a forecast.
type ModelTier string

const (
	TierNeuralSequence        ModelTier = "neural_sequence"
	TierTrainedNeuralSequence ModelTier = "trained_neural_sequence"
	TierCloudInference        ModelTier = "cloud_inference"
	TierLinearRegression      ModelTier = "linear_regression"
)

// PricePoint is a single (date, close) observation.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is an ordered closing-price series for one symbol.
// Dates must be strictly increasing; duplicates are forbidden.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Validate checks the strictly-increasing-dates invariant.
func (s *PriceSeries) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Date.After(s.Points[i-1].Date) {
			return fmt.Errorf("price series for %s not strictly increasing at index %d", s.Symbol, i)
		}
	}
	return nil
}

// Closes returns the closing prices in order.
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// LastClose returns the most recent closing price, or 0 for an empty series.
func (s *PriceSeries) LastClose() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].Close
}

// LastDate returns the most recent observation date.
func (s *PriceSeries) LastDate() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// Len returns the number of observations.
func (s *PriceSeries) Len() int { return len(s.Points) }

// ForecastPoint is one predicted day with its confidence interval.
// Invariant: LowerBound <= Predicted <= UpperBound.
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	Predicted  float64   `json:"predicted"`
	LowerBound float64   `json:"lowerBound"`
	UpperBound float64   `json:"upperBound"`
}

// ForecastResult is the immutable outcome of one forecast request.
type ForecastResult struct {
	ID               uuid.UUID       `json:"id"`
	Symbol           string          `json:"symbol"`
	RequestedAt      time.Time       `json:"requestedAt"`
	HorizonDays      int             `json:"horizonDays"`
	Points           []ForecastPoint `json:"points"`
	ModelTier        ModelTier       `json:"modelTier"`
	AccuracyEstimate float64         `json:"accuracyEstimate"`
}

// TrainedModelRecord describes a fitted per-symbol model held by the store.
// FittedParameters is an opaque blob owned by the worker runtime.
type TrainedModelRecord struct {
	Symbol           string    `json:"symbol"`
	FittedParameters []byte    `json:"-"`
	FittedAt         time.Time `json:"fittedAt"`
	WindowLength     int       `json:"windowLength"`
	ValidationError  float64   `json:"validationError"`
}
