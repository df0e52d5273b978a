package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"stockcast/internal/models"
)

const (
	DefaultLookbackWindow = 20
	DefaultEpochs         = 60
	DefaultHiddenUnits    = 16

	// Points beyond the lookback window required before a fit is attempted.
	minTrainingSurplus = 10

	learningRate     = 0.05
	maxAccuracyCap   = 0.95
	widthGrowthRate  = 0.05
	normalBandFactor = 1.96
)

// NeuralSequenceStrategy fits a small recurrent sequence model on the
// min-max scaled series and rolls it out autoregressively. The recurrent
// reservoir is fixed at construction; only the linear readout is trained,
// for a fixed epoch budget. The confidence interval widens per day to
// reflect compounding rollout uncertainty.
type NeuralSequenceStrategy struct {
	window      int
	epochs      int
	hiddenUnits int

	win  []float64
	wrec [][]float64
}

func NewNeuralSequenceStrategy(window, epochs, hiddenUnits int) *NeuralSequenceStrategy {
	if window < 2 {
		window = DefaultLookbackWindow
	}
	if epochs < 1 {
		epochs = DefaultEpochs
	}
	if hiddenUnits < 1 {
		hiddenUnits = DefaultHiddenUnits
	}

	// Deterministic reservoir so repeated fits on the same series agree.
	rng := rand.New(rand.NewSource(1))
	scale := 1.0 / math.Sqrt(float64(hiddenUnits))
	win := make([]float64, hiddenUnits)
	wrec := make([][]float64, hiddenUnits)
	for i := range win {
		win[i] = (rng.Float64()*2 - 1)
		wrec[i] = make([]float64, hiddenUnits)
		for j := range wrec[i] {
			wrec[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}

	return &NeuralSequenceStrategy{
		window:      window,
		epochs:      epochs,
		hiddenUnits: hiddenUnits,
		win:         win,
		wrec:        wrec,
	}
}

func (s *NeuralSequenceStrategy) Name() string { return "neural_sequence" }

func (s *NeuralSequenceStrategy) Tier() models.ModelTier { return models.TierNeuralSequence }

func (s *NeuralSequenceStrategy) Forecast(ctx context.Context, series *models.PriceSeries, horizon int) (*Attempt, error) {
	closes := series.Closes()
	minRequired := s.window + minTrainingSurplus
	if len(closes) < minRequired {
		return nil, &TrainingError{
			Reason: fmt.Sprintf("need at least %d points for lookback window %d, got %d", minRequired, s.window, len(closes)),
		}
	}

	scaled, lo, span := minMaxScale(closes)

	// Sliding (window -> next value) training pairs.
	nPairs := len(scaled) - s.window
	features := make([][]float64, nPairs)
	targets := make([]float64, nPairs)
	for i := 0; i < nPairs; i++ {
		features[i] = s.encode(scaled[i : i+s.window])
		targets[i] = scaled[i+s.window]
	}

	readout, err := s.fitReadout(features, targets)
	if err != nil {
		return nil, err
	}

	// Training residuals in price units, for the confidence band.
	fitted := make([]float64, nPairs)
	var residSq float64
	for i := range features {
		fitted[i] = dot(readout, features[i])
		r := (fitted[i] - targets[i]) * span
		residSq += r * r
	}
	residStddev := math.Sqrt(residSq / float64(nPairs))

	// Autoregressive rollout.
	windowBuf := append([]float64(nil), scaled[len(scaled)-s.window:]...)
	dates := forecastDates(series, horizon)
	points := make([]models.ForecastPoint, horizon)
	for i := 0; i < horizon; i++ {
		pred := dot(readout, s.encode(windowBuf))
		if math.IsNaN(pred) || math.IsInf(pred, 0) {
			return nil, &TrainingError{Reason: "rollout produced non-finite prediction"}
		}
		windowBuf = append(windowBuf[1:], pred)

		predicted := lo + pred*span
		width := normalBandFactor * residStddev * (1 + widthGrowthRate*float64(i+1))
		points[i] = models.ForecastPoint{
			Date:       dates[i],
			Predicted:  predicted,
			LowerBound: predicted - width,
			UpperBound: predicted + width,
		}
	}

	accuracy := trainingRSquared(fitted, targets)
	if accuracy > maxAccuracyCap {
		accuracy = maxAccuracyCap
	}

	return &Attempt{Points: points, Accuracy: accuracy}, nil
}

// encode runs one scaled window through the fixed reservoir and returns the
// final hidden state with a bias term appended.
func (s *NeuralSequenceStrategy) encode(window []float64) []float64 {
	h := make([]float64, s.hiddenUnits)
	next := make([]float64, s.hiddenUnits)
	for _, x := range window {
		for i := 0; i < s.hiddenUnits; i++ {
			sum := s.win[i] * x
			for j := 0; j < s.hiddenUnits; j++ {
				sum += s.wrec[i][j] * h[j]
			}
			next[i] = math.Tanh(sum)
		}
		h, next = next, h
	}
	feat := make([]float64, s.hiddenUnits+1)
	copy(feat, h)
	feat[s.hiddenUnits] = 1
	return feat
}

// fitReadout trains the linear readout by full-batch gradient descent for
// the fixed epoch budget. A non-finite loss aborts the fit.
func (s *NeuralSequenceStrategy) fitReadout(features [][]float64, targets []float64) ([]float64, error) {
	dim := s.hiddenUnits + 1
	w := make([]float64, dim)
	n := float64(len(targets))

	for epoch := 0; epoch < s.epochs; epoch++ {
		grad := make([]float64, dim)
		loss := 0.0
		for i, feat := range features {
			err := dot(w, feat) - targets[i]
			loss += err * err
			for d := 0; d < dim; d++ {
				grad[d] += err * feat[d]
			}
		}
		loss /= n
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, &TrainingError{Reason: "fit diverged with non-finite loss"}
		}
		for d := 0; d < dim; d++ {
			w[d] -= learningRate * grad[d] / n
		}
	}
	return w, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// minMaxScale maps values to [0,1], returning the offset and span needed to
// denormalize. A constant series gets span 1 so scaling stays finite.
func minMaxScale(values []float64) (scaled []float64, lo, span float64) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span = hi - lo
	if span == 0 {
		span = 1
	}
	scaled = make([]float64, len(values))
	for i, v := range values {
		scaled[i] = (v - lo) / span
	}
	return scaled, lo, span
}

func trainingRSquared(fitted, targets []float64) float64 {
	var mean float64
	for _, t := range targets {
		mean += t
	}
	mean /= float64(len(targets))

	var ssRes, ssTot float64
	for i, t := range targets {
		ssRes += (t - fitted[i]) * (t - fitted[i])
		ssTot += (t - mean) * (t - mean)
	}
	if ssTot == 0 {
		return 1
	}
	return clamp01(1 - ssRes/ssTot)
}
