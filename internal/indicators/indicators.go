// Package indicators derives technical signals from a closing-price series.
// All functions are pure: same input, same output, no hidden state.
package indicators

import (
	"errors"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"

	"stockcast/internal/utils"
)

const (
	DefaultSMAPeriod  = 20
	DefaultRSIPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// Summary carries the latest value of each indicator, reported alongside a
// forecast. A nil latest value means the series was too short for that
// indicator; the others are still reported. Full series are kept for callers
// that want to chart them.
type Summary struct {
	SMA        *float64 `json:"sma,omitempty"`
	RSI        *float64 `json:"rsi,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macdSignal,omitempty"`

	SMASeries        []float64 `json:"-"`
	RSISeries        []float64 `json:"-"`
	MACDSeries       []float64 `json:"-"`
	MACDSignalSeries []float64 `json:"-"`
}

// SMA computes the simple moving average over a fixed window. The result is
// shorter than the input by period-1 elements.
func SMA(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, errors.New("sma period must be positive")
	}
	if len(closes) < period {
		return nil, utils.NewInsufficientHistoryError(period, len(closes))
	}
	smaIndicator := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(smaIndicator.Compute(helper.SliceToChan(closes))), nil
}

// RSI computes the relative strength index, a momentum oscillator bounded to
// the 0-100 scale.
func RSI(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, errors.New("rsi period must be positive")
	}
	if len(closes) < period+1 {
		return nil, utils.NewInsufficientHistoryError(period+1, len(closes))
	}
	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsiIndicator.Compute(helper.SliceToChan(closes))), nil
}

// MACD computes the dual-EMA convergence/divergence line and its smoothed
// signal line.
func MACD(closes []float64, fast, slow, signal int) (macdLine, signalLine []float64, err error) {
	if fast < 1 || slow < 1 || signal < 1 {
		return nil, nil, errors.New("macd periods must be positive")
	}
	minRequired := slow + signal
	if len(closes) < minRequired {
		return nil, nil, utils.NewInsufficientHistoryError(minRequired, len(closes))
	}
	macdIndicator := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macdIndicator.Compute(helper.SliceToChan(closes))

	// Both outputs are fed by one unbuffered pipeline: the signal line must
	// be drained concurrently or its first send blocks the MACD line too.
	done := make(chan []float64, 1)
	go func() {
		done <- helper.ChanToSlice(signalChan)
	}()
	macdLine = helper.ChanToSlice(macdChan)
	signalLine = <-done
	return macdLine, signalLine, nil
}

// Summarize computes the default indicator set. An indicator whose minimum
// period exceeds the series is omitted rather than failing the whole set;
// Summarize only errors when no indicator can be computed at all, and the
// caller decides whether to proceed without the block.
func Summarize(closes []float64) (*Summary, error) {
	s := &Summary{}
	var lastErr error

	sma, err := SMA(closes, DefaultSMAPeriod)
	switch {
	case err == nil:
		s.SMASeries = sma
		s.SMA = latest(sma)
	case !isInsufficient(err):
		return nil, err
	default:
		lastErr = err
	}

	rsi, err := RSI(closes, DefaultRSIPeriod)
	switch {
	case err == nil:
		s.RSISeries = rsi
		s.RSI = latest(rsi)
	case !isInsufficient(err):
		return nil, err
	default:
		lastErr = err
	}

	macdLine, signalLine, err := MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	switch {
	case err == nil:
		s.MACDSeries = macdLine
		s.MACDSignalSeries = signalLine
		s.MACD = latest(macdLine)
		s.MACDSignal = latest(signalLine)
	case !isInsufficient(err):
		return nil, err
	default:
		lastErr = err
	}

	if s.SMA == nil && s.RSI == nil && s.MACD == nil {
		return nil, lastErr
	}
	return s, nil
}

func latest(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	return &v
}

func isInsufficient(err error) bool {
	var insufficient *utils.InsufficientHistoryError
	return errors.As(err, &insufficient)
}
