package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/utils"
)

func testCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		// Gentle uptrend with a deterministic wobble.
		closes[i] = 100 + float64(i)*0.5 + 3*math.Sin(float64(i)/3)
	}
	return closes
}

func TestSMA_ConstantSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 42.0
	}

	sma, err := SMA(closes, DefaultSMAPeriod)
	require.NoError(t, err)
	require.NotEmpty(t, sma)
	for _, v := range sma {
		assert.InDelta(t, 42.0, v, 1e-9)
	}
}

func TestSMA_InsufficientHistory(t *testing.T) {
	_, err := SMA(testCloses(10), DefaultSMAPeriod)
	require.Error(t, err)

	var insufficient *utils.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, DefaultSMAPeriod, insufficient.Required)
	assert.Equal(t, 10, insufficient.Got)
}

func TestSMA_InvalidPeriod(t *testing.T) {
	_, err := SMA(testCloses(30), 0)
	assert.Error(t, err)
}

func TestRSI_Bounded(t *testing.T) {
	rsi, err := RSI(testCloses(50), DefaultRSIPeriod)
	require.NoError(t, err)
	require.NotEmpty(t, rsi)
	for _, v := range rsi {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestRSI_InsufficientHistory(t *testing.T) {
	_, err := RSI(testCloses(DefaultRSIPeriod), DefaultRSIPeriod)
	var insufficient *utils.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
}

func TestMACD(t *testing.T) {
	macdLine, signalLine, err := MACD(testCloses(60), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	require.NoError(t, err)
	assert.NotEmpty(t, macdLine)
	assert.NotEmpty(t, signalLine)
}

func TestMACD_DrainsBothOutputs(t *testing.T) {
	// Both output channels share one unbuffered pipeline; a long series
	// must still complete rather than stalling on the signal-line sends.
	done := make(chan struct{})
	go func() {
		defer close(done)
		macdLine, signalLine, err := MACD(testCloses(500), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
		assert.NoError(t, err)
		assert.NotEmpty(t, macdLine)
		assert.NotEmpty(t, signalLine)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("MACD did not complete; output channels are not drained concurrently")
	}
}

func TestMACD_InsufficientHistory(t *testing.T) {
	_, _, err := MACD(testCloses(20), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	var insufficient *utils.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, DefaultMACDSlow+DefaultMACDSignal, insufficient.Required)
}

func TestSummarize(t *testing.T) {
	summary, err := Summarize(testCloses(80))
	require.NoError(t, err)

	require.NotNil(t, summary.SMA)
	require.NotNil(t, summary.RSI)
	require.NotNil(t, summary.MACD)
	require.NotNil(t, summary.MACDSignal)
	assert.GreaterOrEqual(t, *summary.RSI, 0.0)
	assert.LessOrEqual(t, *summary.RSI, 100.0)
	assert.NotEmpty(t, summary.SMASeries)
	assert.NotEmpty(t, summary.MACDSeries)
	assert.NotEmpty(t, summary.MACDSignalSeries)

	// The reported values are the latest of each series.
	assert.Equal(t, summary.SMASeries[len(summary.SMASeries)-1], *summary.SMA)
	assert.Equal(t, summary.MACDSeries[len(summary.MACDSeries)-1], *summary.MACD)
}

func TestSummarize_PartialSeries(t *testing.T) {
	// 25 points clear the SMA and RSI minimums but not MACD's; the short
	// indicator is omitted instead of failing the whole set.
	summary, err := Summarize(testCloses(25))
	require.NoError(t, err)

	assert.NotNil(t, summary.SMA)
	assert.NotNil(t, summary.RSI)
	assert.Nil(t, summary.MACD)
	assert.Nil(t, summary.MACDSignal)
	assert.Empty(t, summary.MACDSeries)
}

func TestSummarize_ShortSeries(t *testing.T) {
	_, err := Summarize(testCloses(10))
	var insufficient *utils.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
}
