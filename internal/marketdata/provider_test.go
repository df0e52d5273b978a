package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/config"
)

func clientFor(url string) *Client {
	return NewClient(&config.ProviderConfig{BaseURL: url, Timeout: "5s"})
}

func historyBody(symbol string, closes ...float64) map[string]interface{} {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]map[string]interface{}, len(closes))
	for i, c := range closes {
		candles[i] = map[string]interface{}{
			"date":  base.AddDate(0, 0, i).Format(time.RFC3339),
			"open":  c - 1,
			"high":  c + 1,
			"low":   c - 2,
			"close": c,
		}
	}
	return map[string]interface{}{"symbol": symbol, "candles": candles}
}

func TestGetHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/TEST.NS", r.URL.Path)
		assert.Equal(t, "2026-01-01", r.URL.Query().Get("start"))
		_ = json.NewEncoder(w).Encode(historyBody("TEST.NS", 100, 101, 102))
	}))
	defer server.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	series, err := clientFor(server.URL).GetHistory(context.Background(), "TEST.NS", start)
	require.NoError(t, err)

	assert.Equal(t, "TEST.NS", series.Symbol)
	require.Equal(t, 3, series.Len())
	assert.Equal(t, 102.0, series.LastClose())
	assert.NoError(t, series.Validate())
}

func TestGetHistory_UnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := clientFor(server.URL).GetHistory(context.Background(), "NOPE.NS", time.Time{})

	var invalid *InvalidSymbolError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "NOPE.NS", invalid.Symbol)
}

func TestGetHistory_EmptyCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(historyBody("TEST.NS"))
	}))
	defer server.Close()

	_, err := clientFor(server.URL).GetHistory(context.Background(), "TEST.NS", time.Time{})

	var invalid *InvalidSymbolError
	require.ErrorAs(t, err, &invalid)
}

func TestGetHistory_MalformedSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := historyBody("TEST.NS", 100, 101)
		// Duplicate the first candle's date to break strict ordering.
		candles := body["candles"].([]map[string]interface{})
		candles[1]["date"] = candles[0]["date"]
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	_, err := clientFor(server.URL).GetHistory(context.Background(), "TEST.NS", time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed series")
}

func TestGetHistory_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream flaked", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := clientFor(server.URL).GetHistory(context.Background(), "TEST.NS", time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quote/TEST.NS", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol": "TEST.NS",
			"price":  2543.5,
			"change": 12.25,
		})
	}))
	defer server.Close()

	quote, err := clientFor(server.URL).GetQuote(context.Background(), "TEST.NS")
	require.NoError(t, err)
	assert.Equal(t, "TEST.NS", quote.Symbol)
	assert.Equal(t, "2543.5", quote.Price.String())
	assert.False(t, quote.Timestamp.IsZero())
}

func TestGetQuote_UnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := clientFor(server.URL).GetQuote(context.Background(), "NOPE.NS")

	var invalid *InvalidSymbolError
	require.ErrorAs(t, err, &invalid)
}
