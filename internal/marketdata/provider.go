// Package marketdata talks to the external historical-series/quote provider.
package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockcast/internal/config"
	"stockcast/internal/models"
)

// Provider supplies OHLC history and live quotes for canonical symbols.
type Provider interface {
	GetHistory(ctx context.Context, symbol string, start time.Time) (*models.PriceSeries, error)
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

var errNotFound = fmt.Errorf("provider returned 404")

// InvalidSymbolError indicates the provider cannot resolve a symbol.
type InvalidSymbolError struct {
	Symbol string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("provider cannot resolve symbol %q", e.Symbol)
}

// Client is the HTTP implementation of Provider.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

func NewClient(cfg *config.ProviderConfig) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: config.Duration(cfg.Timeout, 15*time.Second),
		},
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type historyResponse struct {
	Symbol  string          `json:"symbol"`
	Candles []models.Candle `json:"candles"`
}

// GetHistory retrieves the closing-price series for a symbol from start to now.
func (c *Client) GetHistory(ctx context.Context, symbol string, start time.Time) (*models.PriceSeries, error) {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.Format("2006-01-02"))
	}
	path := "/api/history/" + url.PathEscape(symbol)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response historyResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		if err == errNotFound {
			return nil, &InvalidSymbolError{Symbol: symbol}
		}
		return nil, err
	}
	if len(response.Candles) == 0 {
		return nil, &InvalidSymbolError{Symbol: symbol}
	}

	series := &models.PriceSeries{
		Symbol: symbol,
		Points: make([]models.PricePoint, 0, len(response.Candles)),
	}
	for _, candle := range response.Candles {
		series.Points = append(series.Points, models.PricePoint{
			Date:  candle.Date,
			Close: candle.Close.InexactFloat64(),
		})
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("provider returned malformed series: %w", err)
	}
	return series, nil
}

// GetQuote retrieves the latest quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var quote models.Quote
	if err := c.makeRequest(ctx, http.MethodGet, "/api/quote/"+url.PathEscape(symbol), nil, &quote); err != nil {
		if err == errNotFound {
			return nil, &InvalidSymbolError{Symbol: symbol}
		}
		return nil, err
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now()
	}
	return &quote, nil
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	endpoint := c.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
