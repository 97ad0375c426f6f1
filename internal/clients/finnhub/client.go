// Package finnhub provides a client for the Finnhub market data API.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/domain"
)

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	requestTimeout = 10 * time.Second
	maxSearchHits  = 10
)

// Client is an HTTP client for the Finnhub quote and symbol-search endpoints.
// It maps provider quirks to the domain error taxonomy:
//   - HTTP 429 -> RATE_LIMITED (never retried here; callers decide)
//   - zero current price AND zero previous close -> NOT_FOUND (Finnhub
//     returns an all-zero quote body for unknown symbols instead of a 404)
//   - transport errors and other non-200 responses -> UPSTREAM_UNAVAILABLE
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Finnhub client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		log: log.With().Str("client", "finnhub").Logger(),
	}
}

// SetBaseURL overrides the API base URL (used by tests and proxies)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// quoteResponse is the Finnhub /quote wire format
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// searchResponse is the Finnhub /search wire format
type searchResponse struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	} `json:"result"`
}

// Quote fetches the current quote for a ticker. The ticker must already be
// normalized (uppercase); the price oracle owns validation.
func (c *Client) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	var data quoteResponse
	if err := c.get(ctx, "/quote", url.Values{"symbol": {ticker}}, &data); err != nil {
		return nil, err
	}

	// Finnhub returns all zeros for symbols it does not know
	if data.Current == 0 && data.PreviousClose == 0 {
		return nil, domain.Errorf(domain.CodeNotFound, "stock symbol '%s' not found", ticker)
	}

	return &domain.Quote{
		Ticker:        ticker,
		CurrentPrice:  decimal.NewFromFloat(data.Current),
		Change:        data.Change,
		ChangePercent: data.ChangePercent,
		HighPrice:     data.High,
		LowPrice:      data.Low,
		OpenPrice:     data.Open,
		PreviousClose: data.PreviousClose,
		Timestamp:     time.Unix(data.Timestamp, 0).UTC(),
	}, nil
}

// Search looks up symbols matching a free-text query. Results are filtered
// to common stock and capped, matching what the UI can usefully show.
func (c *Client) Search(ctx context.Context, query string) ([]domain.SymbolMatch, error) {
	var data searchResponse
	if err := c.get(ctx, "/search", url.Values{"q": {query}}, &data); err != nil {
		return nil, err
	}

	matches := make([]domain.SymbolMatch, 0, maxSearchHits)
	for _, item := range data.Result {
		if item.Type != "Common Stock" {
			continue
		}
		matches = append(matches, domain.SymbolMatch{
			Symbol:      item.Symbol,
			Description: item.Description,
			Type:        item.Type,
		})
		if len(matches) == maxSearchHits {
			break
		}
	}

	return matches, nil
}

// get performs an authenticated GET and decodes the JSON body into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return domain.Errorf(domain.CodeUpstreamUnavailable, "finnhub API key not configured")
	}

	params.Set("token", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build finnhub request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Finnhub request failed")
		return domain.Errorf(domain.CodeUpstreamUnavailable, "quote provider unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Errorf(domain.CodeRateLimited, "quote provider rate limit exceeded")
	case resp.StatusCode != http.StatusOK:
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("Finnhub returned non-200")
		return domain.Errorf(domain.CodeUpstreamUnavailable, "quote provider error: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Errorf(domain.CodeUpstreamUnavailable, "failed to decode quote provider response: %v", err)
	}

	return nil
}
