// Package gomarket implements the MarketDataPort against the GoMarket
// market-data gateway, which fronts the supported exchanges behind one
// REST and WebSocket API.
package gomarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// Client is a GoMarket REST client. It implements domain.MarketDataPort
// together with the WebSocket subscription support in ws.go.
type Client struct {
	baseURL    string
	wsURL      string
	apiKey     string
	accessCode string
	httpClient *http.Client
}

var _ domain.MarketDataPort = (*Client)(nil)

// NewClient creates a GoMarket client.
//
// baseURL is the REST endpoint, e.g. "https://gomarket-api.goquant.io".
// fetchTimeout bounds each REST call; a fetch that exceeds it is treated by
// callers as a missing quote for that cycle.
func NewClient(baseURL, wsURL, apiKey, accessCode string, fetchTimeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		wsURL:      wsURL,
		apiKey:     strings.TrimSpace(apiKey),
		accessCode: strings.TrimSpace(accessCode),
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

type quoteResponse struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	BidPrice  float64 `json:"bid_price"`
	BidSize   float64 `json:"bid_size"`
	AskPrice  float64 `json:"ask_price"`
	AskSize   float64 `json:"ask_size"`
	Timestamp int64   `json:"timestamp_ms"`
}

type depthResponse struct {
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Bids      [][2]float64 `json:"bids"`
	Asks      [][2]float64 `json:"asks"`
	Timestamp int64        `json:"timestamp_ms"`
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

// FetchQuote pulls the current L1 quote for symbol on exchange.
func (c *Client) FetchQuote(ctx context.Context, exchange, symbol string) (domain.Quote, error) {
	var resp quoteResponse
	path := fmt.Sprintf("/api/v1/l1/%s/%s", url.PathEscape(exchange), url.PathEscape(symbol))
	if err := c.get(ctx, path, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("gomarket: fetch quote %s/%s: %w", exchange, symbol, err)
	}

	quote := domain.Quote{
		Exchange:   exchange,
		Symbol:     symbol,
		BidPrice:   resp.BidPrice,
		BidSize:    resp.BidSize,
		AskPrice:   resp.AskPrice,
		AskSize:    resp.AskSize,
		ObservedAt: observedAt(resp.Timestamp),
	}
	if !quote.Valid() {
		return domain.Quote{}, fmt.Errorf("gomarket: quote %s/%s has non-positive prices: %w", exchange, symbol, domain.ErrDataInvalid)
	}
	return quote, nil
}

// FetchDepth pulls the current L2 depth snapshot for symbol on exchange.
func (c *Client) FetchDepth(ctx context.Context, exchange, symbol string) (domain.OrderBook, error) {
	var resp depthResponse
	path := fmt.Sprintf("/api/v1/l2/%s/%s", url.PathEscape(exchange), url.PathEscape(symbol))
	if err := c.get(ctx, path, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("gomarket: fetch depth %s/%s: %w", exchange, symbol, err)
	}

	book := domain.OrderBook{
		Exchange:  exchange,
		Symbol:    symbol,
		Bids:      levels(resp.Bids),
		Asks:      levels(resp.Asks),
		Timestamp: observedAt(resp.Timestamp),
	}
	return book, nil
}

// ListSymbols returns the instruments available on exchange.
func (c *Client) ListSymbols(ctx context.Context, exchange string) ([]string, error) {
	var resp symbolsResponse
	path := fmt.Sprintf("/api/v1/symbols/%s", url.PathEscape(exchange))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("gomarket: list symbols %s: %w", exchange, err)
	}
	return resp.Symbols, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.accessCode != "" {
		req.Header.Set("Access-Code", c.accessCode)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w (%w)", err, domain.ErrDataUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w (%w)", err, domain.ErrDataInvalid)
	}
	return nil
}

// classifyStatus maps gateway HTTP statuses onto the error taxonomy: 429 is
// transient backpressure, 401/403/404 are permanent for the requested pair,
// 5xx is a transient outage.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("status 429: %w", domain.ErrRateLimited)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("status %d: %s: %w", status, truncate(body), domain.ErrUnsupported)
	case status == http.StatusNotFound:
		return fmt.Errorf("status 404: %w", domain.ErrUnsupported)
	case status >= 500:
		return fmt.Errorf("status %d: %s: %w", status, truncate(body), domain.ErrDataUnavailable)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, truncate(body))
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}

func levels(raw [][2]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		out = append(out, domain.PriceLevel{Price: lvl[0], Size: lvl[1]})
	}
	return out
}

// observedAt falls back to the local clock when the gateway omits the
// exchange timestamp.
func observedAt(millis int64) time.Time {
	if millis <= 0 {
		return time.Now()
	}
	return time.UnixMilli(millis)
}
