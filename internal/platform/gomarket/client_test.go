package gomarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goquant/arbsentinel/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "", "test-key", "test-code", 2*time.Second)
}

func TestFetchQuote(t *testing.T) {
	observed := time.Now().Add(-time.Second).UnixMilli()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/l1/binance/BTC-USDT", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "test-code", r.Header.Get("Access-Code"))

		json.NewEncoder(w).Encode(map[string]any{
			"exchange":     "binance",
			"symbol":       "BTC-USDT",
			"bid_price":    60000.50,
			"bid_size":     1.5,
			"ask_price":    60001.00,
			"ask_size":     2.0,
			"timestamp_ms": observed,
		})
	})

	quote, err := client.FetchQuote(context.Background(), "binance", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "binance", quote.Exchange)
	assert.Equal(t, 60000.50, quote.BidPrice)
	assert.Equal(t, 60001.00, quote.AskPrice)
	assert.Equal(t, time.UnixMilli(observed), quote.ObservedAt)
}

func TestFetchQuoteRejectsInvalidPrices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"bid_price": 0.0,
			"ask_price": 60001.00,
		})
	})

	_, err := client.FetchQuote(context.Background(), "binance", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}

func TestFetchDepth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/l2/okx/ETH-USDT", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"bids": [][2]float64{{3000.5, 10}, {3000.0, 4}},
			"asks": [][2]float64{{3001.0, 2}},
		})
	})

	book, err := client.FetchDepth(context.Background(), "okx", "ETH-USDT")
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, domain.PriceLevel{Price: 3000.5, Size: 10}, book.Bids[0])
	assert.Equal(t, domain.PriceLevel{Price: 3001.0, Size: 2}, book.Asks[0])
}

func TestListSymbols(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/symbols/deribit", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"symbols": []string{"BTC-PERPETUAL", "ETH-PERPETUAL"},
		})
	})

	symbols, err := client.ListSymbols(context.Background(), "deribit")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-PERPETUAL", "ETH-PERPETUAL"}, symbols)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"throttled", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, domain.ErrUnsupported},
		{"forbidden", http.StatusForbidden, domain.ErrUnsupported},
		{"unknown pair", http.StatusNotFound, domain.ErrUnsupported},
		{"gateway down", http.StatusBadGateway, domain.ErrDataUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, err := client.FetchQuote(context.Background(), "binance", "BTC-USDT")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
