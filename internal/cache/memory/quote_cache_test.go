package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goquant/arbsentinel/internal/domain"
)

func validQuote(exchange string, age time.Duration) domain.Quote {
	return domain.Quote{
		Exchange:   exchange,
		Symbol:     "BTC-USDT",
		BidPrice:   60000.00,
		BidSize:    1,
		AskPrice:   60001.00,
		AskSize:    1,
		ObservedAt: time.Now().Add(-age),
	}
}

func TestQuoteCachePutGet(t *testing.T) {
	c := NewQuoteCache()
	ctx := context.Background()

	quote := validQuote("binance", 0)
	require.NoError(t, c.Put(ctx, quote))

	got, err := c.Get(ctx, "binance", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, quote.BidPrice, got.BidPrice)
	assert.Equal(t, quote.AskPrice, got.AskPrice)
}

func TestQuoteCachePutReplacesWholesale(t *testing.T) {
	c := NewQuoteCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, validQuote("binance", 0)))

	updated := validQuote("binance", 0)
	updated.BidPrice = 61000.00
	require.NoError(t, c.Put(ctx, updated))

	got, err := c.Get(ctx, "binance", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 61000.00, got.BidPrice)
}

func TestQuoteCacheRejectsInvalid(t *testing.T) {
	c := NewQuoteCache()
	bad := validQuote("binance", 0)
	bad.AskPrice = 0

	err := c.Put(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}

func TestQuoteCacheMiss(t *testing.T) {
	c := NewQuoteCache()
	_, err := c.Get(context.Background(), "binance", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuoteCacheGetFresh(t *testing.T) {
	c := NewQuoteCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, validQuote("binance", 0)))
	require.NoError(t, c.Put(ctx, validQuote("okx", 2*time.Minute)))

	_, err := c.GetFresh(ctx, "binance", "BTC-USDT", 30*time.Second)
	assert.NoError(t, err)

	_, err = c.GetFresh(ctx, "okx", "BTC-USDT", 30*time.Second)
	assert.ErrorIs(t, err, domain.ErrStaleQuote)

	_, err = c.GetFresh(ctx, "bybit", "BTC-USDT", 30*time.Second)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
