package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/goquant/arbsentinel/internal/domain"
)

func TestFormatOpportunity(t *testing.T) {
	opp := domain.ArbitrageOpportunity{
		Symbol:       "BTC-USDT",
		BuyExchange:  "venue_a",
		SellExchange: "venue_b",
		BuyPrice:     59950.00,
		SellPrice:    59999.50,
		ProfitAbs:    49.50,
		ProfitPct:    0.0826,
		DetectedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	text := FormatOpportunity(opp)
	assert.Contains(t, text, "BTC-USDT")
	assert.Contains(t, text, "Buy  venue_a @ 59950.00")
	assert.Contains(t, text, "Sell venue_b @ 59999.50")
	assert.Contains(t, text, "49.50")
	assert.Contains(t, text, "0.0826%")
}

func TestFormatMarketViewIsDeterministic(t *testing.T) {
	view := domain.ConsolidatedView{
		Symbol: "BTC-USDT",
		PerExchange: map[string]domain.Quote{
			"okx":     {BidPrice: 60000.00, AskPrice: 60000.50},
			"binance": {BidPrice: 60000.50, AskPrice: 60001.00},
			"deribit": {BidPrice: 59999.50, AskPrice: 60000.00},
		},
		BestBidExchange: "binance",
		BestBidPrice:    60000.50,
		BestAskExchange: "deribit",
		BestAskPrice:    60000.00,
		MidPrice:        60000.25,
		ComputedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Complete:        true,
	}

	first := FormatMarketView(view)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, FormatMarketView(view), "map order must not leak into output")
	}
	assert.Contains(t, first, "Best bid 60000.50 (binance)")
	assert.Contains(t, first, "Best ask 60000.00 (deribit)")
	assert.Contains(t, first, "Mid 60000.25")
}
