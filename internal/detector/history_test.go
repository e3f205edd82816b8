package detector

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goquant/arbsentinel/internal/domain"
)

func closedOpp(i int, profit float64, lived time.Duration) domain.ClosedOpportunity {
	detected := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return domain.ClosedOpportunity{
		ArbitrageOpportunity: domain.ArbitrageOpportunity{
			Symbol:       "BTC-USDT",
			BuyExchange:  fmt.Sprintf("venue_%d", i),
			SellExchange: "venue_x",
			ProfitPct:    profit,
			DetectedAt:   detected,
			LastSeenAt:   detected.Add(lived),
		},
		ClosedAt: detected.Add(lived),
	}
}

func TestHistoryOverwritesOldestWhenFull(t *testing.T) {
	h := newHistory(3)
	for i := 0; i < 5; i++ {
		h.add(closedOpp(i, float64(i), time.Minute))
	}

	recent := h.recent(10)
	require.Len(t, recent, 3)
	// Newest first, oldest two evicted.
	assert.Equal(t, "venue_4", recent[0].BuyExchange)
	assert.Equal(t, "venue_3", recent[1].BuyExchange)
	assert.Equal(t, "venue_2", recent[2].BuyExchange)
}

func TestHistoryStats(t *testing.T) {
	h := newHistory(10)
	h.add(closedOpp(0, 0.2, time.Minute))
	h.add(closedOpp(1, 0.6, 3*time.Minute))

	stats := h.stats()
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 0.4, stats.AvgProfitPct, 1e-9)
	assert.InDelta(t, 0.6, stats.MaxProfitPct, 1e-9)
	assert.Equal(t, 2*time.Minute, stats.AvgDuration)
}

func TestHistoryEmpty(t *testing.T) {
	h := newHistory(10)
	assert.Empty(t, h.recent(5))
	assert.Equal(t, domain.OpportunityStats{}, h.stats())
}
