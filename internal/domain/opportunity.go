package domain

import (
	"fmt"
	"time"
)

// ArbitrageOpportunity is a currently qualifying cross-exchange profit
// condition: buy at BuyExchange's ask, sell at SellExchange's bid.
type ArbitrageOpportunity struct {
	Symbol       string    `json:"symbol"`
	BuyExchange  string    `json:"buy_exchange"`
	SellExchange string    `json:"sell_exchange"`
	BuyPrice     float64   `json:"buy_price"`
	SellPrice    float64   `json:"sell_price"`
	ProfitAbs    float64   `json:"profit_abs"`
	ProfitPct    float64   `json:"profit_pct"`
	ThresholdPct float64   `json:"threshold_pct"`
	ThresholdAbs float64   `json:"threshold_abs"`
	DetectedAt   time.Time `json:"detected_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Key returns the opportunity identity key. Two opportunities with the same
// key describe the same condition at different points in time.
func (o ArbitrageOpportunity) Key() string {
	return fmt.Sprintf("%s|%s|%s", o.Symbol, o.BuyExchange, o.SellExchange)
}

// Duration returns how long the opportunity has been live.
func (o ArbitrageOpportunity) Duration() time.Duration {
	return o.LastSeenAt.Sub(o.DetectedAt)
}

// ClosedOpportunity is an opportunity that stopped qualifying, retained for
// statistics.
type ClosedOpportunity struct {
	ArbitrageOpportunity
	ClosedAt time.Time `json:"closed_at"`
}

// OpportunityStats aggregates closed opportunities over some window.
type OpportunityStats struct {
	Count        int           `json:"count"`
	AvgProfitPct float64       `json:"avg_profit_pct"`
	MaxProfitPct float64       `json:"max_profit_pct"`
	AvgDuration  time.Duration `json:"avg_duration"`
}
