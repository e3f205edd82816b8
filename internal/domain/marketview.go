package domain

import "time"

// ConsolidatedView is the best bid/offer for a symbol across every monitored
// exchange with a fresh quote (the CBBO).
type ConsolidatedView struct {
	Symbol          string           `json:"symbol"`
	PerExchange     map[string]Quote `json:"per_exchange"`
	BestBidExchange string           `json:"best_bid_exchange"`
	BestBidPrice    float64          `json:"best_bid_price"`
	BestAskExchange string           `json:"best_ask_exchange"`
	BestAskPrice    float64          `json:"best_ask_price"`
	MidPrice        float64          `json:"mid_price"`
	ComputedAt      time.Time        `json:"computed_at"`

	// Complete is false when fewer than one valid bid or ask survived the
	// freshness filter. Incomplete views are never published.
	Complete bool `json:"complete"`
}
