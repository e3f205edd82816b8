package domain

import "time"

// Quote is the latest top-of-book view for one (exchange, symbol) pair.
// Quotes are immutable once constructed; a newer observation replaces the
// whole value, it never mutates it in place. A crossed book (ask below bid)
// is a valid transient state and is exactly what the arbitrage detector
// looks for across venues.
type Quote struct {
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	BidPrice   float64   `json:"bid_price"`
	BidSize    float64   `json:"bid_size"`
	AskPrice   float64   `json:"ask_price"`
	AskSize    float64   `json:"ask_size"`
	ObservedAt time.Time `json:"observed_at"`
}

// Valid reports whether the quote carries usable prices. Sizes may be zero;
// prices must be strictly positive.
func (q Quote) Valid() bool {
	return q.BidPrice > 0 && q.AskPrice > 0 && q.BidSize >= 0 && q.AskSize >= 0
}

// Age returns how long ago the quote was observed.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}

// Fresh reports whether the quote is younger than the given staleness limit.
func (q Quote) Fresh(now time.Time, maxAge time.Duration) bool {
	return q.Age(now) <= maxAge
}

// MidPrice returns the arithmetic mid of bid and ask.
func (q Quote) MidPrice() float64 {
	return (q.BidPrice + q.AskPrice) / 2
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is an L2 depth snapshot for one (exchange, symbol) pair.
// Bids are sorted highest first, asks lowest first.
type OrderBook struct {
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}
