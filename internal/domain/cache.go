package domain

import (
	"context"
	"time"
)

// QuoteCache holds the latest known quote per (exchange, symbol). Put
// replaces the stored value wholesale; readers always get a complete quote,
// never a partially written one.
type QuoteCache interface {
	Put(ctx context.Context, quote Quote) error
	// Get returns the latest quote for the key, or ErrNotFound.
	Get(ctx context.Context, exchange, symbol string) (Quote, error)
	// GetFresh is Get plus a freshness gate: quotes older than maxAge
	// return ErrStaleQuote.
	GetFresh(ctx context.Context, exchange, symbol string, maxAge time.Duration) (Quote, error)
}

// RateLimiter bounds operation rates per key.
type RateLimiter interface {
	// Allow reports whether one operation for key is permitted right now
	// under limit ops per window, counting the operation if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until an operation for key is permitted or ctx is done.
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// SignalBus publishes detector output events for external consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// OpportunityStore persists closed opportunities for historical statistics.
type OpportunityStore interface {
	RecordClosed(ctx context.Context, opp ClosedOpportunity) error
	Stats(ctx context.Context, symbol string, since time.Time) (OpportunityStats, error)
}
