// Package memory implements the domain cache interfaces in process memory.
// It is the default backend for single-instance deployments; the redis
// package provides the shared equivalents.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

type quoteKey struct {
	exchange string
	symbol   string
}

// QuoteCache holds the latest quote per (exchange, symbol). Values are
// replaced wholesale on Put, never mutated, so readers can never observe a
// partially written quote.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[quoteKey]*domain.Quote
}

// NewQuoteCache returns an empty QuoteCache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[quoteKey]*domain.Quote)}
}

// Put stores the quote as the latest for its (exchange, symbol) key,
// superseding any previous entry.
func (c *QuoteCache) Put(_ context.Context, quote domain.Quote) error {
	if !quote.Valid() {
		return domain.ErrDataInvalid
	}
	q := quote // own copy; the stored pointer is never handed out
	c.mu.Lock()
	c.quotes[quoteKey{quote.Exchange, quote.Symbol}] = &q
	c.mu.Unlock()
	return nil
}

// Get returns the latest quote for the key, or ErrNotFound.
func (c *QuoteCache) Get(_ context.Context, exchange, symbol string) (domain.Quote, error) {
	c.mu.RLock()
	q, ok := c.quotes[quoteKey{exchange, symbol}]
	c.mu.RUnlock()
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return *q, nil
}

// GetFresh returns the latest quote if it is at most maxAge old, ErrStaleQuote
// if it exists but aged out, or ErrNotFound.
func (c *QuoteCache) GetFresh(ctx context.Context, exchange, symbol string, maxAge time.Duration) (domain.Quote, error) {
	q, err := c.Get(ctx, exchange, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if !q.Fresh(time.Now(), maxAge) {
		return domain.Quote{}, domain.ErrStaleQuote
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
