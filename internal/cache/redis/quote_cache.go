package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goquant/arbsentinel/internal/domain"
)

// quoteTTL bounds how long a quote entry survives without updates. Stale
// entries beyond the longest plausible staleness limit are useless, so they
// expire on their own.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache on Redis hashes, one hash per
// (exchange, symbol) key.
//
// Key schema:
//
//	quote:{exchange}:{symbol} - hash with fields bid, bid_size, ask,
//	                            ask_size, ts (unix nanoseconds)
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteCacheKey(exchange, symbol string) string {
	return "quote:" + exchange + ":" + symbol
}

// Put replaces the stored quote for its (exchange, symbol) key. The whole
// hash is written in one pipeline so readers never see a torn quote.
func (qc *QuoteCache) Put(ctx context.Context, quote domain.Quote) error {
	if !quote.Valid() {
		return domain.ErrDataInvalid
	}
	key := quoteCacheKey(quote.Exchange, quote.Symbol)

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"bid", strconv.FormatFloat(quote.BidPrice, 'f', -1, 64),
		"bid_size", strconv.FormatFloat(quote.BidSize, 'f', -1, 64),
		"ask", strconv.FormatFloat(quote.AskPrice, 'f', -1, 64),
		"ask_size", strconv.FormatFloat(quote.AskSize, 'f', -1, 64),
		"ts", strconv.FormatInt(quote.ObservedAt.UnixNano(), 10),
	)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put quote %s/%s: %w: %w", quote.Exchange, quote.Symbol, domain.ErrDataUnavailable, err)
	}
	return nil
}

// Get returns the latest quote for the key, or domain.ErrNotFound. Network
// and server failures are reported as domain.ErrDataUnavailable so callers
// treat a Redis outage as transient rather than fatal.
func (qc *QuoteCache) Get(ctx context.Context, exchange, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteCacheKey(exchange, symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w: %w", exchange, symbol, domain.ErrDataUnavailable, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	quote := domain.Quote{Exchange: exchange, Symbol: symbol}
	quote.BidPrice, _ = strconv.ParseFloat(vals["bid"], 64)
	quote.BidSize, _ = strconv.ParseFloat(vals["bid_size"], 64)
	quote.AskPrice, _ = strconv.ParseFloat(vals["ask"], 64)
	quote.AskSize, _ = strconv.ParseFloat(vals["ask_size"], 64)
	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			quote.ObservedAt = time.Unix(0, tsNano)
		}
	}
	if !quote.Valid() {
		return domain.Quote{}, domain.ErrDataInvalid
	}
	return quote, nil
}

// GetFresh is Get with a freshness gate: entries older than maxAge return
// domain.ErrStaleQuote.
func (qc *QuoteCache) GetFresh(ctx context.Context, exchange, symbol string, maxAge time.Duration) (domain.Quote, error) {
	quote, err := qc.Get(ctx, exchange, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if !quote.Fresh(time.Now(), maxAge) {
		return domain.Quote{}, domain.ErrStaleQuote
	}
	return quote, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
