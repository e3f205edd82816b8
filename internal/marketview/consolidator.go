// Package marketview computes the consolidated best bid/offer (CBBO) for a
// symbol across its monitored exchanges and decides which recomputed views
// are worth publishing.
package marketview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// Config configures a Consolidator.
type Config struct {
	StalenessLimit time.Duration
	// SignificantChangePct is the mid-price move, in percent, that forces
	// a publish before UpdateFrequency elapses.
	SignificantChangePct float64
	// UpdateFrequency bounds how stale a published view may get: once
	// this much time has passed since the last publish, the next complete
	// view is published regardless of mid-price movement.
	UpdateFrequency time.Duration
	Logger          *slog.Logger
}

type published struct {
	mid float64
	at  time.Time
}

// Consolidator owns CBBO computation for one monitor session. Evaluate must
// be called from a single goroutine; Views is safe to call concurrently.
type Consolidator struct {
	cache  domain.QuoteCache
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	latest        map[string]domain.ConsolidatedView
	lastPublished map[string]published
}

// New creates a Consolidator reading quotes from cache.
func New(cache domain.QuoteCache, cfg Config) *Consolidator {
	return &Consolidator{
		cache:         cache,
		cfg:           cfg,
		logger:        cfg.Logger.With(slog.String("component", "market_view")),
		latest:        make(map[string]domain.ConsolidatedView),
		lastPublished: make(map[string]published),
	}
}

// Consolidate computes the CBBO for symbol from the freshest quote per
// exchange, excluding quotes older than the staleness limit. Ties on best
// bid/ask break toward the exchange listed first in the configured exchange
// order, so output is deterministic.
func (c *Consolidator) Consolidate(ctx context.Context, symbol string, exchanges []string) (domain.ConsolidatedView, error) {
	view := domain.ConsolidatedView{
		Symbol:      symbol,
		PerExchange: make(map[string]domain.Quote, len(exchanges)),
		ComputedAt:  time.Now(),
	}

	bestAsk := math.Inf(1)
	for _, exchange := range exchanges {
		quote, err := c.cache.GetFresh(ctx, exchange, symbol, c.cfg.StalenessLimit)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStaleQuote) || errors.Is(err, domain.ErrDataInvalid) {
				c.logger.Debug("exchange excluded from view",
					slog.String("exchange", exchange),
					slog.String("symbol", symbol),
					slog.String("reason", err.Error()),
				)
				continue
			}
			return domain.ConsolidatedView{}, fmt.Errorf("market view: fetch quote %s/%s: %w", exchange, symbol, err)
		}
		view.PerExchange[exchange] = quote

		// Strict comparisons keep the first-seen exchange on ties.
		if quote.BidPrice > view.BestBidPrice {
			view.BestBidPrice = quote.BidPrice
			view.BestBidExchange = exchange
		}
		if quote.AskPrice > 0 && quote.AskPrice < bestAsk {
			bestAsk = quote.AskPrice
			view.BestAskExchange = exchange
		}
	}

	if view.BestBidPrice > 0 && !math.IsInf(bestAsk, 1) {
		view.BestAskPrice = bestAsk
		view.MidPrice = (view.BestBidPrice + view.BestAskPrice) / 2
		view.Complete = true
	}

	return view, nil
}

// Evaluate runs one consolidation cycle and reports whether the resulting
// view should be published. Incomplete views are never published. A complete
// view is published when the mid moved at least SignificantChangePct from the
// last published mid, or when UpdateFrequency has elapsed since the last
// publish, whichever comes first.
func (c *Consolidator) Evaluate(ctx context.Context, symbol string, exchanges []string) (domain.ConsolidatedView, bool, error) {
	view, err := c.Consolidate(ctx, symbol, exchanges)
	if err != nil {
		return domain.ConsolidatedView{}, false, err
	}
	if !view.Complete {
		c.logger.Debug("incomplete view suppressed", slog.String("symbol", symbol))
		return view, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest[symbol] = view

	prev, seen := c.lastPublished[symbol]
	publish := !seen
	if seen {
		delta := math.Abs(view.MidPrice-prev.mid) / prev.mid * 100
		switch {
		case delta >= c.cfg.SignificantChangePct:
			publish = true
		case view.ComputedAt.Sub(prev.at) >= c.cfg.UpdateFrequency:
			publish = true
		}
	}
	if publish {
		c.lastPublished[symbol] = published{mid: view.MidPrice, at: view.ComputedAt}
	}
	return view, publish, nil
}

// Views returns a copy of the latest complete view per symbol.
func (c *Consolidator) Views() []domain.ConsolidatedView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ConsolidatedView, 0, len(c.latest))
	for _, view := range c.latest {
		copied := view
		copied.PerExchange = make(map[string]domain.Quote, len(view.PerExchange))
		for k, v := range view.PerExchange {
			copied.PerExchange[k] = v
		}
		out = append(out, copied)
	}
	return out
}
