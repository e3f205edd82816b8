// Package detector implements cross-exchange arbitrage detection over the
// quote cache. A Detector compares every ordered pair of exchanges for a
// symbol and tracks each qualifying opportunity through its lifecycle.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// EventType classifies an opportunity transition produced by one evaluation
// cycle.
type EventType string

const (
	// EventNew fires the first cycle an opportunity qualifies.
	EventNew EventType = "new"
	// EventUpdated fires while a known opportunity keeps qualifying.
	EventUpdated EventType = "updated"
	// EventClosed fires when a known opportunity stops qualifying.
	EventClosed EventType = "closed"
)

// Event is one opportunity transition from an evaluation cycle.
type Event struct {
	Type        EventType
	Opportunity domain.ArbitrageOpportunity
	ClosedAt    time.Time // set for EventClosed only
}

// Thresholds gate which price differences count as opportunities. Both checks
// must hold; the conditions are conjunctive.
type Thresholds struct {
	MinProfitPct float64
	MinProfitAbs float64
}

// Config configures a Detector.
type Config struct {
	Thresholds     Thresholds
	StalenessLimit time.Duration
	HistorySize    int
	Logger         *slog.Logger
}

// Detector finds and tracks arbitrage opportunities for one monitor session.
// Evaluate must be called from a single goroutine; Active, Stats and
// SetThresholds are safe to call concurrently with it.
type Detector struct {
	cache      domain.QuoteCache
	staleness  time.Duration
	thresholds atomic.Pointer[Thresholds]
	logger     *slog.Logger

	mu      sync.Mutex
	active  map[string]domain.ArbitrageOpportunity
	history *history
}

// New creates a Detector reading quotes from cache.
func New(cache domain.QuoteCache, cfg Config) *Detector {
	d := &Detector{
		cache:     cache,
		staleness: cfg.StalenessLimit,
		logger:    cfg.Logger.With(slog.String("component", "arb_detector")),
		active:    make(map[string]domain.ArbitrageOpportunity),
		history:   newHistory(cfg.HistorySize),
	}
	t := cfg.Thresholds
	d.thresholds.Store(&t)
	return d
}

// SetThresholds replaces the threshold snapshot. The new values apply from
// the next evaluation cycle; already-active opportunities keep their state
// until then.
func (d *Detector) SetThresholds(t Thresholds) error {
	if t.MinProfitPct < 0 || t.MinProfitAbs < 0 {
		return fmt.Errorf("%w: thresholds must not be negative", domain.ErrDataInvalid)
	}
	d.thresholds.Store(&t)
	d.logger.Info("thresholds updated",
		slog.Float64("min_profit_pct", t.MinProfitPct),
		slog.Float64("min_profit_abs", t.MinProfitAbs),
	)
	return nil
}

// Thresholds returns the current threshold snapshot.
func (d *Detector) Thresholds() Thresholds {
	return *d.thresholds.Load()
}

// Evaluate runs one detection cycle for symbol over the given exchange set
// and returns the opportunity transitions it produced. Exchanges with
// missing, stale, or invalid quotes are excluded from every pair for this
// cycle; previously active opportunities that stop qualifying (for any
// reason, including exclusion) are closed.
func (d *Detector) Evaluate(ctx context.Context, symbol string, exchanges []string) ([]Event, error) {
	thresholds := *d.thresholds.Load()
	now := time.Now()

	quotes := make(map[string]domain.Quote, len(exchanges))
	for _, exchange := range exchanges {
		quote, err := d.cache.GetFresh(ctx, exchange, symbol, d.staleness)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStaleQuote) || errors.Is(err, domain.ErrDataInvalid) {
				d.logger.Debug("exchange excluded from cycle",
					slog.String("exchange", exchange),
					slog.String("symbol", symbol),
					slog.String("reason", err.Error()),
				)
				continue
			}
			return nil, fmt.Errorf("detector: fetch quote %s/%s: %w", exchange, symbol, err)
		}
		quotes[exchange] = quote
	}

	// All ordered pairs: buy at A's ask, sell at B's bid. Roles are
	// asymmetric, so (A,B) and (B,A) are both checked.
	qualifying := make(map[string]domain.ArbitrageOpportunity)
	for _, buyExchange := range exchanges {
		buyQuote, ok := quotes[buyExchange]
		if !ok {
			continue
		}
		for _, sellExchange := range exchanges {
			if sellExchange == buyExchange {
				continue
			}
			sellQuote, ok := quotes[sellExchange]
			if !ok {
				continue
			}

			buyPrice := buyQuote.AskPrice
			sellPrice := sellQuote.BidPrice
			if sellPrice <= buyPrice {
				continue
			}

			profitAbs := sellPrice - buyPrice
			profitPct := profitAbs / buyPrice * 100
			if profitPct < thresholds.MinProfitPct || profitAbs < thresholds.MinProfitAbs {
				continue
			}

			opp := domain.ArbitrageOpportunity{
				Symbol:       symbol,
				BuyExchange:  buyExchange,
				SellExchange: sellExchange,
				BuyPrice:     buyPrice,
				SellPrice:    sellPrice,
				ProfitAbs:    profitAbs,
				ProfitPct:    profitPct,
				ThresholdPct: thresholds.MinProfitPct,
				ThresholdAbs: thresholds.MinProfitAbs,
				DetectedAt:   now,
				LastSeenAt:   now,
			}
			qualifying[opp.Key()] = opp
		}
	}

	return d.applyTransitions(symbol, exchanges, qualifying, now), nil
}

// applyTransitions reconciles this cycle's qualifying set against the active
// map and returns the resulting events. Only opportunities within the scope
// of this evaluation (same symbol, both exchanges in the evaluated set) are
// considered for closure.
func (d *Detector) applyTransitions(symbol string, exchanges []string, qualifying map[string]domain.ArbitrageOpportunity, now time.Time) []Event {
	inScope := make(map[string]bool, len(exchanges))
	for _, e := range exchanges {
		inScope[e] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var events []Event

	for key, opp := range qualifying {
		prev, exists := d.active[key]
		if exists {
			opp.DetectedAt = prev.DetectedAt
			d.active[key] = opp
			events = append(events, Event{Type: EventUpdated, Opportunity: opp})
			continue
		}
		d.active[key] = opp
		events = append(events, Event{Type: EventNew, Opportunity: opp})
		d.logger.Info("arbitrage opportunity detected",
			slog.String("symbol", opp.Symbol),
			slog.String("buy_exchange", opp.BuyExchange),
			slog.String("sell_exchange", opp.SellExchange),
			slog.Float64("profit_pct", opp.ProfitPct),
			slog.Float64("profit_abs", opp.ProfitAbs),
		)
	}

	for key, opp := range d.active {
		if _, ok := qualifying[key]; ok {
			continue
		}
		if opp.Symbol != symbol || !inScope[opp.BuyExchange] || !inScope[opp.SellExchange] {
			continue
		}
		delete(d.active, key)
		closed := domain.ClosedOpportunity{ArbitrageOpportunity: opp, ClosedAt: now}
		d.history.add(closed)
		events = append(events, Event{Type: EventClosed, Opportunity: opp, ClosedAt: now})
		d.logger.Info("arbitrage opportunity closed",
			slog.String("symbol", opp.Symbol),
			slog.String("buy_exchange", opp.BuyExchange),
			slog.String("sell_exchange", opp.SellExchange),
			slog.Duration("duration", opp.Duration()),
		)
	}

	return events
}

// Active returns a copy of the currently qualifying opportunities.
func (d *Detector) Active() []domain.ArbitrageOpportunity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.ArbitrageOpportunity, 0, len(d.active))
	for _, opp := range d.active {
		out = append(out, opp)
	}
	return out
}

// Closed returns up to limit most recently closed opportunities, newest
// first.
func (d *Detector) Closed(limit int) []domain.ClosedOpportunity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.recent(limit)
}

// Stats aggregates the retained closed opportunities.
func (d *Detector) Stats() domain.OpportunityStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.stats()
}
