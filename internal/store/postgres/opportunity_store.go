package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goquant/arbsentinel/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// RecordClosed stores a closed arbitrage opportunity.
func (s *OpportunityStore) RecordClosed(ctx context.Context, opp domain.ClosedOpportunity) error {
	const query = `
		INSERT INTO opportunity_history (
			symbol, buy_exchange, sell_exchange,
			buy_price, sell_price, profit_abs, profit_pct,
			threshold_pct, threshold_abs,
			detected_at, closed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9,
			$10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.Symbol, opp.BuyExchange, opp.SellExchange,
		opp.BuyPrice, opp.SellPrice, opp.ProfitAbs, opp.ProfitPct,
		opp.ThresholdPct, opp.ThresholdAbs,
		opp.DetectedAt, opp.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed opportunity %s: %w", opp.Key(), err)
	}
	return nil
}

// Stats aggregates closed opportunities for symbol since the given time.
func (s *OpportunityStore) Stats(ctx context.Context, symbol string, since time.Time) (domain.OpportunityStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(AVG(profit_pct), 0),
			COALESCE(MAX(profit_pct), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (closed_at - detected_at))), 0)
		FROM opportunity_history
		WHERE symbol = $1 AND closed_at >= $2`

	var (
		stats       domain.OpportunityStats
		avgDuration float64
	)
	err := s.pool.QueryRow(ctx, query, symbol, since).Scan(
		&stats.Count, &stats.AvgProfitPct, &stats.MaxProfitPct, &avgDuration,
	)
	if err != nil {
		return domain.OpportunityStats{}, fmt.Errorf("postgres: opportunity stats %s: %w", symbol, err)
	}
	stats.AvgDuration = time.Duration(avgDuration * float64(time.Second))
	return stats, nil
}
