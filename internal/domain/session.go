package domain

import (
	"sort"
	"strings"
	"time"
)

// SessionKind selects which detector a monitor session runs.
type SessionKind string

const (
	SessionKindArbitrage  SessionKind = "arbitrage"
	SessionKindMarketView SessionKind = "market_view"
)

// SessionStatus is the lifecycle state of a monitor session.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionRunning  SessionStatus = "running"
	SessionStopping SessionStatus = "stopping"
	SessionStopped  SessionStatus = "stopped"
	SessionFailed   SessionStatus = "failed"
)

// SessionConfig is the immutable parameter snapshot a monitor session runs
// with. Runtime updates replace the whole snapshot atomically; they never
// mutate a snapshot in place.
type SessionConfig struct {
	Symbols   []string `json:"symbols"`
	Exchanges []string `json:"exchanges"`

	// Arbitrage thresholds. Both must hold for an opportunity to qualify.
	MinProfitPct float64 `json:"min_profit_pct"`
	MinProfitAbs float64 `json:"min_profit_abs"`

	// HistorySize bounds the closed-opportunity ring kept for statistics.
	HistorySize int `json:"history_size,omitempty"`

	// Market view publication gates.
	SignificantChangePct float64       `json:"significant_change_pct"`
	UpdateFrequency      time.Duration `json:"update_frequency"`

	StalenessLimit time.Duration `json:"staleness_limit"`
	EvalInterval   time.Duration `json:"eval_interval"`
	FetchTimeout   time.Duration `json:"fetch_timeout"`

	// Channel is the notification channel alerts for this session go to.
	Channel string `json:"channel"`
}

// TargetKey is a canonical identity for the (symbols, exchanges) target set,
// used to reject duplicate monitoring requests. Order-insensitive.
func (c SessionConfig) TargetKey() string {
	symbols := append([]string(nil), c.Symbols...)
	exchanges := append([]string(nil), c.Exchanges...)
	sort.Strings(symbols)
	sort.Strings(exchanges)
	return strings.Join(symbols, ",") + "@" + strings.Join(exchanges, ",")
}

// SessionSnapshot is a point-in-time, copy-out view of a session for the
// command layer. It shares no mutable state with the running session.
type SessionSnapshot struct {
	ID          string                 `json:"id"`
	Owner       string                 `json:"owner"`
	Kind        SessionKind            `json:"kind"`
	Status      SessionStatus          `json:"status"`
	Config      SessionConfig          `json:"config"`
	StartedAt   time.Time              `json:"started_at"`
	LastEvalAt  time.Time              `json:"last_eval_at,omitempty"`
	EvalCycles  uint64                 `json:"eval_cycles"`
	LastError   string                 `json:"last_error,omitempty"`
	ActiveOpps  []ArbitrageOpportunity `json:"active_opportunities,omitempty"`
	LatestViews []ConsolidatedView     `json:"latest_views,omitempty"`
	Stats       *OpportunityStats      `json:"stats,omitempty"`
}
