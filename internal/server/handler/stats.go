package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// defaultStatsWindow is how far back statistics reach when the request does
// not say.
const defaultStatsWindow = 24 * time.Hour

// StatsHandler serves persisted closed-opportunity statistics.
type StatsHandler struct {
	// store is nil when history persistence is disabled.
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler reading from store, which may be
// nil.
func NewStatsHandler(store domain.OpportunityStore, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{store: store, logger: logger}
}

// Get returns aggregate statistics over the closed opportunities recorded for
// a symbol within the requested window (Go duration syntax, default 24h).
// GET /v1/stats/{symbol}?window=24h
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "opportunity history persistence is disabled")
		return
	}

	symbol := r.PathValue("symbol")
	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	stats, err := h.store.Stats(r.Context(), symbol, time.Now().Add(-window))
	if err != nil {
		h.logger.Error("stats query failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"window": window.String(),
		"stats":  stats,
	})
}
