package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goquant/arbsentinel/internal/domain"
)

// SymbolsHandler serves symbol discovery for the monitored exchanges.
type SymbolsHandler struct {
	market domain.MarketDataPort
	logger *slog.Logger
}

// NewSymbolsHandler creates a SymbolsHandler reading from market.
func NewSymbolsHandler(market domain.MarketDataPort, logger *slog.Logger) *SymbolsHandler {
	return &SymbolsHandler{market: market, logger: logger}
}

// List returns the symbols an exchange supports.
// GET /v1/symbols/{exchange}
func (h *SymbolsHandler) List(w http.ResponseWriter, r *http.Request) {
	exchange := r.PathValue("exchange")

	symbols, err := h.market.ListSymbols(r.Context(), exchange)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupported):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, domain.ErrDataUnavailable):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"exchange": exchange,
		"symbols":  symbols,
	})
}
