package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goquant/arbsentinel/internal/controller"
	"github.com/goquant/arbsentinel/internal/detector"
	"github.com/goquant/arbsentinel/internal/domain"
)

// SessionHandler serves monitor session commands: start, stop, status.
type SessionHandler struct {
	ctrl *controller.Controller
	// defaults fill request fields the caller leaves zero.
	defaults domain.SessionConfig
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. defaults supplies the monitor
// parameters omitted from start requests.
func NewSessionHandler(ctrl *controller.Controller, defaults domain.SessionConfig, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, defaults: defaults, logger: logger}
}

// startRequest is the POST /v1/sessions payload. Durations are strings in
// Go syntax ("30s", "1m"); zero-valued fields fall back to server defaults.
type startRequest struct {
	Owner                string   `json:"owner"`
	Kind                 string   `json:"kind"`
	Symbols              []string `json:"symbols"`
	Exchanges            []string `json:"exchanges"`
	MinProfitPct         float64  `json:"min_profit_pct"`
	MinProfitAbs         float64  `json:"min_profit_abs"`
	SignificantChangePct float64  `json:"significant_change_pct"`
	UpdateFrequency      string   `json:"update_frequency"`
	Channel              string   `json:"channel"`
}

// Start launches a new monitor session.
// POST /v1/sessions
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	kind := domain.SessionKind(req.Kind)
	cfg, err := h.buildConfig(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.ctrl.Start(r.Context(), req.Owner, kind, cfg)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrLimitExceeded):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, domain.ErrDataInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// updateRequest is the PATCH /v1/sessions/{id} payload. Omitted fields keep
// their current values.
type updateRequest struct {
	MinProfitPct *float64 `json:"min_profit_pct"`
	MinProfitAbs *float64 `json:"min_profit_abs"`
}

// Update replaces the profit thresholds of a running arbitrage session. The
// new values apply from the session's next evaluation cycle.
// PATCH /v1/sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MinProfitPct == nil && req.MinProfitAbs == nil {
		writeError(w, http.StatusBadRequest, "at least one of min_profit_pct, min_profit_abs is required")
		return
	}

	snap, err := h.ctrl.Status(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t := detector.Thresholds{
		MinProfitPct: snap.Config.MinProfitPct,
		MinProfitAbs: snap.Config.MinProfitAbs,
	}
	if req.MinProfitPct != nil {
		t.MinProfitPct = *req.MinProfitPct
	}
	if req.MinProfitAbs != nil {
		t.MinProfitAbs = *req.MinProfitAbs
	}

	if err := h.ctrl.UpdateThresholds(id, t); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrDataInvalid), errors.Is(err, domain.ErrUnsupported):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":             id,
		"min_profit_pct": t.MinProfitPct,
		"min_profit_abs": t.MinProfitAbs,
	})
}

// Stop winds down a session.
// DELETE /v1/sessions/{id}
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ctrl.Stop(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "stopped"})
}

// Get returns the snapshot of one session.
// GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := h.ctrl.Status(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// List returns snapshots of all sessions, optionally filtered by owner.
// GET /v1/sessions?owner=
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.ctrl.StatusAll(owner),
	})
}

// buildConfig overlays a request's explicit fields onto the configured
// defaults, the same way seeded sessions inherit them.
func (h *SessionHandler) buildConfig(req startRequest) (domain.SessionConfig, error) {
	cfg := h.defaults
	cfg.Symbols = req.Symbols
	if len(req.Exchanges) > 0 {
		cfg.Exchanges = req.Exchanges
	}
	if req.Channel != "" {
		cfg.Channel = req.Channel
	}

	if req.MinProfitPct > 0 {
		cfg.MinProfitPct = req.MinProfitPct
	}
	if req.MinProfitAbs > 0 {
		cfg.MinProfitAbs = req.MinProfitAbs
	}
	if req.SignificantChangePct > 0 {
		cfg.SignificantChangePct = req.SignificantChangePct
	}
	if req.UpdateFrequency != "" {
		d, err := time.ParseDuration(req.UpdateFrequency)
		if err != nil {
			return domain.SessionConfig{}, errors.New("invalid update_frequency")
		}
		cfg.UpdateFrequency = d
	}
	return cfg, nil
}
