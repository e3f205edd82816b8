// Package controller owns the monitor session registry: admission, caps,
// duplicate rejection, and lifecycle commands.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goquant/arbsentinel/internal/detector"
	"github.com/goquant/arbsentinel/internal/domain"
	"github.com/goquant/arbsentinel/internal/session"
)

// terminatedRetention bounds how many finished session snapshots stay
// queryable before the oldest are evicted.
const terminatedRetention = 100

// Config configures a Controller.
type Config struct {
	MaxArbitragePerOwner  int
	MaxMarketViewPerOwner int
	MaxTotal              int
	// StopTimeout bounds how long Stop waits for a session goroutine
	// before reclaiming it anyway.
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// Controller starts, stops, and inspects monitor sessions. All admission
// checks and registry updates happen under one lock, so cap checks and
// duplicate detection are atomic with registration.
type Controller struct {
	cfg    Config
	deps   session.Deps
	logger *slog.Logger

	mu         sync.Mutex
	sessions   map[string]*session.Session // live, by id
	identities map[string]string           // identity key -> session id
	terminated map[string]domain.SessionSnapshot
	termOrder  []string
}

// New creates a Controller that builds sessions from deps.
func New(cfg Config, deps session.Deps) *Controller {
	return &Controller{
		cfg:        cfg,
		deps:       deps,
		logger:     cfg.Logger.With(slog.String("component", "controller")),
		sessions:   make(map[string]*session.Session),
		identities: make(map[string]string),
		terminated: make(map[string]domain.SessionSnapshot),
	}
}

func identityKey(owner string, kind domain.SessionKind, cfg domain.SessionConfig) string {
	return owner + "|" + string(kind) + "|" + cfg.TargetKey()
}

// Start admits and launches a new monitor session, returning its id. A
// request duplicating a live session's (owner, kind, target) is rejected
// with ErrAlreadyRunning; requests beyond the per-owner or global caps are
// rejected with ErrLimitExceeded and leave existing sessions untouched.
func (c *Controller) Start(ctx context.Context, owner string, kind domain.SessionKind, cfg domain.SessionConfig) (string, error) {
	if err := validate(kind, cfg); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := identityKey(owner, kind, cfg)
	if id, ok := c.identities[key]; ok {
		return "", fmt.Errorf("controller: session %s already monitors this target: %w", id, domain.ErrAlreadyRunning)
	}

	if len(c.sessions) >= c.cfg.MaxTotal {
		return "", fmt.Errorf("controller: global session cap %d reached: %w", c.cfg.MaxTotal, domain.ErrLimitExceeded)
	}
	ownerCap := c.cfg.MaxArbitragePerOwner
	if kind == domain.SessionKindMarketView {
		ownerCap = c.cfg.MaxMarketViewPerOwner
	}
	if c.countLocked(owner, kind) >= ownerCap {
		return "", fmt.Errorf("controller: owner %s cap %d for %s sessions reached: %w", owner, ownerCap, kind, domain.ErrLimitExceeded)
	}

	s := session.New(owner, kind, cfg, c.deps)
	c.sessions[s.ID()] = s
	c.identities[key] = s.ID()

	s.Start(ctx, c.onExit)

	c.logger.Info("session admitted",
		slog.String("session_id", s.ID()),
		slog.String("owner", owner),
		slog.String("kind", string(kind)),
	)
	return s.ID(), nil
}

// onExit reaps a session that terminated on its own, failure included.
// Failures are reported here exactly once.
func (c *Controller) onExit(id string, err error) {
	c.mu.Lock()
	c.reapLocked(id, "")
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("session terminated with failure",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// reapLocked moves a live session into the terminated set. statusOverride,
// when non-empty, replaces the snapshot status for force-reclaimed sessions
// whose goroutine has not reported yet.
func (c *Controller) reapLocked(id string, statusOverride domain.SessionStatus) {
	s, ok := c.sessions[id]
	if !ok {
		return
	}
	snap := s.Snapshot()
	if statusOverride != "" {
		snap.Status = statusOverride
	}

	delete(c.sessions, id)
	delete(c.identities, identityKey(s.Owner(), s.Kind(), s.Config()))

	c.terminated[id] = snap
	c.termOrder = append(c.termOrder, id)
	for len(c.termOrder) > terminatedRetention {
		evict := c.termOrder[0]
		c.termOrder = c.termOrder[1:]
		delete(c.terminated, evict)
	}
}

// Stop winds down the session with the given id. Stopping an already
// terminated session is a no-op; an unknown id returns ErrNotFound. When the
// session goroutine does not exit within StopTimeout the registry slot is
// reclaimed anyway so the caps free up.
func (c *Controller) Stop(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, done := c.terminated[id]; done {
		c.mu.Unlock()
		return nil
	}
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("controller: session %s: %w", id, domain.ErrNotFound)
	}

	s.Stop()

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-s.Done():
		// onExit reaped it.
	case <-timer.C:
		c.logger.Warn("session did not stop in time, reclaiming",
			slog.String("session_id", id),
			slog.Duration("timeout", c.cfg.StopTimeout),
		)
		c.mu.Lock()
		c.reapLocked(id, domain.SessionStopped)
		c.mu.Unlock()
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// UpdateThresholds replaces the profit thresholds of a live arbitrage
// session. The session keeps its identity and cap slot; only the gates move,
// taking effect from its next evaluation cycle.
func (c *Controller) UpdateThresholds(id string, t detector.Thresholds) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("controller: session %s: %w", id, domain.ErrNotFound)
	}
	if err := s.UpdateThresholds(t); err != nil {
		return err
	}
	c.logger.Info("session thresholds updated",
		slog.String("session_id", id),
		slog.Float64("min_profit_pct", t.MinProfitPct),
		slog.Float64("min_profit_abs", t.MinProfitAbs),
	)
	return nil
}

// StopAll stops every live session, used during shutdown.
func (c *Controller) StopAll(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.Stop(ctx, id); err != nil {
			c.logger.Warn("shutdown stop failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Status returns a copy-out snapshot of one session, live or terminated.
func (c *Controller) Status(id string) (domain.SessionSnapshot, error) {
	c.mu.Lock()
	s, live := c.sessions[id]
	snap, done := c.terminated[id]
	c.mu.Unlock()

	if live {
		return s.Snapshot(), nil
	}
	if done {
		return snap, nil
	}
	return domain.SessionSnapshot{}, fmt.Errorf("controller: session %s: %w", id, domain.ErrNotFound)
}

// StatusAll returns snapshots for every session owned by owner; an empty
// owner matches all sessions.
func (c *Controller) StatusAll(owner string) []domain.SessionSnapshot {
	c.mu.Lock()
	live := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		if owner == "" || s.Owner() == owner {
			live = append(live, s)
		}
	}
	done := make([]domain.SessionSnapshot, 0, len(c.terminated))
	for _, snap := range c.terminated {
		if owner == "" || snap.Owner == owner {
			done = append(done, snap)
		}
	}
	c.mu.Unlock()

	out := make([]domain.SessionSnapshot, 0, len(live)+len(done))
	for _, s := range live {
		out = append(out, s.Snapshot())
	}
	out = append(out, done...)
	return out
}

func (c *Controller) countLocked(owner string, kind domain.SessionKind) int {
	n := 0
	for _, s := range c.sessions {
		if s.Owner() == owner && s.Kind() == kind {
			n++
		}
	}
	return n
}

func validate(kind domain.SessionKind, cfg domain.SessionConfig) error {
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("controller: at least one symbol required: %w", domain.ErrDataInvalid)
	}
	switch kind {
	case domain.SessionKindArbitrage:
		if len(cfg.Exchanges) < 2 {
			return fmt.Errorf("controller: arbitrage needs at least two exchanges: %w", domain.ErrDataInvalid)
		}
	case domain.SessionKindMarketView:
		if len(cfg.Exchanges) == 0 {
			return fmt.Errorf("controller: at least one exchange required: %w", domain.ErrDataInvalid)
		}
	default:
		return fmt.Errorf("controller: unknown session kind %q: %w", kind, domain.ErrDataInvalid)
	}
	if cfg.EvalInterval <= 0 || cfg.StalenessLimit <= 0 || cfg.FetchTimeout <= 0 {
		return fmt.Errorf("controller: intervals must be positive: %w", domain.ErrDataInvalid)
	}
	return nil
}
