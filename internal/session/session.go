// Package session runs monitor sessions: long-lived goroutines that refresh
// quotes for a target set, run a detector over them, and route the resulting
// signals to alerts and the signal bus.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goquant/arbsentinel/internal/alert"
	"github.com/goquant/arbsentinel/internal/detector"
	"github.com/goquant/arbsentinel/internal/domain"
	"github.com/goquant/arbsentinel/internal/marketview"
)

const (
	// busOpportunities carries opportunity transition events.
	busOpportunities = "opportunities"
	// busMarketView carries published consolidated views.
	busMarketView = "marketview"

	// quoteBuffer sizes the push-quote channel. Overflow drops the update;
	// the next poll cycle repairs the cache.
	quoteBuffer = 64
)

// Deps are the collaborators a session needs. Bus and Store may be nil.
type Deps struct {
	Cache      domain.QuoteCache
	Market     domain.MarketDataPort
	Dispatcher *alert.Dispatcher
	Bus        domain.SignalBus
	Store      domain.OpportunityStore
	Logger     *slog.Logger
}

// Session is one running monitor. All mutable state is owned by the run
// goroutine or guarded by mu; Snapshot copies out, never shares.
type Session struct {
	id    string
	owner string
	kind  domain.SessionKind
	cfg   domain.SessionConfig
	deps  Deps

	detector     *detector.Detector
	consolidator *marketview.Consolidator

	logger  *slog.Logger
	quoteCh chan domain.Quote
	done    chan struct{}
	cancel  context.CancelFunc

	mu         sync.Mutex
	status     domain.SessionStatus
	startedAt  time.Time
	lastEvalAt time.Time
	evalCycles uint64
	lastError  string
	subs       []domain.Subscription
}

// New creates a session in the pending state. Start launches it.
func New(owner string, kind domain.SessionKind, cfg domain.SessionConfig, deps Deps) *Session {
	s := &Session{
		id:      uuid.NewString(),
		owner:   owner,
		kind:    kind,
		cfg:     cfg,
		deps:    deps,
		quoteCh: make(chan domain.Quote, quoteBuffer),
		done:    make(chan struct{}),
		status:  domain.SessionPending,
	}
	s.logger = deps.Logger.With(
		slog.String("component", "session"),
		slog.String("session_id", s.id),
		slog.String("kind", string(kind)),
	)

	switch kind {
	case domain.SessionKindArbitrage:
		s.detector = detector.New(deps.Cache, detector.Config{
			Thresholds: detector.Thresholds{
				MinProfitPct: cfg.MinProfitPct,
				MinProfitAbs: cfg.MinProfitAbs,
			},
			StalenessLimit: cfg.StalenessLimit,
			HistorySize:    cfg.HistorySize,
			Logger:         deps.Logger,
		})
	case domain.SessionKindMarketView:
		s.consolidator = marketview.New(deps.Cache, marketview.Config{
			StalenessLimit:       cfg.StalenessLimit,
			SignificantChangePct: cfg.SignificantChangePct,
			UpdateFrequency:      cfg.UpdateFrequency,
			Logger:               deps.Logger,
		})
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Owner returns the requesting owner.
func (s *Session) Owner() string { return s.owner }

// Kind returns the session kind.
func (s *Session) Kind() domain.SessionKind { return s.kind }

// Config returns the session's parameter snapshot.
func (s *Session) Config() domain.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateThresholds replaces an arbitrage session's profit thresholds. The new
// snapshot applies from the next evaluation cycle; the running cycle finishes
// under the old one.
func (s *Session) UpdateThresholds(t detector.Thresholds) error {
	if s.kind != domain.SessionKindArbitrage {
		return fmt.Errorf("session: %s sessions have no profit thresholds: %w", s.kind, domain.ErrUnsupported)
	}
	if err := s.detector.SetThresholds(t); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg.MinProfitPct = t.MinProfitPct
	s.cfg.MinProfitAbs = t.MinProfitAbs
	s.mu.Unlock()
	return nil
}

// Done is closed when the run goroutine has fully exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start launches the session goroutine. onExit is invoked exactly once when
// the session terminates; err is non-nil only for failures, not for stops.
func (s *Session) Start(ctx context.Context, onExit func(id string, err error)) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.run(runCtx, onExit)
}

// Stop asks the session to wind down. It returns immediately; callers wait
// on Done.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.status == domain.SessionRunning || s.status == domain.SessionPending {
		s.status = domain.SessionStopping
	}
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) run(ctx context.Context, onExit func(id string, err error)) {
	defer close(s.done)

	s.openSubscriptions(ctx)
	defer s.closeSubscriptions()

	s.logger.Info("session started",
		slog.String("owner", s.owner),
		slog.Any("symbols", s.cfg.Symbols),
		slog.Any("exchanges", s.cfg.Exchanges),
	)

	ticker := time.NewTicker(s.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(domain.SessionStopped)
			s.logger.Info("session stopped")
			onExit(s.id, nil)
			return

		case quote := <-s.quoteCh:
			if err := s.deps.Cache.Put(ctx, quote); err != nil {
				s.logger.Debug("pushed quote rejected", slog.String("error", err.Error()))
			}

		case <-ticker.C:
			err := s.cycle(ctx)
			switch {
			case err == nil:
				s.recordCycle("")
			case errors.Is(err, context.Canceled):
				// Shutdown races the ticker; the ctx.Done branch reports.
			case domain.IsTransient(err):
				s.logger.Warn("evaluation cycle failed", slog.String("error", err.Error()))
				s.recordCycle(err.Error())
			default:
				s.logger.Error("session failed", slog.String("error", err.Error()))
				s.setError(err.Error())
				s.finish(domain.SessionFailed)
				onExit(s.id, err)
				return
			}
		}
	}
}

// cycle runs one evaluation pass over every configured symbol. Cycles are
// strictly sequential; a slow cycle delays the next tick rather than
// overlapping it.
func (s *Session) cycle(ctx context.Context) error {
	s.refreshQuotes(ctx)

	for _, symbol := range s.cfg.Symbols {
		var err error
		switch s.kind {
		case domain.SessionKindArbitrage:
			err = s.evalArbitrage(ctx, symbol)
		case domain.SessionKindMarketView:
			err = s.evalMarketView(ctx, symbol)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// refreshQuotes pulls the latest quote per (exchange, symbol) into the cache.
// A failed or timed-out fetch leaves the cached quote as-is; the staleness
// gate downstream decides whether it is still usable.
func (s *Session) refreshQuotes(ctx context.Context) {
	for _, exchange := range s.cfg.Exchanges {
		for _, symbol := range s.cfg.Symbols {
			fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
			quote, err := s.deps.Market.FetchQuote(fetchCtx, exchange, symbol)
			cancel()
			if err != nil {
				s.logger.Debug("quote fetch failed",
					slog.String("exchange", exchange),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := s.deps.Cache.Put(ctx, quote); err != nil {
				s.logger.Debug("quote rejected by cache",
					slog.String("exchange", exchange),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *Session) evalArbitrage(ctx context.Context, symbol string) error {
	events, err := s.detector.Evaluate(ctx, symbol, s.cfg.Exchanges)
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.handleEvent(ctx, ev)
	}
	return nil
}

func (s *Session) handleEvent(ctx context.Context, ev detector.Event) {
	opp := ev.Opportunity
	key := opp.Key()

	switch ev.Type {
	case detector.EventNew, detector.EventUpdated:
		if err := s.deps.Dispatcher.Notify(ctx, key, FormatOpportunity(opp), s.cfg.Channel); err != nil {
			s.logger.Warn("opportunity alert failed",
				slog.String("opportunity", key),
				slog.String("error", err.Error()),
			)
		}
	case detector.EventClosed:
		// Rewrite the live message as resolved, then drop the record so a
		// future recurrence sends a fresh one.
		if err := s.deps.Dispatcher.Notify(ctx, key, FormatOpportunityClosed(opp, ev.ClosedAt), s.cfg.Channel); err != nil {
			s.logger.Warn("close alert failed",
				slog.String("opportunity", key),
				slog.String("error", err.Error()),
			)
		}
		s.deps.Dispatcher.Clear(key, s.cfg.Channel)

		if s.deps.Store != nil {
			closed := domain.ClosedOpportunity{ArbitrageOpportunity: opp, ClosedAt: ev.ClosedAt}
			if err := s.deps.Store.RecordClosed(ctx, closed); err != nil {
				s.logger.Warn("opportunity persist failed", slog.String("error", err.Error()))
			}
		}
	}

	s.publish(ctx, busOpportunities, busEvent{
		Type:        string(ev.Type),
		SessionID:   s.id,
		Opportunity: &opp,
	})
}

func (s *Session) evalMarketView(ctx context.Context, symbol string) error {
	view, publish, err := s.consolidator.Evaluate(ctx, symbol, s.cfg.Exchanges)
	if err != nil {
		return err
	}
	if !publish {
		return nil
	}

	key := "market_view:" + symbol
	if err := s.deps.Dispatcher.Notify(ctx, key, FormatMarketView(view), s.cfg.Channel); err != nil {
		s.logger.Warn("market view alert failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, busMarketView, busEvent{
		Type:      "view",
		SessionID: s.id,
		View:      &view,
	})
	return nil
}

// busEvent is the JSON envelope published on the signal bus.
type busEvent struct {
	Type        string                       `json:"type"`
	SessionID   string                       `json:"session_id"`
	Opportunity *domain.ArbitrageOpportunity `json:"opportunity,omitempty"`
	View        *domain.ConsolidatedView     `json:"view,omitempty"`
}

func (s *Session) publish(ctx context.Context, channel string, ev busEvent) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.deps.Bus.Publish(ctx, channel, payload); err != nil {
		s.logger.Debug("bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// openSubscriptions attaches push feeds for every (exchange, symbol) pair.
// Push is an optimization over the poll cycle, so failures only log.
func (s *Session) openSubscriptions(ctx context.Context) {
	for _, exchange := range s.cfg.Exchanges {
		for _, symbol := range s.cfg.Symbols {
			sub, err := s.deps.Market.Subscribe(ctx, exchange, symbol, s.onQuote)
			if err != nil {
				if !errors.Is(err, domain.ErrUnsupported) {
					s.logger.Warn("subscription failed, polling only",
						slog.String("exchange", exchange),
						slog.String("symbol", symbol),
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			s.mu.Lock()
			s.subs = append(s.subs, sub)
			s.mu.Unlock()
		}
	}
}

func (s *Session) onQuote(_ context.Context, quote domain.Quote) {
	select {
	case s.quoteCh <- quote:
	default:
		// Full buffer: drop, polling will catch up.
	}
}

func (s *Session) closeSubscriptions() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			s.logger.Debug("subscription close failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Session) recordCycle(lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evalCycles++
	s.lastEvalAt = time.Now()
	s.lastError = lastErr
	if s.status == domain.SessionPending && lastErr == "" {
		s.status = domain.SessionRunning
	}
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

func (s *Session) finish(status domain.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Status returns the current lifecycle state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns a copy-out view of the session for the command layer.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	snap := domain.SessionSnapshot{
		ID:         s.id,
		Owner:      s.owner,
		Kind:       s.kind,
		Status:     s.status,
		Config:     s.cfg,
		StartedAt:  s.startedAt,
		LastEvalAt: s.lastEvalAt,
		EvalCycles: s.evalCycles,
		LastError:  s.lastError,
	}
	s.mu.Unlock()

	switch s.kind {
	case domain.SessionKindArbitrage:
		snap.ActiveOpps = s.detector.Active()
		stats := s.detector.Stats()
		snap.Stats = &stats
	case domain.SessionKindMarketView:
		snap.LatestViews = s.consolidator.Views()
	}
	return snap
}

// String implements fmt.Stringer for log-friendly identification.
func (s *Session) String() string {
	return fmt.Sprintf("%s/%s[%s]", s.owner, s.kind, s.id)
}
