package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goquant/arbsentinel/internal/alert"
	"github.com/goquant/arbsentinel/internal/cache/memory"
	"github.com/goquant/arbsentinel/internal/detector"
	"github.com/goquant/arbsentinel/internal/domain"
)

// spreadMarket serves quotes with a persistent cross-venue spread: venue_a's
// ask sits below venue_b's bid.
type spreadMarket struct{}

func (spreadMarket) FetchQuote(_ context.Context, exchange, symbol string) (domain.Quote, error) {
	q := domain.Quote{
		Exchange:   exchange,
		Symbol:     symbol,
		BidSize:    1,
		AskSize:    1,
		ObservedAt: time.Now(),
	}
	switch exchange {
	case "venue_a":
		q.BidPrice, q.AskPrice = 59940.00, 59950.00
	default:
		q.BidPrice, q.AskPrice = 59999.50, 60010.00
	}
	return q, nil
}

func (spreadMarket) FetchDepth(context.Context, string, string) (domain.OrderBook, error) {
	return domain.OrderBook{}, domain.ErrUnsupported
}

func (spreadMarket) Subscribe(context.Context, string, string, domain.QuoteHandler) (domain.Subscription, error) {
	return nil, domain.ErrUnsupported
}

func (spreadMarket) ListSymbols(context.Context, string) ([]string, error) { return nil, nil }

// switchMarket serves the spreadMarket quotes while spread is on, and
// identical flat quotes on both venues while it is off.
type switchMarket struct {
	mu     sync.Mutex
	spread bool
}

func (m *switchMarket) setSpread(on bool) {
	m.mu.Lock()
	m.spread = on
	m.mu.Unlock()
}

func (m *switchMarket) FetchQuote(ctx context.Context, exchange, symbol string) (domain.Quote, error) {
	m.mu.Lock()
	on := m.spread
	m.mu.Unlock()
	if on {
		return spreadMarket{}.FetchQuote(ctx, exchange, symbol)
	}
	return domain.Quote{
		Exchange: exchange, Symbol: symbol,
		BidPrice: 59940.00, BidSize: 1, AskPrice: 59950.00, AskSize: 1,
		ObservedAt: time.Now(),
	}, nil
}

func (*switchMarket) FetchDepth(context.Context, string, string) (domain.OrderBook, error) {
	return domain.OrderBook{}, domain.ErrUnsupported
}

func (*switchMarket) Subscribe(context.Context, string, string, domain.QuoteHandler) (domain.Subscription, error) {
	return nil, domain.ErrUnsupported
}

func (*switchMarket) ListSymbols(context.Context, string) ([]string, error) { return nil, nil }

// outageCache fails every read the way the redis backend does during an
// outage.
type outageCache struct {
	domain.QuoteCache
}

func (c outageCache) Get(_ context.Context, exchange, symbol string) (domain.Quote, error) {
	return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w: %w", exchange, symbol,
		domain.ErrDataUnavailable, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))
}

func (c outageCache) GetFresh(ctx context.Context, exchange, symbol string, _ time.Duration) (domain.Quote, error) {
	return c.Get(ctx, exchange, symbol)
}

// recordingNotifier counts deliveries.
type recordingNotifier struct {
	mu     sync.Mutex
	sends  []string
	nextID int
}

func (r *recordingNotifier) Send(_ context.Context, channel, text string) (domain.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.sends = append(r.sends, text)
	return domain.MessageRef{Channel: channel, MessageID: strconv.Itoa(r.nextID)}, nil
}

func (r *recordingNotifier) Edit(context.Context, domain.MessageRef, string) error { return nil }
func (r *recordingNotifier) Name() string                                          { return "recording" }

func (r *recordingNotifier) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

func testDeps(notifier *recordingNotifier) Deps {
	logger := slog.New(slog.DiscardHandler)
	dispatcher := alert.New(notifier, memory.NewRateLimiter(), alert.Config{
		DebounceWindow: time.Minute,
		RateLimit:      1000,
		RateWindow:     time.Second,
		RetryDelay:     time.Millisecond,
		Logger:         logger,
	})
	return Deps{
		Cache:      memory.NewQuoteCache(),
		Market:     spreadMarket{},
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

func testSessionConfig() domain.SessionConfig {
	return domain.SessionConfig{
		Symbols:              []string{"BTC-USDT"},
		Exchanges:            []string{"venue_a", "venue_b"},
		MinProfitPct:         0.05,
		MinProfitAbs:         10.00,
		SignificantChangePct: 0.1,
		UpdateFrequency:      time.Hour,
		StalenessLimit:       time.Second,
		EvalInterval:         10 * time.Millisecond,
		FetchTimeout:         time.Second,
		Channel:              "chan",
	}
}

func TestArbitrageSessionDetectsAndAlerts(t *testing.T) {
	notifier := &recordingNotifier{}
	s := New("alice", domain.SessionKindArbitrage, testSessionConfig(), testDeps(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(string, error) {})

	require.Eventually(t, func() bool {
		return notifier.sendCount() > 0 && s.Status() == domain.SessionRunning
	}, 2*time.Second, 10*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, domain.SessionKindArbitrage, snap.Kind)
	require.Len(t, snap.ActiveOpps, 1)
	assert.Equal(t, "venue_a", snap.ActiveOpps[0].BuyExchange)
	assert.Equal(t, "venue_b", snap.ActiveOpps[0].SellExchange)

	// The live opportunity keeps editing one message, never sending more.
	assert.Equal(t, 1, notifier.sendCount())

	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, domain.SessionStopped, s.Status())
}

func TestMarketViewSessionPublishesOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	s := New("alice", domain.SessionKindMarketView, testSessionConfig(), testDeps(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(string, error) {})

	require.Eventually(t, func() bool {
		return notifier.sendCount() > 0
	}, 2*time.Second, 10*time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap.LatestViews, 1)
	view := snap.LatestViews[0]
	assert.True(t, view.Complete)
	assert.Equal(t, "venue_b", view.BestBidExchange)
	assert.Equal(t, "venue_a", view.BestAskExchange)

	// Static quotes below the significant-change gate: the first publish is
	// also the only one.
	assert.Equal(t, 1, notifier.sendCount())

	s.Stop()
	<-s.Done()
}

func TestSessionSurvivesCacheOutage(t *testing.T) {
	notifier := &recordingNotifier{}
	deps := testDeps(notifier)
	deps.Cache = outageCache{QuoteCache: memory.NewQuoteCache()}

	s := New("alice", domain.SessionKindArbitrage, testSessionConfig(), deps)

	exited := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(_ string, err error) { exited <- err })

	// Cycles keep running against the unreachable cache without failing the
	// session; the error surfaces in the snapshot instead.
	require.Eventually(t, func() bool {
		return s.Snapshot().EvalCycles >= 3
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-exited:
		t.Fatalf("session exited during cache outage: %v", err)
	default:
	}
	snap := s.Snapshot()
	assert.NotEqual(t, domain.SessionFailed, snap.Status)
	assert.Contains(t, snap.LastError, "unavailable")

	s.Stop()
	<-s.Done()
	assert.Equal(t, domain.SessionStopped, s.Status())
}

func TestUpdateThresholdsClosesDisqualifiedOpportunity(t *testing.T) {
	notifier := &recordingNotifier{}
	s := New("alice", domain.SessionKindArbitrage, testSessionConfig(), testDeps(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(string, error) {})

	require.Eventually(t, func() bool {
		return len(s.Snapshot().ActiveOpps) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The spread is ~0.083%; a 10% floor disqualifies it on the next cycle.
	require.NoError(t, s.UpdateThresholds(detector.Thresholds{MinProfitPct: 10, MinProfitAbs: 10}))

	require.Eventually(t, func() bool {
		return len(s.Snapshot().ActiveOpps) == 0
	}, 2*time.Second, 10*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, 10.0, snap.Config.MinProfitPct)
	assert.Equal(t, 1, snap.Stats.Count)

	s.Stop()
	<-s.Done()
}

func TestUpdateThresholdsRejectedForMarketView(t *testing.T) {
	notifier := &recordingNotifier{}
	s := New("alice", domain.SessionKindMarketView, testSessionConfig(), testDeps(notifier))

	err := s.UpdateThresholds(detector.Thresholds{MinProfitPct: 1, MinProfitAbs: 1})
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestHistorySizeBoundsClosedStats(t *testing.T) {
	notifier := &recordingNotifier{}
	market := &switchMarket{spread: true}
	deps := testDeps(notifier)
	deps.Market = market

	cfg := testSessionConfig()
	cfg.HistorySize = 1

	s := New("alice", domain.SessionKindArbitrage, cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, func(string, error) {})

	openAndClose := func() {
		market.setSpread(true)
		require.Eventually(t, func() bool {
			return len(s.Snapshot().ActiveOpps) == 1
		}, 2*time.Second, 10*time.Millisecond)
		market.setSpread(false)
		require.Eventually(t, func() bool {
			return len(s.Snapshot().ActiveOpps) == 0
		}, 2*time.Second, 10*time.Millisecond)
	}
	openAndClose()
	openAndClose()

	// Two closes passed through a ring of one: only the latest is retained.
	snap := s.Snapshot()
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 1, snap.Stats.Count)

	s.Stop()
	<-s.Done()
}

func TestSessionCancelledByParentContext(t *testing.T) {
	notifier := &recordingNotifier{}
	s := New("alice", domain.SessionKindArbitrage, testSessionConfig(), testDeps(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, func(string, error) {})
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit on parent cancellation")
	}
	assert.Equal(t, domain.SessionStopped, s.Status())
}
