package controller

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goquant/arbsentinel/internal/alert"
	"github.com/goquant/arbsentinel/internal/cache/memory"
	"github.com/goquant/arbsentinel/internal/domain"
	"github.com/goquant/arbsentinel/internal/session"
)

// fakeMarket serves a fixed book for every exchange; push streams are
// unsupported so sessions run on the poll cycle alone.
type fakeMarket struct{}

func (fakeMarket) FetchQuote(_ context.Context, exchange, symbol string) (domain.Quote, error) {
	return domain.Quote{
		Exchange:   exchange,
		Symbol:     symbol,
		BidPrice:   100.0,
		BidSize:    1,
		AskPrice:   100.5,
		AskSize:    1,
		ObservedAt: time.Now(),
	}, nil
}

func (fakeMarket) FetchDepth(context.Context, string, string) (domain.OrderBook, error) {
	return domain.OrderBook{}, domain.ErrUnsupported
}

func (fakeMarket) Subscribe(context.Context, string, string, domain.QuoteHandler) (domain.Subscription, error) {
	return nil, domain.ErrUnsupported
}

func (fakeMarket) ListSymbols(context.Context, string) ([]string, error) {
	return nil, nil
}

type nullNotifier struct{}

func (nullNotifier) Send(context.Context, string, string) (domain.MessageRef, error) {
	return domain.MessageRef{Channel: "chan", MessageID: "1"}, nil
}
func (nullNotifier) Edit(context.Context, domain.MessageRef, string) error { return nil }
func (nullNotifier) Name() string                                          { return "null" }

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	if cfg.MaxArbitragePerOwner == 0 {
		cfg.MaxArbitragePerOwner = 10
	}
	if cfg.MaxMarketViewPerOwner == 0 {
		cfg.MaxMarketViewPerOwner = 20
	}
	if cfg.MaxTotal == 0 {
		cfg.MaxTotal = 100
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	cfg.Logger = logger

	limiter := memory.NewRateLimiter()
	dispatcher := alert.New(nullNotifier{}, limiter, alert.Config{
		DebounceWindow: time.Minute,
		RateLimit:      1000,
		RateWindow:     time.Second,
		RetryDelay:     time.Millisecond,
		Logger:         logger,
	})

	return New(cfg, session.Deps{
		Cache:      memory.NewQuoteCache(),
		Market:     fakeMarket{},
		Dispatcher: dispatcher,
		Logger:     logger,
	})
}

func sessionCfg(symbols ...string) domain.SessionConfig {
	return domain.SessionConfig{
		Symbols:        symbols,
		Exchanges:      []string{"binance", "okx"},
		MinProfitPct:   0.5,
		MinProfitAbs:   1.0,
		StalenessLimit: time.Second,
		EvalInterval:   10 * time.Millisecond,
		FetchTimeout:   100 * time.Millisecond,
		Channel:        "chan",
	}
}

func TestStartRunsSession(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	id, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	defer c.StopAll(ctx)

	require.Eventually(t, func() bool {
		snap, err := c.Status(id)
		return err == nil && snap.Status == domain.SessionRunning
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Owner)
	assert.Greater(t, snap.EvalCycles, uint64(0))
}

func TestStartRejectsDuplicateTarget(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()
	defer c.StopAll(ctx)

	_, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)

	// Same target with reordered lists is still the same identity.
	dup := sessionCfg("BTC-USDT")
	dup.Exchanges = []string{"okx", "binance"}
	_, err = c.Start(ctx, "alice", domain.SessionKindArbitrage, dup)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	// A different owner may monitor the same target.
	_, err = c.Start(ctx, "bob", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	assert.NoError(t, err)
}

func TestStartEnforcesOwnerCap(t *testing.T) {
	c := newTestController(t, Config{MaxArbitragePerOwner: 2})
	ctx := context.Background()
	defer c.StopAll(ctx)

	_, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)
	_, err = c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("ETH-USDT"))
	require.NoError(t, err)

	_, err = c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("SOL-USDT"))
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	// The rejection leaves the existing sessions untouched.
	assert.Len(t, c.StatusAll("alice"), 2)

	// Caps are per kind: market view sessions still fit.
	_, err = c.Start(ctx, "alice", domain.SessionKindMarketView, sessionCfg("BTC-USDT"))
	assert.NoError(t, err)
}

func TestStartEnforcesGlobalCap(t *testing.T) {
	c := newTestController(t, Config{MaxTotal: 2})
	ctx := context.Background()
	defer c.StopAll(ctx)

	_, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)
	_, err = c.Start(ctx, "bob", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)

	_, err = c.Start(ctx, "carol", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
}

func TestStopThenStatusNeverRunning(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	id, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)

	require.NoError(t, c.Stop(ctx, id))

	snap, err := c.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStopped, snap.Status)

	// Stopping again is a no-op.
	assert.NoError(t, c.Stop(ctx, id))
}

func TestStopFreesIdentityAndCapSlot(t *testing.T) {
	c := newTestController(t, Config{MaxArbitragePerOwner: 1})
	ctx := context.Background()
	defer c.StopAll(ctx)

	id, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	require.NoError(t, err)
	require.NoError(t, c.Stop(ctx, id))

	// Same target can be monitored again once the old session is gone.
	_, err = c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg("BTC-USDT"))
	assert.NoError(t, err)
}

func TestStopUnknownSession(t *testing.T) {
	c := newTestController(t, Config{})
	err := c.Stop(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.Status("no-such-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStartValidatesConfig(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	cfg := sessionCfg("BTC-USDT")
	cfg.Exchanges = []string{"binance"}
	_, err := c.Start(ctx, "alice", domain.SessionKindArbitrage, cfg)
	assert.ErrorIs(t, err, domain.ErrDataInvalid)

	_, err = c.Start(ctx, "alice", domain.SessionKindArbitrage, sessionCfg())
	assert.ErrorIs(t, err, domain.ErrDataInvalid)

	_, err = c.Start(ctx, "alice", "bogus", sessionCfg("BTC-USDT"))
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}
