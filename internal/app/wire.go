package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goquant/arbsentinel/internal/alert"
	"github.com/goquant/arbsentinel/internal/cache/memory"
	"github.com/goquant/arbsentinel/internal/cache/redis"
	"github.com/goquant/arbsentinel/internal/config"
	"github.com/goquant/arbsentinel/internal/controller"
	"github.com/goquant/arbsentinel/internal/domain"
	"github.com/goquant/arbsentinel/internal/notify"
	"github.com/goquant/arbsentinel/internal/platform/gomarket"
	"github.com/goquant/arbsentinel/internal/session"
	"github.com/goquant/arbsentinel/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus        // nil without redis
	Store       domain.OpportunityStore // nil without postgres
	Market      domain.MarketDataPort
	Notifier    domain.NotificationPort
	Dispatcher  *alert.Dispatcher
	Controller  *controller.Controller
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Cache backend ---
	switch cfg.Cache.Backend {
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	case "memory":
		deps.QuoteCache = memory.NewQuoteCache()
		deps.RateLimiter = memory.NewRateLimiter()
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown cache backend %q", cfg.Cache.Backend)
	}

	// --- PostgreSQL opportunity history (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.Store = postgres.NewOpportunityStore(pgClient.Pool())
	}

	// --- Market data ---
	deps.Market = gomarket.NewClient(
		cfg.GoMarket.BaseURL,
		cfg.GoMarket.WsURL,
		cfg.GoMarket.ApiKey,
		cfg.GoMarket.AccessCode,
		cfg.GoMarket.FetchTimeout.Duration,
	)

	// --- Notification delivery ---
	if cfg.Notify.TelegramToken != "" {
		deps.Notifier = notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.DefaultChannel)
	} else {
		logger.Warn("no telegram token configured, alerts go to the log")
		deps.Notifier = notify.NewLogSender(logger)
	}

	deps.Dispatcher = alert.New(deps.Notifier, deps.RateLimiter, alert.Config{
		DebounceWindow: cfg.Alert.DebounceWindow.Duration,
		RateLimit:      cfg.Alert.RateLimit,
		RateWindow:     cfg.Alert.RateWindow.Duration,
		MaxRetries:     cfg.Alert.MaxRetries,
		RetryDelay:     cfg.Alert.RetryDelay.Duration,
		HistorySize:    cfg.Alert.HistorySize,
		Logger:         logger,
	})

	// --- Session controller ---
	deps.Controller = controller.New(controller.Config{
		MaxArbitragePerOwner:  cfg.Limits.MaxArbitragePerOwner,
		MaxMarketViewPerOwner: cfg.Limits.MaxMarketViewPerOwner,
		MaxTotal:              cfg.Limits.MaxTotal,
		StopTimeout:           cfg.Limits.StopTimeout.Duration,
		Logger:                logger,
	}, session.Deps{
		Cache:      deps.QuoteCache,
		Market:     deps.Market,
		Dispatcher: deps.Dispatcher,
		Bus:        deps.SignalBus,
		Store:      deps.Store,
		Logger:     logger,
	})

	return deps, cleanup, nil
}

// sessionDefaults builds the SessionConfig baseline that seeded sessions and
// API requests start from.
func sessionDefaults(cfg *config.Config) domain.SessionConfig {
	return domain.SessionConfig{
		Exchanges:            cfg.GoMarket.Exchanges,
		MinProfitPct:         cfg.Monitor.MinProfitPct,
		MinProfitAbs:         cfg.Monitor.MinProfitAbs,
		SignificantChangePct: cfg.Monitor.SignificantChangePct,
		UpdateFrequency:      cfg.Monitor.UpdateFrequency.Duration,
		HistorySize:          cfg.Monitor.HistorySize,
		StalenessLimit:       cfg.Monitor.StalenessLimit.Duration,
		EvalInterval:         cfg.Monitor.EvalInterval.Duration,
		FetchTimeout:         cfg.GoMarket.FetchTimeout.Duration,
		Channel:              cfg.Notify.DefaultChannel,
	}
}
