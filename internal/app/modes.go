package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goquant/arbsentinel/internal/config"
	"github.com/goquant/arbsentinel/internal/domain"
	"github.com/goquant/arbsentinel/internal/server"
	"github.com/goquant/arbsentinel/internal/server/handler"
)

// shutdownGrace bounds how long graceful teardown may take once the run
// context is cancelled.
const shutdownGrace = 10 * time.Second

// MonitorMode starts the seeded monitor sessions and blocks until the context
// is cancelled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if len(a.cfg.Sessions) == 0 {
		return fmt.Errorf("app: monitor mode needs at least one [[sessions]] entry")
	}
	if err := a.startSeeds(ctx, deps); err != nil {
		return err
	}

	<-ctx.Done()
	a.stopAll(deps)
	return ctx.Err()
}

// ServeMode starts the HTTP API server plus any seeded sessions, and blocks
// until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if err := a.startSeeds(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	sessions := handler.NewSessionHandler(deps.Controller, sessionDefaults(a.cfg), a.logger)
	symbols := handler.NewSymbolsHandler(deps.Market, a.logger)
	stats := handler.NewStatsHandler(deps.Store, a.logger)
	srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, sessions, symbols, stats, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		a.stopAll(deps)
		return ctx.Err()
	})

	return g.Wait()
}

// FullMode is serve mode with the status server forced on; it exists so a
// single word in the config selects everything.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.ServeMode(ctx, deps)
}

// startSeeds launches the sessions declared in the [[sessions]] config
// blocks. A seed that fails admission aborts startup; a half-seeded engine
// would silently monitor less than asked.
func (a *App) startSeeds(ctx context.Context, deps *Dependencies) error {
	defaults := sessionDefaults(a.cfg)

	for _, seed := range a.cfg.Sessions {
		cfg := seedConfig(defaults, seed)
		kind := domain.SessionKind(seed.Kind)

		id, err := deps.Controller.Start(ctx, seed.Owner, kind, cfg)
		if err != nil {
			return fmt.Errorf("app: seed session %s/%s: %w", seed.Owner, seed.Kind, err)
		}
		a.logger.InfoContext(ctx, "seed session started",
			slog.String("session_id", id),
			slog.String("owner", seed.Owner),
			slog.String("kind", seed.Kind),
			slog.Any("symbols", seed.Symbols),
		)
	}
	return nil
}

func (a *App) stopAll(deps *Dependencies) {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	deps.Controller.StopAll(stopCtx)
}

// seedConfig overlays a seed's explicit fields onto the configured defaults.
func seedConfig(defaults domain.SessionConfig, seed config.SeedSession) domain.SessionConfig {
	cfg := defaults
	cfg.Symbols = seed.Symbols
	if len(seed.Exchanges) > 0 {
		cfg.Exchanges = seed.Exchanges
	}
	if seed.MinProfitPct > 0 {
		cfg.MinProfitPct = seed.MinProfitPct
	}
	if seed.MinProfitAbs > 0 {
		cfg.MinProfitAbs = seed.MinProfitAbs
	}
	if seed.SignificantChangePct > 0 {
		cfg.SignificantChangePct = seed.SignificantChangePct
	}
	if seed.UpdateFrequency.Duration > 0 {
		cfg.UpdateFrequency = seed.UpdateFrequency.Duration
	}
	if seed.Channel != "" {
		cfg.Channel = seed.Channel
	}
	return cfg
}
