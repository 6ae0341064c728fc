package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/py361828925-design/arb-bot/internal/configsvc"
	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/engine"
	"github.com/py361828925-design/arb-bot/internal/feed"
	"github.com/py361828925-design/arb-bot/internal/gateway"
	"github.com/py361828925-design/arb-bot/internal/risk"
	"github.com/py361828925-design/arb-bot/internal/runtimecfg"
	"github.com/py361828925-design/arb-bot/internal/server"
	"github.com/py361828925-design/arb-bot/internal/server/handler"
	"github.com/py361828925-design/arb-bot/internal/stats"
	"github.com/py361828925-design/arb-bot/internal/venue/binance"
	"github.com/py361828925-design/arb-bot/internal/venue/bitget"
)

const configFetchTimeout = 5 * time.Second

// FeedMode polls both venues on the scan interval and publishes funding
// snapshots onto the stream. It also serves /healthz and /funding/{venue}.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")

	g, ctx := errgroup.WithContext(ctx)

	rt := a.startRuntimeConfig(ctx, g, deps, true)
	f := a.buildFeed(deps, rt)
	g.Go(func() error {
		return f.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health:  handler.NewHealthHandler(f, a.logger),
			Funding: handler.NewFundingHandler(f, a.logger),
		})
	}

	return g.Wait()
}

// EngineMode consumes funding snapshots and emits opportunities.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	rt := a.startRuntimeConfig(ctx, g, deps, true)
	eng := engine.New(deps.Bus, rt, a.logger)
	g.Go(func() error {
		return eng.Run(ctx)
	})

	return g.Wait()
}

// GatewayMode consumes opportunities through the consumer group and admits
// them into position groups.
func (a *App) GatewayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting gateway mode")

	g, ctx := errgroup.WithContext(ctx)

	rt := a.startRuntimeConfig(ctx, g, deps, true)
	gw := gateway.New(deps.Bus, deps.Positions, rt, deps.Notifier, a.logger)
	g.Go(func() error {
		return gw.Run(ctx)
	})

	return g.Wait()
}

// RiskMode evaluates open groups on the close interval and closes those that
// hit an exit rule.
func (a *App) RiskMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting risk mode")

	g, ctx := errgroup.WithContext(ctx)

	rt := a.startRuntimeConfig(ctx, g, deps, true)
	daemon := risk.NewDaemon(deps.Bus, deps.Positions, rt, deps.Notifier, a.logger)
	g.Go(func() error {
		return daemon.Run(ctx)
	})

	return g.Wait()
}

// ConfigMode bootstraps the versioned profile store and serves the
// configuration API. This is the only mode that owns the database schema.
func (a *App) ConfigMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting config mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := configsvc.New(deps.Configs, deps.Bus, a.logger)
	profile, err := svc.Bootstrap(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "configuration ready",
		slog.Int("version", profile.Version),
		slog.Bool("global_enable", profile.GlobalEnable))

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false; config mode only serves HTTP, nothing to do")
	} else {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health: handler.NewHealthHandler(nil, a.logger),
			Config: handler.NewConfigHandler(svc, a.logger),
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	return g.Wait()
}

// StatsMode serves the statistics API and archives the daily snapshot at
// midnight UTC.
func (a *App) StatsMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stats mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := stats.New(deps.Positions, deps.Events, deps.Snapshots, deps.Bus, deps.StatsCache, a.logger)
	scheduler := stats.NewScheduler(svc, a.logger)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health: handler.NewHealthHandler(nil, a.logger),
			Stats:  handler.NewStatsHandler(svc, a.logger),
		})
	}

	return g.Wait()
}

// FullMode runs every pipeline stage in one process, sharing a single runtime
// configuration manager and one HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	// Config service first: bootstrap the profile and apply it in-process
	// instead of fetching it over HTTP from ourselves.
	cfgSvc := configsvc.New(deps.Configs, deps.Bus, a.logger)
	profile, err := cfgSvc.Bootstrap(ctx)
	if err != nil {
		return err
	}

	rt := a.startRuntimeConfig(ctx, g, deps, false)
	rt.ApplyProfile(profile)

	f := a.buildFeed(deps, rt)
	g.Go(func() error {
		return f.Run(ctx)
	})

	eng := engine.New(deps.Bus, rt, a.logger)
	g.Go(func() error {
		return eng.Run(ctx)
	})

	gw := gateway.New(deps.Bus, deps.Positions, rt, deps.Notifier, a.logger)
	g.Go(func() error {
		return gw.Run(ctx)
	})

	daemon := risk.NewDaemon(deps.Bus, deps.Positions, rt, deps.Notifier, a.logger)
	g.Go(func() error {
		return daemon.Run(ctx)
	})

	statsSvc := stats.New(deps.Positions, deps.Events, deps.Snapshots, deps.Bus, deps.StatsCache, a.logger)
	scheduler := stats.NewScheduler(statsSvc, a.logger)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health:  handler.NewHealthHandler(f, a.logger),
			Funding: handler.NewFundingHandler(f, a.logger),
			Config:  handler.NewConfigHandler(cfgSvc, a.logger),
			Stats:   handler.NewStatsHandler(statsSvc, a.logger),
		})
	}

	return g.Wait()
}

// startRuntimeConfig builds the runtime configuration manager, seeds the
// fallback intervals from the static config, optionally fetches the initial
// profile from the config service, and starts the pub/sub subscriber.
func (a *App) startRuntimeConfig(ctx context.Context, g *errgroup.Group, deps *Dependencies, fetchInitial bool) *runtimecfg.Manager {
	rt := runtimecfg.NewManager(a.logger)

	st := rt.Current()
	st.ScanIntervalSeconds = a.cfg.Intervals.ScanSeconds
	st.CloseIntervalSeconds = a.cfg.Intervals.CloseSeconds
	st.OpenIntervalSeconds = a.cfg.Intervals.OpenSeconds
	rt.Apply(st)

	if fetchInitial {
		rt.LoadInitial(ctx, a.cfg.ConfigServiceURL, configFetchTimeout)
	}

	g.Go(func() error {
		return rt.Run(ctx, deps.Bus)
	})
	return rt
}

// buildFeed constructs the market feed with both venue clients.
func (a *App) buildFeed(deps *Dependencies, rt *runtimecfg.Manager) *feed.Feed {
	clients := map[string]feed.VenueClient{
		domain.VenueBinance: binance.NewClient(binance.Config{
			BaseURL: a.cfg.Binance.BaseURL,
			Timeout: time.Duration(a.cfg.Binance.TimeoutSeconds) * time.Second,
		}, a.logger),
		domain.VenueBitget: bitget.NewClient(bitget.Config{
			BaseURL:     a.cfg.Bitget.BaseURL,
			Timeout:     time.Duration(a.cfg.Bitget.TimeoutSeconds) * time.Second,
			ProductType: a.cfg.Bitget.ProductType,
			SymbolLimit: a.cfg.Bitget.SymbolLimit,
			Concurrency: a.cfg.Bitget.Concurrency,
		}, a.logger),
	}
	return feed.New(deps.Bus, rt, clients, a.logger)
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: time.Duration(a.cfg.Server.RateLimitWindowSecs * float64(time.Second)),
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
