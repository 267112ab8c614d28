package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlajoie/crossarb/internal/aggregator"
	"github.com/mlajoie/crossarb/internal/domain"
	"github.com/mlajoie/crossarb/internal/engine"
	"github.com/mlajoie/crossarb/internal/executor"
	"github.com/mlajoie/crossarb/internal/fees"
	"github.com/mlajoie/crossarb/internal/gateway"
	"github.com/mlajoie/crossarb/internal/gateway/paper"
	"github.com/mlajoie/crossarb/internal/scanner"
	"github.com/mlajoie/crossarb/internal/server"
	"github.com/mlajoie/crossarb/internal/server/handler"
	"github.com/mlajoie/crossarb/internal/server/ws"
)

// ScanMode runs the detection loop only: aggregate quotes, scan for
// opportunities, record and publish them. Nothing is executed.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	gateways, err := a.buildLiveGateways(deps)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, gateways, false, a.cfg.Server.Enabled)
}

// TradeMode runs the full detect-and-execute loop against live gateways.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	gateways, err := a.buildLiveGateways(deps)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, gateways, true, a.cfg.Server.Enabled)
}

// PaperMode runs the detect-and-execute loop against simulated gateways.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	return a.runEngine(ctx, deps, a.buildPaperGateways(), true, a.cfg.Server.Enabled)
}

// ServerMode serves the ops API over existing history without running the
// engine. Useful next to a separate trading replica.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the engine, the ops server, and the archival loop together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	gateways, err := a.buildLiveGateways(deps)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, gateways, true, true)
}

// runEngine assembles the core pipeline and runs it, optionally with the ops
// server and the archival loop, until the context is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, gateways map[domain.Venue]domain.Gateway, execute, serveOps bool) error {
	symbols := a.cfg.SymbolMap()
	model := fees.NewModel(a.cfg.FeeSchedules(), a.cfg.Arbitrage.FeeMargin, a.cfg.Arbitrage.MaxSlippage)

	var cache domain.QuoteCache
	if a.cfg.Arbitrage.CacheQuotes {
		cache = deps.QuoteCache
	}
	agg := aggregator.New(gateways, symbols, cache, aggregator.Config{
		FetchTimeout: a.cfg.Arbitrage.FetchTimeout.Duration,
		CacheQuotes:  a.cfg.Arbitrage.CacheQuotes,
	}, a.logger)

	scan := scanner.New(model, scanner.Config{
		MinProfitRatio:   a.cfg.Arbitrage.MinProfitRatio,
		MinLiquidityUSD:  a.cfg.Arbitrage.MinLiquidityUSD,
		MaxOrderValueUSD: a.cfg.Arbitrage.MaxOrderValueUSD,
		SafetyRatio:      a.cfg.Arbitrage.SafetyRatio,
	}, a.logger)

	var coord *executor.Coordinator
	if execute {
		coord = executor.New(gateways, symbols, executor.Config{
			MaxStaleness:  a.cfg.Arbitrage.MaxStaleness.Duration,
			PlaceAttempts: a.cfg.Arbitrage.PlaceAttempts,
			RetryBackoff:  a.cfg.Arbitrage.RetryBackoff.Duration,
		}, a.logger)
		coord.SetLockManager(deps.LockManager)
		coord.SetBus(deps.SignalBus)
		coord.SetAlerter(deps.Notifier)
		if deps.ExecutionStore != nil {
			coord.SetStore(deps.ExecutionStore)
		}
	}

	eng := engine.New(agg, scan, coord, a.cfg.Symbols, engine.Config{
		Interval:     a.cfg.Arbitrage.ScanInterval.Duration,
		CycleTimeout: a.cfg.Arbitrage.CycleTimeout.Duration,
		BackoffMax:   a.cfg.Arbitrage.BackoffMax.Duration,
		Execute:      execute,
	}, a.logger)
	eng.SetBus(deps.SignalBus)
	eng.SetAlerter(deps.Notifier)
	if deps.OpportunityStore != nil {
		eng.SetOpportunityStore(deps.OpportunityStore)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if serveOps {
		var probe handler.InFlightProbe
		if coord != nil {
			probe = coord
		}
		a.startServer(ctx, g, deps, probe)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}

	return g.Wait()
}

// startServer builds the ops HTTP server plus WebSocket hub and registers
// their goroutines on the run group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, probe handler.InFlightProbe) {
	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)

	venueNames := make([]string, 0, len(a.cfg.Venues))
	for name := range a.cfg.Venues {
		venueNames = append(venueNames, name)
	}
	sort.Strings(venueNames)

	srv := server.NewServer(
		server.Config{Port: a.cfg.Server.Port},
		server.Handlers{
			Health:  handler.NewHealthHandler(),
			Status:  handler.NewStatusHandler(a.cfg.Mode, a.cfg.Symbols, venueNames, time.Now().UTC(), probe),
			History: handler.NewHistoryHandler(deps.OpportunityStore, deps.ExecutionStore),
		},
		hub,
		a.logger,
	)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runArchiver periodically moves rows older than the retention window to
// blob storage, pruning the primary store only after the upload succeeded.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	logger := a.logger.With(slog.String("component", "archiver"))
	logger.InfoContext(ctx, "archival loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)

			if n, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff); err != nil {
				logger.ErrorContext(ctx, "opportunity archival failed", slog.String("error", err.Error()))
			} else if n > 0 {
				deleted, err := deps.OpportunityStore.DeleteBefore(ctx, cutoff)
				if err != nil {
					logger.ErrorContext(ctx, "opportunity prune failed", slog.String("error", err.Error()))
				}
				logger.InfoContext(ctx, "opportunities archived",
					slog.Int64("archived", n),
					slog.Int64("pruned", deleted),
				)
			}

			if n, err := deps.Archiver.ArchiveExecutions(ctx, cutoff); err != nil {
				logger.ErrorContext(ctx, "execution archival failed", slog.String("error", err.Error()))
			} else if n > 0 {
				deleted, err := deps.ExecutionStore.DeleteBefore(ctx, cutoff)
				if err != nil {
					logger.ErrorContext(ctx, "execution prune failed", slog.String("error", err.Error()))
				}
				logger.InfoContext(ctx, "executions archived",
					slog.Int64("archived", n),
					slog.Int64("pruned", deleted),
				)
			}
		}
	}
}

// buildLiveGateways constructs one gateway per configured venue through the
// registered factory and wraps each in the transient-error retry decorator.
func (a *App) buildLiveGateways(deps *Dependencies) (map[domain.Venue]domain.Gateway, error) {
	if a.factory == nil {
		return nil, fmt.Errorf("app: no venue gateway factory registered; run paper mode or register connectors")
	}

	gateways := make(map[domain.Venue]domain.Gateway, len(a.cfg.Venues))
	for name, vc := range a.cfg.Venues {
		venue, err := domain.ParseVenue(name)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}

		gw, err := a.factory(venue, vc.Pairs, deps.Credentials[name], a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: building %s gateway: %w", name, err)
		}
		gateways[venue] = gateway.WithRetry(gw, gateway.RetryConfig{}, a.logger)
	}
	return gateways, nil
}

// paperMids are the reference mid prices paper gateways are seeded with.
var paperMids = map[string]float64{
	"BTC": 30000,
	"ETH": 2000,
	"SOL": 100,
}

// buildPaperGateways constructs simulated gateways for every configured
// venue. Each venue's books are offset from the reference mid so that
// cross-venue spreads actually occur.
func (a *App) buildPaperGateways() map[domain.Venue]domain.Gateway {
	names := make([]string, 0, len(a.cfg.Venues))
	for name := range a.cfg.Venues {
		names = append(names, name)
	}
	sort.Strings(names)

	schedules := make(map[domain.Venue]domain.FeeSchedule, len(fees.DefaultSchedules))
	for venue, sched := range fees.DefaultSchedules {
		schedules[venue] = sched
	}
	for venue, override := range a.cfg.FeeSchedules() {
		schedules[venue] = override
	}

	gateways := make(map[domain.Venue]domain.Gateway, len(names))
	for i, name := range names {
		venue, err := domain.ParseVenue(name)
		if err != nil {
			continue
		}

		books := make(map[string]paper.Book)
		for symbol, pair := range a.cfg.Venues[name].Pairs {
			mid := paperMids[symbol]
			if mid == 0 {
				mid = 50
			}
			// Stagger venues 40bps apart around the reference mid.
			mid *= 1 + 0.004*float64(i-len(names)/2)
			books[pair] = paper.Book{
				Mid:    mid,
				Spread: mid * 0.0002,
				Depth:  10000 / mid,
			}
		}
		gateways[venue] = paper.New(venue, schedules[venue], books)
	}
	return gateways
}
