// Package engine runs the top-level scan loop: one worker per configured
// symbol, each cycling aggregate -> scan -> execute on a fixed interval with
// exponential backoff when every venue is unreachable.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlajoie/crossarb/internal/aggregator"
	"github.com/mlajoie/crossarb/internal/domain"
	"github.com/mlajoie/crossarb/internal/executor"
	"github.com/mlajoie/crossarb/internal/notify"
	"github.com/mlajoie/crossarb/internal/scanner"
)

// Config holds the scan loop parameters.
type Config struct {
	// Interval is the scan cadence per symbol.
	Interval time.Duration
	// CycleTimeout bounds one full aggregate+scan cycle; outstanding
	// quote fetches are cancelled when it expires.
	CycleTimeout time.Duration
	// BackoffMax caps the exponential backoff applied on systemic failure.
	BackoffMax time.Duration
	// Execute enables handing opportunities to the coordinator. Scan-only
	// deployments leave it off and merely record what they see.
	Execute bool
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = c.Interval
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 2 * time.Minute
	}
}

// Engine owns one scan loop per symbol.
type Engine struct {
	agg     *aggregator.Aggregator
	scan    *scanner.Scanner
	coord   *executor.Coordinator
	symbols []string
	cfg     Config

	oppStore domain.OpportunityStore
	bus      domain.SignalBus
	alerter  executor.Alerter
	logger   *slog.Logger
}

// New creates an Engine. coord may be nil when cfg.Execute is false.
func New(
	agg *aggregator.Aggregator,
	scan *scanner.Scanner,
	coord *executor.Coordinator,
	symbols []string,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	cfg.defaults()
	return &Engine{
		agg:     agg,
		scan:    scan,
		coord:   coord,
		symbols: symbols,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "engine")),
	}
}

// SetOpportunityStore enables persistence of detected opportunities.
func (e *Engine) SetOpportunityStore(s domain.OpportunityStore) { e.oppStore = s }

// SetBus enables publication of opportunity events.
func (e *Engine) SetBus(b domain.SignalBus) { e.bus = b }

// SetAlerter enables operator notifications.
func (e *Engine) SetAlerter(a executor.Alerter) { e.alerter = a }

// Run starts one loop per symbol and blocks until the context is cancelled
// or a loop returns an unexpected error.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.symbols) == 0 {
		return fmt.Errorf("engine: no symbols configured")
	}
	if e.cfg.Execute && e.coord == nil {
		return fmt.Errorf("engine: execute enabled but no coordinator wired")
	}

	e.logger.Info("engine started",
		slog.Int("symbols", len(e.symbols)),
		slog.Duration("interval", e.cfg.Interval),
		slog.Bool("execute", e.cfg.Execute),
	)
	defer e.logger.Info("engine stopped")

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range e.symbols {
		symbol := symbol
		g.Go(func() error {
			return e.runSymbol(ctx, symbol)
		})
	}
	return g.Wait()
}

// runSymbol is the per-symbol loop. The wait between cycles doubles up to
// BackoffMax while every venue is failing and snaps back to the configured
// interval on the first healthy cycle.
func (e *Engine) runSymbol(ctx context.Context, symbol string) error {
	log := e.logger.With(slog.String("symbol", symbol))
	wait := e.cfg.Interval

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		systemic := e.cycle(ctx, symbol, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if systemic {
			wait *= 2
			if wait > e.cfg.BackoffMax {
				wait = e.cfg.BackoffMax
			}
			log.Warn("all venues unreachable, backing off", slog.Duration("wait", wait))
		} else {
			wait = e.cfg.Interval
		}
		timer.Reset(wait)
	}
}

// cycle performs one aggregate+scan pass and reports whether the failure was
// systemic (every venue down).
func (e *Engine) cycle(ctx context.Context, symbol string, log *slog.Logger) bool {
	cycleCtx, cancel := context.WithTimeout(ctx, e.cfg.CycleTimeout)
	defer cancel()

	set, err := e.agg.Snapshot(cycleCtx, symbol)
	if err != nil {
		// Only context cancellation reaches here.
		return false
	}
	if set.AllFailed() {
		return true
	}

	result := e.scan.Scan(set)
	switch result.Outcome {
	case scanner.OutcomeShortfall:
		// Normal, frequent outcome: not enough venues this cycle.
		log.Debug("aggregation shortfall",
			slog.Int("responded", len(set.Quotes)),
			slog.Int("failed", len(set.Failures)),
		)
		return false
	case scanner.OutcomeNoOpportunity:
		return false
	}

	opp := result.Opportunity
	log.Info("opportunity found",
		slog.String("opp_id", opp.ID),
		slog.String("buy_venue", string(opp.BuyVenue)),
		slog.String("sell_venue", string(opp.SellVenue)),
		slog.Float64("net_profit", opp.NetProfit),
		slog.Float64("profit_ratio", opp.ProfitRatio),
		slog.Float64("trade_amount", opp.TradeAmount),
	)
	e.record(ctx, opp)

	if !e.cfg.Execute {
		return false
	}
	if e.coord.InFlight(symbol) {
		// Strict per-symbol serialization: skip, the next cycle will
		// re-detect if the edge persists.
		log.Debug("execution in flight, skipping opportunity", slog.String("opp_id", opp.ID))
		return false
	}

	// Execution runs independently of the scan cadence so a slow venue
	// does not stall scanning.
	go func() {
		attempt, err := e.coord.Execute(ctx, opp)
		if err != nil {
			log.Warn("execution not started",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		log.Info("execution finished",
			slog.String("attempt_id", attempt.ID),
			slog.String("state", string(attempt.State)),
		)
	}()
	return false
}

// record persists and publishes a detected opportunity, best-effort.
func (e *Engine) record(ctx context.Context, opp domain.Opportunity) {
	if e.oppStore != nil {
		if err := e.oppStore.Create(ctx, opp); err != nil {
			e.logger.Warn("opportunity persist failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.bus != nil {
		if payload, err := notify.MarshalOpportunityEvent(opp); err == nil {
			_ = e.bus.Publish(ctx, notify.ChannelOpportunities, payload)
		}
	}
	if e.alerter != nil {
		// Senders block on their own HTTP timeouts; delivery must not hold
		// up the scan cycle.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		go func() {
			defer cancel()
			err := e.alerter.Notify(nctx, notify.EventOpportunityFound,
				fmt.Sprintf("Opportunity %s", opp.Symbol),
				fmt.Sprintf("buy %s @ %.2f, sell %s @ %.2f, amount %.6f, net %.2f (%.3f%%)",
					opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice,
					opp.TradeAmount, opp.NetProfit, opp.ProfitRatio*100),
			)
			if err != nil {
				e.logger.Warn("notification delivery failed",
					slog.String("opp_id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}
