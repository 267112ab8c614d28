// Package executor owns the two-leg execution state machine. An attempt
// moves pending -> buy_placed -> both_placed -> settled on success; a sell
// leg failure after the buy leg triggers compensation (cancel or liquidate)
// before the attempt terminates as failed. Execution per symbol is strictly
// serialized.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mlajoie/crossarb/internal/domain"
	"github.com/mlajoie/crossarb/internal/notify"
)

// Alerter receives fire-and-forget operator notifications. Satisfied by
// *notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the coordinator's tunables.
type Config struct {
	// MaxStaleness rejects opportunities older than this at execution start.
	MaxStaleness time.Duration
	// PlaceAttempts bounds order-placement tries per leg (including the
	// first). Retries apply only to transient errors and never after a
	// fill has been confirmed.
	PlaceAttempts int
	// RetryBackoff is the initial pause between placement retries; it
	// doubles per retry.
	RetryBackoff time.Duration
	// LockTTL bounds the distributed per-symbol lock when a LockManager
	// is configured.
	LockTTL time.Duration
}

func (c *Config) defaults() {
	if c.MaxStaleness <= 0 {
		c.MaxStaleness = 5 * time.Second
	}
	if c.PlaceAttempts <= 0 {
		c.PlaceAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
}

// Coordinator executes accepted opportunities against the venue gateways.
type Coordinator struct {
	gateways map[domain.Venue]domain.Gateway
	symbols  *domain.SymbolMap
	cfg      Config

	inflight *inflightRegistry
	locks    domain.LockManager // optional, for multi-replica deployments
	store    domain.ExecutionStore
	bus      domain.SignalBus
	alerter  Alerter
	logger   *slog.Logger
}

// New creates a Coordinator. locks, store, bus, and alerter are optional.
func New(
	gateways map[domain.Venue]domain.Gateway,
	symbols *domain.SymbolMap,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		gateways: gateways,
		symbols:  symbols,
		cfg:      cfg,
		inflight: newInflightRegistry(),
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// SetLockManager enables the distributed per-symbol execution lock.
func (c *Coordinator) SetLockManager(lm domain.LockManager) { c.locks = lm }

// SetStore enables persistence of terminal attempts.
func (c *Coordinator) SetStore(s domain.ExecutionStore) { c.store = s }

// SetBus enables publication of execution events.
func (c *Coordinator) SetBus(b domain.SignalBus) { c.bus = b }

// SetAlerter enables operator notifications.
func (c *Coordinator) SetAlerter(a Alerter) { c.alerter = a }

// InFlight reports whether an attempt is currently running for symbol.
func (c *Coordinator) InFlight(symbol string) bool {
	return c.inflight.isActive(symbol)
}

// Execute runs one opportunity through the state machine and returns the
// terminal attempt. It returns an error only for defects and scheduling
// conflicts (invalid opportunity, symbol already in flight); market outcomes
// including rejection and failed compensation are reported through the
// attempt's state.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionAttempt, error) {
	if !opp.Valid() {
		return domain.ExecutionAttempt{}, fmt.Errorf("%w: %+v", domain.ErrInvalidOpportunity, opp)
	}

	attempt := domain.ExecutionAttempt{
		ID:          uuid.New().String(),
		Opportunity: opp,
		State:       domain.AttemptPending,
		StartedAt:   time.Now().UTC(),
	}

	if !c.inflight.tryAcquire(opp.Symbol, attempt.ID) {
		return domain.ExecutionAttempt{}, fmt.Errorf("%w: %s", domain.ErrExecutionInFlight, opp.Symbol)
	}
	defer c.inflight.release(opp.Symbol)

	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, "exec:"+opp.Symbol, c.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.ExecutionAttempt{}, fmt.Errorf("%w: %s (held by another replica)", domain.ErrExecutionInFlight, opp.Symbol)
			}
			// A broken lock backend must not stop trading on a
			// single-replica deployment; log and continue.
			c.logger.Warn("execution lock unavailable, proceeding without it",
				slog.String("symbol", opp.Symbol),
				slog.String("error", err.Error()),
			)
		} else {
			defer unlock()
		}
	}

	log := c.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("symbol", opp.Symbol),
		slog.String("buy_venue", string(opp.BuyVenue)),
		slog.String("sell_venue", string(opp.SellVenue)),
	)

	// Quotes go stale between computation and execution; re-checking here
	// is mandatory.
	if age := opp.Age(time.Now().UTC()); age > c.cfg.MaxStaleness {
		log.Info("opportunity stale, rejecting", slog.Duration("age", age))
		return c.finish(ctx, attempt, domain.AttemptRejected, domain.ErrStaleOpportunity.Error()), nil
	}

	c.emit(ctx, notify.EventExecutionStarted, attempt,
		fmt.Sprintf("buy %s sell %s amount %.6f net %.2f",
			opp.BuyVenue, opp.SellVenue, opp.TradeAmount, opp.NetProfit))

	// Buy leg.
	buyRes, err := c.placeLeg(ctx, opp.BuyVenue, opp.Symbol, domain.SideBuy, opp.TradeAmount, log)
	if err != nil {
		// Nothing acquired, nothing to compensate.
		log.Warn("buy leg failed, rejecting", slog.String("error", err.Error()))
		return c.finish(ctx, attempt, domain.AttemptRejected, "buy leg: "+err.Error()), nil
	}
	attempt.State = domain.AttemptBuyPlaced
	attempt.BuyOrderID = buyRes.OrderID
	attempt.BuyFilled = buyRes.FilledAmount
	log.Info("buy leg placed",
		slog.String("order_id", buyRes.OrderID),
		slog.Float64("filled", buyRes.FilledAmount),
	)

	if attempt.BuyFilled <= 0 {
		// Order accepted but nothing acquired; cancel it rather than sell
		// inventory we do not hold.
		log.Warn("buy order accepted but unfilled, cancelling")
		attempt.State = domain.AttemptUnwinding
		attempt.Error = "buy leg: accepted but unfilled"
		attempt.Unwind = c.unwind(ctx, &attempt, log)
		return c.finish(ctx, attempt, domain.AttemptFailed, attempt.Error), nil
	}

	// Sell leg, sized to what the buy leg actually acquired. Selling the
	// planned amount after a partial fill would leave the book net short.
	sellAmount := attempt.BuyFilled
	if sellAmount > opp.TradeAmount {
		sellAmount = opp.TradeAmount
	}
	if sellAmount < opp.TradeAmount {
		log.Warn("buy leg partially filled, reducing sell leg",
			slog.Float64("planned", opp.TradeAmount),
			slog.Float64("filled", attempt.BuyFilled),
		)
	}
	sellRes, err := c.placeLeg(ctx, opp.SellVenue, opp.Symbol, domain.SideSell, sellAmount, log)
	if err != nil {
		log.Error("sell leg failed, unwinding", slog.String("error", err.Error()))
		attempt.State = domain.AttemptUnwinding
		attempt.Error = "sell leg: " + err.Error()
		attempt.Unwind = c.unwind(ctx, &attempt, log)
		return c.finish(ctx, attempt, domain.AttemptFailed, attempt.Error), nil
	}
	attempt.State = domain.AttemptBothPlaced
	attempt.SellOrderID = sellRes.OrderID
	attempt.SellFilled = sellRes.FilledAmount

	log.Info("both legs placed, settled",
		slog.String("buy_order_id", attempt.BuyOrderID),
		slog.String("sell_order_id", attempt.SellOrderID),
		slog.Float64("net_profit", opp.NetProfit),
	)
	return c.finish(ctx, attempt, domain.AttemptSettled, ""), nil
}

// placeLeg submits a market order with bounded retry on transient errors.
// Once a fill has been partially confirmed no retry ever happens: a second
// placement could double the position.
func (c *Coordinator) placeLeg(
	ctx context.Context,
	venue domain.Venue,
	symbol string,
	side domain.OrderSide,
	amount float64,
	log *slog.Logger,
) (domain.OrderResult, error) {
	gw, ok := c.gateways[venue]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("%w: %s", domain.ErrVenueUnavailable, venue)
	}
	pair, err := c.symbols.Pair(symbol, venue)
	if err != nil {
		return domain.OrderResult{}, err
	}

	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.PlaceAttempts; attempt++ {
		res, err := gw.PlaceOrder(ctx, pair, side, amount, 0)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !domain.IsTransientGatewayError(err) {
			break
		}
		if attempt == c.cfg.PlaceAttempts {
			break
		}
		log.Warn("transient placement error, retrying",
			slog.String("venue", string(venue)),
			slog.String("side", string(side)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return domain.OrderResult{}, lastErr
}

// unwind compensates for a failed sell leg. An unfilled buy order is
// cancelled; a filled one is liquidated at market on the buy venue, exactly
// once. The attempt terminates regardless of the compensation outcome, but a
// failed compensation escalates to a high-severity alert: uncompensated
// inventory is the one failure the system cannot self-heal.
func (c *Coordinator) unwind(ctx context.Context, attempt *domain.ExecutionAttempt, log *slog.Logger) *domain.UnwindResult {
	opp := attempt.Opportunity
	gw, ok := c.gateways[opp.BuyVenue]
	if !ok {
		return &domain.UnwindResult{
			Action: domain.UnwindNone,
			Venue:  opp.BuyVenue,
			Error:  fmt.Sprintf("no gateway for %s", opp.BuyVenue),
		}
	}
	pair, err := c.symbols.Pair(opp.Symbol, opp.BuyVenue)
	if err != nil {
		return &domain.UnwindResult{Action: domain.UnwindNone, Venue: opp.BuyVenue, Error: err.Error()}
	}

	// Use a detached context: compensation must run even when the original
	// execution deadline has expired.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if attempt.BuyFilled <= 0 {
		res := &domain.UnwindResult{Action: domain.UnwindCancel, Venue: opp.BuyVenue, OrderID: attempt.BuyOrderID}
		if err := gw.CancelOrder(uctx, pair, attempt.BuyOrderID); err != nil {
			res.Error = err.Error()
			c.escalate(ctx, attempt, "buy order cancellation failed: "+err.Error())
			return res
		}
		res.Succeeded = true
		log.Info("unfilled buy order cancelled", slog.String("order_id", attempt.BuyOrderID))
		return res
	}

	res := &domain.UnwindResult{
		Action: domain.UnwindLiquidate,
		Venue:  opp.BuyVenue,
		Amount: attempt.BuyFilled,
	}
	liq, err := gw.PlaceOrder(uctx, pair, domain.SideSell, attempt.BuyFilled, 0)
	if err != nil {
		res.Error = err.Error()
		c.escalate(ctx, attempt, "liquidation failed, position uncompensated: "+err.Error())
		return res
	}
	res.OrderID = liq.OrderID
	res.Succeeded = true
	log.Info("acquired position liquidated",
		slog.String("order_id", liq.OrderID),
		slog.Float64("amount", attempt.BuyFilled),
	)
	return res
}

// finish stamps the terminal state, persists the attempt, and publishes the
// matching event.
func (c *Coordinator) finish(ctx context.Context, attempt domain.ExecutionAttempt, state domain.AttemptState, errMsg string) domain.ExecutionAttempt {
	now := time.Now().UTC()
	attempt.State = state
	attempt.CompletedAt = &now
	if errMsg != "" && attempt.Error == "" {
		attempt.Error = errMsg
	}

	if c.store != nil {
		// Persistence is best-effort; a failed audit write must not alter
		// the execution outcome.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := c.store.Create(storeCtx, attempt); err != nil {
			c.logger.Warn("execution attempt persist failed",
				slog.String("attempt_id", attempt.ID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	switch state {
	case domain.AttemptSettled:
		c.emit(ctx, notify.EventExecutionSettled, attempt,
			fmt.Sprintf("net profit %.2f on %.6f %s", attempt.Opportunity.NetProfit, attempt.Opportunity.TradeAmount, attempt.Opportunity.Symbol))
	case domain.AttemptFailed:
		c.emit(ctx, notify.EventExecutionFailed, attempt, attempt.Error)
	case domain.AttemptRejected:
		// Informational only; rejection is a normal outcome.
		c.publish(ctx, attempt)
	}
	return attempt
}

// escalate raises a high-severity alert for uncompensated inventory risk.
func (c *Coordinator) escalate(ctx context.Context, attempt *domain.ExecutionAttempt, msg string) {
	c.logger.Error("compensation failed, operator intervention required",
		slog.String("attempt_id", attempt.ID),
		slog.String("symbol", attempt.Opportunity.Symbol),
		slog.String("detail", msg),
	)
	c.notifyAsync(ctx, notify.EventUnwindFailed,
		"UNCOMPENSATED POSITION "+attempt.Opportunity.Symbol, msg)
}

// emit sends both the operator notification and the bus event.
func (c *Coordinator) emit(ctx context.Context, event string, attempt domain.ExecutionAttempt, msg string) {
	title := fmt.Sprintf("%s %s", event, attempt.Opportunity.Symbol)
	c.notifyAsync(ctx, event, title, msg)
	c.publish(ctx, attempt)
}

// notifyAsync delivers an operator notification off the execution path.
// Senders block on their own HTTP timeouts, which would otherwise sit
// between two order placements; the detached context lets delivery finish
// after the attempt itself has completed.
func (c *Coordinator) notifyAsync(ctx context.Context, event, title, msg string) {
	if c.alerter == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	go func() {
		defer cancel()
		if err := c.alerter.Notify(nctx, event, title, msg); err != nil {
			c.logger.Warn("notification delivery failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// publish pushes the attempt onto the signal bus for the ops server.
func (c *Coordinator) publish(ctx context.Context, attempt domain.ExecutionAttempt) {
	if c.bus == nil {
		return
	}
	payload, err := notify.MarshalExecutionEvent(attempt)
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, notify.ChannelExecutions, payload); err != nil {
		c.logger.Debug("execution event publish failed", slog.String("error", err.Error()))
	}
}
