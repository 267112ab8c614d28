package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
	"github.com/mlajoie/crossarb/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// placeCall records one PlaceOrder invocation.
type placeCall struct {
	pair   string
	side   domain.OrderSide
	amount float64
}

// mockGateway scripts PlaceOrder and CancelOrder results per call and records
// every invocation.
type mockGateway struct {
	venue domain.Venue

	mu           sync.Mutex
	placeCalls   []placeCall
	cancelCalls  []string
	placeResults []func() (domain.OrderResult, error)
	cancelErr    error
	blockPlace   chan struct{} // when non-nil, PlaceOrder waits for a receive
}

func (m *mockGateway) Venue() domain.Venue { return m.venue }

func (m *mockGateway) FetchOrderBook(ctx context.Context, pair string) (domain.BookTop, error) {
	return domain.BookTop{}, errors.New("not implemented")
}

func (m *mockGateway) PlaceOrder(ctx context.Context, pair string, side domain.OrderSide, amount, price float64) (domain.OrderResult, error) {
	if m.blockPlace != nil {
		<-m.blockPlace
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeCalls = append(m.placeCalls, placeCall{pair: pair, side: side, amount: amount})
	if len(m.placeResults) == 0 {
		return domain.OrderResult{OrderID: "order-" + strconv.Itoa(len(m.placeCalls)), FilledAmount: amount}, nil
	}
	next := m.placeResults[0]
	m.placeResults = m.placeResults[1:]
	return next()
}

func (m *mockGateway) CancelOrder(ctx context.Context, pair, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls = append(m.cancelCalls, orderID)
	return m.cancelErr
}

func (m *mockGateway) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	return domain.FeeSchedule{Venue: m.venue}, nil
}

func (m *mockGateway) placed() []placeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]placeCall(nil), m.placeCalls...)
}

func (m *mockGateway) cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelCalls...)
}

func testSymbols() *domain.SymbolMap {
	return domain.NewSymbolMap(map[string]map[domain.Venue]string{
		"BTC": {
			domain.VenueBinance: "BTC/USDC",
			domain.VenueOKX:     "BTC/USDT",
		},
	})
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:          "opp-1",
		Symbol:      "BTC",
		BuyVenue:    domain.VenueBinance,
		SellVenue:   domain.VenueOKX,
		BuyPrice:    30000,
		SellPrice:   30150,
		TradeAmount: 0.72,
		GrossProfit: 108,
		TotalFees:   73.62,
		NetProfit:   34.38,
		ProfitRatio: 34.38 / 21600,
		ComputedAt:  time.Now().UTC(),
	}
}

func newTestCoordinator(buy, sell *mockGateway, cfg Config) *Coordinator {
	gateways := map[domain.Venue]domain.Gateway{
		buy.venue:  buy,
		sell.venue: sell,
	}
	return New(gateways, testSymbols(), cfg, discardLogger())
}

func TestExecuteSettled(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptSettled {
		t.Fatalf("state = %s, want settled", attempt.State)
	}
	if attempt.BuyOrderID == "" || attempt.SellOrderID == "" {
		t.Fatalf("order ids missing: %+v", attempt)
	}
	if attempt.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped")
	}
	if attempt.Unwind != nil {
		t.Fatalf("unexpected unwind: %+v", attempt.Unwind)
	}

	buyCalls, sellCalls := buy.placed(), sell.placed()
	if len(buyCalls) != 1 || buyCalls[0].side != domain.SideBuy || buyCalls[0].pair != "BTC/USDC" {
		t.Fatalf("buy calls = %+v", buyCalls)
	}
	if len(sellCalls) != 1 || sellCalls[0].side != domain.SideSell || sellCalls[0].pair != "BTC/USDT" {
		t.Fatalf("sell calls = %+v", sellCalls)
	}
	if coord.InFlight("BTC") {
		t.Fatal("symbol still marked in flight after completion")
	}
}

func TestExecuteBuyLegRejected(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	buy.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{}, domain.NewGatewayError(domain.VenueBinance, domain.GatewayErrRejected, errors.New("insufficient balance"))
		},
	}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptRejected {
		t.Fatalf("state = %s, want rejected", attempt.State)
	}
	if len(sell.placed()) != 0 {
		t.Fatalf("sell leg placed after buy rejection: %+v", sell.placed())
	}
	if attempt.Unwind != nil {
		t.Fatalf("no position acquired, unwind should be nil: %+v", attempt.Unwind)
	}
}

func TestExecuteSellFailureLiquidatesFilledBuy(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	sell := &mockGateway{venue: domain.VenueOKX}
	sell.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{}, domain.NewGatewayError(domain.VenueOKX, domain.GatewayErrRejected, errors.New("market closed"))
		},
	}
	coord := newTestCoordinator(buy, sell, Config{})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptFailed {
		t.Fatalf("state = %s, want failed", attempt.State)
	}
	if attempt.Unwind == nil || attempt.Unwind.Action != domain.UnwindLiquidate {
		t.Fatalf("unwind = %+v, want liquidate", attempt.Unwind)
	}
	if !attempt.Unwind.Succeeded {
		t.Fatalf("liquidation should have succeeded: %+v", attempt.Unwind)
	}

	// Buy leg plus exactly one liquidation, both on the buy venue.
	calls := buy.placed()
	if len(calls) != 2 {
		t.Fatalf("buy venue calls = %+v, want buy + liquidation", calls)
	}
	liq := calls[1]
	if liq.side != domain.SideSell || liq.amount != attempt.BuyFilled {
		t.Fatalf("liquidation call = %+v, want sell of %.6f", liq, attempt.BuyFilled)
	}
}

func TestExecuteUnfilledBuyCancelledBeforeSell(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	buy.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			// Order accepted but nothing filled yet.
			return domain.OrderResult{OrderID: "buy-1", FilledAmount: 0}, nil
		},
	}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptFailed {
		t.Fatalf("state = %s, want failed", attempt.State)
	}
	// Nothing was acquired, so no sell order may ever be placed.
	if got := sell.placed(); len(got) != 0 {
		t.Fatalf("sell leg placed for unfilled buy: %+v", got)
	}
	if attempt.Unwind == nil || attempt.Unwind.Action != domain.UnwindCancel || !attempt.Unwind.Succeeded {
		t.Fatalf("unwind = %+v, want successful cancel", attempt.Unwind)
	}
	if got := buy.cancelled(); len(got) != 1 || got[0] != "buy-1" {
		t.Fatalf("cancel calls = %v, want [buy-1]", got)
	}
	if len(buy.placed()) != 1 {
		t.Fatalf("unexpected liquidation after cancel: %+v", buy.placed())
	}
}

func TestExecutePartialBuyFillShrinksSellLeg(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	buy.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{OrderID: "buy-1", FilledAmount: 0.30}, nil
		},
	}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptSettled {
		t.Fatalf("state = %s, want settled", attempt.State)
	}
	// The sell leg must match the acquired inventory, not the planned amount.
	sellCalls := sell.placed()
	if len(sellCalls) != 1 || sellCalls[0].amount != 0.30 {
		t.Fatalf("sell calls = %+v, want one sell of 0.30", sellCalls)
	}
	if attempt.BuyFilled != 0.30 || attempt.SellFilled != 0.30 {
		t.Fatalf("fills = %.2f/%.2f, want 0.30/0.30", attempt.BuyFilled, attempt.SellFilled)
	}
}

func TestExecuteFailedUnwindSurvivesInRecord(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	sell := &mockGateway{venue: domain.VenueOKX}
	sell.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{}, domain.NewGatewayError(domain.VenueOKX, domain.GatewayErrRejected, errors.New("rejected"))
		},
	}
	// Liquidation itself fails too.
	buy.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{OrderID: "buy-1", FilledAmount: 0.72}, nil
		},
		func() (domain.OrderResult, error) {
			return domain.OrderResult{}, domain.NewGatewayError(domain.VenueBinance, domain.GatewayErrRejected, errors.New("liquidation rejected"))
		},
	}
	coord := newTestCoordinator(buy, sell, Config{})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptFailed {
		t.Fatalf("state = %s, want failed", attempt.State)
	}
	if attempt.Unwind == nil || attempt.Unwind.Succeeded || attempt.Unwind.Error == "" {
		t.Fatalf("unwind = %+v, want failed compensation with error recorded", attempt.Unwind)
	}
}

func TestExecuteStaleOpportunityRejected(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{MaxStaleness: 100 * time.Millisecond})

	opp := testOpportunity()
	opp.ComputedAt = time.Now().UTC().Add(-time.Second)

	attempt, err := coord.Execute(context.Background(), opp)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptRejected {
		t.Fatalf("state = %s, want rejected", attempt.State)
	}
	if len(buy.placed()) != 0 || len(sell.placed()) != 0 {
		t.Fatal("stale opportunity must not reach any gateway")
	}
}

func TestExecuteInvalidOpportunity(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})

	opp := testOpportunity()
	opp.TradeAmount = 0

	if _, err := coord.Execute(context.Background(), opp); !errors.Is(err, domain.ErrInvalidOpportunity) {
		t.Fatalf("err = %v, want ErrInvalidOpportunity", err)
	}
}

func TestExecuteSerializedPerSymbol(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance, blockPlace: make(chan struct{})}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		if _, err := coord.Execute(context.Background(), testOpportunity()); err != nil {
			t.Errorf("first Execute: %v", err)
		}
	}()
	<-started
	// Wait until the first attempt is registered in flight.
	deadline := time.Now().Add(time.Second)
	for !coord.InFlight("BTC") {
		if time.Now().After(deadline) {
			t.Fatal("first attempt never went in flight")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := coord.Execute(context.Background(), testOpportunity()); !errors.Is(err, domain.ErrExecutionInFlight) {
		t.Fatalf("second Execute err = %v, want ErrExecutionInFlight", err)
	}

	// Unblock both legs of the first attempt.
	close(buy.blockPlace)
	<-done
}

func TestPlaceLegRetriesTransientErrors(t *testing.T) {
	transient := func() (domain.OrderResult, error) {
		return domain.OrderResult{}, domain.NewGatewayError(domain.VenueBinance, domain.GatewayErrNetwork, errors.New("reset"))
	}
	buy := &mockGateway{venue: domain.VenueBinance}
	buy.placeResults = []func() (domain.OrderResult, error){
		transient,
		transient,
		func() (domain.OrderResult, error) {
			return domain.OrderResult{OrderID: "buy-3", FilledAmount: 0.72}, nil
		},
	}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{PlaceAttempts: 3, RetryBackoff: time.Millisecond})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptSettled {
		t.Fatalf("state = %s, want settled", attempt.State)
	}
	if got := len(buy.placed()); got != 3 {
		t.Fatalf("buy placements = %d, want 3", got)
	}
}

func TestPlaceLegDoesNotRetryHardRejection(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	buy.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{}, domain.NewGatewayError(domain.VenueBinance, domain.GatewayErrRejected, errors.New("bad symbol"))
		},
	}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{PlaceAttempts: 5, RetryBackoff: time.Millisecond})

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptRejected {
		t.Fatalf("state = %s, want rejected", attempt.State)
	}
	if got := len(buy.placed()); got != 1 {
		t.Fatalf("buy placements = %d, want 1 (no retry on rejection)", got)
	}
}

// recordingAlerter captures operator notifications.
type recordingAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAlerter) seen(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestExecuteEscalatesFailedCompensation(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	buy.placeResults = []func() (domain.OrderResult, error){
		func() (domain.OrderResult, error) {
			return domain.OrderResult{OrderID: "buy-1", FilledAmount: 0}, nil
		},
	}
	buy.cancelErr = errors.New("cancel rejected")
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})
	alerter := &recordingAlerter{}
	coord.SetAlerter(alerter)

	attempt, err := coord.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempt.State != domain.AttemptFailed {
		t.Fatalf("state = %s, want failed", attempt.State)
	}
	// Escalation is delivered off the execution path; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for !alerter.seen(notify.EventUnwindFailed) {
		if time.Now().After(deadline) {
			t.Fatal("unwind_failed escalation never delivered")
		}
		time.Sleep(time.Millisecond)
	}
}

// stallingAlerter holds every notification until released.
type stallingAlerter struct {
	release chan struct{}
}

func (a *stallingAlerter) Notify(ctx context.Context, event, title, message string) error {
	select {
	case <-a.release:
	case <-ctx.Done():
	}
	return nil
}

func TestExecuteDoesNotWaitOnAlerter(t *testing.T) {
	buy := &mockGateway{venue: domain.VenueBinance}
	sell := &mockGateway{venue: domain.VenueOKX}
	coord := newTestCoordinator(buy, sell, Config{})
	alerter := &stallingAlerter{release: make(chan struct{})}
	coord.SetAlerter(alerter)
	defer close(alerter.release)

	done := make(chan domain.ExecutionAttempt, 1)
	go func() {
		attempt, err := coord.Execute(context.Background(), testOpportunity())
		if err != nil {
			t.Errorf("Execute: %v", err)
		}
		done <- attempt
	}()

	select {
	case attempt := <-done:
		if attempt.State != domain.AttemptSettled {
			t.Fatalf("state = %s, want settled", attempt.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute blocked on notification delivery")
	}
}
