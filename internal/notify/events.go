package notify

import (
	"encoding/json"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
)

// Event kinds emitted by the engine and the execution coordinator. The
// notifier filters on these; the signal bus carries them verbatim.
const (
	EventOpportunityFound = "opportunity_found"
	EventExecutionStarted = "execution_started"
	EventExecutionSettled = "execution_settled"
	EventExecutionFailed  = "execution_failed"
	EventUnwindFailed     = "unwind_failed"
	EventVenueError       = "venue_error"
)

// Signal bus channels.
const (
	ChannelOpportunities = "arb:opportunities"
	ChannelExecutions    = "arb:executions"
)

// OpportunityEvent is the JSON payload published for a detected opportunity.
type OpportunityEvent struct {
	Event       string    `json:"event"`
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	BuyPrice    float64   `json:"buy_price"`
	SellPrice   float64   `json:"sell_price"`
	TradeAmount float64   `json:"trade_amount"`
	NetProfit   float64   `json:"net_profit"`
	ProfitRatio float64   `json:"profit_ratio"`
	ComputedAt  time.Time `json:"computed_at"`
}

// MarshalOpportunityEvent serializes an opportunity for the signal bus.
func MarshalOpportunityEvent(opp domain.Opportunity) ([]byte, error) {
	return json.Marshal(OpportunityEvent{
		Event:       EventOpportunityFound,
		ID:          opp.ID,
		Symbol:      opp.Symbol,
		BuyVenue:    string(opp.BuyVenue),
		SellVenue:   string(opp.SellVenue),
		BuyPrice:    opp.BuyPrice,
		SellPrice:   opp.SellPrice,
		TradeAmount: opp.TradeAmount,
		NetProfit:   opp.NetProfit,
		ProfitRatio: opp.ProfitRatio,
		ComputedAt:  opp.ComputedAt,
	})
}

// ExecutionEvent is the JSON payload published for an execution attempt.
type ExecutionEvent struct {
	Event       string     `json:"event"`
	AttemptID   string     `json:"attempt_id"`
	Symbol      string     `json:"symbol"`
	State       string     `json:"state"`
	BuyVenue    string     `json:"buy_venue"`
	SellVenue   string     `json:"sell_venue"`
	BuyOrderID  string     `json:"buy_order_id,omitempty"`
	SellOrderID string     `json:"sell_order_id,omitempty"`
	NetProfit   float64    `json:"net_profit"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MarshalExecutionEvent serializes an attempt for the signal bus.
func MarshalExecutionEvent(attempt domain.ExecutionAttempt) ([]byte, error) {
	ev := ExecutionEvent{
		Event:       eventForState(attempt.State),
		AttemptID:   attempt.ID,
		Symbol:      attempt.Opportunity.Symbol,
		State:       string(attempt.State),
		BuyVenue:    string(attempt.Opportunity.BuyVenue),
		SellVenue:   string(attempt.Opportunity.SellVenue),
		BuyOrderID:  attempt.BuyOrderID,
		SellOrderID: attempt.SellOrderID,
		NetProfit:   attempt.Opportunity.NetProfit,
		Error:       attempt.Error,
		StartedAt:   attempt.StartedAt,
		CompletedAt: attempt.CompletedAt,
	}
	return json.Marshal(ev)
}

func eventForState(s domain.AttemptState) string {
	switch s {
	case domain.AttemptSettled:
		return EventExecutionSettled
	case domain.AttemptFailed:
		return EventExecutionFailed
	default:
		return EventExecutionStarted
	}
}
