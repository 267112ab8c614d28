package domain

import "time"

// AttemptState is one state of the execution coordinator's state machine.
//
// Success path:  pending -> buy_placed -> both_placed -> settled
// Failure path:  pending -> buy_placed -> unwinding -> failed
// Early exit:    pending -> rejected (stale / invalid / buy leg never placed)
type AttemptState string

const (
	AttemptPending    AttemptState = "pending"
	AttemptBuyPlaced  AttemptState = "buy_placed"
	AttemptBothPlaced AttemptState = "both_placed"
	AttemptSettled    AttemptState = "settled"
	AttemptUnwinding  AttemptState = "unwinding"
	AttemptFailed     AttemptState = "failed"
	AttemptRejected   AttemptState = "rejected"
)

// Terminal reports whether the state machine has finished.
func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptSettled, AttemptFailed, AttemptRejected:
		return true
	}
	return false
}

// UnwindAction describes the compensation taken after a failed sell leg.
type UnwindAction string

const (
	UnwindNone      UnwindAction = "none"
	UnwindCancel    UnwindAction = "cancel"
	UnwindLiquidate UnwindAction = "liquidate"
)

// UnwindResult records the outcome of compensation. It is kept even when
// compensation fails: uncompensated inventory is the one failure mode that
// requires operator intervention, so the record must survive the attempt.
type UnwindResult struct {
	Action    UnwindAction
	Venue     Venue
	OrderID   string
	Amount    float64
	Succeeded bool
	Error     string
}

// ExecutionAttempt is the audit record of one two-leg execution. Its state is
// owned exclusively by the execution coordinator until a terminal state is
// reached, after which the attempt is persisted and dropped.
type ExecutionAttempt struct {
	ID          string
	Opportunity Opportunity
	BuyOrderID  string
	SellOrderID string
	BuyFilled   float64
	SellFilled  float64
	State       AttemptState
	Unwind      *UnwindResult
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}
