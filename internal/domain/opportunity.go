package domain

import "time"

// Opportunity is a priced two-leg arbitrage candidate: buy at BuyVenue's ask,
// sell at SellVenue's bid. Prices are the raw top-of-book values; fees and
// slippage margin are folded into TotalFees so that
//
//	NetProfit   = GrossProfit - TotalFees
//	ProfitRatio = NetProfit / (BuyPrice * TradeAmount)
//
// hold exactly. Opportunities are immutable after creation and consumed once.
type Opportunity struct {
	ID          string
	Symbol      string
	BuyVenue    Venue
	SellVenue   Venue
	BuyPrice    float64
	SellPrice   float64
	TradeAmount float64
	GrossProfit float64
	TotalFees   float64
	NetProfit   float64
	ProfitRatio float64
	ComputedAt  time.Time
}

// Notional is the capital committed on the buy leg, in quote-currency units.
func (o Opportunity) Notional() float64 {
	return o.BuyPrice * o.TradeAmount
}

// Age is the elapsed time since the opportunity was computed.
func (o Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.ComputedAt)
}

// Valid reports whether the opportunity satisfies the structural invariants.
// A false result indicates a programming defect, not a market condition.
func (o Opportunity) Valid() bool {
	return o.Symbol != "" &&
		o.BuyVenue != o.SellVenue &&
		o.TradeAmount > 0 &&
		o.BuyPrice > 0 && o.SellPrice > 0
}
