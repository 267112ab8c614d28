package domain

import "time"

// BookTop is the top of an order book as reported by a gateway.
type BookTop struct {
	BestBid float64
	BestAsk float64
	BidSize float64
	AskSize float64
}

// Quote is one venue's top-of-book observation for a canonical symbol.
// Quotes are consumed read-only and live for a single scan cycle.
type Quote struct {
	Venue      Venue
	Symbol     string
	BestBid    float64
	BestAsk    float64
	BidSize    float64
	AskSize    float64
	ObservedAt time.Time
}

// Crossed reports whether the quote is internally inconsistent (bid above
// ask), which indicates a malformed gateway response.
func (q Quote) Crossed() bool {
	return q.BestBid > 0 && q.BestAsk > 0 && q.BestBid > q.BestAsk
}

// Age is the elapsed time since the quote was observed.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}

// VenueFailure records a per-venue fetch failure within one aggregation.
type VenueFailure struct {
	Venue Venue
	Err   error
}

// QuoteSet is the result of one aggregation cycle for a symbol: the quotes
// from venues that responded plus the failures from those that did not.
type QuoteSet struct {
	Symbol     string
	Quotes     []Quote
	Failures   []VenueFailure
	CycleStart time.Time
}

// Usable reports whether the set contains enough venues for a cross-venue
// comparison. Fewer than two responses is a normal outcome, not a fault.
func (s QuoteSet) Usable() bool {
	return len(s.Quotes) >= 2
}

// AllFailed reports whether every venue in the cycle failed, which the scan
// loop treats as a systemic failure worth backing off for.
func (s QuoteSet) AllFailed() bool {
	return len(s.Quotes) == 0 && len(s.Failures) > 0
}
