// Package fees implements the fee and slippage adjustment model. The model
// is a pure function of static configuration: no I/O, fully deterministic.
package fees

import (
	"github.com/mlajoie/crossarb/internal/domain"
)

// DefaultSchedules are the per-venue taker/maker rates used when a venue has
// no override in configuration and its gateway does not self-report.
var DefaultSchedules = map[domain.Venue]domain.FeeSchedule{
	domain.VenueBinance: {Venue: domain.VenueBinance, MakerRate: 0.001, TakerRate: 0.001},
	domain.VenueGateio:  {Venue: domain.VenueGateio, MakerRate: 0.002, TakerRate: 0.002},
	domain.VenueBingx:   {Venue: domain.VenueBingx, MakerRate: 0.0015, TakerRate: 0.0015},
	domain.VenueOKX:     {Venue: domain.VenueOKX, MakerRate: 0.0008, TakerRate: 0.001},
	domain.VenueBlofin:  {Venue: domain.VenueBlofin, MakerRate: 0.0005, TakerRate: 0.001},
}

// Model adjusts raw top-of-book prices for taker fees and a slippage margin.
// FeeMargin (>1) absorbs fee-tier uncertainty; MaxSlippage is a fractional
// rate applied symmetrically to both legs.
type Model struct {
	schedules   map[domain.Venue]domain.FeeSchedule
	feeMargin   float64
	maxSlippage float64
}

// NewModel builds a Model. Venues missing from schedules fall back to
// DefaultSchedules.
func NewModel(schedules map[domain.Venue]domain.FeeSchedule, feeMargin, maxSlippage float64) *Model {
	merged := make(map[domain.Venue]domain.FeeSchedule, len(DefaultSchedules))
	for v, s := range DefaultSchedules {
		merged[v] = s
	}
	for v, s := range schedules {
		merged[v] = s
	}
	if feeMargin <= 0 {
		feeMargin = 1.0
	}
	return &Model{schedules: merged, feeMargin: feeMargin, maxSlippage: maxSlippage}
}

// TakerRate returns the taker fee rate for a venue.
func (m *Model) TakerRate(venue domain.Venue) float64 {
	return m.schedules[venue].TakerRate
}

// LegCost is the total fractional cost applied to one leg on a venue:
// taker fee times the safety margin, plus the slippage allowance.
func (m *Model) LegCost(venue domain.Venue) float64 {
	return m.schedules[venue].TakerRate*m.feeMargin + m.maxSlippage
}

// Adjust converts a raw price into the effective price after fees and
// slippage margin. A buy leg pays more than the displayed ask; a sell leg
// receives less than the displayed bid.
func (m *Model) Adjust(price float64, venue domain.Venue, side domain.OrderSide) float64 {
	cost := m.LegCost(venue)
	switch side {
	case domain.SideBuy:
		return price * (1 + cost)
	case domain.SideSell:
		return price * (1 - cost)
	}
	return price
}
