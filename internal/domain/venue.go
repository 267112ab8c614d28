// Package domain defines the core types and interfaces shared across the
// arbitrage engine: venues, quotes, opportunities, execution attempts, and
// the gateway capability consumed by the scan and execution layers.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Venue is an enumerated exchange identifier. Only venues listed in
// KnownVenues are accepted; an unknown venue in configuration is a startup
// validation error, never a runtime lookup failure.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueOKX     Venue = "okx"
	VenueGateio  Venue = "gateio"
	VenueBingx   Venue = "bingx"
	VenueBlofin  Venue = "blofin"
)

// KnownVenues enumerates every venue the engine can be configured with.
var KnownVenues = []Venue{VenueBinance, VenueOKX, VenueGateio, VenueBingx, VenueBlofin}

// ParseVenue validates a venue name from configuration.
func ParseVenue(s string) (Venue, error) {
	v := Venue(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownVenues {
		if v == k {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown venue %q (valid: %s)", s, venueList())
}

func venueList() string {
	names := make([]string, len(KnownVenues))
	for i, v := range KnownVenues {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

// OrderSide identifies one side of a trade.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// FeeSchedule holds a venue's trading fee rates as fractions (0.001 = 0.1%).
// Immutable for the process lifetime.
type FeeSchedule struct {
	Venue     Venue
	MakerRate float64
	TakerRate float64
}

// SymbolMap resolves a canonical base symbol ("BTC") to the venue-specific
// pair spelling ("BTC/USDC" on binance, "BTC/USDT" on okx). It is built once
// from configuration and read-only afterwards.
type SymbolMap struct {
	pairs map[string]map[Venue]string
}

// NewSymbolMap builds a SymbolMap from symbol -> venue -> pair entries.
func NewSymbolMap(entries map[string]map[Venue]string) *SymbolMap {
	pairs := make(map[string]map[Venue]string, len(entries))
	for sym, byVenue := range entries {
		m := make(map[Venue]string, len(byVenue))
		for v, p := range byVenue {
			m[v] = p
		}
		pairs[strings.ToUpper(sym)] = m
	}
	return &SymbolMap{pairs: pairs}
}

// Pair returns the venue-specific pair for a canonical symbol.
func (s *SymbolMap) Pair(symbol string, venue Venue) (string, error) {
	byVenue, ok := s.pairs[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("symbol %q not in symbol map", symbol)
	}
	pair, ok := byVenue[venue]
	if !ok {
		return "", fmt.Errorf("symbol %q has no pair mapping for venue %s", symbol, venue)
	}
	return pair, nil
}

// Symbols returns the canonical symbols in deterministic order.
func (s *SymbolMap) Symbols() []string {
	out := make([]string, 0, len(s.pairs))
	for sym := range s.pairs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Venues returns the venues mapped for a symbol in deterministic order.
func (s *SymbolMap) Venues(symbol string) []Venue {
	byVenue := s.pairs[strings.ToUpper(symbol)]
	out := make([]Venue, 0, len(byVenue))
	for v := range byVenue {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
