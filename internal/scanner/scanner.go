// Package scanner turns a per-cycle quote snapshot into a ranked set of
// arbitrage opportunities. "No opportunity" is an ordinary value here, never
// an error: callers cannot accidentally treat a quiet market as a fault.
package scanner

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mlajoie/crossarb/internal/domain"
	"github.com/mlajoie/crossarb/internal/fees"
)

// Config holds the ranking thresholds.
type Config struct {
	// MinProfitRatio is the minimum net profit per unit of buy-leg capital.
	MinProfitRatio float64
	// MinLiquidityUSD is the minimum buy-leg notional worth acting on.
	MinLiquidityUSD float64
	// MaxOrderValueUSD caps the buy-leg notional of a single attempt.
	// Zero disables the cap.
	MaxOrderValueUSD float64
	// SafetyRatio (<1) haircuts the displayed depth to guard against
	// partial fills.
	SafetyRatio float64
}

// Outcome tags a scan result.
type Outcome int

const (
	// OutcomeNoOpportunity means the market offered nothing actionable.
	OutcomeNoOpportunity Outcome = iota
	// OutcomeOpportunity means Result.Opportunity is populated.
	OutcomeOpportunity
	// OutcomeShortfall means fewer than two venues responded this cycle.
	OutcomeShortfall
)

// Result is the tagged outcome of scanning one symbol's quote set.
type Result struct {
	Outcome     Outcome
	Opportunity domain.Opportunity
}

// Scanner evaluates all ordered venue pairs against the fee model.
type Scanner struct {
	model  *fees.Model
	cfg    Config
	logger *slog.Logger
}

// New creates a Scanner.
func New(model *fees.Model, cfg Config, logger *slog.Logger) *Scanner {
	if cfg.SafetyRatio <= 0 || cfg.SafetyRatio >= 1 {
		cfg.SafetyRatio = 0.9
	}
	return &Scanner{
		model:  model,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// Scan returns the single best actionable opportunity for the set, or a
// tagged no-opportunity result.
func (s *Scanner) Scan(set domain.QuoteSet) Result {
	if !set.Usable() {
		return Result{Outcome: OutcomeShortfall}
	}
	candidates := s.Candidates(set)
	if len(candidates) == 0 {
		return Result{Outcome: OutcomeNoOpportunity}
	}
	best := candidates[0]
	s.logger.Debug("opportunity selected",
		slog.String("symbol", best.Symbol),
		slog.String("buy_venue", string(best.BuyVenue)),
		slog.String("sell_venue", string(best.SellVenue)),
		slog.Float64("net_profit", best.NetProfit),
		slog.Float64("profit_ratio", best.ProfitRatio),
	)
	return Result{Outcome: OutcomeOpportunity, Opportunity: best}
}

// Candidates computes every surviving venue pair, ranked by net profit
// descending. Ties break on larger trade amount, then on lexicographically
// smaller venue-pair name, so the ordering is fully deterministic.
func (s *Scanner) Candidates(set domain.QuoteSet) []domain.Opportunity {
	var out []domain.Opportunity
	now := time.Now().UTC()
	for _, buy := range set.Quotes {
		for _, sell := range set.Quotes {
			if buy.Venue == sell.Venue {
				continue
			}
			opp, ok := s.evaluatePair(buy, sell, now)
			if ok {
				out = append(out, opp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.NetProfit != b.NetProfit {
			return a.NetProfit > b.NetProfit
		}
		if a.TradeAmount != b.TradeAmount {
			return a.TradeAmount > b.TradeAmount
		}
		return pairName(a) < pairName(b)
	})
	return out
}

// evaluatePair prices the trade buy-at-ask on buy.Venue, sell-at-bid on
// sell.Venue. Ranking uses net profit in currency units rather than the
// ratio: with bounded capital per cycle, realized profit is the objective,
// not percentage return.
func (s *Scanner) evaluatePair(buy, sell domain.Quote, now time.Time) (domain.Opportunity, bool) {
	if buy.BestAsk <= 0 || sell.BestBid <= 0 {
		return domain.Opportunity{}, false
	}

	adjAsk := s.model.Adjust(buy.BestAsk, buy.Venue, domain.SideBuy)
	adjBid := s.model.Adjust(sell.BestBid, sell.Venue, domain.SideSell)
	if adjBid <= adjAsk {
		return domain.Opportunity{}, false
	}

	amount := minFloat(buy.AskSize, sell.BidSize) * s.cfg.SafetyRatio
	if amount <= 0 {
		return domain.Opportunity{}, false
	}

	// The liquidity floor judges the depth on offer; the order-value cap
	// then bounds how much of it a single attempt may take.
	if buy.BestAsk*amount < s.cfg.MinLiquidityUSD {
		return domain.Opportunity{}, false
	}
	if s.cfg.MaxOrderValueUSD > 0 {
		if maxAmount := s.cfg.MaxOrderValueUSD / buy.BestAsk; amount > maxAmount {
			amount = maxAmount
		}
	}

	gross := (sell.BestBid - buy.BestAsk) * amount
	net := (adjBid - adjAsk) * amount
	ratio := net / (buy.BestAsk * amount)
	if ratio < s.cfg.MinProfitRatio {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:          uuid.New().String(),
		Symbol:      buy.Symbol,
		BuyVenue:    buy.Venue,
		SellVenue:   sell.Venue,
		BuyPrice:    buy.BestAsk,
		SellPrice:   sell.BestBid,
		TradeAmount: amount,
		GrossProfit: gross,
		TotalFees:   gross - net,
		NetProfit:   net,
		ProfitRatio: ratio,
		ComputedAt:  now,
	}, true
}

func pairName(o domain.Opportunity) string {
	return string(o.BuyVenue) + "->" + string(o.SellVenue)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
