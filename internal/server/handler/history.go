package handler

import (
	"net/http"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
)

// HistoryHandler serves persisted opportunity and execution history. Both
// stores may be nil when the process runs without Postgres, in which case
// the endpoints answer 503.
type HistoryHandler struct {
	opportunities domain.OpportunityStore
	executions    domain.ExecutionStore
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(opportunities domain.OpportunityStore, executions domain.ExecutionStore) *HistoryHandler {
	return &HistoryHandler{
		opportunities: opportunities,
		executions:    executions,
	}
}

type opportunityResponse struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	BuyPrice    float64   `json:"buy_price"`
	SellPrice   float64   `json:"sell_price"`
	TradeAmount float64   `json:"trade_amount"`
	GrossProfit float64   `json:"gross_profit"`
	TotalFees   float64   `json:"total_fees"`
	NetProfit   float64   `json:"net_profit"`
	ProfitRatio float64   `json:"profit_ratio"`
	ComputedAt  time.Time `json:"computed_at"`
}

type executionResponse struct {
	ID            string     `json:"id"`
	OpportunityID string     `json:"opportunity_id"`
	Symbol        string     `json:"symbol"`
	BuyVenue      string     `json:"buy_venue"`
	SellVenue     string     `json:"sell_venue"`
	TradeAmount   float64    `json:"trade_amount"`
	NetProfit     float64    `json:"net_profit"`
	BuyOrderID    string     `json:"buy_order_id,omitempty"`
	SellOrderID   string     `json:"sell_order_id,omitempty"`
	BuyFilled     float64    `json:"buy_filled"`
	SellFilled    float64    `json:"sell_filled"`
	State         string     `json:"state"`
	UnwindAction  string     `json:"unwind_action,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ListOpportunities returns the most recently detected opportunities.
// GET /api/opportunities
func (h *HistoryHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.opportunities == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity history is not enabled")
		return
	}

	opps, err := h.opportunities.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing opportunities failed")
		return
	}

	out := make([]opportunityResponse, 0, len(opps))
	for _, opp := range opps {
		out = append(out, opportunityResponse{
			ID:          opp.ID,
			Symbol:      opp.Symbol,
			BuyVenue:    string(opp.BuyVenue),
			SellVenue:   string(opp.SellVenue),
			BuyPrice:    opp.BuyPrice,
			SellPrice:   opp.SellPrice,
			TradeAmount: opp.TradeAmount,
			GrossProfit: opp.GrossProfit,
			TotalFees:   opp.TotalFees,
			NetProfit:   opp.NetProfit,
			ProfitRatio: opp.ProfitRatio,
			ComputedAt:  opp.ComputedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListExecutions returns the most recent execution attempts.
// GET /api/executions
func (h *HistoryHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		writeError(w, http.StatusServiceUnavailable, "execution history is not enabled")
		return
	}

	attempts, err := h.executions.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing executions failed")
		return
	}

	out := make([]executionResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp := executionResponse{
			ID:            attempt.ID,
			OpportunityID: attempt.Opportunity.ID,
			Symbol:        attempt.Opportunity.Symbol,
			BuyVenue:      string(attempt.Opportunity.BuyVenue),
			SellVenue:     string(attempt.Opportunity.SellVenue),
			TradeAmount:   attempt.Opportunity.TradeAmount,
			NetProfit:     attempt.Opportunity.NetProfit,
			BuyOrderID:    attempt.BuyOrderID,
			SellOrderID:   attempt.SellOrderID,
			BuyFilled:     attempt.BuyFilled,
			SellFilled:    attempt.SellFilled,
			State:         string(attempt.State),
			Error:         attempt.Error,
			StartedAt:     attempt.StartedAt,
			CompletedAt:   attempt.CompletedAt,
		}
		if attempt.Unwind != nil {
			resp.UnwindAction = string(attempt.Unwind.Action)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
