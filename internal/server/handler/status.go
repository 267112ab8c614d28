package handler

import (
	"net/http"
	"time"
)

// InFlightProbe reports whether an execution attempt is currently running
// for a symbol. The execution coordinator satisfies it.
type InFlightProbe interface {
	InFlight(symbol string) bool
}

// StatusHandler reports the engine's runtime status.
type StatusHandler struct {
	mode      string
	symbols   []string
	venues    []string
	startedAt time.Time
	inflight  InFlightProbe
}

// NewStatusHandler creates a StatusHandler. probe may be nil when the
// process runs without an execution coordinator.
func NewStatusHandler(mode string, symbols, venues []string, startedAt time.Time, probe InFlightProbe) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		symbols:   symbols,
		venues:    venues,
		startedAt: startedAt,
		inflight:  probe,
	}
}

// Status responds with the engine mode, configured universe, uptime, and the
// symbols with an execution attempt currently in flight.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	var executing []string
	if h.inflight != nil {
		for _, sym := range h.symbols {
			if h.inflight.InFlight(sym) {
				executing = append(executing, sym)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"symbols":        h.symbols,
		"venues":         h.venues,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"executing":      executing,
	})
}
