package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/classlens/backend/analysis"
)

type DashboardHandler struct {
	Aggregator *analysis.Aggregator
}

func NewDashboardHandler(aggregator *analysis.Aggregator) *DashboardHandler {
	return &DashboardHandler{Aggregator: aggregator}
}

// Stats serves engagement trends for the requested day window (?days=N,
// default 7) plus the recent sessions list and overall totals.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := analysis.DefaultTrendDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteAPIError(w, http.StatusBadRequest, "invalid_days", "Query parameter 'days' must be a positive integer")
			return
		}
		days = parsed
	}

	stats, err := h.Aggregator.Stats(days)
	if err != nil {
		log.Printf("handlers: error building dashboard stats: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to compute dashboard statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
