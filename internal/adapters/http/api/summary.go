package api

import (
	"context"
	"net/http"

	"github.com/okian/petroenergy/internal/domain/model"
)

// SummaryDependencies defines the interface for the executive summary.
type SummaryDependencies interface {
	Summary(ctx context.Context, facility string) (model.Summary, error)
}

// SummaryHandler handles summary requests.
type SummaryHandler struct {
	deps SummaryDependencies
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps SummaryDependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

// HandleGetSummary handles GET /summary?facility=ID.
func (h *SummaryHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.deps.Summary(r.Context(), r.URL.Query().Get("facility"))
	if err != nil {
		writeServiceError(w, Wrap("api.get_summary", err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
