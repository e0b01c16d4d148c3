package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/petroenergy/internal/domain/model"
)

// ReportDependencies defines the interface for the maintenance report.
type ReportDependencies interface {
	MaintenanceReport(ctx context.Context, limit int) ([]model.ReportRow, error)
}

// ReportHandler handles maintenance report requests.
type ReportHandler struct {
	deps ReportDependencies
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps ReportDependencies) *ReportHandler {
	return &ReportHandler{deps: deps}
}

// HandleGetReport handles GET /maintenance/report?limit=N. limit=0 returns
// every row; without limit the service default applies.
func (h *ReportHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_maintenance_report"
	limit := -1
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request",
				Wrap(op, fmt.Errorf("%w: limit must be a non-negative integer", ErrBadRequest)))
			return
		}
		limit = n
	}
	rows, err := h.deps.MaintenanceReport(r.Context(), limit)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
