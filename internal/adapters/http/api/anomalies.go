package api

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/okian/petroenergy/internal/domain/model"
)

// AnomalyDependencies defines the interface for per-reading labels.
type AnomalyDependencies interface {
	Anomalies(ctx context.Context, facility string) ([]model.LabeledReading, error)
}

// anomalyRow is the wire shape of a labelled reading. A missing health score
// is sent as null.
type anomalyRow struct {
	FacilityID  string      `json:"facility_id"`
	EquipmentID string      `json:"equipment_id"`
	Timestamp   time.Time   `json:"timestamp"`
	HealthScore *float64    `json:"health_score"`
	Label       model.Label `json:"label"`
}

// AnomaliesHandler handles anomaly requests.
type AnomaliesHandler struct {
	deps AnomalyDependencies
}

// NewAnomaliesHandler creates a new anomalies handler.
func NewAnomaliesHandler(deps AnomalyDependencies) *AnomaliesHandler {
	return &AnomaliesHandler{deps: deps}
}

// HandleGetAnomalies handles GET /anomalies?facility=ID.
func (h *AnomaliesHandler) HandleGetAnomalies(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_anomalies"
	rows, err := h.deps.Anomalies(r.Context(), r.URL.Query().Get("facility"))
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	out := make([]anomalyRow, len(rows))
	for i, row := range rows {
		out[i] = anomalyRow{
			FacilityID:  row.FacilityID,
			EquipmentID: row.EquipmentID,
			Timestamp:   row.Timestamp,
			Label:       row.Label,
		}
		if !math.IsNaN(row.HealthScore) {
			score := row.HealthScore
			out[i].HealthScore = &score
		}
	}
	writeJSON(w, http.StatusOK, out)
}
