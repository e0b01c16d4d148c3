package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/petroenergy/internal/domain/model"
)

// ForecastDependencies defines the interface for price forecasts.
type ForecastDependencies interface {
	Forecast(ctx context.Context, days int) ([]model.PricePrediction, error)
}

// ForecastHandler handles forecast requests.
type ForecastHandler struct {
	deps    ForecastDependencies
	maxDays int
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(deps ForecastDependencies, maxDays int) *ForecastHandler {
	return &ForecastHandler{deps: deps, maxDays: maxDays}
}

// HandleGetForecast handles GET /forecast?days=N. Without days the service's
// default horizon is used.
func (h *ForecastHandler) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_forecast"
	days := 0
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > h.maxDays {
			writeError(w, http.StatusBadRequest, "bad_request",
				Wrap(op, fmt.Errorf("%w: days must be between 1 and %d", ErrBadRequest, h.maxDays)))
			return
		}
		days = n
	}
	preds, err := h.deps.Forecast(r.Context(), days)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, preds)
}
