// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/okian/petroenergy/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ForecastDependencies
	AnomalyDependencies
	ReportDependencies
	SummaryDependencies
	ModelDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	forecastHandler  *ForecastHandler
	anomaliesHandler *AnomaliesHandler
	reportHandler    *ReportHandler
	summaryHandler   *SummaryHandler
	modelsHandler    *ModelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		forecastHandler:  NewForecastHandler(deps, model.MaxForecastDays),
		anomaliesHandler: NewAnomaliesHandler(deps),
		reportHandler:    NewReportHandler(deps),
		summaryHandler:   NewSummaryHandler(deps),
		modelsHandler:    NewModelsHandler(deps),
	}
}

// Register attaches all HTTP routes to router.
func (s *Server) Register(_ context.Context, router *mux.Router) {
	router.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	router.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	router.HandleFunc("/forecast", MetricsMiddleware(s.forecastHandler.HandleGetForecast, "forecast")).Methods(http.MethodGet)
	router.HandleFunc("/anomalies", MetricsMiddleware(s.anomaliesHandler.HandleGetAnomalies, "anomalies")).Methods(http.MethodGet)
	router.HandleFunc("/maintenance/report", MetricsMiddleware(s.reportHandler.HandleGetReport, "maintenance_report")).Methods(http.MethodGet)
	router.HandleFunc("/summary", MetricsMiddleware(s.summaryHandler.HandleGetSummary, "summary")).Methods(http.MethodGet)
	router.HandleFunc("/models/{action}", MetricsMiddleware(s.modelsHandler.HandleModelAction, "models")).Methods(http.MethodPost)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	router := mux.NewRouter()
	s.Register(ctx, router)
	return router
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps errors returned by the service onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, model.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "not_ready", err)
	case errors.Is(err, model.ErrDataInsufficient):
		writeError(w, http.StatusUnprocessableEntity, "data_insufficient", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
