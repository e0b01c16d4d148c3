package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Model actions accepted by POST /models/{action}.
const (
	actionRetrain = "retrain"
	actionCleanup = "cleanup"
)

// ModelDependencies defines the interface for model maintenance actions.
type ModelDependencies interface {
	Retrain(ctx context.Context) error
	Cleanup(ctx context.Context) ([]string, error)
}

type retrainResponse struct {
	Status string `json:"status"`
}

type cleanupResponse struct {
	Deleted []string `json:"deleted"`
}

// ModelsHandler handles model maintenance requests.
type ModelsHandler struct {
	deps ModelDependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps ModelDependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// HandleModelAction handles POST /models/retrain and POST /models/cleanup.
func (h *ModelsHandler) HandleModelAction(w http.ResponseWriter, r *http.Request) {
	const op = "api.model_action"
	switch action := mux.Vars(r)["action"]; action {
	case actionRetrain:
		if err := h.deps.Retrain(r.Context()); err != nil {
			writeServiceError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, retrainResponse{Status: "retrained"})
	case actionCleanup:
		deleted, err := h.deps.Cleanup(r.Context())
		if err != nil {
			writeServiceError(w, Wrap(op, err))
			return
		}
		if deleted == nil {
			deleted = []string{}
		}
		writeJSON(w, http.StatusOK, cleanupResponse{Deleted: deleted})
	default:
		writeError(w, http.StatusNotFound, "unknown_action", Wrap(op, fmt.Errorf("%w: %q", ErrUnknownAction, action)))
	}
}
