package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/hepavision/fibrostage/internal/classifier"
	"github.com/hepavision/fibrostage/internal/labels"
)

// StatusHandler exposes operator-facing diagnostics. Label-map failures are
// silent toward users by design; this is where they become visible.
type StatusHandler struct {
	db     *sql.DB
	engine classifier.Provider
	labels *labels.Map
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(db *sql.DB, engine classifier.Provider, labelMap *labels.Map) *StatusHandler {
	return &StatusHandler{db: db, engine: engine, labels: labelMap}
}

type statusResponse struct {
	ModelReady  bool   `json:"modelReady"`
	ModelError  string `json:"modelError,omitempty"`
	LabelSource string `json:"labelSource"`
	LabelError  string `json:"labelError,omitempty"`
	DatabaseOK  bool   `json:"databaseOk"`
}

// Status reports model readiness, label-map load state and database health.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ready, modelErr := h.engine.Ready()
	source, labelErr := h.labels.Status()

	resp := statusResponse{
		ModelReady:  ready,
		ModelError:  modelErr,
		LabelSource: source,
		LabelError:  labelErr,
		DatabaseOK:  h.db.Ping() == nil,
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.ModelReady || !resp.DatabaseOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
