// internal/api/handlers/run_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fawad-mazhar/flowstate/internal/engine"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/go-chi/chi/v5"
)

type RunHandler struct {
	engine *engine.Engine
}

func NewRunHandler(eng *engine.Engine) *RunHandler {
	return &RunHandler{engine: eng}
}

// StartRun creates a fresh run of a registered job definition and performs
// the first scheduler pass before responding
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "name")

	runID, err := h.engine.Start(r.Context(), jobName)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownJob) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to start run", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"runId": runID,
	})
}

// GetRun returns the persisted state of a run
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.engine.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(run)
}
