// internal/api/handlers/event_handler.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fawad-mazhar/flowstate/internal/engine"
)

type EventHandler struct {
	engine *engine.Engine
}

func NewEventHandler(eng *engine.Engine) *EventHandler {
	return &EventHandler{engine: eng}
}

// IngestEvent accepts one external completion event over HTTP. Payloads
// that match no pending future are accepted and dropped: the event channel
// is shared with systems the engine knows nothing about.
func (h *EventHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(payload) == 0 {
		http.Error(w, "empty event payload", http.StatusBadRequest)
		return
	}

	if err := h.engine.HandleEvent(r.Context(), payload); err != nil {
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "event accepted",
	})
}
