// internal/engine/registry.go
package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fawad-mazhar/flowstate/internal/models"
)

// EventParser turns an opaque external event payload into a Result, or
// returns nil when the payload is not in a format it understands. Parsers
// are how task-specific extraction logic plugs into the listener: a
// future's Source names the parser family that will recognize its
// completion events.
type EventParser func(payload []byte) *models.Result

// ParserRegistry manages the available external event parsers
type ParserRegistry struct {
	parsers map[string]EventParser
	order   []string
	mu      sync.RWMutex
}

// NewParserRegistry creates an empty parser registry
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		parsers: make(map[string]EventParser),
	}
}

// Register adds a parser under a source name
func (r *ParserRegistry) Register(source string, parser EventParser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[source]; exists {
		return fmt.Errorf("event parser %q already registered", source)
	}
	r.parsers[source] = parser
	r.order = append(r.order, source)
	return nil
}

// Parse runs the payload through registered parsers in registration order
// and returns the first recognized result, or nil when no parser claims it
func (r *ParserRegistry) Parse(payload []byte) *models.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, source := range r.order {
		if result := r.parsers[source](payload); result != nil {
			return result
		}
	}
	return nil
}

// WebhookSource is the source name of the built-in webhook parser
const WebhookSource = "webhook"

// ParseWebhookEvent understands the engine's native completion format:
//
//	{"triggerId": "...", "success": true, "result": ..., "error": "..."}
//
// A missing success field defaults to true so fire-and-forget completion
// hooks only need to echo the trigger id back.
func ParseWebhookEvent(payload []byte) *models.Result {
	var event struct {
		TriggerID string          `json:"triggerId"`
		Success   *bool           `json:"success"`
		Result    json.RawMessage `json:"result"`
		Error     string          `json:"error"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil
	}
	if event.TriggerID == "" {
		return nil
	}

	success := event.Success == nil || *event.Success
	return &models.Result{
		TriggerID: event.TriggerID,
		Success:   success,
		Payload:   event.Result,
		Error:     event.Error,
	}
}
