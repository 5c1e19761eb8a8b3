// internal/models/future.go
package models

import "encoding/json"

// Future is the correlation token a task body returns when its real work
// finishes outside the engine. It never carries a result: TriggerID is the
// identifier the external system will eventually report completion under
// (for a warehouse query task, the query job id), and Source names the
// event parser family that understands those completion events.
type Future struct {
	Source    string `json:"source"`
	TriggerID string `json:"triggerId"`
}

// NewFuture creates a correlation token for an external operation
func NewFuture(source, triggerID string) *Future {
	return &Future{Source: source, TriggerID: triggerID}
}

// Result is the parsed form of an external completion event. Exactly one
// pending future matches it by TriggerID. Success carries the extracted
// task result in Payload; failure carries Error.
type Result struct {
	TriggerID string          `json:"triggerId"`
	Success   bool            `json:"success"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}
