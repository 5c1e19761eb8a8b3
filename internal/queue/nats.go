// internal/queue/nats.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fawad-mazhar/flowstate/internal/config"
	"github.com/nats-io/nats.go"
)

// WakeupMessage asks the scheduler entrypoint to run one pass for a run.
// Delivery is at-least-once with no ordering guarantee; the scheduler pass
// is idempotent so duplicates are harmless.
type WakeupMessage struct {
	RunID string `json:"runId"`
}

// NATS carries the engine's two message streams: internal scheduler
// wake-ups and external completion events. Queue subscriptions spread
// deliveries across engine instances; a bounded slot pool caps how many
// messages one instance processes concurrently.
type NATS struct {
	conn    *nats.Conn
	config  config.NATSConfig
	slots   chan struct{}
	subs    []*nats.Subscription
	workers sync.WaitGroup
}

func NewNATS(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("flowstate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	maxInflight := cfg.MaxInflight
	if maxInflight < 1 {
		maxInflight = config.DefaultMaxInflight
	}

	return &NATS{
		conn:   conn,
		config: cfg,
		slots:  make(chan struct{}, maxInflight),
	}, nil
}

// PublishWakeup asks the substrate to (re-)invoke the scheduler for a run
func (n *NATS) PublishWakeup(ctx context.Context, runID string) error {
	data, err := json.Marshal(WakeupMessage{RunID: runID})
	if err != nil {
		return fmt.Errorf("failed to marshal wakeup message: %w", err)
	}
	if err := n.conn.Publish(n.config.WakeupSubject, data); err != nil {
		return fmt.Errorf("failed to publish wakeup: %w", err)
	}
	return nil
}

// PublishEvent puts an external event payload on the events subject. The
// engine itself only consumes events; this is here for the HTTP ingest
// path and for external systems that route through the same broker.
func (n *NATS) PublishEvent(ctx context.Context, payload []byte) error {
	if err := n.conn.Publish(n.config.EventsSubject, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// SubscribeWakeups delivers wake-up messages to the handler. Handler
// errors are logged, not redelivered; the publisher retries by design.
func (n *NATS) SubscribeWakeups(handler func(ctx context.Context, runID string) error) error {
	sub, err := n.conn.QueueSubscribe(n.config.WakeupSubject, n.config.QueueGroup, func(msg *nats.Msg) {
		var wakeup WakeupMessage
		if err := json.Unmarshal(msg.Data, &wakeup); err != nil {
			log.Printf("Error decoding wakeup message: %v", err)
			return
		}
		n.dispatch(func(ctx context.Context) {
			if err := handler(ctx, wakeup.RunID); err != nil {
				log.Printf("Error handling wakeup for run %s: %v", wakeup.RunID, err)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to wakeups: %w", err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

// SubscribeEvents delivers external event payloads to the handler
func (n *NATS) SubscribeEvents(handler func(ctx context.Context, payload []byte) error) error {
	sub, err := n.conn.QueueSubscribe(n.config.EventsSubject, n.config.QueueGroup, func(msg *nats.Msg) {
		payload := append([]byte(nil), msg.Data...)
		n.dispatch(func(ctx context.Context) {
			if err := handler(ctx, payload); err != nil {
				log.Printf("Error handling external event: %v", err)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

// dispatch runs fn on its own goroutine once a worker slot frees up
func (n *NATS) dispatch(fn func(ctx context.Context)) {
	n.workers.Add(1)
	go func() {
		defer n.workers.Done()
		n.slots <- struct{}{}
		defer func() { <-n.slots }()
		fn(context.Background())
	}()
}

// Close drains subscriptions and waits for in-flight handlers
func (n *NATS) Close() error {
	for _, sub := range n.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("Error draining subscription: %v", err)
		}
	}
	n.workers.Wait()
	n.conn.Close()
	return nil
}
