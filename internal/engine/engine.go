// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fawad-mazhar/flowstate/internal/config"
	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/fawad-mazhar/flowstate/internal/workflow"
)

// WakeupPublisher asks the trigger substrate to re-invoke the scheduler
// entrypoint for a run, at-least-once, in no particular order.
type WakeupPublisher interface {
	PublishWakeup(ctx context.Context, runID string) error
}

// Engine drives workflow runs over a durable job store. It holds no run
// state of its own: every entrypoint is an independent, possibly
// concurrent activation that rehydrates state from the store, decides and
// persists through conditional writes. One process or twenty behave the
// same way.
type Engine struct {
	defs    map[string]*workflow.Definition
	store   store.JobStore
	wakeup  WakeupPublisher
	parsers *ParserRegistry

	maxAttempts   int
	retryInterval time.Duration
}

// New creates an engine over the given store and wake-up transport. The
// built-in webhook event parser is registered out of the box.
func New(cfg config.SchedulerConfig, st store.JobStore, wakeup WakeupPublisher) *Engine {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = config.DefaultMaxAttempts
	}
	retryInterval := time.Duration(cfg.RetryIntervalMs) * time.Millisecond
	if retryInterval <= 0 {
		retryInterval = config.DefaultRetryIntervalMs * time.Millisecond
	}

	e := &Engine{
		defs:          make(map[string]*workflow.Definition),
		store:         st,
		wakeup:        wakeup,
		parsers:       NewParserRegistry(),
		maxAttempts:   maxAttempts,
		retryInterval: retryInterval,
	}
	if err := e.parsers.Register(WebhookSource, ParseWebhookEvent); err != nil {
		log.Printf("Error registering webhook parser: %v", err)
	}
	return e
}

// Register validates a job definition and makes it startable
func (e *Engine) Register(def *workflow.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := e.defs[def.Name()]; exists {
		return fmt.Errorf("job definition %q already registered", def.Name())
	}
	e.defs[def.Name()] = def
	return nil
}

// RegisterParser adds a custom external event parser
func (e *Engine) RegisterParser(source string, parser EventParser) error {
	return e.parsers.Register(source, parser)
}

// ErrUnknownJob is returned when a run references a job definition the
// engine does not know about
var ErrUnknownJob = errors.New("job definition not registered")

// Definition returns a registered job definition by name
func (e *Engine) Definition(jobName string) (*workflow.Definition, error) {
	def, ok := e.defs[jobName]
	if !ok {
		return nil, fmt.Errorf("job definition %q: %w", jobName, ErrUnknownJob)
	}
	return def, nil
}

// Start creates a fresh run of the named job with every task pending,
// persists it and performs the first scheduler pass inline.
func (e *Engine) Start(ctx context.Context, jobName string) (string, error) {
	def, err := e.Definition(jobName)
	if err != nil {
		return "", err
	}

	run := models.NewRunState(jobName, def.TaskIDs())
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	log.Printf("Started run %s of job %s", run.ID, jobName)

	if err := e.RunPass(ctx, run.ID); err != nil {
		return run.ID, fmt.Errorf("first scheduler pass failed: %w", err)
	}
	return run.ID, nil
}

// GetRun exposes the persisted state of a run for inspection
func (e *Engine) GetRun(ctx context.Context, runID string) (*models.RunState, error) {
	return e.store.GetRun(ctx, runID)
}
