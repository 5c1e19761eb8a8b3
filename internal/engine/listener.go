// internal/engine/listener.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cenkalti/backoff/v4"
	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/store"
)

// HandleEvent is the external event entrypoint. It parses the opaque
// payload, matches it against pending futures across active runs, applies
// the conditional resolution transition and publishes a wake-up for every
// run it touched. Events nobody is waiting for are dropped without error:
// other systems may share the same event channel. Delivery is
// at-least-once, so the whole path is idempotent.
func (e *Engine) HandleEvent(ctx context.Context, payload []byte) error {
	result := e.parsers.Parse(payload)
	if result == nil {
		return nil
	}

	runs, err := e.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active runs: %w", err)
	}

	for _, run := range runs {
		for taskID, ts := range run.Tasks {
			if ts.Status != models.TaskStatusWaiting || ts.Future == nil {
				continue
			}
			if ts.Future.TriggerID != result.TriggerID {
				continue
			}

			resolved, err := e.resolveFuture(ctx, run.ID, taskID, result)
			if err != nil {
				return err
			}
			if !resolved {
				continue
			}

			log.Printf("Resolved future for task %s in run %s (trigger %s, success=%t)",
				taskID, run.ID, result.TriggerID, result.Success)
			if err := e.wakeup.PublishWakeup(ctx, run.ID); err != nil {
				return fmt.Errorf("failed to publish wakeup for run %s: %w", run.ID, err)
			}
		}
	}
	return nil
}

// resolveFuture applies the conditional WAITING -> terminal transition for
// one task against the store's latest state. A task that already left
// WAITING (a duplicate event, or a concurrent resolution) is a silent
// no-op. Reports whether this call performed the transition.
func (e *Engine) resolveFuture(ctx context.Context, runID, taskID string, result *models.Result) (bool, error) {
	resolved := false

	operation := func() error {
		resolved = false
		run, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return backoff.Permanent(err)
		}

		ts := run.Task(taskID)
		if ts == nil || ts.Status != models.TaskStatusWaiting {
			return nil
		}

		work := run.Clone()
		wts := work.Task(taskID)
		if result.Success {
			wts.MarkSucceeded(result.Payload)
		} else {
			wts.MarkFailed(result.Error)
		}

		err = e.store.CompareAndSwap(ctx, work)
		if errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		resolved = true
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.maxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return false, fmt.Errorf("failed to resolve future for task %s in run %s: %w", taskID, runID, err)
	}
	return resolved, nil
}
