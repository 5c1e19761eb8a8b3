// internal/engine/scheduler.go
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/fawad-mazhar/flowstate/internal/workflow"
)

// RunPass performs one scheduler pass for a run, retrying the whole pass
// with exponential backoff when a concurrent writer wins the conditional
// write. Exhausting the retry budget surfaces the conflict to the caller
// so the trigger substrate's redelivery gets another chance.
func (e *Engine) RunPass(ctx context.Context, runID string) error {
	operation := func() error {
		err := e.pass(ctx, runID)
		if errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.maxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("scheduler pass for run %s: %w", runID, err)
	}
	return nil
}

// pass is one load-decide-execute-persist cycle. It mutates a clone of
// the loaded state and writes it back with a single conditional write, so
// a lost race never leaks partial progress into the store.
func (e *Engine) pass(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	// Duplicate wake-ups after completion are expected; nothing to do.
	if run.Status.IsTerminal() {
		return nil
	}

	def, err := e.Definition(run.JobName)
	if err != nil {
		return err
	}

	work := run.Clone()
	changed := workflow.PropagateSkips(def, work)

	// Each iteration only advances previously-pending tasks, so the loop
	// is bounded by graph depth. Tasks parked on futures end it: the
	// engine is edge-triggered, not polling.
	for {
		ready := workflow.ReadyTasks(def, work)
		if len(ready) == 0 {
			break
		}
		for _, taskID := range ready {
			e.executeTask(ctx, def, work, taskID)
			changed = true
		}
		workflow.PropagateSkips(def, work)
	}

	if status := workflow.OverallStatus(work); status != work.Status {
		work.Status = status
		if status.IsTerminal() {
			now := time.Now().UTC()
			work.EndTime = &now
			log.Printf("Run %s finished with status %s", work.ID, status)
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return e.store.CompareAndSwap(ctx, work)
}

// executeTask invokes one ready task body and folds its outcome into the
// working copy: a value succeeds the task, a *models.Future parks it, an
// error fails it. A panicking body is captured as a task failure rather
// than taking down the whole pass.
func (e *Engine) executeTask(ctx context.Context, def *workflow.Definition, work *models.RunState, taskID string) {
	ts := work.Task(taskID)
	now := time.Now().UTC()
	ts.Status = models.TaskStatusRunning
	ts.StartTime = &now

	value, err := e.invokeBody(ctx, def.Task(taskID), work)
	if err != nil {
		log.Printf("Task %s in run %s failed: %v", taskID, work.ID, err)
		ts.MarkFailed(err.Error())
		return
	}

	if future, ok := value.(*models.Future); ok {
		log.Printf("Task %s in run %s waiting on %s trigger %s", taskID, work.ID, future.Source, future.TriggerID)
		ts.MarkWaiting(future)
		return
	}

	result, err := json.Marshal(value)
	if err != nil {
		ts.MarkFailed(fmt.Sprintf("failed to marshal task result: %v", err))
		return
	}
	ts.MarkSucceeded(result)
}

func (e *Engine) invokeBody(ctx context.Context, task *workflow.Task, work *models.RunState) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task body panicked: %v", r)
		}
	}()
	return task.Fn(ctx, task, workflow.NewRunContext(work))
}
