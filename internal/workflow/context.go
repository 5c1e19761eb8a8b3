// internal/workflow/context.go
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/fawad-mazhar/flowstate/internal/models"
)

// RunContext is the job handle passed to task bodies. It gives read access
// to the results of already-succeeded sibling tasks; bodies should only
// read results of their own declared dependencies, which the scheduler
// guarantees are succeeded before the body runs.
type RunContext struct {
	run *models.RunState
}

// NewRunContext wraps a run snapshot for task body consumption
func NewRunContext(run *models.RunState) *RunContext {
	return &RunContext{run: run}
}

// RunID returns the identifier of the current run
func (c *RunContext) RunID() string {
	return c.run.ID
}

// JobName returns the name of the job definition being executed
func (c *RunContext) JobName() string {
	return c.run.JobName
}

// TaskResult returns the stored result of a succeeded task, unmarshalled
// from its persisted JSON form. It fails with ErrNotAvailable when the
// task is unknown or has not succeeded.
func (c *RunContext) TaskResult(taskID string) (any, error) {
	st := c.run.Task(taskID)
	if st == nil || st.Status != models.TaskStatusSucceeded {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNotAvailable)
	}
	if st.Result == nil {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(st.Result, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result of task %q: %w", taskID, err)
	}
	return v, nil
}
