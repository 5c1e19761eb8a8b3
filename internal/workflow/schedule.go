// internal/workflow/schedule.go
package workflow

import (
	"sort"

	"github.com/fawad-mazhar/flowstate/internal/models"
)

// ReadyTasks returns the ids of tasks that are eligible to run against the
// given run snapshot: still pending, with every dependency succeeded.
//
// The result is sorted by id purely for deterministic iteration; execution
// order among simultaneously-ready siblings is not part of the engine's
// contract and task bodies must not rely on it.
//
// This function is pure: it does not mutate the run state.
func ReadyTasks(d *Definition, run *models.RunState) []string {
	var ready []string
	for id, t := range d.tasks {
		st := run.Task(id)
		if st == nil || st.Status != models.TaskStatusPending {
			continue
		}
		depsOK := true
		for _, dep := range t.Deps {
			ds := run.Task(dep)
			if ds == nil || ds.Status != models.TaskStatusSucceeded {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// PropagateSkips marks every pending task that has a failed or skipped
// dependency as skipped, repeating until a fixed point so skips travel the
// whole way down the graph. Failure spreads forward only: branches that do
// not descend from the failed task are untouched. Reports whether any task
// changed.
func PropagateSkips(d *Definition, run *models.RunState) bool {
	changed := false
	for {
		progressed := false
		for id, t := range d.tasks {
			st := run.Task(id)
			if st == nil || st.Status != models.TaskStatusPending {
				continue
			}
			for _, dep := range t.Deps {
				ds := run.Task(dep)
				if ds == nil {
					continue
				}
				if ds.Status == models.TaskStatusFailed || ds.Status == models.TaskStatusSkipped {
					st.Status = models.TaskStatusSkipped
					progressed = true
					changed = true
					break
				}
			}
		}
		if !progressed {
			return changed
		}
	}
}

// OverallStatus recomputes the run status from its task states: succeeded
// once every task is succeeded or skipped, failed once a task has failed
// and nothing can ever become ready again, running otherwise. A run parked
// on a future therefore stays running.
func OverallStatus(run *models.RunState) models.RunStatus {
	anyFailed := false
	anyLive := false
	for _, t := range run.Tasks {
		switch t.Status {
		case models.TaskStatusFailed:
			anyFailed = true
		case models.TaskStatusSucceeded, models.TaskStatusSkipped:
		default:
			anyLive = true
		}
	}
	if anyLive {
		return models.RunStatusRunning
	}
	if anyFailed {
		return models.RunStatusFailed
	}
	return models.RunStatusSucceeded
}
