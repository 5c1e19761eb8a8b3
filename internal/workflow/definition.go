// internal/workflow/definition.go
package workflow

import (
	"context"
	"fmt"
	"sort"
)

// TaskFunc is the body of a task. It receives the task's definition and a
// handle onto the current run, and returns either a plain result value
// (marshalled to JSON and stored), a *models.Future to defer completion to
// an external event, or an error to fail the task.
type TaskFunc func(ctx context.Context, t *Task, run *RunContext) (any, error)

// Task is one node of a job definition: an id, a body and the ids of the
// tasks that must succeed before it may run.
type Task struct {
	ID   string
	Fn   TaskFunc
	Deps []string
}

// Definition is an immutable DAG of named tasks. Build one with New and
// AddTask, then Validate before handing it to the engine. There is no
// process-wide registry: definitions are passed explicitly.
type Definition struct {
	name  string
	tasks map[string]*Task
}

// New creates an empty job definition
func New(name string) *Definition {
	return &Definition{
		name:  name,
		tasks: make(map[string]*Task),
	}
}

// Name returns the job definition name
func (d *Definition) Name() string {
	return d.name
}

// AddTask declares a task and its dependency edges. Duplicate ids,
// self-dependencies and empty ids are rejected eagerly; dangling
// dependencies and cycles are caught by Validate.
func (d *Definition) AddTask(id string, fn TaskFunc, deps ...string) error {
	if id == "" {
		return &DefinitionError{Msg: "task id must not be empty"}
	}
	if fn == nil {
		return &DefinitionError{Msg: fmt.Sprintf("task %q has no body", id)}
	}
	if _, exists := d.tasks[id]; exists {
		return &DefinitionError{Msg: fmt.Sprintf("duplicate task id %q", id)}
	}
	for _, dep := range deps {
		if dep == id {
			return &DefinitionError{Msg: fmt.Sprintf("task %q depends on itself", id)}
		}
	}
	d.tasks[id] = &Task{ID: id, Fn: fn, Deps: append([]string(nil), deps...)}
	return nil
}

// Task returns a task by id, or nil if the id is unknown
func (d *Definition) Task(id string) *Task {
	return d.tasks[id]
}

// TaskIDs returns every declared task id in sorted order
func (d *Definition) TaskIDs() []string {
	ids := make([]string, 0, len(d.tasks))
	for id := range d.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every dependency refers to a declared task and that
// the dependency relation is acyclic. The engine calls this at
// registration time; it never fires at run time.
func (d *Definition) Validate() error {
	if len(d.tasks) == 0 {
		return &DefinitionError{Msg: fmt.Sprintf("job %q has no tasks", d.name)}
	}
	for _, t := range d.tasks {
		for _, dep := range t.Deps {
			if _, ok := d.tasks[dep]; !ok {
				return &DefinitionError{
					Msg: fmt.Sprintf("task %q depends on undeclared task %q", t.ID, dep),
				}
			}
		}
	}
	if cycle := d.findCycle(); cycle != nil {
		return &DefinitionError{Msg: "dependency cycle", Cycle: cycle}
	}
	return nil
}

// findCycle runs a three-color depth-first walk over the dependency edges
// and returns one cycle path as a witness, or nil when the graph is a DAG.
// Iteration is over sorted ids so the reported cycle is deterministic.
func (d *Definition) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(d.tasks))
	parent := make(map[string]string, len(d.tasks))
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		deps := append([]string(nil), d.tasks[id].Deps...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch color[dep] {
			case white:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case gray:
				// Back-edge id -> dep closes a cycle. Walk parents back to dep.
				cycle = append(cycle, dep)
				for cur := id; ; cur = parent[cur] {
					cycle = append(cycle, cur)
					if cur == dep {
						break
					}
				}
				// Reverse into forward edge order.
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range d.TaskIDs() {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
