// internal/models/run.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the overall state of a workflow run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether the run reached a final status
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// RunState is the persisted record of one execution of a job definition.
// It is the only shared mutable resource in the engine: every mutation is a
// read-modify-write against the store guarded by the Version counter.
type RunState struct {
	ID        string                `json:"id"`
	JobName   string                `json:"jobName"`
	Status    RunStatus             `json:"status"`
	Version   uint64                `json:"version"`
	Tasks     map[string]*TaskState `json:"tasks"`
	StartTime time.Time             `json:"startTime"`
	EndTime   *time.Time            `json:"endTime,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// NewRunState creates a fresh run for the named job with every task pending
func NewRunState(jobName string, taskIDs []string) *RunState {
	now := time.Now().UTC()
	tasks := make(map[string]*TaskState, len(taskIDs))
	for _, id := range taskIDs {
		tasks[id] = &TaskState{ID: id, Status: TaskStatusPending}
	}
	return &RunState{
		ID:        uuid.New().String(),
		JobName:   jobName,
		Status:    RunStatusRunning,
		Tasks:     tasks,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Task returns the state of a single task, or nil if the id is unknown
func (r *RunState) Task(taskID string) *TaskState {
	return r.Tasks[taskID]
}

// HasWaitingFuture reports whether any task is parked on an unresolved future
func (r *RunState) HasWaitingFuture() bool {
	for _, t := range r.Tasks {
		if t.Status == TaskStatusWaiting {
			return true
		}
	}
	return false
}

// ToJSON converts the run state to JSON
func (r *RunState) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON populates the run state from JSON
func (r *RunState) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// Clone returns a deep copy of the run state. Scheduler passes mutate a
// clone so a rejected conditional write never leaks partial progress.
func (r *RunState) Clone() *RunState {
	cp := *r
	cp.Tasks = make(map[string]*TaskState, len(r.Tasks))
	for id, t := range r.Tasks {
		tc := *t
		if t.Result != nil {
			tc.Result = append(json.RawMessage(nil), t.Result...)
		}
		if t.Future != nil {
			fc := *t.Future
			tc.Future = &fc
		}
		if t.Error != nil {
			e := *t.Error
			tc.Error = &e
		}
		cp.Tasks[id] = &tc
	}
	if r.EndTime != nil {
		et := *r.EndTime
		cp.EndTime = &et
	}
	return &cp
}
