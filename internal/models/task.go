// internal/models/task.go
package models

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the current state of a task within a run
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusReady     TaskStatus = "READY"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusWaiting   TaskStatus = "WAITING_ON_FUTURE"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusSkipped   TaskStatus = "SKIPPED"
)

// IsTerminal reports whether the task can never change status again except
// through an explicit future resolution
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusSkipped
}

// TaskState is the persisted execution record of one task in one run.
// Result is set only on success, Future only while waiting, Error only on
// failure.
type TaskState struct {
	ID        string          `json:"id"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Future    *Future         `json:"future,omitempty"`
	Error     *string         `json:"error,omitempty"`
	StartTime *time.Time      `json:"startTime,omitempty"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
}

// MarkSucceeded records the task result and finalizes the task
func (t *TaskState) MarkSucceeded(result json.RawMessage) {
	now := time.Now().UTC()
	t.Status = TaskStatusSucceeded
	t.Result = result
	t.Future = nil
	t.EndTime = &now
}

// MarkFailed records the task error and finalizes the task
func (t *TaskState) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	t.Status = TaskStatusFailed
	t.Error = &errMsg
	t.Future = nil
	t.EndTime = &now
}

// MarkWaiting parks the task on an unresolved future
func (t *TaskState) MarkWaiting(f *Future) {
	t.Status = TaskStatusWaiting
	t.Future = f
}
