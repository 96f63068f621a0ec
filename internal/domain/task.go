package domain

import (
	"fmt"
	"time"
)

// TaskState is the externally visible execution state of an asynchronous task.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskStarted TaskState = "started"
	TaskRetry   TaskState = "retry"
	TaskFailure TaskState = "failure"
	TaskSuccess TaskState = "success"
)

// Terminal reports whether no further transitions can happen.
func (s TaskState) Terminal() bool { return s == TaskSuccess || s == TaskFailure }

// TaskRecord maps a task identifier to its execution state and, once
// available, its terminal result or error.
type TaskRecord struct {
	TaskID    string     `json:"task_id" validate:"required"`
	State     TaskState  `json:"state" validate:"required,oneof=pending started retry failure success"`
	Progress  float64    `json:"progress" validate:"min=0,max=1"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty" validate:"required_if=State failure"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate checks if the task record meets all requirements. A failure
// record must carry a human-readable error.
func (t TaskRecord) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("task record %q: %w", t.TaskID, err)
	}
	return nil
}

// NewSucceededTask builds the terminal success record of taskID. The result
// may belong to an earlier run with a different task id when it was served
// from the cache; the record always carries taskID.
func NewSucceededTask(taskID string, result *RunResult, at time.Time) TaskRecord {
	return TaskRecord{
		TaskID:    taskID,
		State:     TaskSuccess,
		Progress:  1,
		Result:    result,
		UpdatedAt: at,
	}
}

// NewFailedTask builds the terminal failure record. An empty message is
// replaced so a failure never surfaces without an explanation.
func NewFailedTask(taskID, message string, at time.Time) TaskRecord {
	if message == "" {
		message = "task failed without an error message"
	}
	return TaskRecord{
		TaskID:    taskID,
		State:     TaskFailure,
		Error:     message,
		UpdatedAt: at,
	}
}
