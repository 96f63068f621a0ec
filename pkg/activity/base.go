// Package activity provides common infrastructure for Temporal activity
// implementations: workflow context extraction, logging and heartbeats that
// are safe to call outside an activity, and the heartbeat payload shared by
// the worker and the queue client.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-promptloop/pkg/events"
)

// WorkflowContext contains metadata extracted from the Temporal activity context.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
	// HeartbeatTimeout is zero when the activity was scheduled without one.
	HeartbeatTimeout time.Duration
}

// HeartbeatDetails is recorded with every heartbeat of a run. The queue
// client decodes the last one to report progress.
type HeartbeatDetails struct {
	// Progress is the estimated completion fraction in [0, 1).
	Progress float64 `json:"progress"`
	// Attempt is the 1-based run attempt, counted by the workflow.
	Attempt int `json:"attempt"`
	// Iteration is the loop iteration the heartbeat reports on.
	Iteration int `json:"iteration"`
	// Status is the loop phase of the last progress event.
	Status events.Status `json:"status,omitempty"`
	// Score is the last known evaluation score.
	Score *int `json:"score,omitempty"`
}

// BaseActivities provides infrastructure shared by activity types. The
// optional observer sees every progress event an activity forwards, which
// the CLI worker uses for local logging.
type BaseActivities struct {
	observer events.Publisher
}

// NewBaseActivities returns base activities forwarding progress to observer.
// A nil observer discards.
func NewBaseActivities(observer events.Publisher) BaseActivities {
	if observer == nil {
		observer = events.Discard
	}
	return BaseActivities{observer: observer}
}

// GetWorkflowContext extracts workflow execution details. Outside an
// activity (plain unit tests, where activity.GetInfo panics) it returns
// generated test identifiers.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext

	func() {
		defer func() {
			if r := recover(); r != nil {
				wfCtx.WorkflowID = "test-workflow-" + uuid.NewString()[:8]
				wfCtx.RunID = "test-run-" + uuid.NewString()[:8]
				wfCtx.ActivityID = "test-activity"
				wfCtx.Attempt = 1
			}
		}()

		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
		wfCtx.Attempt = info.Attempt
		wfCtx.HeartbeatTimeout = info.HeartbeatTimeout
	}()

	return wfCtx
}

// ForwardProgress hands p to the observer. A panicking observer is logged
// and otherwise ignored; progress is never worth failing a run over.
func (b *BaseActivities) ForwardProgress(ctx context.Context, p events.Progress) {
	if b.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			SafeLogError(ctx, fmt.Sprintf("progress observer panicked: %v", r),
				"task_id", p.TaskID, "iteration", p.Iteration)
		}
	}()
	b.observer.Publish(p)
}

// RecordHeartbeat safely records a heartbeat in the Temporal activity context.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details HeartbeatDetails) {
	RecordHeartbeat(ctx, details)
}

// SafeLog logs at INFO through the activity logger, and is a no-op outside
// an activity context.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at ERROR level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records a heartbeat with details; a no-op outside an
// activity context.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
