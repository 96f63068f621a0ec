// Package queue is the asynchronous submission boundary backed by Temporal.
// A task is one GenerationWorkflow execution whose workflow id is the task
// id; status is derived from the execution description, the workflow memo
// and the last heartbeat of the running activity.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
	"github.com/ahrav/go-promptloop/internal/workflow"
	"github.com/ahrav/go-promptloop/pkg/activity"
)

// RevokedMessage is the error recorded for canceled or terminated tasks.
const RevokedMessage = "task revoked"

// workflowClient is the subset of client.Client the queue uses.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
	TerminateWorkflow(ctx context.Context, workflowID, runID, reason string, details ...any) error
}

// Queue submits runs and reports on them. It is safe for concurrent use.
type Queue struct {
	client     workflowClient
	taskQueue  string
	rpcTimeout time.Duration
	input      workflow.Input
	dc         converter.DataConverter
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New returns a queue over c. The retry policy and activity timeouts in cfg
// are attached to every submitted workflow.
func New(c workflowClient, cfg configuration.Config, opts ...Option) *Queue {
	q := &Queue{
		client:     c,
		taskQueue:  cfg.Temporal.TaskQueue,
		rpcTimeout: cfg.Temporal.RPCTimeout,
		input: workflow.Input{
			Retry:            cfg.Retry,
			ActivityTimeout:  cfg.Worker.ActivityTimeout,
			HeartbeatTimeout: cfg.Worker.HeartbeatTimeout,
		},
		dc:     converter.GetDefaultDataConverter(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "queue")
	return q
}

// Submit starts a run and returns its task id without waiting for it. An
// empty req.TaskID gets a fresh UUID.
func (q *Queue) Submit(ctx context.Context, req domain.RunRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	in := q.input
	in.Request = req

	ctx, cancel := context.WithTimeout(ctx, q.rpcTimeout)
	defer cancel()
	run, err := q.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        req.TaskID,
		TaskQueue: q.taskQueue,
		Memo: map[string]any{
			workflow.MemoPhase:   workflow.PhaseRunning,
			workflow.MemoAttempt: 0,
		},
	}, workflow.GenerationWorkflow, in)
	if err != nil {
		return "", fmt.Errorf("submit task %s: %w", req.TaskID, err)
	}

	q.logger.Info("task submitted", "task_id", run.GetID(), "run_id", run.GetRunID())
	return run.GetID(), nil
}

// Status reports the current state of taskID.
func (q *Queue) Status(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, q.rpcTimeout)
	defer cancel()

	desc, err := q.client.DescribeWorkflowExecution(ctx, taskID, "")
	if err != nil {
		return nil, q.lookupError(taskID, err)
	}
	info := desc.GetWorkflowExecutionInfo()
	now := q.now()

	switch info.GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		rec := q.runningRecord(taskID, desc)
		rec.UpdatedAt = now
		return &rec, nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var result *domain.RunResult
		if err := q.client.GetWorkflow(ctx, taskID, "").Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("fetch result of task %s: %w", taskID, err)
		}
		if result == nil {
			return nil, fmt.Errorf("task %s completed without a result", taskID)
		}
		rec := domain.NewSucceededTask(taskID, result, now)
		return &rec, nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		rec := domain.NewFailedTask(taskID, RevokedMessage, now)
		return &rec, nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		rec := domain.NewFailedTask(taskID, "task timed out", now)
		return &rec, nil

	default:
		err := q.client.GetWorkflow(ctx, taskID, "").Get(ctx, nil)
		rec := domain.NewFailedTask(taskID, failureMessage(err), now)
		return &rec, nil
	}
}

// runningRecord maps a running execution. A started activity means the
// loop is executing; a retry_wait memo means the last attempt failed and
// the workflow is sleeping; anything else has not been picked up yet.
func (q *Queue) runningRecord(taskID string, desc *workflowservice.DescribeWorkflowExecutionResponse) domain.TaskRecord {
	rec := domain.TaskRecord{TaskID: taskID, State: domain.TaskPending}

	for _, pa := range desc.GetPendingActivities() {
		if pa.GetState() != enumspb.PENDING_ACTIVITY_STATE_STARTED {
			continue
		}
		rec.State = domain.TaskStarted
		if hb, ok := q.heartbeat(pa.GetHeartbeatDetails()); ok {
			rec.Progress = hb.Progress
		}
		return rec
	}

	if q.memoString(desc.GetWorkflowExecutionInfo().GetMemo(), workflow.MemoPhase) == workflow.PhaseRetryWait {
		rec.State = domain.TaskRetry
	}
	return rec
}

func (q *Queue) heartbeat(p *commonpb.Payloads) (activity.HeartbeatDetails, bool) {
	var hb activity.HeartbeatDetails
	if p == nil || len(p.GetPayloads()) == 0 {
		return hb, false
	}
	if err := q.dc.FromPayloads(p, &hb); err != nil {
		q.logger.Warn("undecodable heartbeat details", "error", err)
		return hb, false
	}
	return hb, true
}

func (q *Queue) memoString(m *commonpb.Memo, key string) string {
	p, ok := m.GetFields()[key]
	if !ok {
		return ""
	}
	var s string
	if err := q.dc.FromPayload(p, &s); err != nil {
		q.logger.Warn("undecodable memo field", "key", key, "error", err)
		return ""
	}
	return s
}

// Revoke cancels taskID, or terminates it when terminate is set. Cancellation
// reaches the running loop at its next heartbeat; termination is immediate.
func (q *Queue) Revoke(ctx context.Context, taskID string, terminate bool) error {
	ctx, cancel := context.WithTimeout(ctx, q.rpcTimeout)
	defer cancel()

	var err error
	if terminate {
		err = q.client.TerminateWorkflow(ctx, taskID, "", RevokedMessage)
	} else {
		err = q.client.CancelWorkflow(ctx, taskID, "")
	}
	if err != nil {
		return q.lookupError(taskID, err)
	}
	q.logger.Info("task revoked", "task_id", taskID, "terminate", terminate)
	return nil
}

func (q *Queue) lookupError(taskID string, err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTask, taskID)
	}
	return fmt.Errorf("task %s: %w", taskID, err)
}

// failureMessage extracts a readable reason from a failed workflow result.
func failureMessage(err error) string {
	if err == nil {
		return "task failed"
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Message() != "" {
		return appErr.Message()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "task timed out"
	}
	return err.Error()
}
