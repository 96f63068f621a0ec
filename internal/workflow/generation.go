package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
	"github.com/ahrav/go-promptloop/internal/generation"
	"github.com/ahrav/go-promptloop/internal/retry"
)

// WorkflowName is the name GenerationWorkflow is registered under.
const WorkflowName = "GenerationWorkflow"

// Memo keys upserted by GenerationWorkflow.
const (
	MemoPhase   = "phase"
	MemoAttempt = "attempt"
)

// Phases recorded under MemoPhase.
const (
	PhaseRunning   = "running"
	PhaseRetryWait = "retry_wait"
)

// Input is the argument of GenerationWorkflow. The retry policy and the
// activity timeouts travel with each execution so that a change of worker
// configuration never alters a workflow mid-flight.
type Input struct {
	Request          domain.RunRequest         `json:"request"`
	Retry            configuration.RetryConfig `json:"retry"`
	ActivityTimeout  time.Duration             `json:"activity_timeout"`
	HeartbeatTimeout time.Duration             `json:"heartbeat_timeout"`
}

// GenerationWorkflow runs the refinement loop for one request, retrying
// transient failures of the whole run up to Retry.MaxAttempts times.
func GenerationWorkflow(ctx workflow.Context, in Input) (*domain.RunResult, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "generation.v", workflow.DefaultVersion, currentVersion)

	if err := in.Request.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid run request",
			generation.ErrTypeValidation,
			err,
		)
	}

	req := in.Request
	if req.TaskID == "" {
		req.TaskID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: in.ActivityTimeout,
		HeartbeatTimeout:    in.HeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	logger := workflow.GetLogger(ctx)

	maxAttempts := max(in.Retry.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		setPhase(ctx, PhaseRunning, attempt)

		var result *domain.RunResult
		err := workflow.ExecuteActivity(ctx, generation.ActivityName, generation.Input{
			Request: req,
			Attempt: attempt,
		}).Get(ctx, &result)
		if err == nil {
			return result, nil
		}

		if !retryableFailure(err) || attempt >= maxAttempts {
			logger.Error("run failed", "task_id", req.TaskID, "attempt", attempt, "error", err)
			return nil, err
		}

		var fraction float64
		if err := workflow.SideEffect(ctx, func(workflow.Context) any {
			return retry.Fraction()
		}).Get(&fraction); err != nil {
			return nil, err
		}
		delay := retry.Delay(in.Retry, attempt, fraction)

		logger.Warn("run attempt failed, retrying",
			"task_id", req.TaskID,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		setPhase(ctx, PhaseRetryWait, attempt)
		if err := workflow.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// setPhase publishes the workflow phase. A failed upsert only costs status
// precision, so it is logged and ignored.
func setPhase(ctx workflow.Context, phase string, attempt int) {
	if err := workflow.UpsertMemo(ctx, map[string]any{
		MemoPhase:   phase,
		MemoAttempt: attempt,
	}); err != nil {
		workflow.GetLogger(ctx).Warn("memo upsert failed", "phase", phase, "error", err)
	}
}

// retryableFailure reports whether another attempt could succeed: a
// retryable application error from the activity, or an activity timeout.
func retryableFailure(err error) bool {
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		return false
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return !appErr.NonRetryable()
	}
	var timeoutErr *temporal.TimeoutError
	return errors.As(err, &timeoutErr)
}
