package generation

import (
	"context"
	"time"

	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
	"github.com/ahrav/go-promptloop/pkg/activity"
	"github.com/ahrav/go-promptloop/pkg/events"
)

// ActivityName is the name RunGeneration is registered under.
const ActivityName = "RunGeneration"

// Runner executes one refinement run.
type Runner interface {
	Run(ctx context.Context, req domain.RunRequest, progress events.Publisher) (*domain.RunResult, error)
}

// Input is the argument of RunGeneration.
type Input struct {
	Request domain.RunRequest `json:"request"`
	// Attempt is the workflow's 1-based attempt counter. Temporal's own
	// activity attempt is always 1 because retries happen in the workflow.
	Attempt int `json:"attempt"`
}

// Activities holds the generation activity and its dependencies.
type Activities struct {
	activity.BaseActivities
	runner Runner
	loop   configuration.LoopConfig

	// heartbeatTimeout is used when the activity info carries none.
	heartbeatTimeout time.Duration
	record           func(context.Context, activity.HeartbeatDetails)
}

// Option configures Activities.
type Option func(*Activities)

// WithHeartbeatTimeout sets the timeout the keep-alive ticker paces itself
// against when the scheduled activity has no heartbeat timeout of its own.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(a *Activities) {
		if d > 0 {
			a.heartbeatTimeout = d
		}
	}
}

// NewActivities returns activities that run requests with runner. loop
// supplies the default budget, threshold and progress buffer size.
func NewActivities(base activity.BaseActivities, runner Runner, loop configuration.LoopConfig, opts ...Option) *Activities {
	a := &Activities{
		BaseActivities:   base,
		runner:           runner,
		loop:             loop,
		heartbeatTimeout: configuration.DefaultHeartbeatTimeout,
	}
	a.record = a.BaseActivities.RecordHeartbeat
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunGeneration executes one attempt of a run. Progress events are drained
// on a separate goroutine into heartbeats so that a slow heartbeat never
// stalls the loop, and cancellation of the workflow reaches the loop through
// ctx once a heartbeat observes it. A ticker repeats the last heartbeat
// every third of the heartbeat timeout, since a single collaborator call
// can outlast the timeout without emitting progress.
func (a *Activities) RunGeneration(ctx context.Context, in Input) (*domain.RunResult, error) {
	if err := in.Request.Validate(); err != nil {
		return nil, nonRetryable(ErrTypeValidation, err, "invalid run request")
	}

	wfCtx := a.GetWorkflowContext(ctx)
	req := in.Request
	if req.TaskID == "" {
		req.TaskID = wfCtx.WorkflowID
	}
	timeout := wfCtx.HeartbeatTimeout
	if timeout <= 0 {
		timeout = a.heartbeatTimeout
	}
	attempt := max(in.Attempt, 1)

	activity.SafeLog(ctx, "starting run attempt",
		"task_id", req.TaskID,
		"attempt", attempt)

	budget, bounded := a.loop.BoundedIterations()
	if req.MaxIterations != nil {
		budget, bounded = *req.MaxIterations, true
	}

	hb := &heartbeater{record: a.record}
	bus := events.NewBus(a.loop.ProgressBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range bus.Events() {
			hb.beat(ctx, activity.HeartbeatDetails{
				Progress:  estimateProgress(p, budget, bounded, a.loop.MinAcceptableScore),
				Attempt:   attempt,
				Iteration: p.Iteration,
				Status:    p.Status,
				Score:     p.Score,
			})
			a.ForwardProgress(ctx, p)
		}
	}()

	hb.beat(ctx, activity.HeartbeatDetails{Attempt: attempt})
	stopKeepAlive := hb.keepAlive(ctx, heartbeatInterval(timeout))
	result, err := a.runner.Run(ctx, req, bus)
	stopKeepAlive()
	bus.Close()
	<-drained

	if err != nil {
		activity.SafeLogError(ctx, "run attempt failed",
			"task_id", req.TaskID,
			"attempt", attempt,
			"dropped_progress", bus.Dropped(),
			"error", err)
		return nil, classify(err)
	}

	activity.SafeLog(ctx, "run attempt succeeded",
		"task_id", req.TaskID,
		"attempt", attempt,
		"outcome", result.Outcome,
		"final_score", result.FinalScore)
	return result, nil
}
