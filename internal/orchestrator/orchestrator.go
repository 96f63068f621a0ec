// Package orchestrator runs the refinement loop: generate an artifact,
// evaluate it, and refine it until the score reaches the acceptance
// threshold or the iteration budget runs out.
//
// Each run is a single logical flow. Runs share nothing but the cache, and
// a completed run is cached by requirements so that repeating it costs no
// collaborator calls. The orchestrator never retries a failed collaborator
// call; retries belong to the asynchronous boundary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
	"github.com/ahrav/go-promptloop/pkg/events"
)

// Generator produces and refines artifacts.
type Generator interface {
	GenerateInitial(ctx context.Context, requirements string) (string, error)
	Refine(ctx context.Context, artifact string, eval domain.Evaluation, requirements string) (string, error)
}

// Evaluator scores artifacts.
type Evaluator interface {
	Evaluate(ctx context.Context, artifact string) (domain.Evaluation, error)
}

// Tracker stores task outcomes and answers status queries.
type Tracker interface {
	Record(ctx context.Context, taskID string, result *domain.RunResult) error
	Status(ctx context.Context, taskID string) (*domain.TaskRecord, error)
}

// Orchestrator is safe for concurrent use; each Run call is independent.
type Orchestrator struct {
	generator Generator
	evaluator Evaluator
	cache     *cache.Cache
	tracker   Tracker
	cfg       configuration.LoopConfig

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source for iteration timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides how task ids are assigned to requests without
// one.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New wires an orchestrator. The evaluator is wrapped so that each distinct
// artifact is evaluated at most once per evaluation TTL.
func New(gen Generator, eval Evaluator, c *cache.Cache, tracker Tracker, cfg configuration.LoopConfig, opts ...Option) (*Orchestrator, error) {
	if gen == nil || eval == nil || c == nil || tracker == nil {
		return nil, &domain.ConfigurationError{Field: "orchestrator", Reason: "generator, evaluator, cache and tracker are required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		generator: gen,
		cache:     c,
		tracker:   tracker,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.evaluator = NewCachedEvaluator(eval, c, cfg.EvaluationCacheTTL)
	return o, nil
}

// Config returns the loop configuration the orchestrator was built with.
func (o *Orchestrator) Config() configuration.LoopConfig { return o.cfg }

// RunKey is the cache key of a completed run for requirements.
func RunKey(requirements string) string { return cache.ContentKey("run", requirements) }

// Run executes the loop for req, publishing progress as it goes. A nil
// publisher discards progress. On success the result is cached under
// RunKey and recorded with the tracker under the run's task id. A cached
// result is returned unchanged but is still recorded under the task id of
// this request.
//
// Cancellation of ctx is observed between collaborator calls; a call
// already in flight is bounded by its own timeout.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest, progress events.Publisher) (*domain.RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = events.Discard
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = o.newID()
	}
	logger := o.logger.With("task_id", taskID)
	key := RunKey(req.Requirements)

	var cached domain.RunResult
	if o.cache.Get(ctx, key, &cached) {
		err := cached.Validate()
		if err == nil {
			logger.InfoContext(ctx, "run served from cache",
				"cached_task_id", cached.TaskID, "final_score", cached.FinalScore)
			o.record(ctx, logger, taskID, &cached)
			return &cached, nil
		}
		logger.WarnContext(ctx, "ignoring invalid cached run", "error", err)
	}

	result, err := o.loop(ctx, logger, taskID, req, progress)
	if err != nil {
		logger.WarnContext(ctx, "run failed", "error", err)
		return nil, err
	}

	if err := o.cache.Set(ctx, key, result, o.cfg.RunCacheTTL); err != nil {
		logger.WarnContext(ctx, "run result not cached", "error", err)
	}
	o.record(ctx, logger, taskID, result)

	logger.InfoContext(ctx, "run completed",
		"outcome", result.Outcome,
		"iterations", len(result.Iterations),
		"final_score", result.FinalScore)
	return result, nil
}

func (o *Orchestrator) loop(ctx context.Context, logger *slog.Logger, taskID string, req domain.RunRequest, progress events.Publisher) (*domain.RunResult, error) {
	budget, bounded := o.budget(req)
	stamp := monotonic(o.now)

	artifact, err := o.generator.GenerateInitial(ctx, req.Requirements)
	if err != nil {
		return nil, err
	}

	var (
		iterations []domain.Iteration
		outcome    domain.Outcome
	)
	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		progress.Publish(events.Progress{
			TaskID:    taskID,
			Iteration: index,
			Status:    events.StatusEvaluating,
			Timestamp: stamp(),
		})

		eval, err := o.evaluator.Evaluate(ctx, artifact)
		if err != nil {
			return nil, err
		}
		if err := eval.Validate(); err != nil {
			return nil, &domain.CollaboratorError{
				Kind:    domain.EvaluationFailure,
				Op:      "evaluate",
				Message: "evaluator returned an out-of-range evaluation",
				Cause:   err,
			}
		}

		it := domain.Iteration{
			Index:      index,
			Artifact:   artifact,
			Evaluation: eval,
			Timestamp:  stamp(),
		}
		iterations = append(iterations, it)

		score := it.Score()
		detail := it
		detail.Evaluation = it.Evaluation.Clone()
		progress.Publish(events.Progress{
			TaskID:    taskID,
			Iteration: index,
			Status:    events.StatusEvaluated,
			Score:     &score,
			Details:   &detail,
			Timestamp: it.Timestamp,
		})
		logger.InfoContext(ctx, "iteration evaluated", "iteration", index, "score", score)

		if score >= o.cfg.MinAcceptableScore {
			outcome = domain.OutcomeTargetReached
			break
		}
		if bounded && index >= budget {
			outcome = domain.OutcomeBudgetExhausted
			break
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		artifact, err = o.generator.Refine(ctx, artifact, eval, req.Requirements)
		if err != nil {
			return nil, err
		}
	}

	last := iterations[len(iterations)-1]
	result := &domain.RunResult{
		TaskID:        taskID,
		FinalArtifact: last.Artifact,
		FinalScore:    last.Score(),
		Outcome:       outcome,
		Iterations:    iterations,
		Requirements:  req.Requirements,
		CompletedAt:   stamp(),
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("assembling run result: %w", err)
	}
	return result, nil
}

// budget resolves the effective iteration cap: the request's, else the
// configured one. The boolean is false when neither sets a cap.
func (o *Orchestrator) budget(req domain.RunRequest) (int, bool) {
	if req.MaxIterations != nil {
		return *req.MaxIterations, true
	}
	return o.cfg.BoundedIterations()
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, taskID string, result *domain.RunResult) {
	if err := o.tracker.Record(ctx, taskID, result); err != nil {
		logger.WarnContext(ctx, "run result not recorded", "error", err)
	}
}

// monotonic wraps now so successive readings never go backwards, keeping
// iteration timestamps ordered when the wall clock steps back.
func monotonic(now func() time.Time) func() time.Time {
	var last time.Time
	return func() time.Time {
		t := now()
		if t.Before(last) {
			return last
		}
		last = t
		return t
	}
}

// GetTaskStatus returns the tracker's view of a task. Unknown ids yield an
// error matching domain.ErrUnknownTask.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	rec, err := o.tracker.Status(ctx, taskID)
	if err != nil && !errors.Is(err, domain.ErrUnknownTask) {
		o.logger.WarnContext(ctx, "task status lookup failed", "task_id", taskID, "error", err)
	}
	return rec, err
}

// CacheStats returns the shared cache counters.
func (o *Orchestrator) CacheStats() cache.Stats { return o.cache.Stats() }

// ClearCache removes every entry in the cache namespace and returns how
// many were removed.
func (o *Orchestrator) ClearCache(ctx context.Context) int { return o.cache.Clear(ctx, "*") }
