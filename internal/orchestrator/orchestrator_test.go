package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
	"github.com/ahrav/go-promptloop/internal/orchestrator"
	"github.com/ahrav/go-promptloop/pkg/events"
)

var errCollaborator = &domain.CollaboratorError{
	Kind:      domain.GenerationFailure,
	Op:        "refine",
	Message:   "provider down",
	Retryable: true,
}

// scriptedGenerator returns "artifact-1" initially and "artifact-<n>" for
// the n-th artifact produced by Refine.
type scriptedGenerator struct {
	mu           sync.Mutex
	initialCalls int
	refineCalls  int
	initialErr   error
	refineErr    error
	fixed        string
}

func (g *scriptedGenerator) GenerateInitial(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialCalls++
	if g.initialErr != nil {
		return "", g.initialErr
	}
	if g.fixed != "" {
		return g.fixed, nil
	}
	return "artifact-1", nil
}

func (g *scriptedGenerator) Refine(context.Context, string, domain.Evaluation, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refineCalls++
	if g.refineErr != nil {
		return "", g.refineErr
	}
	if g.fixed != "" {
		return g.fixed, nil
	}
	return fmt.Sprintf("artifact-%d", g.refineCalls+1), nil
}

// scriptedEvaluator returns scores in order, repeating the last one.
type scriptedEvaluator struct {
	mu     sync.Mutex
	scores []int
	calls  int
	err    error
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, artifact string) (domain.Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return domain.Evaluation{}, e.err
	}
	score := e.scores[min(e.calls-1, len(e.scores)-1)]
	return domain.Evaluation{
		Score:            score,
		CategoryFeedback: map[string]domain.CategoryFeedback{"Clarity": {Score: score / 5, Note: artifact}},
		Suggestions:      []string{"improve " + artifact},
	}, nil
}

type fakeTracker struct {
	mu       sync.Mutex
	recorded map[string]*domain.RunResult
	err      error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{recorded: map[string]*domain.RunResult{}}
}

func (f *fakeTracker) Record(_ context.Context, taskID string, result *domain.RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recorded[taskID] = result
	return nil
}

func (f *fakeTracker) Status(_ context.Context, id string) (*domain.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recorded[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTask, id)
	}
	rec := domain.NewSucceededTask(id, r, r.CompletedAt)
	return &rec, nil
}

// tickingClock advances by a second on every reading.
type tickingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

type harness struct {
	gen     *scriptedGenerator
	eval    *scriptedEvaluator
	tracker *fakeTracker
	cache   *cache.Cache
	orch    *orchestrator.Orchestrator
}

func newHarness(t *testing.T, scores []int, mutate func(*configuration.LoopConfig), opts ...orchestrator.Option) *harness {
	t.Helper()
	store, err := cache.NewMemoryStore(1000)
	require.NoError(t, err)

	h := &harness{
		gen:     &scriptedGenerator{},
		eval:    &scriptedEvaluator{scores: scores},
		tracker: newFakeTracker(),
		cache:   cache.New(store, "test"),
	}
	cfg := configuration.DefaultConfig().Loop
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &tickingClock{next: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
	ids := 0
	base := []orchestrator.Option{
		orchestrator.WithClock(clock.Now),
		orchestrator.WithIDGenerator(func() string { ids++; return fmt.Sprintf("task-%d", ids) }),
	}
	h.orch, err = orchestrator.New(h.gen, h.eval, h.cache, h.tracker, cfg, append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func intPtr(v int) *int { return &v }

// The threshold is reached on the third evaluation.
func TestRunReachesTarget(t *testing.T) {
	h := newHarness(t, []int{300, 550, 820}, nil)

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "write a haiku prompt"}, nil)
	require.NoError(t, err)

	require.Len(t, res.Iterations, 3)
	assert.Equal(t, 820, res.FinalScore)
	assert.Equal(t, "artifact-3", res.FinalArtifact)
	assert.Equal(t, domain.OutcomeTargetReached, res.Outcome)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, "write a haiku prompt", res.Requirements)
	assert.Equal(t, 1, h.gen.initialCalls)
	assert.Equal(t, 2, h.gen.refineCalls)
	assert.Equal(t, 3, h.eval.calls)
	require.NoError(t, res.Validate())

	assert.Contains(t, h.tracker.recorded, "task-1")
	var cached domain.RunResult
	assert.True(t, h.cache.Get(context.Background(), orchestrator.RunKey("write a haiku prompt"), &cached))
	assert.Equal(t, *res, cached)
}

// The budget runs out before the threshold.
func TestRunExhaustsBudget(t *testing.T) {
	h := newHarness(t, []int{100, 200, 300}, nil)

	res, err := h.orch.Run(context.Background(), domain.RunRequest{
		Requirements:  "summarize legal text",
		MaxIterations: intPtr(2),
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Iterations, 2)
	assert.Equal(t, 200, res.FinalScore)
	assert.Equal(t, domain.OutcomeBudgetExhausted, res.Outcome)
	assert.Equal(t, 1, h.gen.refineCalls, "no refinement after the last budgeted evaluation")
}

func TestRunUsesConfiguredBudget(t *testing.T) {
	h := newHarness(t, []int{10}, func(c *configuration.LoopConfig) { c.MaxIterations = 4 })

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Iterations, 4)

	h = newHarness(t, []int{10}, func(c *configuration.LoopConfig) { c.MaxIterations = 4 })
	res, err = h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r", MaxIterations: intPtr(1)}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Iterations, 1, "request budget overrides configuration")
}

func TestRunTerminatesWithinBudget(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("budget_%d", n), func(t *testing.T) {
			h := newHarness(t, []int{0}, nil)
			res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r", MaxIterations: intPtr(n)}, nil)
			require.NoError(t, err)
			assert.Len(t, res.Iterations, n)
			assert.LessOrEqual(t, h.eval.calls, n)
		})
	}
}

func TestRunStopsEarlyOnFirstAcceptableScore(t *testing.T) {
	h := newHarness(t, []int{950, 100}, nil)

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r", MaxIterations: intPtr(5)}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Iterations, 1)
	assert.Zero(t, h.gen.refineCalls)
	assert.Equal(t, domain.OutcomeTargetReached, res.Outcome)
}

func TestRunThresholdIsInclusive(t *testing.T) {
	h := newHarness(t, []int{799, 800}, nil)

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Iterations, 2)
	assert.Equal(t, 800, res.FinalScore)
}

func TestRunIsIdempotentThroughCache(t *testing.T) {
	h := newHarness(t, []int{300, 900}, nil)
	ctx := context.Background()

	first, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "same"}, nil)
	require.NoError(t, err)
	calls := h.eval.calls
	refines := h.gen.refineCalls

	var seen []events.Progress
	second, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "same", TaskID: "other"},
		events.PublisherFunc(func(p events.Progress) { seen = append(seen, p) }))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, h.eval.calls)
	assert.Equal(t, refines, h.gen.refineCalls)
	assert.Equal(t, 1, h.gen.initialCalls)
	assert.Empty(t, seen, "a cached run emits no progress")
}

func TestRunCacheHitIsRecordedUnderRequestedTaskID(t *testing.T) {
	h := newHarness(t, []int{900}, nil)
	ctx := context.Background()

	first, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "same", TaskID: "first"}, nil)
	require.NoError(t, err)
	second, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "same", TaskID: "second"}, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "the cached result is returned unchanged")

	rec, err := h.orch.GetTaskStatus(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", rec.TaskID)
	assert.Equal(t, domain.TaskSuccess, rec.State)
	assert.Equal(t, first.FinalArtifact, rec.Result.FinalArtifact)

	rec, err = h.orch.GetTaskStatus(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", rec.TaskID)
}

func TestRunIgnoresInvalidCachedResult(t *testing.T) {
	h := newHarness(t, []int{900}, nil)
	ctx := context.Background()

	bogus := domain.RunResult{TaskID: "stale", FinalScore: 5}
	require.NoError(t, h.cache.Set(ctx, orchestrator.RunKey("r"), bogus, time.Hour))

	res, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 900, res.FinalScore)
	assert.Equal(t, 1, h.eval.calls)
}

func TestRunIndicesAndTimestampsAreMonotone(t *testing.T) {
	// A clock that steps backwards on every reading.
	clock := &tickingClock{next: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: -time.Second}
	h := newHarness(t, []int{100, 200, 300, 400, 500}, nil, orchestrator.WithClock(clock.Now))

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r", MaxIterations: intPtr(5)}, nil)
	require.NoError(t, err)

	for i, it := range res.Iterations {
		assert.Equal(t, i+1, it.Index)
		if i > 0 {
			assert.False(t, it.Timestamp.Before(res.Iterations[i-1].Timestamp))
		}
	}
	assert.False(t, res.CompletedAt.Before(res.Iterations[len(res.Iterations)-1].Timestamp))
}

func TestRunPublishesProgress(t *testing.T) {
	h := newHarness(t, []int{300, 850}, nil)
	bus := events.NewBus(16)

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r", TaskID: "given"}, bus)
	require.NoError(t, err)
	bus.Close()

	var got []events.Progress
	for p := range bus.Events() {
		got = append(got, p)
	}
	require.Len(t, got, 4)

	wantStatus := []events.Status{events.StatusEvaluating, events.StatusEvaluated, events.StatusEvaluating, events.StatusEvaluated}
	for i, p := range got {
		assert.Equal(t, "given", p.TaskID)
		assert.Equal(t, wantStatus[i], p.Status)
		assert.Equal(t, i/2+1, p.Iteration)
	}
	assert.Nil(t, got[0].Score)
	require.NotNil(t, got[1].Score)
	assert.Equal(t, 300, *got[1].Score)
	require.NotNil(t, got[3].Details)
	assert.Equal(t, res.Iterations[1], *got[3].Details)
	assert.Equal(t, "given", res.TaskID)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, []int{900}, nil)

	tests := []domain.RunRequest{
		{Requirements: ""},
		{Requirements: "   "},
		{Requirements: "r", MaxIterations: intPtr(0)},
	}
	for _, req := range tests {
		_, err := h.orch.Run(context.Background(), req, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}
	assert.Zero(t, h.gen.initialCalls)
	assert.Zero(t, h.eval.calls)
}

func TestRunPropagatesCollaboratorFailureWithoutRetry(t *testing.T) {
	h := newHarness(t, []int{100}, nil)
	h.gen.refineErr = errCollaborator

	_, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	require.Error(t, err)
	assert.Same(t, errCollaborator, err)
	assert.Equal(t, 1, h.gen.refineCalls)
	assert.Equal(t, 1, h.eval.calls)

	assert.False(t, h.cache.Exists(context.Background(), orchestrator.RunKey("r")))
	assert.Empty(t, h.tracker.recorded)
}

func TestRunPropagatesEvaluationFailure(t *testing.T) {
	h := newHarness(t, []int{100}, nil)
	evalErr := &domain.CollaboratorError{Kind: domain.EvaluationFailure, Op: "evaluate", Message: "no score"}
	h.eval.err = evalErr

	_, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	assert.Same(t, evalErr, err)
	assert.False(t, h.cache.Exists(context.Background(), orchestrator.EvaluationKey("artifact-1")))
}

func TestRunRejectsOutOfRangeEvaluation(t *testing.T) {
	h := newHarness(t, []int{1200}, nil)

	_, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	var cerr *domain.CollaboratorError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.EvaluationFailure, cerr.Kind)
}

func TestRunObservesCancellation(t *testing.T) {
	h := newHarness(t, []int{100}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "r"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.eval.calls)
}

func TestRunEvaluatesIdenticalArtifactOnce(t *testing.T) {
	h := newHarness(t, []int{100}, nil)
	h.gen.fixed = "same artifact"

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r", MaxIterations: intPtr(3)}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Iterations, 3)
	assert.Equal(t, 1, h.eval.calls, "repeat evaluations come from the cache")
}

func TestRunSurvivesTrackerFailure(t *testing.T) {
	h := newHarness(t, []int{900}, nil)
	h.tracker.err = errors.New("tracker down")

	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 900, res.FinalScore)
}

func TestGetTaskStatus(t *testing.T) {
	h := newHarness(t, []int{900}, nil)
	ctx := context.Background()

	res, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)

	rec, err := h.orch.GetTaskStatus(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSuccess, rec.State)
	assert.Equal(t, res.FinalScore, rec.Result.FinalScore)

	_, err = h.orch.GetTaskStatus(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownTask)
}

func TestCacheStatsAndClear(t *testing.T) {
	h := newHarness(t, []int{900}, nil)
	ctx := context.Background()

	_, err := h.orch.Run(ctx, domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)

	stats := h.orch.CacheStats()
	assert.Equal(t, int64(2), stats.Sets, "one evaluation and one run")
	assert.Equal(t, 2, h.orch.ClearCache(ctx))
	assert.False(t, h.cache.Exists(ctx, orchestrator.RunKey("r")))
}

func TestSaveResults(t *testing.T) {
	h := newHarness(t, []int{300, 900}, nil)
	res, err := h.orch.Run(context.Background(), domain.RunRequest{Requirements: "r"}, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "result.json")
	require.NoError(t, h.orch.SaveResults(path, res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved orchestrator.SavedRun
	require.NoError(t, json.Unmarshal(data, &saved))

	assert.Equal(t, res.TaskID, saved.TaskID)
	assert.Equal(t, res.FinalArtifact, saved.FinalPrompt)
	assert.Equal(t, 900, saved.FinalScore)
	assert.Len(t, saved.Iterations, 2)
	assert.Equal(t, 800, saved.Config.MinAcceptableScore)
	assert.Equal(t, int64(3), saved.CacheStats.Sets)

	assert.ErrorIs(t, h.orch.SaveResults(path, nil), domain.ErrInvalidResult)
}

func TestNewRejectsBadWiring(t *testing.T) {
	store, err := cache.NewMemoryStore(10)
	require.NoError(t, err)
	c := cache.New(store, "t")
	cfg := configuration.DefaultConfig().Loop

	_, err = orchestrator.New(nil, &scriptedEvaluator{}, c, newFakeTracker(), cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg.ProgressBuffer = 0
	_, err = orchestrator.New(&scriptedGenerator{}, &scriptedEvaluator{}, c, newFakeTracker(), cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
