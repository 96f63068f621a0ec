package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunRequest is the input of one generation run.
type RunRequest struct {
	// Requirements describes what the generated artifact must satisfy.
	Requirements string `json:"requirements" validate:"required"`

	// MaxIterations caps the number of evaluations. Nil defers to the
	// configured budget, which may itself be unbounded.
	MaxIterations *int `json:"max_iterations,omitempty" validate:"omitempty,min=1"`

	// TaskID correlates the run with its asynchronous task. Empty means the
	// orchestrator assigns one.
	TaskID string `json:"task_id,omitempty"`
}

// Validate checks the run preconditions: non-blank requirements and, when
// given, a positive iteration budget.
func (r RunRequest) Validate() error {
	if strings.TrimSpace(r.Requirements) == "" {
		return fmt.Errorf("%w: requirements must not be empty", ErrInvalidRequest)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Outcome records which termination condition ended a run.
type Outcome string

const (
	// OutcomeTargetReached means the last score met the acceptance threshold.
	OutcomeTargetReached Outcome = "target_reached"

	// OutcomeBudgetExhausted means the iteration budget ran out first.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
)

// Iteration is one entry of a run's audit trail. Iterations are appended and
// never mutated.
type Iteration struct {
	Index      int        `json:"index" validate:"min=1"`
	Artifact   string     `json:"artifact"`
	Evaluation Evaluation `json:"evaluation"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Score is a shorthand for the iteration's overall evaluation score.
func (it Iteration) Score() int { return it.Evaluation.Score }

// RunResult is created exactly once when the loop terminates.
type RunResult struct {
	TaskID        string      `json:"task_id"`
	FinalArtifact string      `json:"final_artifact"`
	FinalScore    int         `json:"final_score"`
	Outcome       Outcome     `json:"outcome"`
	Iterations    []Iteration `json:"iterations"`
	Requirements  string      `json:"requirements"`
	CompletedAt   time.Time   `json:"completed_at"`
}

// LastIteration returns the final iteration record and false when the
// result carries no iterations.
func (r *RunResult) LastIteration() (Iteration, bool) {
	if r == nil || len(r.Iterations) == 0 {
		return Iteration{}, false
	}
	return r.Iterations[len(r.Iterations)-1], true
}

// Validate enforces the result invariants: at least one iteration, indices
// 1..n in order, non-decreasing timestamps, and a final score and artifact
// that match the last iteration.
func (r *RunResult) Validate() error {
	last, ok := r.LastIteration()
	if !ok {
		return fmt.Errorf("%w: no iterations", ErrInvalidResult)
	}
	for i, it := range r.Iterations {
		if it.Index != i+1 {
			return fmt.Errorf("%w: iteration %d has index %d", ErrInvalidResult, i, it.Index)
		}
		if i > 0 && it.Timestamp.Before(r.Iterations[i-1].Timestamp) {
			return fmt.Errorf("%w: iteration %d timestamp goes backwards", ErrInvalidResult, it.Index)
		}
		if err := it.Evaluation.Validate(); err != nil {
			return fmt.Errorf("%w: iteration %d: %w", ErrInvalidResult, it.Index, err)
		}
	}
	if r.FinalScore != last.Score() {
		return fmt.Errorf("%w: final score %d does not match last iteration score %d",
			ErrInvalidResult, r.FinalScore, last.Score())
	}
	if r.FinalArtifact != last.Artifact {
		return fmt.Errorf("%w: final artifact does not match last iteration", ErrInvalidResult)
	}
	return nil
}
