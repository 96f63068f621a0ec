// Package domain provides the core types of the prompt refinement loop.
// It defines run requests, evaluations, iteration records, run results and
// task records, together with the error kinds shared by every layer. All
// persisted shapes carry JSON tags and are safe to store in the cache.
package domain

import (
	"fmt"
	"sort"
)

// Score bounds on the evaluator's scale.
const (
	MinScore = 0
	MaxScore = 1000
)

// ClampScore pins v into [MinScore, MaxScore].
func ClampScore(v int) int {
	switch {
	case v < MinScore:
		return MinScore
	case v > MaxScore:
		return MaxScore
	default:
		return v
	}
}

// CategoryFeedback is the evaluator's verdict on one quality category.
type CategoryFeedback struct {
	Score int    `json:"score"`
	Note  string `json:"note"`
}

// Evaluation is the structured verdict produced by the Evaluator for one
// artifact. The orchestrator treats it as immutable once returned.
type Evaluation struct {
	// Score is the overall quality score on a 0-1000 scale.
	Score int `json:"score" validate:"min=0,max=1000"`

	// CategoryFeedback maps a category name to its score and note.
	CategoryFeedback map[string]CategoryFeedback `json:"category_feedback"`

	// Suggestions lists improvement suggestions in the order given.
	Suggestions []string `json:"suggestions"`
}

// Validate checks if the evaluation meets all requirements.
func (e Evaluation) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	return nil
}

// Clone returns a deep copy so callers can hand evaluations across goroutines
// without sharing the underlying map or slice.
func (e Evaluation) Clone() Evaluation {
	return Evaluation{
		Score:            e.Score,
		CategoryFeedback: cloneFeedback(e.CategoryFeedback),
		Suggestions:      cloneStrings(e.Suggestions),
	}
}

// Categories returns the feedback category names in lexical order.
func (e Evaluation) Categories() []string {
	names := make([]string, 0, len(e.CategoryFeedback))
	for name := range e.CategoryFeedback {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
