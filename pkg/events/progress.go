// Package events carries per-iteration progress notifications from a running
// refinement loop to whoever is watching it: a CLI printing lines, or a
// Temporal activity turning them into heartbeats.
//
// Publishing never blocks the loop. A slow consumer loses the oldest
// undelivered events, never the newest.
package events

import (
	"time"

	"github.com/ahrav/go-promptloop/internal/domain"
)

// Status names the loop phase an event reports.
type Status string

const (
	// StatusEvaluating is published before an artifact is evaluated.
	StatusEvaluating Status = "EVALUATING"
	// StatusEvaluated is published once the iteration record exists.
	StatusEvaluated Status = "EVALUATED"
)

// Progress is a single notification. Score and Details are set only for
// StatusEvaluated.
type Progress struct {
	TaskID    string            `json:"task_id"`
	Iteration int               `json:"iteration"`
	Status    Status            `json:"status"`
	Score     *int              `json:"current_score,omitempty"`
	Details   *domain.Iteration `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher receives progress. Implementations must return promptly.
type Publisher interface {
	Publish(Progress)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Progress)

// Publish calls f.
func (f PublisherFunc) Publish(p Progress) { f(p) }

type discard struct{}

func (discard) Publish(Progress) {}

// Discard drops every event.
var Discard Publisher = discard{}
