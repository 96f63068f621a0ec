package generation

import "github.com/ahrav/go-promptloop/pkg/events"

// maxRunningProgress keeps a running task below 1; only success reports 1.
const maxRunningProgress = 0.99

// estimateProgress turns a progress event into a completion fraction. With an
// iteration budget it is the share of budgeted evaluations done, counting an
// evaluation in flight as half. Without one, the last score relative to the
// acceptance threshold is the best available estimate.
func estimateProgress(p events.Progress, budget int, bounded bool, minScore int) float64 {
	var f float64
	switch {
	case bounded && budget > 0:
		done := float64(p.Iteration - 1)
		if p.Status == events.StatusEvaluated {
			done++
		} else {
			done += 0.5
		}
		f = done / float64(budget)
	case p.Score != nil && minScore > 0:
		f = float64(*p.Score) / float64(minScore)
	default:
		return 0
	}
	return min(max(f, 0), maxRunningProgress)
}
