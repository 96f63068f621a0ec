package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-promptloop/pkg/events"
)

func TestHelpersAreSafeOutsideActivity(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		SafeLog(ctx, "hello", "k", "v")
		SafeLogError(ctx, "oops")
		RecordHeartbeat(ctx, HeartbeatDetails{Progress: 0.5})
	})

	b := NewBaseActivities(nil)
	wf := b.GetWorkflowContext(ctx)
	assert.Contains(t, wf.WorkflowID, "test-workflow-")
	assert.Equal(t, int32(1), wf.Attempt)
}

func TestForwardProgress(t *testing.T) {
	var got []events.Progress
	b := NewBaseActivities(events.PublisherFunc(func(p events.Progress) { got = append(got, p) }))

	b.ForwardProgress(context.Background(), events.Progress{TaskID: "t", Iteration: 2})
	assert.Equal(t, []events.Progress{{TaskID: "t", Iteration: 2}}, got)
}

func TestForwardProgressSurvivesPanickingObserver(t *testing.T) {
	b := NewBaseActivities(events.PublisherFunc(func(events.Progress) { panic("boom") }))

	assert.NotPanics(t, func() {
		b.ForwardProgress(context.Background(), events.Progress{TaskID: "t"})
	})
}
