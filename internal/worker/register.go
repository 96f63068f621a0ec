package worker

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/generation"
	workflows "github.com/ahrav/go-promptloop/internal/workflow"
	pkgactivity "github.com/ahrav/go-promptloop/pkg/activity"
	"github.com/ahrav/go-promptloop/pkg/events"
)

// Registry is the registration surface shared by sdkworker.Worker and the
// Temporal test environments.
type Registry interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// RegisterAll registers the generation workflow and activity with r. It must
// be called once, before the worker starts. observer sees every progress
// event the activity forwards and may be nil.
func RegisterAll(r Registry, runner generation.Runner, loop configuration.LoopConfig, observer events.Publisher, opts ...generation.Option) {
	base := pkgactivity.NewBaseActivities(observer)
	acts := generation.NewActivities(base, runner, loop, opts...)

	r.RegisterWorkflowWithOptions(workflows.GenerationWorkflow, workflow.RegisterOptions{
		Name: workflows.WorkflowName,
	})
	r.RegisterActivityWithOptions(acts.RunGeneration, activity.RegisterOptions{
		Name: generation.ActivityName,
	})
}
