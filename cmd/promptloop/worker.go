package main

import (
	"github.com/spf13/cobra"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-promptloop/internal/generation"
	"github.com/ahrav/go-promptloop/internal/worker"
	"github.com/ahrav/go-promptloop/pkg/events"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute submitted runs",
		Long: `Start a Temporal worker that executes submitted runs. At most
worker.concurrency runs execute at once; the rest wait in the task queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			orch, err := a.newOrchestrator(c)
			if err != nil {
				return err
			}

			tc, err := worker.NewClient(a.cfg.Temporal, a.logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			logger := a.logger.With("component", "worker")
			w := worker.New(tc, a.cfg)
			worker.RegisterAll(w, orch, a.cfg.Loop, events.PublisherFunc(func(p events.Progress) {
				logger.Debug("progress",
					"task_id", p.TaskID,
					"iteration", p.Iteration,
					"status", p.Status)
			}), generation.WithHeartbeatTimeout(a.cfg.Worker.HeartbeatTimeout))

			logger.Info("worker starting",
				"task_queue", a.cfg.Temporal.TaskQueue,
				"concurrency", a.cfg.Worker.Concurrency)
			err = w.Run(sdkworker.InterruptCh())
			s := c.Stats()
			logger.Info("worker stopped",
				"cache_hits", s.Hits,
				"cache_misses", s.Misses,
				"cache_errors", s.Errors)
			return err
		},
	}
}
