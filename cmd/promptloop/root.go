package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/llm"
	"github.com/ahrav/go-promptloop/internal/orchestrator"
	"github.com/ahrav/go-promptloop/internal/queue"
	"github.com/ahrav/go-promptloop/internal/tasks"
	"github.com/ahrav/go-promptloop/internal/worker"
)

var version = "0.1.0"

// app holds what every subcommand shares once configuration is loaded.
type app struct {
	configPath string
	cfg        configuration.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "promptloop",
		Short: "Iterative prompt generation and refinement",
		Long: `promptloop generates a prompt from requirements, has it scored by an
evaluator model and refines it until the score reaches the configured
threshold or the iteration budget runs out.

Runs execute locally with "promptloop run" or asynchronously on Temporal
workers with "promptloop submit".`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := configuration.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Log.NewLogger(os.Stderr)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (yaml, json or toml)")

	root.AddCommand(
		newWorkerCmd(a),
		newRunCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
		newRevokeCmd(a),
		newCacheCmd(a),
		newHealthCmd(a),
	)
	return root
}

func (a *app) openCache(ctx context.Context) (*cache.Cache, error) {
	c, err := cache.NewFromConfig(ctx, a.cfg.Cache, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return c, nil
}

// newOrchestrator wires the LLM collaborators into a loop over c. The tracker
// has no queue: it only records results for later status lookups.
func (a *app) newOrchestrator(c *cache.Cache) (*orchestrator.Orchestrator, error) {
	client := llm.NewClient(a.cfg.LLM, llm.WithLogger(a.logger))
	tracker := tasks.New(c, nil, a.cfg.Loop, tasks.WithLogger(a.logger))
	return orchestrator.New(
		llm.NewArchitect(client, a.cfg.LLM, a.logger),
		llm.NewJudge(client, a.cfg.LLM, a.logger),
		c,
		tracker,
		a.cfg.Loop,
		orchestrator.WithLogger(a.logger),
	)
}

// openTracker returns a tracker backed by the Temporal queue. The returned
// function releases the client and the cache.
func (a *app) openTracker(ctx context.Context) (*tasks.Tracker, *queue.Queue, func(), error) {
	c, err := a.openCache(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	tc, err := worker.NewClient(a.cfg.Temporal, a.logger)
	if err != nil {
		_ = c.Close()
		return nil, nil, nil, err
	}
	q := queue.New(tc, a.cfg, queue.WithLogger(a.logger))
	t := tasks.New(c, q, a.cfg.Loop, tasks.WithLogger(a.logger))
	return t, q, func() {
		tc.Close()
		_ = c.Close()
	}, nil
}
