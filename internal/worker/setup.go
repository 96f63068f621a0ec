// Package worker builds the Temporal client and worker that execute
// submitted runs.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-promptloop/internal/configuration"
)

// NewClient dials the Temporal frontend described by cfg. The client logs
// through logger.
func NewClient(cfg configuration.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(clientOptions(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// CheckHealth reports whether the Temporal frontend answers a health check
// before ctx ends. The client is created lazily so an unreachable server
// surfaces here rather than at construction.
func CheckHealth(ctx context.Context, cfg configuration.TemporalConfig, logger *slog.Logger) error {
	c, err := client.NewLazyClient(clientOptions(cfg, logger))
	if err != nil {
		return fmt.Errorf("temporal client for %s: %w", cfg.HostPort, err)
	}
	defer c.Close()

	if _, err := c.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return fmt.Errorf("temporal at %s: %w", cfg.HostPort, err)
	}
	return nil
}

func clientOptions(cfg configuration.TemporalConfig, logger *slog.Logger) client.Options {
	return client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(logger.With("component", "temporal")),
	}
}

// New returns a worker polling the configured task queue. At most
// cfg.Worker.Concurrency runs execute at once; further runs wait in the
// task queue.
func New(c client.Client, cfg configuration.Config) sdkworker.Worker {
	return sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Worker.Concurrency,
	})
}
