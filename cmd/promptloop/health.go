package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-promptloop/internal/worker"
)

var errUnhealthy = errors.New("one or more dependencies are unhealthy")

func newHealthCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the cache store and the Temporal frontend",
		Long: `Report the version and whether the cache store and the Temporal
frontend answer. Exits non-zero when either check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "promptloop %s\n", version)

			healthy := true
			report := func(name string, err error) {
				if err != nil {
					healthy = false
					fmt.Fprintf(out, "%s: unavailable (%v)\n", name, err)
					return
				}
				fmt.Fprintf(out, "%s: ok\n", name)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report(fmt.Sprintf("cache (%s)", a.cfg.Cache.Backend), a.pingCache(ctx))
			report(fmt.Sprintf("temporal (%s)", a.cfg.Temporal.HostPort),
				worker.CheckHealth(ctx, a.cfg.Temporal, a.logger))

			if !healthy {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "deadline for all checks")
	return cmd
}

func (a *app) pingCache(ctx context.Context) error {
	c, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Ping(ctx)
}
