package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-promptloop/internal/cache"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the result cache",
	}
	cmd.AddCommand(newCacheTTLCmd(a), newCacheClearCmd(a))
	return cmd
}

func newCacheTTLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ttl <key>",
		Short: "Show whether a key exists and its remaining lifetime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if !c.Exists(cmd.Context(), args[0]) {
				fmt.Fprintf(out, "%s: not found\n", c.Key(args[0]))
				return nil
			}
			if ttl, ok := c.TTL(cmd.Context(), args[0]); ok {
				fmt.Fprintf(out, "%s: expires in %s\n", c.Key(args[0]), ttl)
				return nil
			}
			fmt.Fprintf(out, "%s: no expiry\n", c.Key(args[0]))
			return nil
		},
	}
}

func newCacheClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [pattern]",
		Short: "Delete cached entries matching a glob (default: all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			n := c.Clear(cmd.Context(), pattern)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cleared %d entries matching %s\n", n, c.Key(pattern))
			return printStats(out, c.Stats())
		},
	}
}

func printStats(out io.Writer, s cache.Stats) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "hits\t%d\n", s.Hits)
	fmt.Fprintf(w, "misses\t%d\n", s.Misses)
	fmt.Fprintf(w, "sets\t%d\n", s.Sets)
	fmt.Fprintf(w, "deletes\t%d\n", s.Deletes)
	fmt.Fprintf(w, "errors\t%d\n", s.Errors)
	fmt.Fprintf(w, "hit rate\t%.2f\n", s.HitRate)
	return w.Flush()
}
