package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-promptloop/internal/domain"
	"github.com/ahrav/go-promptloop/pkg/events"
)

type runFlags struct {
	file          string
	maxIterations int
	taskID        string
	save          string
	stats         bool
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [requirements]",
		Short: "Run the refinement loop in this process",
		Long: `Run the refinement loop in this process and print the final prompt.
Requirements come from the argument, from --file, or from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, err := readRequirements(args, f.file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := a.openCache(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			orch, err := a.newOrchestrator(c)
			if err != nil {
				return err
			}

			req := domain.RunRequest{Requirements: requirements, TaskID: f.taskID}
			if cmd.Flags().Changed("max-iterations") {
				req.MaxIterations = &f.maxIterations
			}

			out := cmd.OutOrStdout()
			result, err := orch.Run(ctx, req, events.PublisherFunc(func(p events.Progress) {
				printProgress(out, p)
			}))
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%s after %d iteration(s), score %d\n\n%s\n",
				result.Outcome, len(result.Iterations), result.FinalScore, result.FinalArtifact)

			if f.save != "" {
				if err := orch.SaveResults(f.save, result); err != nil {
					return err
				}
			}
			if f.stats {
				return printStats(out, orch.CacheStats())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read requirements from file")
	cmd.Flags().IntVarP(&f.maxIterations, "max-iterations", "n", 0, "evaluation budget for this run")
	cmd.Flags().StringVar(&f.taskID, "task-id", "", "task id to record the result under")
	cmd.Flags().StringVarP(&f.save, "save", "o", "", "write the run report to this JSON file")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "print cache statistics after the run")
	return cmd
}

func readRequirements(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file) // #nosec G304 -- user-selected input file
		if err != nil {
			return "", fmt.Errorf("failed to read requirements: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read requirements from stdin: %w", err)
		}
		return string(data), nil
	}
}

func printProgress(w io.Writer, p events.Progress) {
	if p.Score == nil {
		fmt.Fprintf(w, "iteration %d: %s\n", p.Iteration, p.Status)
		return
	}
	fmt.Fprintf(w, "iteration %d: %s score=%d\n", p.Iteration, p.Status, *p.Score)
}
