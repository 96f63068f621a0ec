package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-promptloop/internal/domain"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		file          string
		maxIterations int
		taskID        string
	)
	cmd := &cobra.Command{
		Use:   "submit [requirements]",
		Short: "Submit a run for a worker and print its task id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, err := readRequirements(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			_, q, closeFn, err := a.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			req := domain.RunRequest{Requirements: requirements, TaskID: taskID}
			if cmd.Flags().Changed("max-iterations") {
				req.MaxIterations = &maxIterations
			}
			id, err := q.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read requirements from file")
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "evaluation budget for this run")
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id to use instead of a generated one")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Print the state of a task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, _, closeFn, err := a.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := tracker.Status(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrUnknownTask) {
				return fmt.Errorf("task %s not found", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

func newRevokeCmd(a *app) *cobra.Command {
	var terminate bool
	cmd := &cobra.Command{
		Use:   "revoke <task-id>",
		Short: "Cancel a task",
		Long: `Cancel a task. A canceled run stops at its next collaborator call;
with --terminate it stops immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, _, closeFn, err := a.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if !tracker.Revoke(cmd.Context(), args[0], terminate) {
				return fmt.Errorf("failed to revoke task %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked task: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&terminate, "terminate", false, "terminate instead of cancel")
	return cmd
}
