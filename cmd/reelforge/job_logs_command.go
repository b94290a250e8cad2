package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/logs"
	"reelforge/internal/workflow"
)

func newJobLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print a job's log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := workflow.NewJobLogger(cfg).Path(args[0])
			if path == "" {
				return fmt.Errorf("paths.log_dir is not set")
			}
			out := cmd.OutOrStdout()
			emit := func(batch []string) error {
				_, err := fmt.Fprintln(out, strings.Join(batch, "\n"))
				return err
			}

			result, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			if len(result.Lines) > 0 {
				if err := emit(result.Lines); err != nil {
					return err
				}
			} else if !follow {
				fmt.Fprintf(cmd.ErrOrStderr(), "No log entries for job %s (%s)\n", args[0], path)
				return nil
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, 500*time.Millisecond, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries until interrupted")
	return cmd
}
