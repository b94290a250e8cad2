package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/daemonrun"
	"reelforge/internal/fileutil"
	"reelforge/internal/logging"
	"reelforge/internal/media/ffprobe"
	"reelforge/internal/queue"
	"reelforge/internal/queueaccess"
	"reelforge/internal/stage"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create, inspect, and control jobs",
	}

	jobCmd.AddCommand(newJobAddCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobStatusCommand(ctx))
	jobCmd.AddCommand(newJobSubmitCommand(ctx))
	jobCmd.AddCommand(newJobRunCommand(ctx))
	jobCmd.AddCommand(newJobCancelCommand(ctx))
	jobCmd.AddCommand(newJobLogsCommand(ctx))

	return jobCmd
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var jobID string
	var skipChecksum bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "add <video>",
		Short: "Probe a video file and queue it as a new job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			absPath, err := resolveVideoPath(args[0])
			if err != nil {
				return err
			}

			probe, err := ffprobe.Inspect(cmd.Context(), cfg.Media.FFprobeBinary, absPath)
			if err != nil {
				return fmt.Errorf("probe %s: %w", filepath.Base(absPath), err)
			}
			meta, err := probe.VideoMetadata()
			if err != nil {
				return fmt.Errorf("read metadata for %s: %w", filepath.Base(absPath), err)
			}
			if !skipChecksum {
				sum, size, err := fileutil.SHA256File(absPath)
				if err != nil {
					return fmt.Errorf("checksum %s: %w", filepath.Base(absPath), err)
				}
				meta.Checksum = sum
				if meta.SizeBytes == 0 {
					meta.SizeBytes = size
				}
			}

			if owner == "" {
				owner = defaultOwner()
			}
			var created *queue.Job
			err = ctx.withStore(cmd.Context(), func(store queue.Store) error {
				created, err = queue.CreateJob(cmd.Context(), store, queue.NewJobRequest{
					ID:         jobID,
					OwnerID:    owner,
					SourcePath: absPath,
					Metadata:   meta,
				})
				return err
			})
			if err != nil {
				if errors.Is(err, queue.ErrJobExists) {
					return fmt.Errorf("job %s already exists", jobID)
				}
				return err
			}

			view := api.FromJob(created, stage.Default(), time.Now())
			if asJSON {
				return writeJSON(cmd, api.JobResponse{Job: view})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s, %s, %dx%d)\n",
				view.ID,
				filepath.Base(absPath),
				formatSeconds(meta.DurationSeconds),
				meta.Resolution.Width,
				meta.Resolution.Height,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner recorded on the job (default: current user)")
	cmd.Flags().StringVar(&jobID, "id", "", "Job id (default: generated)")
	cmd.Flags().BoolVar(&skipChecksum, "no-checksum", false, "Skip the SHA-256 checksum of the source file")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd, func(session queueaccess.Session) error {
				jobs, err := session.Access.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					if jobs == nil {
						jobs = []api.Job{}
					}
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Stage", "Progress", "Source", "Created"},
					jobListRows(jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (queued, processing, completed, failed)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show job details and stage history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(session queueaccess.Session) error {
				job, err := session.Access.Describe(cmd.Context(), args[0])
				if err != nil {
					return describeAccessError(err, args[0])
				}
				if asJSON {
					return writeJSON(cmd, api.JobResponse{Job: job})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderDetails("Job "+job.ID, jobDetailPairs(job)))
				if len(job.Stages) > 0 {
					fmt.Fprint(out, renderTable(
						[]string{"Stage", "Status", "Attempts", "Started", "Finished", "Output / Error"},
						stageRows(job.Stages),
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
					))
				}
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show job progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return ctx.withAccess(cmd, func(session queueaccess.Session) error {
				out := cmd.OutOrStdout()
				tty := isTerminal(out)
				for {
					status, err := session.Access.Status(cmd.Context(), args[0])
					if err != nil {
						return describeAccessError(err, args[0])
					}
					if asJSON {
						if err := writeJSON(cmd, api.JobStatusResponse{Status: status}); err != nil {
							return err
						}
					} else {
						fmt.Fprintln(out, statusLine(status, tty))
					}
					if !watch || isTerminalStatus(status.Status) {
						return nil
					}
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(interval):
					}
				}
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the job completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --watch")
	return cmd
}

func newJobSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Ask the daemon to start a queued or interrupted job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(session queueaccess.Session) error {
				job, err := session.Access.Submit(cmd.Context(), args[0])
				if err != nil {
					return describeAccessError(err, args[0])
				}
				out := cmd.OutOrStdout()
				if session.Remote {
					fmt.Fprintf(out, "Submitted job %s (%s)\n", job.ID, job.Status)
					return nil
				}
				fmt.Fprintf(out, "Job %s is %s; no daemon is running. Start one with `reelforge daemon` or run it here with `reelforge job run %s`\n",
					job.ID, job.Status, job.ID)
				return nil
			})
		},
	}
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(session queueaccess.Session) error {
				job, err := session.Access.Cancel(cmd.Context(), args[0])
				if err != nil {
					return describeAccessError(err, args[0])
				}
				out := cmd.OutOrStdout()
				if isTerminalStatus(job.Status) {
					fmt.Fprintf(out, "Job %s %s\n", job.ID, job.Status)
					return nil
				}
				fmt.Fprintf(out, "Cancellation requested for job %s\n", job.ID)
				return nil
			})
		},
	}
}

func newJobRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job to completion in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			logger, err := logging.New(logging.Options{
				Level:       level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := daemonrun.NewRuntime(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			job, err := rt.Orchestrator.Run(runCtx, args[0])
			if err != nil {
				if errors.Is(err, context.Canceled) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted; job %s will resume on the next run\n", args[0])
				}
				return describeAccessError(err, args[0])
			}
			view := api.FromJob(job, rt.Orchestrator.Registry(), time.Now())
			out := cmd.OutOrStdout()
			switch job.Status {
			case queue.StatusCompleted:
				fmt.Fprintf(out, "Job %s completed: %s\n", job.ID, view.PublishedURL)
				return nil
			case queue.StatusFailed:
				if view.Error != nil {
					return fmt.Errorf("job %s failed at %s: %s", job.ID, view.Error.Stage, view.Error.Message)
				}
				return fmt.Errorf("job %s failed", job.ID)
			default:
				fmt.Fprintf(out, "Job %s is %s\n", job.ID, job.Status)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	return cmd
}

func resolveVideoPath(arg string) (string, error) {
	absPath, err := filepath.Abs(strings.TrimSpace(arg))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file does not exist: %s", absPath)
		}
		return "", fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}
	return absPath, nil
}

func parseStatusFilters(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(strings.ToLower(strings.TrimSpace(value)))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// describeAccessError turns store and API errors into operator-facing text.
func describeAccessError(err error, id string) error {
	switch {
	case queue.IsNotFound(err):
		return fmt.Errorf("job %s not found", id)
	case errors.Is(err, queue.ErrJobTerminal):
		return fmt.Errorf("job %s already finished", id)
	case errors.Is(err, queue.ErrLeaseHeld):
		return fmt.Errorf("job %s is being processed elsewhere", id)
	default:
		return err
	}
}

func defaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "local"
}
