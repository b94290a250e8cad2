package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/preflight"
	"reelforge/internal/queue"
	"reelforge/internal/queueaccess"
	"reelforge/internal/staging"
)

const doctorProbeTimeout = 3 * time.Second

type doctorCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	// Advisory checks never fail the command.
	Advisory bool   `json:"advisory,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type doctorReport struct {
	ConfigPath   string                 `json:"configPath"`
	Checks       []doctorCheck          `json:"checks"`
	Dependencies []api.DependencyStatus `json:"dependencies"`
	QueueStats   map[string]int         `json:"queueStats,omitempty"`
}

func (r doctorReport) problems() int {
	count := 0
	for _, check := range r.Checks {
		if !check.Passed && !check.Advisory {
			count++
		}
	}
	for _, dep := range r.Dependencies {
		if !dep.Available && !dep.Optional {
			count++
		}
	}
	return count
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, collaborators, store, and daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := buildDoctorReport(cmd.Context(), cfg, ctx.configPath)
			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printDoctorReport(cmd, report)
			}
			if n := report.problems(); n > 0 {
				return fmt.Errorf("doctor found %d problem(s)", n)
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func buildDoctorReport(ctx context.Context, cfg *config.Config, configPath string) doctorReport {
	report := doctorReport{ConfigPath: configPath}
	for _, result := range preflight.RunAll(ctx, cfg) {
		report.Checks = append(report.Checks, doctorCheck{
			Name:   result.Name,
			Passed: result.Passed,
			Detail: result.Detail,
		})
	}

	stats, storeCheck := checkStore(ctx, cfg)
	report.Checks = append(report.Checks, storeCheck)
	report.QueueStats = stats

	report.Checks = append(report.Checks, checkWorkDirs(cfg))
	report.Checks = append(report.Checks, checkDaemon(ctx, cfg))
	report.Checks = append(report.Checks, doctorCheck{
		Name:     "Notifications",
		Passed:   strings.TrimSpace(cfg.Notifications.NtfyTopic) != "",
		Advisory: true,
		Detail:   notificationDetail(cfg),
	})
	report.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cfg))
	return report
}

func checkStore(ctx context.Context, cfg *config.Config) (map[string]int, doctorCheck) {
	check := doctorCheck{Name: "Job store"}
	probeCtx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	store, err := queueaccess.OpenStore(probeCtx, cfg)
	if err != nil {
		check.Detail = err.Error()
		return nil, check
	}
	defer store.Close()

	stats, err := queue.Stats(probeCtx, store)
	if err != nil {
		check.Detail = err.Error()
		return nil, check
	}
	check.Passed = true
	check.Detail = fmt.Sprintf("%s backend", cfg.Store.Backend)
	if cfg.Store.Backend == config.BackendMemory {
		check.Detail += " (jobs are lost on exit)"
	}
	return api.MergeQueueStats(stats), check
}

func checkWorkDirs(cfg *config.Config) doctorCheck {
	check := doctorCheck{Name: "Work directories", Advisory: true}
	dirs, err := staging.ListDirectories(cfg.Paths.WorkDir)
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	var total int64
	for _, dir := range dirs {
		total += dir.Size
	}
	check.Passed = true
	check.Detail = fmt.Sprintf("%d director(ies), %s", len(dirs), formatBytes(total))
	if days := cfg.Paths.WorkRetentionDays; days > 0 {
		check.Detail += fmt.Sprintf(", pruned after %d day(s)", days)
	}
	return check
}

func checkDaemon(ctx context.Context, cfg *config.Config) doctorCheck {
	check := doctorCheck{Name: "Daemon", Advisory: true}
	client, err := api.NewClientFromConfig(cfg)
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	probeCtx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()
	status, err := client.Status(probeCtx)
	if err != nil {
		check.Detail = fmt.Sprintf("not reachable at %s", cfg.Paths.APIBind)
		return check
	}
	check.Passed = true
	check.Detail = fmt.Sprintf("pid %d, %d worker(s), %d in flight", status.PID, status.Workflow.Workers, len(status.Workflow.InFlight))
	return check
}

func notificationDetail(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return "disabled"
	}
	return cfg.Notifications.NtfyTopic
}

func printDoctorReport(cmd *cobra.Command, report doctorReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "Config: %s\n\n", report.ConfigPath)
	for _, line := range renderSectionHeader("System", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range report.Checks {
		kind := statusOK
		switch {
		case !check.Passed && check.Advisory:
			kind = statusWarn
		case !check.Passed:
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Collaborators", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := make([][]string, 0, len(report.Dependencies))
	for _, dep := range report.Dependencies {
		state := "ready"
		if !dep.Available {
			state = "missing"
			if dep.Optional {
				state = "missing (optional)"
			}
		}
		rows = append(rows, []string{
			dep.Name,
			deps.DisplayCommand(deps.Status{Command: dep.Command}),
			state,
			dep.Detail,
		})
	}
	fmt.Fprint(out, renderTable([]string{"Collaborator", "Command", "State", "Detail"}, rows, nil))

	if len(report.QueueStats) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Queue", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprint(out, renderTable([]string{"Status", "Count"}, queueStatsRows(report.QueueStats), []columnAlignment{alignLeft, alignRight}))
	}
}
