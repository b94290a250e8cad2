package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"reelforge/internal/api"
	"reelforge/internal/queue"
)

func jobListRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		stageLabel := job.Progress.Label
		if stageLabel == "" {
			stageLabel = "-"
		}
		rows = append(rows, []string{
			shortID(job.ID),
			jobStatusLabel(job.Status, job.CancelRequested),
			stageLabel,
			fmt.Sprintf("%d%%", job.Progress.Percent),
			filepath.Base(job.SourcePath),
			displayTime(job.CreatedAt),
		})
	}
	return rows
}

func jobDetailPairs(job api.Job) [][2]string {
	pairs := [][2]string{
		{"Status", jobStatusLabel(job.Status, job.CancelRequested)},
		{"Owner", job.OwnerID},
		{"Source", job.SourcePath},
		{"Video", videoSummary(job.Video)},
		{"Checksum", job.Video.Checksum},
		{"Stage", job.Progress.Label},
		{"Progress", fmt.Sprintf("%d%%", job.Progress.Percent)},
		{"Elapsed", formatMillis(job.Progress.ElapsedMs)},
		{"Remaining", remainingLabel(job.Status, job.Progress.EstimatedRemainingMs)},
		{"Created", displayTime(job.CreatedAt)},
		{"Updated", displayTime(job.UpdatedAt)},
		{"Published", job.PublishedURL},
		{"Lease", job.LeaseOwner},
	}
	if job.Error != nil {
		pairs = append(pairs,
			[2]string{"Failed stage", job.Error.Stage},
			[2]string{"Error", errorText(job.Error)},
		)
	}
	return pairs
}

func stageRows(stages []api.StageRecord) [][]string {
	rows := make([][]string, 0, len(stages))
	for _, rec := range stages {
		status := rec.Status
		if rec.Skipped {
			status = "skipped"
		}
		detail := rec.OutputPath
		if rec.Error != "" {
			detail = rec.Error
		}
		rows = append(rows, []string{
			rec.Label,
			status,
			fmt.Sprintf("%d", rec.Attempts),
			displayTime(rec.StartedAt),
			displayTime(rec.FinishedAt),
			detail,
		})
	}
	return rows
}

// statusLine renders one line of `job status` output.
func statusLine(status api.JobStatus, tty bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-10s %s", shortID(status.JobID), status.Status, renderProgressBar(status.Progress.Percent, tty))
	if label := status.Progress.Label; label != "" {
		fmt.Fprintf(&b, "  %s", label)
	}
	if !isTerminalStatus(status.Status) {
		fmt.Fprintf(&b, "  elapsed %s  remaining %s",
			formatMillis(status.Progress.ElapsedMs),
			formatMillis(status.Progress.EstimatedRemainingMs),
		)
	}
	switch {
	case status.Error != nil:
		fmt.Fprintf(&b, "  error: %s", errorText(status.Error))
	case status.PublishedURL != "":
		fmt.Fprintf(&b, "  %s", status.PublishedURL)
	}
	return b.String()
}

func queueStatsRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(stats))
	for _, status := range queue.AllStatuses() {
		key := string(status)
		seen[key] = true
		rows = append(rows, []string{key, fmt.Sprintf("%d", stats[key])})
	}
	extra := make([]string, 0)
	for key := range stats {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{key, fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func jobStatusLabel(status string, cancelRequested bool) string {
	if cancelRequested && !isTerminalStatus(status) {
		return status + " (cancelling)"
	}
	return status
}

func isTerminalStatus(status string) bool {
	parsed, ok := queue.ParseStatus(status)
	return ok && parsed.IsTerminal()
}

func remainingLabel(status string, ms int64) string {
	if isTerminalStatus(status) {
		return ""
	}
	return formatMillis(ms)
}

func videoSummary(video api.VideoMetadata) string {
	parts := []string{formatSeconds(video.DurationSeconds)}
	if video.Width > 0 && video.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", video.Width, video.Height))
	}
	if video.Format != "" {
		parts = append(parts, video.Format)
	}
	if size := formatBytes(video.SizeBytes); size != "" {
		parts = append(parts, size)
	}
	return strings.Join(parts, ", ")
}

func errorText(err *api.JobError) string {
	if err == nil {
		return ""
	}
	if err.Kind != "" {
		return fmt.Sprintf("%s (%s)", err.Message, err.Kind)
	}
	return err.Message
}
