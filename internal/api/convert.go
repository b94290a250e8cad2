package api

import (
	"time"

	"reelforge/internal/deps"
	"reelforge/internal/progress"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
	"reelforge/internal/workflow"
)

// FromJob converts a job to its API representation. The progress block is
// derived at now; a job whose history names an unknown stage keeps a zero
// progress block.
func FromJob(job *queue.Job, reg *stage.Registry, now time.Time) Job {
	if job == nil {
		return Job{}
	}
	if reg == nil {
		reg = stage.Default()
	}
	dto := Job{
		ID:         job.ID,
		OwnerID:    job.OwnerID,
		Status:     string(job.Status),
		SourcePath: job.SourcePath,
		CreatedAt:  FormatTime(job.CreatedAt),
		UpdatedAt:  FormatTime(job.UpdatedAt),
		Video: VideoMetadata{
			DurationSeconds: job.VideoMetadata.DurationSeconds,
			Width:           job.VideoMetadata.Resolution.Width,
			Height:          job.VideoMetadata.Resolution.Height,
			Format:          job.VideoMetadata.Format,
			SizeBytes:       job.VideoMetadata.SizeBytes,
			Checksum:        job.VideoMetadata.Checksum,
		},
		Stages:          make([]StageRecord, 0, len(job.Stages)),
		Error:           fromJobError(job.Error),
		PublishedURL:    job.PublishedURL,
		CancelRequested: job.CancelRequested,
	}
	if job.Lease != nil {
		dto.LeaseOwner = job.Lease.Owner
	}
	for _, rec := range job.Stages {
		out := StageRecord{
			Stage:      string(rec.Stage),
			Label:      stage.Label(rec.Stage),
			Status:     string(rec.Status),
			OutputPath: rec.OutputPath,
			Error:      rec.Error,
			Attempts:   rec.Attempts,
			Skipped:    rec.Skipped,
		}
		if rec.StartTime != nil {
			out.StartedAt = FormatTime(*rec.StartTime)
		}
		if rec.EndTime != nil {
			out.FinishedAt = FormatTime(*rec.EndTime)
		}
		dto.Stages = append(dto.Stages, out)
	}
	if snapshot, err := progress.Calculate(job, reg, now); err == nil {
		dto.Progress = fromSnapshotProgress(snapshot)
	}
	return dto
}

// FromJobs converts a slice of jobs into API DTOs.
func FromJobs(jobs []*queue.Job, reg *stage.Registry, now time.Time) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job, reg, now))
	}
	return out
}

// FromSnapshot converts a progress snapshot to a status payload.
func FromSnapshot(snapshot progress.Snapshot) JobStatus {
	return JobStatus{
		JobID:        snapshot.JobID,
		Status:       string(snapshot.Status),
		Progress:     fromSnapshotProgress(snapshot),
		Error:        fromJobError(snapshot.Error),
		PublishedURL: snapshot.PublishedURL,
	}
}

func fromSnapshotProgress(snapshot progress.Snapshot) JobProgress {
	return JobProgress{
		Stage:                string(snapshot.CurrentStage),
		Label:                stage.Label(snapshot.CurrentStage),
		Percent:              snapshot.Percent,
		ElapsedMs:            snapshot.ElapsedMs,
		EstimatedRemainingMs: snapshot.EstimatedRemainingMs,
	}
}

func fromJobError(err *queue.JobError) *JobError {
	if err == nil {
		return nil
	}
	return &JobError{
		Stage:     string(err.Stage),
		Message:   err.Message,
		Kind:      err.Kind,
		Timestamp: FormatTime(err.Timestamp),
	}
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary, reg *stage.Registry, now time.Time) WorkflowStatus {
	inFlight := summary.InFlight
	if inFlight == nil {
		inFlight = []string{}
	}
	wf := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		InFlight:    inFlight,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth, reg),
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob, reg, now)
		wf.LastJob = &last
	}
	return wf
}

// MergeQueueStats produces a string-keyed representation of queue stats
// with a zero entry for every status.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// StageHealthSlice orders a stage health map by registry position.
func StageHealthSlice(health map[stage.ID]stage.Health, reg *stage.Registry) []StageHealth {
	if reg == nil {
		reg = stage.Default()
	}
	out := make([]StageHealth, 0, len(health))
	for _, def := range reg.Definitions() {
		h, ok := health[def.ID]
		if !ok {
			continue
		}
		out = append(out, StageHealth{
			Name:   string(def.ID),
			Label:  stage.Label(def.ID),
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}
	return out
}

// FromDependencies converts binary checks to API payload.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
