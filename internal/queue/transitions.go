package queue

import (
	"fmt"
	"strings"
	"time"

	"reelforge/internal/stage"
)

func (j *Job) ensureRecord(id stage.ID) *StageRecord {
	if rec := j.Record(id); rec != nil {
		return rec
	}
	j.Stages = append(j.Stages, StageRecord{Stage: id, Status: StagePending})
	return &j.Stages[len(j.Stages)-1]
}

func (j *Job) ensureMutable() error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s is %s: %w", j.ID, j.Status, ErrJobTerminal)
	}
	return nil
}

// MarkProcessing moves a queued job to processing. It is a no-op for a job
// that is already processing.
func (j *Job) MarkProcessing() error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	j.Status = StatusProcessing
	return nil
}

// StartStage moves a stage to in-progress. A record already in progress
// keeps its original start time.
func (j *Job) StartStage(id stage.ID, now time.Time) error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	rec := j.ensureRecord(id)
	switch rec.Status {
	case StageCompleted, StageFailed:
		return fmt.Errorf("stage %s is %s: %w", id, rec.Status, ErrInvalidTransition)
	}
	rec.Status = StageInProgress
	if rec.StartTime == nil {
		rec.StartTime = timePtr(normalizeTime(now))
	}
	j.Status = StatusProcessing
	return nil
}

// RecordAttempt counts one handler invocation for the stage.
func (j *Job) RecordAttempt(id stage.ID) {
	j.ensureRecord(id).Attempts++
}

// CompleteStage marks a stage completed with its output. Completing the
// terminal stage completes the job and publishes the output as its URL.
func (j *Job) CompleteStage(id stage.ID, outputPath string, now time.Time) error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	rec := j.ensureRecord(id)
	switch rec.Status {
	case StageCompleted, StageFailed:
		return fmt.Errorf("stage %s is %s: %w", id, rec.Status, ErrInvalidTransition)
	}
	ts := normalizeTime(now)
	rec.Status = StageCompleted
	if rec.StartTime == nil {
		rec.StartTime = timePtr(ts)
	}
	rec.EndTime = timePtr(ts)
	rec.OutputPath = strings.TrimSpace(outputPath)
	rec.Error = ""
	j.Status = StatusProcessing
	if id == stage.Completed {
		j.Status = StatusCompleted
		j.PublishedURL = rec.OutputPath
		j.Lease = nil
	}
	return nil
}

// FailStage marks a stage failed without touching the job status. Skipped
// marks an optional stage whose failure the pipeline tolerated.
func (j *Job) FailStage(id stage.ID, message string, skipped bool, now time.Time) error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	rec := j.ensureRecord(id)
	if rec.Status == StageCompleted {
		return fmt.Errorf("stage %s is %s: %w", id, rec.Status, ErrInvalidTransition)
	}
	ts := normalizeTime(now)
	rec.Status = StageFailed
	if rec.StartTime == nil {
		rec.StartTime = timePtr(ts)
	}
	rec.EndTime = timePtr(ts)
	rec.Error = strings.TrimSpace(message)
	rec.Skipped = skipped
	return nil
}

// Fail terminates the job with a fatal error attributed to stage id. Any
// in-progress record for that stage is failed alongside.
func (j *Job) Fail(id stage.ID, kind, message string, now time.Time) error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	ts := normalizeTime(now)
	if rec := j.Record(id); rec != nil && rec.Status != StageCompleted && rec.Status != StageFailed {
		if err := j.FailStage(id, message, false, ts); err != nil {
			return err
		}
	}
	j.Status = StatusFailed
	j.Error = &JobError{
		Stage:     id,
		Message:   strings.TrimSpace(message),
		Kind:      kind,
		Timestamp: ts,
	}
	j.Lease = nil
	return nil
}

// RequestCancel flags the job for cancellation. Runs observe the flag before
// each stage and each retry.
func (j *Job) RequestCancel() error {
	if err := j.ensureMutable(); err != nil {
		return err
	}
	j.CancelRequested = true
	return nil
}

// ResumePoint returns the first stage in reg that has neither completed nor
// been skipped, plus the outputs gathered so far. It reports false when every
// stage is done.
func (j *Job) ResumePoint(reg *stage.Registry) (stage.Definition, map[stage.ID]string, bool) {
	outputs := make(map[stage.ID]string, len(j.Stages))
	for _, def := range reg.Definitions() {
		rec := j.Record(def.ID)
		switch {
		case rec != nil && rec.Status == StageCompleted:
			outputs[def.ID] = rec.OutputPath
		case rec != nil && rec.Status == StageFailed && rec.Skipped:
			outputs[def.ID] = ""
		default:
			return def, outputs, true
		}
	}
	return stage.Definition{}, outputs, false
}
