package progress

import (
	"context"
	"math"
	"time"

	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

// Snapshot is the derived view of a job's progress.
type Snapshot struct {
	JobID                string          `json:"jobId"`
	Status               queue.Status    `json:"status"`
	CurrentStage         stage.ID        `json:"currentStage"`
	Percent              int             `json:"percent"`
	ElapsedMs            int64           `json:"elapsedMs"`
	EstimatedRemainingMs int64           `json:"estimatedRemainingMs"`
	Error                *queue.JobError `json:"error,omitempty"`
	PublishedURL         string          `json:"publishedUrl,omitempty"`
}

// CurrentStage returns the most recent stage that is running or finished.
// Failed records are ignored so a skipped optional stage never becomes
// current. Jobs without history report the registry's first stage.
func CurrentStage(job *queue.Job, reg *stage.Registry) stage.ID {
	for i := len(job.Stages) - 1; i >= 0; i-- {
		switch job.Stages[i].Status {
		case queue.StageInProgress, queue.StageCompleted:
			return job.Stages[i].Stage
		}
	}
	return reg.First().ID
}

// Calculate derives a Snapshot at time now.
//
// The remaining-time estimate assumes every stage takes equal time, so it
// is coarse for long collaborator stages such as rendering.
func Calculate(job *queue.Job, reg *stage.Registry, now time.Time) (Snapshot, error) {
	current := CurrentStage(job, reg)
	for _, rec := range job.Stages {
		if !reg.IsValid(rec.Stage) {
			return Snapshot{}, &stage.UnknownStageError{Stage: rec.Stage}
		}
	}
	index, err := reg.IndexOf(current)
	if err != nil {
		return Snapshot{}, err
	}

	percent := 0
	if reg.Len() > 1 {
		percent = int(math.Round(float64(index) / float64(reg.Len()-1) * 100))
	}
	percent = clamp(percent, 0, 100)

	elapsed := now.Sub(job.CreatedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	var remaining int64
	if percent > 0 {
		total := int64(math.Round(float64(elapsed) / (float64(percent) / 100)))
		remaining = total - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}

	snap := Snapshot{
		JobID:                job.ID,
		Status:               job.Status,
		CurrentStage:         current,
		Percent:              percent,
		ElapsedMs:            elapsed,
		EstimatedRemainingMs: remaining,
		PublishedURL:         job.PublishedURL,
	}
	if job.Error != nil {
		errCopy := *job.Error
		snap.Error = &errCopy
	}
	return snap, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service answers status queries from the store.
type Service struct {
	store    queue.Store
	registry *stage.Registry
	clock    Clock
}

// NewService builds a Service. A nil registry selects stage.Default and a
// nil clock selects wall-clock time.
func NewService(store queue.Store, reg *stage.Registry, clock Clock) *Service {
	if reg == nil {
		reg = stage.Default()
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Service{store: store, registry: reg, clock: clock}
}

// Clock returns the time source used for elapsed and remaining estimates.
func (s *Service) Clock() Clock { return s.clock }

// Status returns the progress snapshot for jobID. Unknown ids yield a
// *queue.JobNotFoundError.
func (s *Service) Status(ctx context.Context, jobID string) (Snapshot, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return Calculate(job, s.registry, s.clock.Now())
}
