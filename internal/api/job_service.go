package api

import (
	"context"

	"reelforge/internal/progress"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

// JobService exposes read-only job queries returning API DTOs.
type JobService struct {
	store    queue.Store
	registry *stage.Registry
	clock    progress.Clock
	progress *progress.Service
}

// NewJobService constructs a JobService. A nil registry selects
// stage.Default and a nil clock selects wall-clock time.
func NewJobService(store queue.Store, reg *stage.Registry, clock progress.Clock) *JobService {
	if reg == nil {
		reg = stage.Default()
	}
	svc := progress.NewService(store, reg, clock)
	return &JobService{store: store, registry: reg, clock: svc.Clock(), progress: svc}
}

// List returns jobs filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs, s.registry, s.clock.Now()), nil
}

// Describe fetches a single job. Unknown ids yield a *queue.JobNotFoundError.
func (s *JobService) Describe(ctx context.Context, id string) (Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job, s.registry, s.clock.Now()), nil
}

// Status returns the progress view of one job.
func (s *JobService) Status(ctx context.Context, id string) (JobStatus, error) {
	snapshot, err := s.progress.Status(ctx, id)
	if err != nil {
		return JobStatus{}, err
	}
	return FromSnapshot(snapshot), nil
}

// Stats returns job counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := queue.Stats(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}
