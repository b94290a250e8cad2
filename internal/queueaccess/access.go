package queueaccess

import (
	"context"
	"fmt"

	"reelforge/internal/api"
	"reelforge/internal/queue"
)

// Access provides job operations regardless of API or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses ...queue.Status) ([]api.Job, error)
	Describe(ctx context.Context, id string) (api.Job, error)
	Status(ctx context.Context, id string) (api.JobStatus, error)
	Submit(ctx context.Context, id string) (api.Job, error)
	Cancel(ctx context.Context, id string) (api.Job, error)
}

// NewAPIAccess returns an Access backed by the daemon API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct store access.
func NewStoreAccess(store queue.Store) Access {
	return &storeAccess{store: store, service: api.NewJobService(store, nil, nil)}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.QueueStats, nil
}

func (a *apiAccess) List(ctx context.Context, statuses ...queue.Status) ([]api.Job, error) {
	return a.client.ListJobs(ctx, statuses...)
}

func (a *apiAccess) Describe(ctx context.Context, id string) (api.Job, error) {
	return a.client.GetJob(ctx, id)
}

func (a *apiAccess) Status(ctx context.Context, id string) (api.JobStatus, error) {
	return a.client.JobStatus(ctx, id)
}

func (a *apiAccess) Submit(ctx context.Context, id string) (api.Job, error) {
	return a.client.Submit(ctx, id)
}

func (a *apiAccess) Cancel(ctx context.Context, id string) (api.Job, error) {
	return a.client.Cancel(ctx, id)
}

type storeAccess struct {
	store   queue.Store
	service *api.JobService
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses ...queue.Status) ([]api.Job, error) {
	return a.service.List(ctx, statuses...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (api.Job, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Status(ctx context.Context, id string) (api.JobStatus, error) {
	return a.service.Status(ctx, id)
}

// Submit checks the job can still run. Queued jobs are picked up by the
// daemon's poll loop once it starts.
func (a *storeAccess) Submit(ctx context.Context, id string) (api.Job, error) {
	job, err := a.store.Get(ctx, id)
	if err != nil {
		return api.Job{}, err
	}
	if job.Status.IsTerminal() {
		return api.Job{}, fmt.Errorf("submit job %s: %s: %w", id, job.Status, queue.ErrJobTerminal)
	}
	return a.service.Describe(ctx, id)
}

// Cancel records the cancel request durably. The next orchestration that
// touches the job fails it with a cancelled error.
func (a *storeAccess) Cancel(ctx context.Context, id string) (api.Job, error) {
	if _, err := a.store.Update(ctx, id, func(j *queue.Job) error {
		return j.RequestCancel()
	}); err != nil {
		return api.Job{}, err
	}
	return a.service.Describe(ctx, id)
}
