package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"reelforge/internal/services"
	"reelforge/internal/stage"
)

// Store persists jobs keyed by id.
//
// Update is the only mutation primitive: it loads the job, applies mutate to
// a private copy and commits the result atomically. If mutate returns an
// error nothing is written. Readers always observe whole committed jobs.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, statuses ...Status) ([]*Job, error)
	Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error)
	Close() error
}

// NewJobRequest describes a job to create. Job creation happens outside the
// orchestrator; the CLI and tests use this helper.
type NewJobRequest struct {
	ID         string        `validate:"omitempty,max=128"`
	OwnerID    string        `validate:"required,max=256"`
	SourcePath string        `validate:"required"`
	Metadata   VideoMetadata `validate:"required"`
}

var validate = validator.New()

// NewJob validates req and builds a queued job. The caller persists it with
// Store.Create.
func NewJob(req NewJobRequest) (*Job, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.SourcePath = strings.TrimSpace(req.SourcePath)
	if err := validate.Struct(req); err != nil {
		return nil, services.Wrap(services.KindValidation, stage.Uploaded, "create job", "invalid job request", err)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := Now()
	return &Job{
		ID:            id,
		OwnerID:       req.OwnerID,
		Status:        StatusQueued,
		SourcePath:    req.SourcePath,
		CreatedAt:     now,
		UpdatedAt:     now,
		VideoMetadata: req.Metadata,
		Stages:        []StageRecord{},
	}, nil
}

// CreateJob builds and stores a job in one call.
func CreateJob(ctx context.Context, store Store, req NewJobRequest) (*Job, error) {
	job, err := NewJob(req)
	if err != nil {
		return nil, err
	}
	if err := store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Stats counts jobs per status.
func Stats(ctx context.Context, store Store) (map[Status]int, error) {
	jobs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[Status]int, len(allStatuses))
	for _, job := range jobs {
		stats[job.Status]++
	}
	return stats, nil
}

// ApplyUpdate is the shared commit rule for Store implementations outside
// this package. It returns the state to persist, or the error that aborts
// the write.
func ApplyUpdate(current *Job, mutate func(*Job) error) (*Job, error) {
	return commitUpdate(current, mutate)
}

// PrepareCreate fills defaults on a job about to be inserted.
func PrepareCreate(job *Job) (*Job, error) {
	return prepareCreate(job)
}

// commitUpdate applies mutate to a copy of current and enforces the fields
// no mutation may change.
func commitUpdate(current *Job, mutate func(*Job) error) (*Job, error) {
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.OwnerID = current.OwnerID
	next.SourcePath = current.SourcePath
	next.CreatedAt = current.CreatedAt
	next.VideoMetadata = current.VideoMetadata
	if current.Status.IsTerminal() && next.Status != current.Status {
		return nil, fmt.Errorf("job %s is %s: %w", current.ID, current.Status, ErrJobTerminal)
	}
	next.UpdatedAt = Now()
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}
	return next, nil
}

func prepareCreate(job *Job) (*Job, error) {
	if job == nil {
		return nil, fmt.Errorf("create job: nil job")
	}
	if strings.TrimSpace(job.ID) == "" {
		return nil, fmt.Errorf("create job: empty id")
	}
	out := job.Clone()
	if out.Status == "" {
		out.Status = StatusQueued
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = Now()
	}
	out.CreatedAt = normalizeTime(out.CreatedAt)
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}
	out.UpdatedAt = normalizeTime(out.UpdatedAt)
	if out.Stages == nil {
		out.Stages = []StageRecord{}
	}
	return out, nil
}

// leaseExpired reports whether the lease on job can be taken over.
func (j *Job) leaseExpired(now time.Time) bool {
	return j.Lease == nil || !now.Before(j.Lease.ExpiresAt)
}
