package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore keeps jobs in process memory. Each job has its own writer
// mutex; readers load an immutable snapshot and never wait on writers.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryEntry
}

type memoryEntry struct {
	writeMu  sync.Mutex
	snapshot atomic.Pointer[Job]
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memoryEntry)}
}

// Create stores a new job.
func (s *MemoryStore) Create(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared, err := prepareCreate(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[prepared.ID]; exists {
		return fmt.Errorf("create job %s: %w", prepared.ID, ErrJobExists)
	}
	entry := &memoryEntry{}
	entry.snapshot.Store(prepared)
	s.jobs[prepared.ID] = entry
	return nil
}

func (s *MemoryStore) entry(id string) (*memoryEntry, error) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &JobNotFoundError{ID: id}
	}
	return entry, nil
}

// Get returns a copy of the latest committed job.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.snapshot.Load().Clone(), nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *MemoryStore) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		filter[status] = struct{}{}
	}
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, entry := range s.jobs {
		job := entry.snapshot.Load()
		if len(filter) > 0 {
			if _, ok := filter[job.Status]; !ok {
				continue
			}
		}
		out = append(out, job.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies mutate under the job's writer mutex and publishes the
// result as a new snapshot.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.writeMu.Lock()
	defer entry.writeMu.Unlock()
	next, err := commitUpdate(entry.snapshot.Load(), mutate)
	if err != nil {
		return nil, err
	}
	entry.snapshot.Store(next)
	return next.Clone(), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
