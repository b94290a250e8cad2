package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
)

const dispatchBuffer = 64

// Manager runs orchestrations for many jobs on a bounded worker pool.
type Manager struct {
	cfg          *config.Config
	store        queue.Store
	orchestrator *Orchestrator
	logger       *slog.Logger

	workers      int
	pollInterval time.Duration
	errorRetry   time.Duration
	dispatch     chan string

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	pending  map[string]struct{}
	inFlight map[string]context.CancelCauseFunc
	lastErr  error
	lastJob  *queue.Job
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store queue.Store, orchestrator *Orchestrator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		workers:      workers,
		pollInterval: cfg.PollInterval(),
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		dispatch:     make(chan string, dispatchBuffer),
		pending:      make(map[string]struct{}),
		inFlight:     make(map[string]context.CancelCauseFunc),
	}
}

// Submit schedules a job for orchestration. Submitting a job that is
// already scheduled or running is a no-op.
func (m *Manager) Submit(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("submit job %s: %s: %w", id, job.Status, queue.ErrJobTerminal)
	}
	if m.enqueue(id) {
		logging.WithContext(services.WithJobID(ctx, id), m.logger).Info("job submitted")
	}
	return nil
}

// Cancel flags the job for cancellation. A running orchestration in this
// process is interrupted immediately; a job with no live run is failed on
// the spot. A run held by another process observes the flag at its next
// stage or retry.
func (m *Manager) Cancel(ctx context.Context, id string) (*queue.Job, error) {
	job, err := m.store.Update(ctx, id, func(j *queue.Job) error {
		return j.RequestCancel()
	})
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(services.WithJobID(ctx, id), m.logger)

	m.mu.Lock()
	cancelRun, running := m.inFlight[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if running {
		logger.Info("cancelling running job", logging.String(logging.FieldEventType, logging.EventJobCancelled))
		cancelRun(services.ErrCancelled)
		return job, nil
	}

	registry := m.orchestrator.Registry()
	policy := m.orchestrator.Policy()
	now := m.orchestrator.clock.Now()
	job, err = m.store.Update(ctx, id, func(j *queue.Job) error {
		if !queue.Claimable(j, now) {
			return nil
		}
		def, _, ok := j.ResumePoint(registry)
		if !ok {
			def = registry.Terminal()
		}
		resolution := policy.Classify(&services.Failure{Kind: services.KindCancelled, Stage: def.ID})
		return j.Fail(def.ID, string(services.KindCancelled), resolution.UserMessage, now)
	})
	if err != nil {
		return nil, err
	}
	if job.Status == queue.StatusFailed {
		logger.Info("job cancelled", logging.String(logging.FieldEventType, logging.EventJobCancelled))
	}
	return job, nil
}

// enqueue hands id to the workers unless it is already pending or running.
// A full dispatch buffer leaves the job for the next poll.
func (m *Manager) enqueue(id string) bool {
	m.mu.Lock()
	if _, ok := m.pending[id]; ok {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.inFlight[id]; ok {
		m.mu.Unlock()
		return false
	}
	m.pending[id] = struct{}{}
	m.mu.Unlock()

	select {
	case m.dispatch <- id:
		return true
	default:
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		m.logger.Debug("dispatch buffer full; job left for next poll", logging.String(logging.FieldJobID, id))
		return false
	}
}
