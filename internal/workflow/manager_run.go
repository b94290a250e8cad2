package workflow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
)

// Start launches the poll loop and workers. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.orchestrator == nil {
		m.mu.Unlock()
		return errors.New("workflow orchestrator not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.running = true
	m.mu.Unlock()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return m.pollLoop(groupCtx) })
	for i := 0; i < m.workers; i++ {
		group.Go(func() error { return m.worker(groupCtx) })
	}
	go func() {
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			m.setLastError(err)
		}
		close(done)
	}()

	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop cancels running orchestrations and waits for workers to exit.
// Interrupted jobs keep their progress and resume on the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.pending = make(map[string]struct{})
	m.mu.Unlock()
	for {
		select {
		case <-m.dispatch:
		default:
			return
		}
	}
}

func (m *Manager) pollLoop(ctx context.Context) error {
	for {
		wait := m.pollInterval
		if err := m.scan(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.setLastError(err)
			m.logger.Error("failed to scan job store",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job store access"),
			)
			wait = m.errorRetry
		}
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// scan enqueues queued jobs and processing jobs whose lease expired.
func (m *Manager) scan(ctx context.Context) error {
	queued, err := m.store.List(ctx, queue.StatusQueued)
	if err != nil {
		return err
	}
	now := m.orchestrator.clock.Now()
	for _, job := range queued {
		if queue.Claimable(job, now) {
			m.enqueue(job.ID)
		}
	}
	stale, err := m.orchestrator.Heartbeat().ReclaimableJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range stale {
		if m.enqueue(job.ID) {
			m.logger.Info("reclaiming stale job",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldEventType, "job_reclaimed"),
			)
		}
	}
	return nil
}

func (m *Manager) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-m.dispatch:
			m.runJob(ctx, id)
		}
	}
}

func (m *Manager) runJob(ctx context.Context, id string) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	m.mu.Lock()
	delete(m.pending, id)
	m.inFlight[id] = cancel
	m.mu.Unlock()
	defer func() {
		cancel(nil)
		m.mu.Lock()
		delete(m.inFlight, id)
		m.mu.Unlock()
	}()

	logger := logging.WithContext(services.WithJobID(ctx, id), m.logger)
	job, err := m.orchestrator.Run(jobCtx, id)
	if job != nil {
		m.setLastJob(job)
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		logger.Info("daemon shutting down, job left resumable")
	case errors.Is(err, queue.ErrLeaseHeld):
		logger.Debug("job owned by another run", logging.Error(err))
	case errors.Is(err, queue.ErrJobTerminal):
		logger.Debug("job already terminal", logging.Error(err))
	case queue.IsNotFound(err):
		logging.WarnWithContext(logger, "submitted job no longer exists", "job_missing",
			logging.Error(err),
			logging.String(logging.FieldImpact, "nothing to run"),
		)
	default:
		m.setLastError(err)
		logging.ErrorWithContext(logger, "job run aborted", "job_run_aborted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the job resumes on the next poll once the store is reachable"),
		)
	}
}
