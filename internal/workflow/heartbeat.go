package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/stageexec"
)

// HeartbeatMonitor renews job leases and finds jobs whose runs have died.
type HeartbeatMonitor struct {
	store             queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	leaseTTL          time.Duration
	clock             stageexec.Clock
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store queue.Store, logger *slog.Logger, interval, ttl time.Duration, clock stageexec.Clock) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if clock == nil {
		clock = stageexec.SystemClock{}
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		leaseTTL:          ttl,
		clock:             clock,
	}
}

// ReclaimableJobs returns processing jobs whose lease has expired. Their
// previous run crashed or lost its store connection.
func (h *HeartbeatMonitor) ReclaimableJobs(ctx context.Context) ([]*queue.Job, error) {
	jobs, err := h.store.List(ctx, queue.StatusProcessing)
	if err != nil {
		return nil, err
	}
	now := h.clock.Now()
	stale := make([]*queue.Job, 0, len(jobs))
	for _, job := range jobs {
		if queue.Claimable(job, now) {
			stale = append(stale, job)
		}
	}
	return stale, nil
}

// StartLoop renews the lease held by owner until ctx ends. When the lease is
// gone, onLost is called once and the loop exits.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID, owner string, onLost func(error)) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := h.store.Update(ctx, jobID, func(j *queue.Job) error {
				return j.Renew(owner, h.leaseTTL, h.clock.Now())
			})
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Info("daemon shutting down, heartbeat update cancelled")
				return
			case errors.Is(err, queue.ErrLeaseLost), errors.Is(err, queue.ErrJobTerminal), queue.IsNotFound(err):
				logging.ErrorWithContext(logger, "job lease lost", logging.EventLeaseLost,
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "another run may have reclaimed the job; check lease_timeout against heartbeat_interval"),
				)
				if onLost != nil {
					onLost(err)
				}
				return
			default:
				logging.WarnWithContext(logger, "heartbeat update failed", "heartbeat_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check job store access"),
					logging.String(logging.FieldImpact, "lease may expire if renewals keep failing"),
				)
			}
		}
	}
}
