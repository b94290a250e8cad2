package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/classifier"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/stageexec"
)

// Handlers maps every registry stage to the handler that runs it.
type Handlers map[stage.ID]stageexec.Handler

// HealthChecker is implemented by handlers that can report collaborator
// readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) stage.Health
}

// errRunFinished cancels the heartbeat when a run returns normally.
var errRunFinished = errors.New("run finished")

// Orchestrator drives one job through the stage registry.
type Orchestrator struct {
	store     queue.Store
	registry  *stage.Registry
	handlers  Handlers
	policy    classifier.Policy
	timeout   func(stage.ID) time.Duration
	leaseTTL  time.Duration
	heartbeat *HeartbeatMonitor
	notifier  notifications.Service
	jobLogs   *JobLogger
	sleeper   stageexec.Sleeper
	clock     stageexec.Clock
	logger    *slog.Logger
	instance  string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier replaces the config-derived notifier.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithSleeper replaces the timer used between retries.
func WithSleeper(s stageexec.Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithClock replaces the wall clock used for stage timestamps and leases.
func WithClock(c stageexec.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithRegistry replaces the default stage registry.
func WithRegistry(r *stage.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// NewOrchestrator builds an orchestrator. Every registry stage needs a handler.
func NewOrchestrator(cfg *config.Config, store queue.Store, handlers Handlers, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	if store == nil {
		return nil, errors.New("workflow: store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		store:    store,
		registry: stage.Default(),
		handlers: handlers,
		policy:   cfg.RetryPolicy(),
		timeout:  cfg.StageTimeout,
		leaseTTL: cfg.LeaseTTL(),
		notifier: notifications.NewService(cfg),
		jobLogs:  NewJobLogger(cfg),
		sleeper:  stageexec.TimerSleeper{},
		clock:    stageexec.SystemClock{},
		logger:   logging.NewComponentLogger(logger, "workflow-orchestrator"),
		instance: instanceName(),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, def := range o.registry.Definitions() {
		if o.handlers[def.ID] == nil {
			return nil, fmt.Errorf("workflow: no handler for stage %s", def.ID)
		}
	}
	o.heartbeat = NewHeartbeatMonitor(store, o.logger, cfg.HeartbeatInterval(), o.leaseTTL, o.clock)
	return o, nil
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "reelforge"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// Registry returns the stage registry the orchestrator runs.
func (o *Orchestrator) Registry() *stage.Registry { return o.registry }

// Policy returns the retry policy applied to stage failures.
func (o *Orchestrator) Policy() classifier.Policy { return o.policy }

// Heartbeat returns the lease monitor.
func (o *Orchestrator) Heartbeat() *HeartbeatMonitor { return o.heartbeat }

// Health collects readiness from handlers that report it.
func (o *Orchestrator) Health(ctx context.Context) map[stage.ID]stage.Health {
	health := make(map[stage.ID]stage.Health)
	for _, def := range o.registry.Definitions() {
		if checker, ok := o.handlers[def.ID].(HealthChecker); ok {
			health[def.ID] = checker.HealthCheck(ctx)
		}
	}
	return health
}

// Run claims the job and executes its remaining stages in registry order.
//
// Stage failures end the run with a failed job and a nil error. The error
// return covers unknown jobs, terminal jobs, a lease held by another run, a
// lost lease, store failures, and shutdown. On shutdown the job stays
// processing with its lease released so a later run resumes it.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*queue.Job, error) {
	owner := fmt.Sprintf("%s/%s", o.instance, uuid.NewString())
	ctx = services.WithJobID(ctx, jobID)

	logger, closer := o.jobLogs.Attach(o.logger, jobID)
	defer closer.Close()
	logger = logging.WithContext(ctx, logger)

	job, err := o.store.Update(ctx, jobID, func(j *queue.Job) error {
		if err := j.Claim(owner, o.leaseTTL, o.clock.Now()); err != nil {
			return err
		}
		return j.MarkProcessing()
	})
	if err != nil {
		return nil, err
	}
	logger.Info("job claimed",
		logging.String("lease_owner", owner),
		logging.Int("completed_stages", countDone(job)),
	)

	runCtx, stopRun := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go o.heartbeat.StartLoop(runCtx, &wg, jobID, owner, stopRun)
	defer func() {
		stopRun(errRunFinished)
		wg.Wait()
	}()

	for {
		def, prior, ok := job.ResumePoint(o.registry)
		if !ok {
			return job, fmt.Errorf("job %s has no runnable stage but is %s: %w", jobID, job.Status, queue.ErrInvalidTransition)
		}
		outcome, err := stageexec.Run(runCtx, stageexec.Options{
			Store:      o.store,
			Owner:      owner,
			Definition: def,
			Handler:    o.handlers[def.ID],
			JobID:      jobID,
			Prior:      stageexec.Outputs(prior),
			Policy:     o.policy,
			Timeout:    o.timeout(def.ID),
			Sleeper:    o.sleeper,
			Clock:      o.clock,
			Logger:     logger,
		})
		if err != nil {
			return o.abandon(ctx, runCtx, logger, jobID, owner, err)
		}
		job = outcome.Job

		switch outcome.Status {
		case stageexec.StatusSkipped:
			o.notifySkipped(ctx, logger, job, def.ID)
		case stageexec.StatusFailed:
			o.finishFailed(ctx, logger, job)
			return job, nil
		case stageexec.StatusCompleted:
			if job.Status == queue.StatusCompleted {
				o.finishCompleted(ctx, logger, job)
				return job, nil
			}
		}
	}
}

// abandon ends a run without a terminal job state. The lease is released
// unless it was already lost.
func (o *Orchestrator) abandon(ctx, runCtx context.Context, logger *slog.Logger, jobID, owner string, runErr error) (*queue.Job, error) {
	if cause := context.Cause(runCtx); errors.Is(cause, queue.ErrLeaseLost) || errors.Is(runErr, queue.ErrLeaseLost) {
		return nil, fmt.Errorf("job %s: %w", jobID, queue.ErrLeaseLost)
	}
	job, err := o.store.Update(context.WithoutCancel(ctx), jobID, func(j *queue.Job) error {
		j.Release(owner)
		return nil
	})
	if err != nil {
		logger.Warn("lease release failed; job resumes after lease expiry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lease_release_failed"),
			logging.String(logging.FieldErrorHint, "check job store access"),
			logging.String(logging.FieldImpact, "resume is delayed until the lease times out"),
		)
	}
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		logger.Info("run interrupted; job will resume", logging.String("reason", runErr.Error()))
	}
	return job, runErr
}

func (o *Orchestrator) finishCompleted(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	duration := job.UpdatedAt.Sub(job.CreatedAt)
	logger.Info("job completed",
		logging.String(logging.FieldEventType, logging.EventJobComplete),
		logging.String("published_url", job.PublishedURL),
		logging.Duration("job_duration", duration),
	)
	o.publish(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"jobID":    job.ID,
		"url":      job.PublishedURL,
		"duration": duration,
	})
}

func (o *Orchestrator) finishFailed(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if job.Error == nil {
		return
	}
	if job.Error.Kind != string(services.KindCancelled) {
		logging.ErrorWithContext(logger, "job failed", logging.EventJobFailed,
			logging.String("failed_stage", string(job.Error.Stage)),
			logging.String(logging.FieldErrorKind, job.Error.Kind),
			logging.String("error_message", job.Error.Message),
			logging.String(logging.FieldErrorHint, "create a new job once the cause is fixed"),
		)
	}
	o.publish(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"jobID": job.ID,
		"stage": string(job.Error.Stage),
		"error": job.Error.Message,
	})
}

func (o *Orchestrator) notifySkipped(ctx context.Context, logger *slog.Logger, job *queue.Job, id stage.ID) {
	message := ""
	if rec := job.Record(id); rec != nil {
		message = rec.Error
	}
	o.publish(ctx, logger, notifications.EventStageSkipped, notifications.Payload{
		"jobID": job.ID,
		"stage": string(id),
		"error": message,
	})
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func countDone(job *queue.Job) int {
	n := 0
	for _, rec := range job.Stages {
		if rec.Status == queue.StageCompleted || (rec.Status == queue.StageFailed && rec.Skipped) {
			n++
		}
	}
	return n
}
