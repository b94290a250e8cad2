package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/classifier"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
)

// Handler executes one pipeline stage. It receives a private copy of the job
// and the outputs of earlier stages.
type Handler interface {
	Run(ctx context.Context, job *queue.Job, prior Outputs) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job, prior Outputs) Result

// Run calls f.
func (f HandlerFunc) Run(ctx context.Context, job *queue.Job, prior Outputs) Result {
	return f(ctx, job, prior)
}

// Sleeper waits between retries. Implementations must return early with an
// error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clock supplies timestamps for stage records.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Status is the terminal state of one stage execution.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome summarizes one stage execution.
type Outcome struct {
	Status   Status
	Output   string
	Failure  *services.Failure
	Attempts int
	// Job is the committed job after the final write.
	Job *queue.Job
}

// Options controls one stage execution.
type Options struct {
	Store      queue.Store
	Owner      string
	Definition stage.Definition
	Handler    Handler
	JobID      string
	Prior      Outputs
	Policy     classifier.Policy
	Timeout    time.Duration
	Sleeper    Sleeper
	Clock      Clock
	Logger     *slog.Logger
}

// errCancelRequested is returned from the start mutation when the durable
// cancel flag is set.
var errCancelRequested = errors.New("cancel requested")

// Run executes a stage until it completes, is skipped, or fails the job.
//
// Stage failures are recorded in the store and reported through the
// Outcome. The returned error is reserved for bookkeeping failures (store
// errors, lost lease) and for shutdown, where ctx ends without a user
// cancel; in that case the stage is left in progress for a later run.
func Run(ctx context.Context, opts Options) (Outcome, error) {
	if err := opts.validate(); err != nil {
		return Outcome{}, err
	}
	if opts.Sleeper == nil {
		opts.Sleeper = TimerSleeper{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	id := opts.Definition.ID

	ctx = services.WithJobID(ctx, opts.JobID)
	ctx = services.WithStage(ctx, string(id))
	logger := logging.WithContext(ctx, opts.Logger)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return opts.interrupted(ctx, logger, attempt)
		}

		job, err := opts.update(ctx, func(j *queue.Job) error {
			if j.CancelRequested {
				return errCancelRequested
			}
			if err := j.StartStage(id, opts.Clock.Now()); err != nil {
				return err
			}
			j.RecordAttempt(id)
			return nil
		})
		if errors.Is(err, errCancelRequested) {
			return opts.cancel(ctx, logger, attempt)
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("start stage %s: %w", id, err)
		}

		attemptLogger := logger.With(logging.Int(logging.FieldAttempt, attempt))
		attemptLogger.Info("stage started", logging.String(logging.FieldEventType, logging.EventStageStart))
		started := opts.Clock.Now()

		result := opts.invoke(services.WithAttempt(ctx, attempt), job, attempt)

		if result.IsOk() {
			done, err := opts.update(ctx, func(j *queue.Job) error {
				return j.CompleteStage(id, result.Output(), opts.Clock.Now())
			})
			if err != nil {
				if ctx.Err() != nil {
					return opts.interrupted(ctx, logger, attempt+1)
				}
				return Outcome{}, fmt.Errorf("complete stage %s: %w", id, err)
			}
			attemptLogger.Info("stage completed",
				logging.String(logging.FieldEventType, logging.EventStageComplete),
				logging.String("output", result.Output()),
				logging.Duration("stage_duration", opts.Clock.Now().Sub(started)),
			)
			return Outcome{Status: StatusCompleted, Output: result.Output(), Attempts: attempt + 1, Job: done}, nil
		}

		if ctx.Err() != nil {
			return opts.interrupted(ctx, logger, attempt+1)
		}

		failure := result.Failure()
		failure.Stage = id
		failure.Attempt = attempt
		resolution := opts.Policy.Classify(failure)

		if resolution.Action == classifier.ActionRetry {
			logging.WarnWithContext(attemptLogger, "stage failed, retrying", logging.EventStageRetry,
				logging.String(logging.FieldErrorKind, string(failure.Kind)),
				logging.String("error_message", failure.Detail()),
				logging.Duration("retry_delay", resolution.Delay),
				logging.String(logging.FieldErrorHint, hintFor(failure)),
				logging.String(logging.FieldImpact, "stage will be retried"),
			)
			if _, err := opts.update(ctx, func(j *queue.Job) error {
				if rec := j.Record(id); rec != nil {
					rec.Error = resolution.UserMessage
				}
				return nil
			}); err != nil {
				return Outcome{}, fmt.Errorf("record retry for %s: %w", id, err)
			}
			if err := opts.Sleeper.Sleep(ctx, resolution.Delay); err != nil {
				return opts.interrupted(ctx, logger, attempt+1)
			}
			continue
		}

		return opts.fail(ctx, attemptLogger, failure, resolution, attempt+1)
	}
}

func (opts Options) validate() error {
	switch {
	case opts.Store == nil:
		return errors.New("stageexec: store is required")
	case opts.Handler == nil:
		return fmt.Errorf("stageexec: no handler for stage %s", opts.Definition.ID)
	case opts.JobID == "":
		return errors.New("stageexec: job id is required")
	case opts.Owner == "":
		return errors.New("stageexec: lease owner is required")
	case opts.Definition.ID == "":
		return errors.New("stageexec: stage definition is required")
	}
	return nil
}

func (opts Options) update(ctx context.Context, mutate func(*queue.Job) error) (*queue.Job, error) {
	return queue.UpdateOwned(ctx, opts.Store, opts.JobID, opts.Owner, mutate)
}

// invoke runs the handler under the stage timeout and converts timeouts and
// panics into failures.
func (opts Options) invoke(ctx context.Context, job *queue.Job, attempt int) (result Result) {
	hctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = Err(&services.Failure{
				Kind:    services.KindProcessing,
				Message: fmt.Sprintf("handler panic: %v", r),
			})
		}
	}()

	result = opts.Handler.Run(hctx, job.Clone(), opts.Prior.Clone())
	if ctx.Err() == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
		kind := services.KindProcessing
		if opts.Definition.Network {
			kind = services.KindExternalService
		}
		var cause error
		if f := result.Failure(); f != nil {
			cause = f
		}
		return Err(&services.Failure{
			Kind:    kind,
			Message: fmt.Sprintf("timed out after %s", opts.Timeout),
			Cause:   cause,
		})
	}
	return result
}

// fail records a terminal failure. Optional stages are skipped instead.
func (opts Options) fail(ctx context.Context, logger *slog.Logger, failure *services.Failure, resolution classifier.Resolution, attempts int) (Outcome, error) {
	id := opts.Definition.ID
	if !opts.Definition.Required {
		job, err := opts.update(ctx, func(j *queue.Job) error {
			return j.FailStage(id, resolution.UserMessage, true, opts.Clock.Now())
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("skip stage %s: %w", id, err)
		}
		logging.WarnWithContext(logger, "optional stage skipped", logging.EventStageSkipped,
			logging.String(logging.FieldErrorKind, string(failure.Kind)),
			logging.String("error_message", resolution.UserMessage),
			logging.String(logging.FieldErrorHint, hintFor(failure)),
			logging.String(logging.FieldImpact, "pipeline continues without this stage's output"),
		)
		return Outcome{Status: StatusSkipped, Failure: failure, Attempts: attempts, Job: job}, nil
	}

	job, err := opts.update(ctx, func(j *queue.Job) error {
		return j.Fail(id, string(failure.Kind), resolution.UserMessage, opts.Clock.Now())
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("fail stage %s: %w", id, err)
	}
	logging.ErrorWithContext(logger, "stage failed", logging.EventStageFailure,
		logging.String(logging.FieldErrorKind, string(failure.Kind)),
		logging.String("error_message", resolution.UserMessage),
		logging.String(logging.FieldErrorHint, hintFor(failure)),
		logging.Error(failure),
	)
	return Outcome{Status: StatusFailed, Failure: failure, Attempts: attempts, Job: job}, nil
}

// interrupted handles ctx ending. A user cancel (cause ErrCancelled) fails
// the job; anything else is shutdown and leaves the job resumable.
func (opts Options) interrupted(ctx context.Context, logger *slog.Logger, attempts int) (Outcome, error) {
	if errors.Is(context.Cause(ctx), services.ErrCancelled) {
		return opts.cancel(ctx, logger, attempts)
	}
	logger.Info("stage interrupted by shutdown", logging.Int("attempts", attempts))
	return Outcome{}, ctx.Err()
}

// cancel fails the job as cancelled. The write uses a context detached from
// cancellation so the terminal state is persisted.
func (opts Options) cancel(ctx context.Context, logger *slog.Logger, attempts int) (Outcome, error) {
	failure := &services.Failure{
		Kind:    services.KindCancelled,
		Stage:   opts.Definition.ID,
		Message: "cancelled by request",
		Cause:   services.ErrCancelled,
	}
	if attempts > 0 {
		failure.Attempt = attempts - 1
	}
	resolution := opts.Policy.Classify(failure)
	job, err := opts.update(context.WithoutCancel(ctx), func(j *queue.Job) error {
		return j.Fail(opts.Definition.ID, string(services.KindCancelled), resolution.UserMessage, opts.Clock.Now())
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("cancel stage %s: %w", opts.Definition.ID, err)
	}
	logger.Info("job cancelled",
		logging.String(logging.FieldEventType, logging.EventJobCancelled),
		logging.Int("attempts", attempts),
	)
	return Outcome{Status: StatusFailed, Failure: failure, Attempts: attempts, Job: job}, nil
}

func hintFor(failure *services.Failure) string {
	if failure.Hint != "" {
		return failure.Hint
	}
	switch failure.Kind {
	case services.KindValidation:
		return "check the uploaded video and job metadata"
	case services.KindExternalService:
		return "check collaborator availability and credentials"
	case services.KindStorage:
		return "check the transcript store endpoint and work directory"
	case services.KindCancelled:
		return "job was cancelled; create a new job to retry"
	default:
		return "inspect the collaborator logs for this stage"
	}
}
