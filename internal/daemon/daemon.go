package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/logging"
	"reelforge/internal/preflight"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    queue.Store
	workflow *workflow.Manager
	jobs     *api.JobService
	logPath  string

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StoreBackend string
	LockFilePath string
	LogPath      string
	Workflow     workflow.StatusSummary
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		jobs:     api.NewJobService(store, nil, nil),
		logPath:  filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("reelforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.server.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Jobs
// interrupted here keep their progress and resume on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.server.stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("reelforge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Jobs returns the read-side job service.
func (d *Daemon) Jobs() *api.JobService { return d.jobs }

// Submit schedules a job and returns its current state.
func (d *Daemon) Submit(ctx context.Context, id string) (api.Job, error) {
	if err := d.workflow.Submit(ctx, id); err != nil {
		return api.Job{}, err
	}
	return d.jobs.Describe(ctx, id)
}

// Cancel requests cancellation of a job and returns its current state.
func (d *Daemon) Cancel(ctx context.Context, id string) (api.Job, error) {
	if _, err := d.workflow.Cancel(ctx, id); err != nil {
		return api.Job{}, err
	}
	logging.WithContext(services.WithJobID(ctx, id), d.logger).Info("cancel requested via api")
	return d.jobs.Describe(ctx, id)
}

// APIAddress returns the address the API listens on, or "" when disabled.
func (d *Daemon) APIAddress() string { return d.server.address() }

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string { return d.lockPath }

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string { return d.logPath }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StoreBackend: d.cfg.Store.Backend,
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Workflow:     d.workflow.Status(ctx),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}
