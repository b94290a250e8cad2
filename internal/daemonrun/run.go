package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/logging"
	"reelforge/internal/preflight"
	"reelforge/internal/queue"
	"reelforge/internal/staging"
)

const currentLogName = logging.LogFileName

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelforge daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelforged-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", currentLogName, err)
	}

	logRetention := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
	if removed := logging.PruneLogs(logger, logRetention, time.Now(),
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelforged-*.log", Keep: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "jobs"), Pattern: "*.log"},
	); removed > 0 {
		logger.Info("old logs pruned", logging.Int("removed", removed))
	}
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "reelforged.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := NewRuntime(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}

	pruneWorkDirs(signalCtx, logger, cfg, rt.Store)

	d, err := daemon.New(cfg, rt.Store, logger, rt.Manager)
	if err != nil {
		_ = rt.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, api_bind, and job store access"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelforge daemon shutting down")
	return nil
}

// pruneWorkDirs removes work directories of long-finished jobs. Failures only
// cost disk space, so they are logged and startup continues.
func pruneWorkDirs(ctx context.Context, logger *slog.Logger, cfg *config.Config, store queue.Store) {
	retention := cfg.WorkRetention()
	if retention <= 0 {
		return
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	jobs, err := store.List(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "work directory cleanup skipped", "workdir_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result := staging.Prune(ctx, cfg.Paths.WorkDir, jobs, retention, time.Now(), logger)
	if len(result.Removed) > 0 {
		logger.Info("work directory cleanup finished",
			logging.Int("removed", len(result.Removed)),
			logging.Int("kept", result.Kept),
			logging.Int("errors", len(result.Errors)),
		)
	}
}

// logPreflight records environment checks at startup. Failures are
// warnings; the daemon still starts so jobs can be inspected.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run reelforge doctor for details"),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		if dep.Available {
			continue
		}
		attrs := []logging.Attr{
			logging.String("dependency", dep.Name),
			logging.String("command", dep.Command),
			logging.String("detail", dep.Detail),
		}
		if dep.Optional {
			logger.Info("optional dependency unavailable", logging.Args(attrs...)...)
			continue
		}
		logging.WarnWithContext(logger, "dependency unavailable", "dependency_missing",
			append(attrs, logging.String(logging.FieldImpact, "the stage using it will fail"))...)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
