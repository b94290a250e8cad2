package workflow

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/logging"
)

// JobLogger writes a dedicated JSON log file per job alongside the daemon log.
type JobLogger struct {
	baseDir string
	level   string
}

// NewJobLogger returns a job logger rooted at <log_dir>/jobs. A config
// without a log directory disables per-job files.
func NewJobLogger(cfg *config.Config) *JobLogger {
	if cfg == nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return &JobLogger{}
	}
	return &JobLogger{
		baseDir: filepath.Join(cfg.Paths.LogDir, "jobs"),
		level:   cfg.Logging.Level,
	}
}

// Dir returns the directory holding job logs.
func (l *JobLogger) Dir() string {
	if l == nil {
		return ""
	}
	return l.baseDir
}

// Path returns the log file for jobID.
func (l *JobLogger) Path(jobID string) string {
	if l == nil || l.baseDir == "" {
		return ""
	}
	return filepath.Join(l.baseDir, sanitizeSlug(jobID)+".log")
}

// Attach tees base into the job's log file. The closer must be called when
// the run ends. Failures fall back to base alone.
func (l *JobLogger) Attach(base *slog.Logger, jobID string) (*slog.Logger, io.Closer) {
	if base == nil {
		base = logging.NewNop()
	}
	path := l.Path(jobID)
	if path == "" {
		return base, nopCloser{}
	}
	handler, closer, err := logging.NewJSONFileHandler(path, l.level)
	if err != nil {
		logging.WarnWithContext(base, "job log unavailable", "job_log_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "job events only appear in the daemon log"),
		)
		return base, nopCloser{}
	}
	return logging.TeeLogger(base, handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func sanitizeSlug(value string) string {
	value = strings.TrimSpace(value)
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r + ('a' - 'A'))
			lastDash = false
		default:
			if !lastDash {
				builder.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(builder.String(), "-")
	if slug == "" {
		return "job"
	}
	return slug
}
