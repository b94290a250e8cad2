package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionTarget names a directory and the file pattern pruned inside it.
// Keep lists paths that survive regardless of age, such as the log file of
// the current run.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Keep    []string
}

// PruneLogs removes files under targets last modified before now minus
// retention and returns how many were removed. A non-positive retention
// disables pruning. Unreadable directories are skipped.
func PruneLogs(logger *slog.Logger, retention time.Duration, now time.Time, targets ...RetentionTarget) int {
	if retention <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := now.Add(-retention)
	removed := 0
	for _, target := range targets {
		if target.Dir == "" {
			continue
		}
		keep := make(map[string]struct{}, len(target.Keep))
		for _, path := range target.Keep {
			keep[filepath.Clean(path)] = struct{}{}
		}
		pattern := target.Pattern
		if pattern == "" {
			pattern = "*"
		}
		matches, err := filepath.Glob(filepath.Join(target.Dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, ok := keep[filepath.Clean(path)]; ok {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
