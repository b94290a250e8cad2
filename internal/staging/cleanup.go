package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
)

// Result contains the outcome of a work directory prune.
type Result struct {
	Removed []string
	Kept    int
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Prune removes per-job directories under workDir that are no longer needed:
// directories of completed or failed jobs last updated before now-maxAge, and
// directories with no matching job whose contents are older than maxAge.
// Directories of queued or processing jobs are never touched. A maxAge of
// zero or less disables pruning.
func Prune(ctx context.Context, workDir string, jobs []*queue.Job, maxAge time.Duration, now time.Time, logger *slog.Logger) Result {
	result := Result{}
	workDir = strings.TrimSpace(workDir)
	if workDir == "" || maxAge <= 0 {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: workDir, Error: err})
		}
		return result
	}

	byID := make(map[string]*queue.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}
	cutoff := now.Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(workDir, entry.Name())

		reason, remove := "", false
		if job, ok := byID[entry.Name()]; ok {
			if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
				reason, remove = string(job.Status), true
			}
		} else {
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				continue
			}
			if info.ModTime().Before(cutoff) {
				reason, remove = "orphaned", true
			}
		}
		if !remove {
			result.Kept++
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove job work directory",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workdir_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed job work directory",
			logging.String("path", dirPath),
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "workdir_cleanup"),
		)
	}
	return result
}

// DirInfo contains metadata about a job work directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories returns every directory in workDir with its total size.
func ListDirectories(workDir string) ([]DirInfo, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(workDir, entry.Name())
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    dirSize(dirPath),
		})
	}
	return dirs, nil
}

// dirSize sums regular file sizes below path. Unreadable entries count as zero.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
