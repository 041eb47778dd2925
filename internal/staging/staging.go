// Package staging manages per-job working directories under the configured
// staging root. Extraction downloads audio into a job's directory; the
// orchestrator removes it once the job reaches a terminal status.
package staging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidsight/internal/logging"
)

// Dir returns the working directory for one job.
func Dir(stagingRoot, jobID string) string {
	return filepath.Join(stagingRoot, jobID)
}

// Remove deletes a job's working directory and everything in it. A missing
// directory is not an error.
func Remove(stagingRoot, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if strings.TrimSpace(stagingRoot) == "" || jobID == "" {
		return nil
	}
	return os.RemoveAll(Dir(stagingRoot, jobID))
}

// CleanStale removes job directories whose last modification is older than
// maxAge. It catches directories orphaned by a crash, where no terminal
// transition ran the normal cleanup. Returns the removed paths.
func CleanStale(stagingRoot string, maxAge time.Duration, logger *slog.Logger) []string {
	stagingRoot = strings.TrimSpace(stagingRoot)
	if stagingRoot == "" {
		return nil
	}

	entries, err := os.ReadDir(stagingRoot)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warn("failed to scan staging directory",
				logging.String("path", stagingRoot),
				logging.Error(err))
		}
		return nil
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dirPath := filepath.Join(stagingRoot, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			if logger != nil {
				logger.Warn("failed to remove stale staging directory",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"))
			}
			continue
		}
		removed = append(removed, dirPath)
		if logger != nil {
			logger.Info("removed stale staging directory",
				logging.String("path", dirPath))
		}
	}
	return removed
}
