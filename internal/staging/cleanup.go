// Package staging manages the per-session asset directories under
// staging_dir: pruning files no scene references and removing directories
// whose session no longer exists.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyreel/internal/logging"
)

// CleanResult contains the outcome of a cleanup operation.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// PruneSession removes regular files in sessionDir whose absolute path is
// not in referenced. Scene assets replaced by regeneration or orphaned by
// invalidation are left behind until this runs.
func PruneSession(ctx context.Context, sessionDir string, referenced map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}
	sessionDir = strings.TrimSpace(sessionDir)
	if sessionDir == "" {
		return result
	}
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: sessionDir, Error: err})
		}
		return result
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(sessionDir, entry.Name())
		if _, keep := referenced[path]; keep {
			continue
		}
		remove(path, "unreferenced asset", &result, logger)
	}
	return result
}

// CleanOrphaned removes session directories whose name is not an active
// session id.
func CleanOrphaned(ctx context.Context, stagingDir string, activeSessions map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		if _, active := activeSessions[strings.ToLower(entry.Name())]; active {
			continue
		}
		remove(filepath.Join(stagingDir, entry.Name()), "orphaned session directory", &result, logger)
	}
	return result
}

func remove(path, what string, result *CleanResult, logger *slog.Logger) {
	if err := os.RemoveAll(path); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		if logger != nil {
			logger.Warn("failed to remove "+what,
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
		return
	}
	result.Removed = append(result.Removed, path)
	if logger != nil {
		logger.Info("removed "+what,
			logging.String("path", path),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
}

// ListDirectories returns all directories in the staging directory with their metadata.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(stagingDir)
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
		dirPath := filepath.Join(stagingDir, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return dirs, nil
}

// DirInfo contains metadata about a staging directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
