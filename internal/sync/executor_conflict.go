package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// executeConflict handles a file changed on both sides: the remote version
// is fetched next to the local file, and when the two differ the local file
// is kept as a conflict copy before the remote version takes its place.
// Identical content is simply recorded.
func (e *Executor) executeConflict(ctx context.Context, req Request) Outcome {
	t := req.Triplet
	absPath := localAbsPath(req.Folder, t)
	staged := absPath + ".remote" + downloadSuffix

	sum, item, err := e.downloadTo(ctx, req, staged)
	if err != nil {
		return e.failed(t, ActionConflict, fmt.Errorf("fetching remote version: %w", err))
	}

	localSum, err := e.hashFunc(absPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Remove(staged)
		return e.failed(t, ActionConflict, fmt.Errorf("hashing %s: %w", absPath, err))
	}

	if localSum == sum {
		os.Remove(staged)

		e.logger.Debug("conflict: both sides hold the same content", slog.String("name", t.Name))

		return e.recorded(ctx, t, ActionRecord, e.downloadRecord(t, sum, item))
	}

	conflictPath := conflictCopyPath(absPath, e.nowFunc())
	movedLocal := err == nil

	if movedLocal {
		if err := os.Rename(absPath, conflictPath); err != nil {
			os.Remove(staged)
			return e.failed(t, ActionConflict,
				fmt.Errorf("renaming to conflict copy %s: %w", filepath.Base(conflictPath), err))
		}
	}

	if err := os.Rename(staged, absPath); err != nil {
		os.Remove(staged)

		if movedLocal {
			if restoreErr := os.Rename(conflictPath, absPath); restoreErr != nil {
				e.logger.Error("failed to restore local file after conflict failure",
					slog.String("name", t.Name),
					slog.String("error", restoreErr.Error()),
				)
			}
		}

		return e.failed(t, ActionConflict, fmt.Errorf("placing remote version at %s: %w", absPath, err))
	}

	e.logger.Warn("conflict: kept local version as conflict copy",
		slog.String("name", t.Name),
		slog.String("conflict_copy", filepath.Base(conflictPath)),
	)

	return e.recorded(ctx, t, ActionConflict, e.downloadRecord(t, sum, item))
}

// conflictCopyPath generates a timestamped conflict copy path. The marker
// keeps the copy out of sync.
// "report.txt" -> "report-conflict-version-20260101-120000.txt"
// ".bashrc"    -> ".bashrc-conflict-version-20260101-120000"
func conflictCopyPath(absPath string, now time.Time) string {
	dir := filepath.Dir(absPath)
	stem, ext := conflictStemExt(filepath.Base(absPath))

	return filepath.Join(dir, fmt.Sprintf("%s%s-%s%s", stem, conflictMarker, now.Format("20060102-150405"), ext))
}

// conflictStemExt splits a filename into stem and extension. A dotfile with
// no other dot has no extension.
func conflictStemExt(name string) (string, string) {
	if name != "" && name[0] == '.' && strings.Count(name, ".") == 1 {
		return name, ""
	}

	ext := filepath.Ext(name)

	return name[:len(name)-len(ext)], ext
}
