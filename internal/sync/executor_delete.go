package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/tripletsync/internal/remote"
)

// executeLocalDelete removes a local file or folder. A file is only removed
// when its content still matches the tracking record; otherwise it is kept
// as a conflict copy.
func (e *Executor) executeLocalDelete(ctx context.Context, req Request) Outcome {
	t := req.Triplet
	absPath := localAbsPath(req.Folder, t)

	info, err := os.Stat(absPath)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Debug("local delete: already absent", slog.String("name", t.Name))
		return e.forgotten(ctx, t, ActionDeleteLocal)
	}

	if err != nil {
		return e.failed(t, ActionDeleteLocal, fmt.Errorf("stat %s: %w", absPath, err))
	}

	if info.IsDir() {
		return e.deleteLocalFolder(ctx, t, absPath)
	}

	return e.deleteLocalFile(ctx, t, absPath)
}

// deleteLocalFolder removes an empty local directory.
func (e *Executor) deleteLocalFolder(ctx context.Context, t *Triplet, absPath string) Outcome {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return e.failed(t, ActionDeleteLocal, fmt.Errorf("reading dir %s: %w", absPath, err))
	}

	if len(entries) > 0 {
		return e.failed(t, ActionDeleteLocal, fmt.Errorf("%w: %d entries", errNotEmpty, len(entries)))
	}

	if err := os.Remove(absPath); err != nil {
		return e.failed(t, ActionDeleteLocal, fmt.Errorf("removing dir %s: %w", absPath, err))
	}

	e.logger.Debug("deleted local folder", slog.String("name", t.Name))

	return e.forgotten(ctx, t, ActionDeleteLocal)
}

func (e *Executor) deleteLocalFile(ctx context.Context, t *Triplet, absPath string) Outcome {
	recorded := ""
	if t.DB != nil {
		recorded = t.DB.Checksum
	}

	if recorded != "" {
		current, err := e.hashFunc(absPath)
		if err != nil {
			return e.failed(t, ActionDeleteLocal, fmt.Errorf("hashing %s before delete: %w", absPath, err))
		}

		if current != recorded {
			conflictPath := conflictCopyPath(absPath, e.nowFunc())
			if err := os.Rename(absPath, conflictPath); err != nil {
				return e.failed(t, ActionDeleteLocal,
					fmt.Errorf("renaming modified file to conflict copy %s: %w", conflictPath, err))
			}

			e.logger.Warn("local delete: content changed, saved conflict copy",
				slog.String("name", t.Name),
				slog.String("conflict_copy", filepath.Base(conflictPath)),
			)

			return e.forgotten(ctx, t, ActionDeleteLocal)
		}
	}

	if err := os.Remove(absPath); err != nil {
		return e.failed(t, ActionDeleteLocal, fmt.Errorf("removing %s: %w", absPath, err))
	}

	e.logger.Debug("deleted local file", slog.String("name", t.Name))

	return e.forgotten(ctx, t, ActionDeleteLocal)
}

// executeRemoteDelete removes the remote item. A file that was modified on
// the server after the crawl is left alone. Items already gone count as
// deleted.
func (e *Executor) executeRemoteDelete(ctx context.Context, req Request) Outcome {
	t := req.Triplet
	p := remotePath(t)

	if !t.IsFolder() && t.DB != nil {
		current, err := req.Session.Stat(ctx, p)

		switch {
		case errors.Is(err, remote.ErrNotFound):
			return e.forgotten(ctx, t, ActionDeleteRemote)
		case err != nil:
			return e.failed(t, ActionDeleteRemote, err)
		case ServerStamp(current.ModTime.UTC()) != ServerStamp(t.DB.ServerModified):
			return e.failed(t, ActionDeleteRemote, errRemoteChanged)
		}
	}

	err := req.Session.Delete(ctx, p, t.IsFolder())
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return e.failed(t, ActionDeleteRemote, err)
	}

	e.logger.Debug("deleted remote item", slog.String("name", t.Name), slog.Bool("folder", t.IsFolder()))

	return e.forgotten(ctx, t, ActionDeleteRemote)
}
