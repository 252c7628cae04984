package sync

import (
	"context"
	"crypto/sha1" //nolint:gosec // content fingerprint
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/tripletsync/internal/remote"
)

// executeUpload sends the local file to the remote repository. The recorded
// checksum covers the bytes actually sent, not the crawl-time content.
func (e *Executor) executeUpload(ctx context.Context, req Request) Outcome {
	t := req.Triplet
	absPath := localAbsPath(req.Folder, t)

	f, err := os.Open(absPath)
	if err != nil {
		return e.failed(t, ActionUpload, fmt.Errorf("opening %s: %w", absPath, err))
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec // content fingerprint

	item, err := req.Session.Upload(ctx, remotePath(t), io.TeeReader(f, h))
	if err != nil {
		return e.failed(t, ActionUpload, err)
	}

	e.logger.Debug("upload complete", slog.String("name", t.Name), slog.Int64("size", item.Size))

	return e.recorded(ctx, t, ActionUpload, &TrackedItem{
		Name:           t.Name,
		LocalPath:      localRelPath(t),
		RemotePath:     item.Path,
		Checksum:       hex.EncodeToString(h.Sum(nil)),
		ServerModified: item.ModTime,
	})
}

// executeDownload fetches the remote file into the local tree.
func (e *Executor) executeDownload(ctx context.Context, req Request) Outcome {
	t := req.Triplet

	sum, item, err := e.downloadTo(ctx, req, localAbsPath(req.Folder, t))
	if err != nil {
		return e.failed(t, ActionDownload, err)
	}

	return e.recorded(ctx, t, ActionDownload, e.downloadRecord(t, sum, item))
}

// downloadTo streams the remote content of req.Triplet into target. Data is
// written to a temp file next to target that is renamed into place once
// complete, so target never holds partial content.
func (e *Executor) downloadTo(ctx context.Context, req Request, target string) (string, *remote.Item, error) {
	t := req.Triplet

	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return "", nil, fmt.Errorf("creating parent of %s: %w", target, err)
	}

	tmp := target + downloadSuffix

	f, err := os.Create(tmp)
	if err != nil {
		return "", nil, fmt.Errorf("creating %s: %w", tmp, err)
	}

	h := sha1.New() //nolint:gosec // content fingerprint

	item, err := req.Session.Download(ctx, remotePath(t), io.MultiWriter(f, h))
	if err != nil {
		f.Close()
		os.Remove(tmp)

		return "", nil, err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", nil, fmt.Errorf("closing %s: %w", tmp, err)
	}

	if !item.ModTime.IsZero() {
		if err := os.Chtimes(tmp, item.ModTime, item.ModTime); err != nil {
			e.logger.Warn("failed to set mtime on download", slog.String("name", t.Name), slog.String("error", err.Error()))
		}
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", nil, fmt.Errorf("renaming download to %s: %w", target, err)
	}

	e.logger.Debug("download complete", slog.String("name", t.Name), slog.Int64("size", item.Size))

	return hex.EncodeToString(h.Sum(nil)), item, nil
}

func (e *Executor) downloadRecord(t *Triplet, sum string, item *remote.Item) *TrackedItem {
	return &TrackedItem{
		Name:           t.Name,
		LocalPath:      localRelPath(t),
		RemotePath:     item.Path,
		Checksum:       sum,
		ServerModified: item.ModTime,
	}
}

// executeCreateRemoteFolder mirrors a new local folder on the remote side.
func (e *Executor) executeCreateRemoteFolder(ctx context.Context, req Request) Outcome {
	t := req.Triplet

	item, err := req.Session.CreateFolder(ctx, remotePath(t))
	if err != nil {
		return e.failed(t, ActionCreateRemoteFolder, err)
	}

	return e.recorded(ctx, t, ActionCreateRemoteFolder, &TrackedItem{
		Name:           t.Name,
		IsFolder:       true,
		LocalPath:      localRelPath(t),
		RemotePath:     item.Path,
		ServerModified: item.ModTime,
	})
}

// executeCreateLocalFolder mirrors a new remote folder locally.
func (e *Executor) executeCreateLocalFolder(ctx context.Context, req Request) Outcome {
	t := req.Triplet
	absPath := localAbsPath(req.Folder, t)

	if err := os.MkdirAll(absPath, dirPermissions); err != nil {
		return e.failed(t, ActionCreateLocalFolder, fmt.Errorf("creating %s: %w", absPath, err))
	}

	return e.recorded(ctx, t, ActionCreateLocalFolder, &TrackedItem{
		Name:           t.Name,
		IsFolder:       true,
		LocalPath:      localRelPath(t),
		RemotePath:     remotePath(t),
		ServerModified: t.Remote.LastModified,
	})
}
