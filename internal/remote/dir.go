// Package remote provides the remote content repository used by tripletsync.
// DirRepository stores content under a root directory, typically a mounted
// network share. Item paths are slash-separated and rooted at "/".
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Sentinel errors returned by DirRepository.
var (
	ErrNotFound       = errors.New("remote: item not found")
	ErrFolderNotEmpty = errors.New("remote: folder is not empty")
	ErrInvalidPath    = errors.New("remote: invalid path")
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
	uploadSuffix    = ".upload"
)

// Item is one entry of the remote repository.
type Item struct {
	Path     string // rooted, slash-separated
	IsFolder bool
	ModTime  time.Time // server clock, UTC
	Size     int64
}

// DirRepository is a remote repository backed by a directory tree. All
// methods are safe for concurrent use.
type DirRepository struct {
	root   string
	logger *slog.Logger
}

// NewDirRepository opens the repository rooted at root, which must exist
// and be a directory.
func NewDirRepository(root string, logger *slog.Logger) (*DirRepository, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("remote: resolving root %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("remote: opening root %s: %w", abs, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("remote: root %s is not a directory", abs)
	}

	logger.Debug("remote: repository opened", slog.String("root", abs))

	return &DirRepository{root: abs, logger: logger}, nil
}

// Root returns the absolute root directory.
func (r *DirRepository) Root() string {
	return r.root
}

// Walk calls fn for every item below the root in lexical order. Folders are
// reported before their contents. In-flight upload temp files are skipped.
func (r *DirRepository) Walk(ctx context.Context, fn func(Item) error) error {
	return filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("remote: walking %s: %w", p, err)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if p == r.root || strings.HasSuffix(d.Name(), uploadSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("remote: stat %s: %w", p, err)
		}

		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return fmt.Errorf("remote: relative path of %s: %w", p, err)
		}

		return fn(itemFromInfo("/"+filepath.ToSlash(rel), info))
	})
}

// Stat returns the item at p or ErrNotFound.
func (r *DirRepository) Stat(_ context.Context, p string) (*Item, error) {
	abs, err := r.abs(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	if err != nil {
		return nil, fmt.Errorf("remote: stat %s: %w", p, err)
	}

	item := itemFromInfo(cleanPath(p), info)

	return &item, nil
}

// Upload stores the content of rd at p, creating missing parent folders.
// The content becomes visible atomically.
func (r *DirRepository) Upload(ctx context.Context, p string, rd io.Reader) (*Item, error) {
	abs, err := r.abs(p)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), dirPermissions); err != nil {
		return nil, fmt.Errorf("remote: creating parent of %s: %w", p, err)
	}

	tmp := abs + uploadSuffix

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("remote: creating %s: %w", p, err)
	}

	if _, err := io.Copy(f, contextReader{ctx: ctx, r: rd}); err != nil {
		f.Close()
		os.Remove(tmp)

		return nil, fmt.Errorf("remote: writing %s: %w", p, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("remote: closing %s: %w", p, err)
	}

	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("remote: committing %s: %w", p, err)
	}

	r.logger.Debug("remote: uploaded", slog.String("path", p))

	return r.Stat(ctx, p)
}

// Download writes the content stored at p to w and returns the item as it
// was when the read started.
func (r *DirRepository) Download(ctx context.Context, p string, w io.Writer) (*Item, error) {
	item, err := r.Stat(ctx, p)
	if err != nil {
		return nil, err
	}

	if item.IsFolder {
		return nil, fmt.Errorf("%w: %s is a folder", ErrInvalidPath, p)
	}

	abs, _ := r.abs(p)

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("remote: opening %s: %w", p, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, contextReader{ctx: ctx, r: f}); err != nil {
		return nil, fmt.Errorf("remote: reading %s: %w", p, err)
	}

	return item, nil
}

// CreateFolder creates the folder at p and any missing parents.
func (r *DirRepository) CreateFolder(ctx context.Context, p string) (*Item, error) {
	abs, err := r.abs(p)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(abs, dirPermissions); err != nil {
		return nil, fmt.Errorf("remote: creating folder %s: %w", p, err)
	}

	return r.Stat(ctx, p)
}

// Delete removes the item at p. A folder is only removed when it is empty,
// otherwise ErrFolderNotEmpty is returned. Missing items yield ErrNotFound.
func (r *DirRepository) Delete(_ context.Context, p string, isFolder bool) error {
	abs, err := r.abs(p)
	if err != nil {
		return err
	}

	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	if err != nil {
		return fmt.Errorf("remote: stat %s: %w", p, err)
	}

	if info.IsDir() != isFolder {
		return fmt.Errorf("%w: %s: folder=%t on server", ErrInvalidPath, p, info.IsDir())
	}

	if isFolder {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return fmt.Errorf("remote: listing %s: %w", p, err)
		}

		if len(entries) > 0 {
			return fmt.Errorf("%w: %s (%d entries)", ErrFolderNotEmpty, p, len(entries))
		}
	}

	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("remote: deleting %s: %w", p, err)
	}

	r.logger.Debug("remote: deleted", slog.String("path", p), slog.Bool("folder", isFolder))

	return nil
}

// abs maps a rooted repository path onto the filesystem, refusing paths
// that escape the root.
func (r *DirRepository) abs(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q is not rooted", ErrInvalidPath, p)
	}

	clean := cleanPath(p)
	if clean == "/" {
		return "", fmt.Errorf("%w: the root itself is not an item", ErrInvalidPath)
	}

	return filepath.Join(r.root, filepath.FromSlash(clean)), nil
}

func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

func itemFromInfo(p string, info fs.FileInfo) Item {
	item := Item{
		Path:     p,
		IsFolder: info.IsDir(),
		ModTime:  info.ModTime().UTC(),
	}

	if !item.IsFolder {
		item.Size = info.Size()
	}

	return item
}

// contextReader stops a copy when its context ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
