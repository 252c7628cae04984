package sync

import (
	"context"
	"crypto/sha1" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/tripletsync/internal/remote"
)

// Snapshotter provides the tracking database snapshot taken by a crawl.
type Snapshotter interface {
	LoadAll(ctx context.Context) (map[string]*TrackedItem, error)
}

// TreeCrawlerConfig wires a TreeCrawler.
type TreeCrawlerConfig struct {
	LocalRoot string
	StateDir  string // never crawled when it lies inside LocalRoot
	Direction Direction
	Session   Session
	Snapshot  Snapshotter
	Filter    *Filter
}

// crawledEntry is one item seen on a single side during a crawl.
type crawledEntry struct {
	path     string // backend path as stored (filesystem spelling locally)
	isFolder bool
	checksum string
	modTime  time.Time
	size     int64
	excluded bool // left out by the content rules
	skip     bool // unreadable, the name sits out this run
}

// TreeCrawler discovers every item of a sync folder: it walks the local
// tree, then the remote repository, then reads the tracking database, and
// emits one triplet per name in sorted order.
type TreeCrawler struct {
	cfg    TreeCrawlerConfig
	logger *slog.Logger
}

// NewTreeCrawler creates a crawler.
func NewTreeCrawler(cfg TreeCrawlerConfig, logger *slog.Logger) *TreeCrawler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &TreeCrawler{cfg: cfg, logger: logger}
}

// Crawl pushes the triplets of the sync folder onto out.
func (c *TreeCrawler) Crawl(ctx context.Context, out *TripletQueue) error {
	local, err := c.crawlLocal(ctx)
	if err != nil {
		return err
	}

	remoteItems, err := c.crawlRemote(ctx)
	if err != nil {
		return err
	}

	tracked, err := c.cfg.Snapshot.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("sync: crawl: %w", err)
	}

	names := mapset.NewThreadUnsafeSet[string]()
	for name := range local {
		names.Add(name)
	}

	for name := range remoteItems {
		names.Add(name)
	}

	for name := range tracked {
		names.Add(name)
	}

	sorted := names.ToSlice()
	slices.Sort(sorted)

	c.logger.Info("crawler: crawl complete",
		slog.Int("local", len(local)),
		slog.Int("remote", len(remoteItems)),
		slog.Int("tracked", len(tracked)),
		slog.Int("names", len(sorted)),
	)

	var emitted int

	folderFiltered := make(map[string]bool)

	for _, name := range sorted {
		t := c.buildTriplet(name, local[name], remoteItems[name], tracked[name], folderFiltered)
		if t == nil {
			continue
		}

		if err := out.Add(ctx, t); err != nil {
			return fmt.Errorf("sync: crawl: queueing %s: %w", name, err)
		}

		emitted++
	}

	c.logger.Debug("crawler: triplets emitted", slog.Int("count", emitted))

	return nil
}

// buildTriplet merges the three views of name. It returns nil for names that
// must not be synced this run.
func (c *TreeCrawler) buildTriplet(
	name string, l, r *crawledEntry, db *TrackedItem, folderFiltered map[string]bool,
) *Triplet {
	isFolder, ok := c.kindOf(name, l, r, db)
	if !ok {
		return nil
	}

	// The walks prune filtered names; tracked rows are checked here.
	if c.filtered(name, isFolder, folderFiltered) {
		c.logger.Debug("crawler: tracked item excluded by filter", slog.String("name", name))
		return nil
	}

	if l != nil && l.skip {
		return nil
	}

	if db == nil && ((l != nil && l.excluded) || (r != nil && r.excluded)) {
		c.logger.Debug("crawler: untracked file excluded by content rules", slog.String("name", name))
		return nil
	}

	var (
		localItem  *LocalItem
		remoteItem *RemoteItem
		dbItem     *DBItem
	)

	if l != nil {
		localItem = &LocalItem{RootPath: c.cfg.LocalRoot, RelativePath: l.path, Checksum: l.checksum}
	}

	if r != nil {
		remoteItem = &RemoteItem{RelativePath: r.path, LastModified: r.modTime, Size: r.size}
	}

	if db != nil {
		dbItem = db.DBItem()
		if (dbItem.LocalPath == nil) != (dbItem.RemotePath == nil) {
			c.logger.Warn("crawler: ignoring half-recorded tracking entry", slog.String("name", name))
			dbItem = nil
		}
	}

	t, err := NewTriplet(name, isFolder, c.cfg.Direction, localItem, remoteItem, dbItem)
	if err != nil {
		c.logger.Warn("crawler: skipping item", slog.String("name", name), slog.String("error", err.Error()))
		return nil
	}

	return t
}

// filtered reports whether name or one of its ancestor folders is excluded
// by the name and path rules. Folder verdicts are memoized in memo.
func (c *TreeCrawler) filtered(name string, isFolder bool, memo map[string]bool) bool {
	for dir := path.Dir(name); dir != "/" && dir != "."; dir = path.Dir(dir) {
		out, seen := memo[dir]
		if !seen {
			out = !c.cfg.Filter.Include(dir, true)
			memo[dir] = out
		}

		if out {
			return true
		}
	}

	if isFolder {
		if out, seen := memo[name]; seen {
			return out
		}

		out := !c.cfg.Filter.Include(name, true)
		memo[name] = out

		return out
	}

	return !c.cfg.Filter.Include(name, false)
}

// kindOf decides whether name is a folder. Sides that disagree make the
// item unsyncable until the conflict is resolved by hand.
func (c *TreeCrawler) kindOf(name string, l, r *crawledEntry, db *TrackedItem) (isFolder, ok bool) {
	var kinds []bool

	if l != nil {
		kinds = append(kinds, l.isFolder)
	}

	if r != nil {
		kinds = append(kinds, r.isFolder)
	}

	if db != nil {
		kinds = append(kinds, db.IsFolder)
	}

	for _, k := range kinds[1:] {
		if k != kinds[0] {
			c.logger.Warn("crawler: item is a file on one side and a folder on another",
				slog.String("name", name),
				slog.Bool("local", l != nil && l.isFolder),
				slog.Bool("remote", r != nil && r.isFolder),
			)

			return false, false
		}
	}

	return kinds[0], true
}

// crawlLocal walks the local root. Keys are NFC-normalized names; entries
// keep the filesystem spelling for I/O.
func (c *TreeCrawler) crawlLocal(ctx context.Context) (map[string]*crawledEntry, error) {
	entries := make(map[string]*crawledEntry)
	hashContent := c.cfg.Direction != RemoteToLocal

	err := filepath.WalkDir(c.cfg.LocalRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("sync: walking %s: %w", p, err)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if p == c.cfg.LocalRoot {
			return nil
		}

		if d.IsDir() && c.cfg.StateDir != "" && p == c.cfg.StateDir {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(c.cfg.LocalRoot, p)
		if err != nil {
			return fmt.Errorf("sync: relative path of %s: %w", p, err)
		}

		fsPath := "/" + filepath.ToSlash(rel)
		name := norm.NFC.String(fsPath)

		if !d.IsDir() && !d.Type().IsRegular() {
			c.logger.Debug("crawler: skipping non-regular file", slog.String("path", p))
			return nil
		}

		if !c.cfg.Filter.Include(name, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		entry := &crawledEntry{path: fsPath, isFolder: d.IsDir()}

		if !entry.isFolder {
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("sync: stat %s: %w", p, err)
			}

			entry.excluded = c.cfg.Filter.ExcludesContent(info.Size())

			if hashContent {
				sum, err := FileChecksum(p)
				if err != nil {
					c.logger.Warn("crawler: cannot hash file", slog.String("path", p), slog.String("error", err.Error()))
					entry.skip = true
				}

				entry.checksum = sum
			}
		}

		entries[name] = entry

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync: crawling local tree: %w", err)
	}

	return entries, nil
}

// crawlRemote walks the remote repository through the session. Excluded
// folders hide everything below them.
func (c *TreeCrawler) crawlRemote(ctx context.Context) (map[string]*crawledEntry, error) {
	entries := make(map[string]*crawledEntry)

	var excludedFolders []string

	err := c.cfg.Session.Walk(ctx, func(item remote.Item) error {
		name := norm.NFC.String(item.Path)

		for _, ex := range excludedFolders {
			if IsPathAncestor(ex, name) {
				return nil
			}
		}

		if !c.cfg.Filter.Include(name, item.IsFolder) {
			if item.IsFolder {
				excludedFolders = append(excludedFolders, name)
			}

			return nil
		}

		entries[name] = &crawledEntry{
			path:     item.Path,
			isFolder: item.IsFolder,
			modTime:  item.ModTime,
			size:     item.Size,
			excluded: !item.IsFolder && c.cfg.Filter.ExcludesContent(item.Size),
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync: crawling remote repository: %w", err)
	}

	return entries, nil
}

// FileChecksum returns the hex SHA-1 of the file at p.
func FileChecksum(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec // content fingerprint
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
