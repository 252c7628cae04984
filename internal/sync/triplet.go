// Package sync implements the triplet reconciliation engine for tripletsync.
// Each item of the namespace is described by a Triplet that unifies its local
// filesystem entry, its tracking database record, and its remote repository
// entry. The engine crawls all three, pushes triplets through a bounded
// queue, executes the reconciling action for each in parallel, and finally
// deletes deferred folders in waves so that no folder is removed before the
// folders nested beneath it.
package sync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMalformedTriplet is returned by NewTriplet when the backend references
// contradict the triplet's identity.
var ErrMalformedTriplet = errors.New("sync: malformed triplet")

// Direction selects which side is authoritative for a sync run.
type Direction int

// Sync directions.
const (
	Bidirectional Direction = iota
	LocalToRemote
	RemoteToLocal
)

// String returns the config-file spelling of the direction.
func (d Direction) String() string {
	switch d {
	case Bidirectional:
		return "bidirectional"
	case LocalToRemote:
		return "local_to_remote"
	case RemoteToLocal:
		return "remote_to_local"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection converts a config-file spelling into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bidirectional", "both":
		return Bidirectional, nil
	case "local_to_remote", "upload_only", "upload":
		return LocalToRemote, nil
	case "remote_to_local", "download_only", "download":
		return RemoteToLocal, nil
	default:
		return Bidirectional, fmt.Errorf("sync: unknown direction %q", s)
	}
}

// serverStampLayout is the stringification used when comparing remote
// modification times with the tracking database. Comparison is exact on the
// formatted string, so sub-second differences are invisible.
const serverStampLayout = "2006-01-02 15:04:05"

// ServerStamp formats t the way remote/database timestamps are compared.
// The caller decides whether t is converted to UTC first.
func ServerStamp(t time.Time) string {
	return t.Format(serverStampLayout)
}

// LocalItem is the local filesystem view of an item.
type LocalItem struct {
	RootPath     string // absolute local sync root
	RelativePath string // slash-separated, rooted at "/"
	Checksum     string // hex SHA-1, files only
}

// AbsPath returns the OS path of the item.
func (l *LocalItem) AbsPath() string {
	return filepath.Join(l.RootPath, filepath.FromSlash(l.RelativePath))
}

// RemoteItem is the remote repository view of an item.
type RemoteItem struct {
	RelativePath string
	LastModified time.Time // server clock
	Size         int64
}

// DBItem is the tracking database record of an item. A record only counts
// as existing when both recorded paths are set.
type DBItem struct {
	LocalPath      *string
	RemotePath     *string
	Checksum       string
	ServerModified time.Time
}

// Triplet is the unit of reconciliation: one logical filesystem entry seen
// through up to three backends. A nil backend reference means the item is
// absent there, which is meaningful state (e.g. "deleted locally").
type Triplet struct {
	Name      string // canonical relative path: identity, ordering, logging
	Direction Direction
	Local     *LocalItem
	Remote    *RemoteItem
	DB        *DBItem

	isFolder bool
}

// NewTriplet builds a triplet and rejects contract violations: an empty or
// unrooted name, a DB record with only one recorded path, or a local item
// without a root.
func NewTriplet(name string, isFolder bool, dir Direction, local *LocalItem, remote *RemoteItem, db *DBItem) (*Triplet, error) {
	if name == "" || !strings.HasPrefix(name, "/") {
		return nil, fmt.Errorf("%w: name %q must be rooted at \"/\"", ErrMalformedTriplet, name)
	}

	if local != nil && local.RootPath == "" {
		return nil, fmt.Errorf("%w: %s: local item has no root path", ErrMalformedTriplet, name)
	}

	if local != nil && isFolder && local.Checksum != "" {
		return nil, fmt.Errorf("%w: %s: folder carries a checksum", ErrMalformedTriplet, name)
	}

	if db != nil && (db.LocalPath == nil) != (db.RemotePath == nil) {
		return nil, fmt.Errorf("%w: %s: database record has only one recorded path", ErrMalformedTriplet, name)
	}

	if dir < Bidirectional || dir > RemoteToLocal {
		return nil, fmt.Errorf("%w: %s: %s", ErrMalformedTriplet, name, dir)
	}

	return &Triplet{
		Name:      name,
		Direction: dir,
		Local:     local,
		Remote:    remote,
		DB:        db,
		isFolder:  isFolder,
	}, nil
}

// IsFolder reports whether the triplet describes a folder. Fixed at construction.
func (t *Triplet) IsFolder() bool {
	return t.isFolder
}

// String returns the triplet name.
func (t *Triplet) String() string {
	return t.Name
}

// LocalExists reports whether the local reference is set and the matching
// filesystem entry (directory for folders, regular file otherwise) exists.
func (t *Triplet) LocalExists() bool {
	if t.Local == nil {
		return false
	}

	info, err := os.Stat(t.Local.AbsPath())
	if err != nil {
		return false
	}

	if t.isFolder {
		return info.IsDir()
	}

	return info.Mode().IsRegular()
}

// RemoteExists reports whether the remote reference is set.
func (t *Triplet) RemoteExists() bool {
	return t.Remote != nil
}

// DBExists reports whether a tracking record with both paths exists.
func (t *Triplet) DBExists() bool {
	return t.DB != nil && t.DB.LocalPath != nil && t.DB.RemotePath != nil
}

// LocalEqDB reports whether the local state matches the tracking record.
// Always true when syncing remote to local: local content is not consulted.
func (t *Triplet) LocalEqDB() bool {
	if t.Direction == RemoteToLocal {
		return true
	}

	localExists, dbExists := t.LocalExists(), t.DBExists()
	if !localExists && !dbExists {
		return true
	}

	if !localExists || !dbExists {
		return false
	}

	if t.Local.RelativePath != *t.DB.LocalPath {
		return false
	}

	return t.isFolder || t.Local.Checksum == t.DB.Checksum
}

// RemoteEqDB reports whether the remote state matches the tracking record.
// Always true when syncing local to remote: remote content is not consulted.
// File timestamps compare as strings: remote time in UTC against the
// recorded server-side stamp.
func (t *Triplet) RemoteEqDB() bool {
	if t.Direction == LocalToRemote {
		return true
	}

	remoteExists, dbExists := t.RemoteExists(), t.DBExists()
	if !remoteExists && !dbExists {
		return true
	}

	if !remoteExists || !dbExists {
		return false
	}

	if t.Remote.RelativePath != *t.DB.RemotePath {
		return false
	}

	if t.isFolder {
		return true
	}

	return ServerStamp(t.Remote.LastModified.UTC()) == ServerStamp(t.DB.ServerModified)
}

// Info returns a multi-line description of the triplet state for debug logs.
func (t *Triplet) Info() string {
	localExists, dbExists, remoteExists := t.LocalExists(), t.DBExists(), t.RemoteExists()

	var localRel, dbLocal, dbRemote, remoteRel, localSum, dbSum, remoteMod, dbMod string

	if localExists {
		localRel = t.Local.RelativePath
		if !t.isFolder {
			localSum = t.Local.Checksum
		}
	}

	if dbExists {
		dbLocal, dbRemote = *t.DB.LocalPath, *t.DB.RemotePath
		dbMod = ServerStamp(t.DB.ServerModified)

		if !t.isFolder {
			dbSum = t.DB.Checksum
		}
	}

	if remoteExists {
		remoteRel = t.Remote.RelativePath
		remoteMod = ServerStamp(t.Remote.LastModified.UTC())
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s (folder=%t, direction=%s)\n", t.Name, t.isFolder, t.Direction)
	fmt.Fprintf(&b, "  exists:        local=%t db=%t remote=%t\n", localExists, dbExists, remoteExists)
	fmt.Fprintf(&b, "  paths:         local=%q db-local=%q db-remote=%q remote=%q\n", localRel, dbLocal, dbRemote, remoteRel)
	fmt.Fprintf(&b, "  checksums:     local=%q db=%q\n", localSum, dbSum)
	fmt.Fprintf(&b, "  last modified: remote=%q db=%q", remoteMod, dbMod)

	return b.String()
}

// StrPtr returns a pointer to s. Used for the nullable DB record paths.
func StrPtr(s string) *string {
	return &s
}
