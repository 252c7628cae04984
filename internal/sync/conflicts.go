package sync

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"time"
)

// conflictStampPattern matches the marker and timestamp inserted by conflictCopyPath.
var conflictStampPattern = regexp.MustCompile(regexp.QuoteMeta(conflictMarker) + `-\d{8}-\d{6}`)

// ConflictCopy is a local file set aside when both sides changed.
type ConflictCopy struct {
	Path     string // slash-separated, rooted at the sync root
	Original string // the name the copy was taken from
	Size     int64
	ModTime  time.Time
}

// FindConflictCopies lists the conflict copies below localRoot in walk
// order. stateDir is skipped when it lies inside localRoot.
func FindConflictCopies(localRoot, stateDir string) ([]ConflictCopy, error) {
	var copies []ConflictCopy

	err := filepath.WalkDir(localRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if stateDir != "" && p == stateDir {
				return filepath.SkipDir
			}

			return nil
		}

		if !conflictStampPattern.MatchString(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(localRoot, p)
		if err != nil {
			return err
		}

		name := "/" + filepath.ToSlash(rel)

		copies = append(copies, ConflictCopy{
			Path:     name,
			Original: conflictStampPattern.ReplaceAllString(name, ""),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync: listing conflict copies: %w", err)
	}

	return copies, nil
}
