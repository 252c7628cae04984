package sync

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/tonimelisma/tripletsync/internal/config"
)

// maxPathLength is the longest absolute local path the engine will touch.
const maxPathLength = 4096

// Suffixes of files the engine itself writes into the local tree.
const (
	downloadSuffix  = ".sync"
	conflictMarker  = "-conflict-version"
	invalidNameRune = `"?:/\|<>*`
)

// ignoredNames are never synced, compared case-insensitively.
var ignoredNames = map[string]bool{
	"~":               true, // gedit and emacs
	"thumbs.db":       true,
	"desktop.ini":     true,
	"cvs":             true,
	".svn":            true,
	".git":            true,
	".hg":             true,
	".bzr":            true,
	".directory":      true, // KDE
	".ds_store":       true,
	".icon\r":         true,
	".spotlight-v100": true,
	".trashes":        true,
	".cvsignore":      true,
	".~cvsignore":     true,
	".bzrignore":      true,
	".gitignore":      true,
	"$~":              true,
	"lock":            true,
}

// ignoredNamePattern matches editor backups, lock files, vim swap files,
// Omnigraffle autosaves and our own conflict copies. Applied to lowercase names.
var ignoredNamePattern = regexp.MustCompile(
	`^~|^\._|~$|^\.~lock\.|^\..*\.sw[a-z]$|\(autosaved\)\.graffle$|` + regexp.QuoteMeta(conflictMarker),
)

// ignoredExtensions are temp and partial-download extensions, lowercase.
var ignoredExtensions = map[string]bool{
	"autosave":   true,
	"~lock":      true,
	"part":       true,
	"crdownload": true,
	"un~":        true,
	"swp":        true,
	"swo":        true,
	"tmp":        true,
	"sync":       true,
	"cmissync":   true,
}

// Filter decides which items take part in sync. Name and path rules apply
// to both sides; content rules (blank files, size limit) only to files.
// Safe for concurrent use after construction.
type Filter struct {
	localRoot    string
	ignoredPaths []string
	skipHidden   bool
	allowBlank   bool
	maxFileSize  int64 // 0 = no limit
	patterns     *ignore.GitIgnore
	logger       *slog.Logger
}

// NewFilter builds a filter for the sync folder rooted at localRoot. A
// missing ignore file is not an error.
func NewFilter(cfg *config.FilterConfig, localRoot string, logger *slog.Logger) (*Filter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f := &Filter{
		localRoot:  localRoot,
		skipHidden: cfg.SkipHidden,
		allowBlank: cfg.AllowBlankFiles,
		logger:     logger,
	}

	for _, p := range cfg.IgnoredPaths {
		if p = strings.TrimSpace(p); p != "" {
			f.ignoredPaths = append(f.ignoredPaths, "/"+strings.Trim(filepath.ToSlash(p), "/"))
		}
	}

	maxSize, err := config.ParseSize(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("sync: max_file_size: %w", err)
	}

	f.maxFileSize = maxSize

	if cfg.IgnoreFile != "" {
		patterns, err := loadIgnoreFile(filepath.Join(localRoot, cfg.IgnoreFile))
		if err != nil {
			return nil, err
		}

		f.patterns = patterns
	}

	logger.Info("filter initialized",
		slog.String("local_root", localRoot),
		slog.Any("ignored_paths", f.ignoredPaths),
		slog.Bool("skip_hidden", f.skipHidden),
		slog.Bool("allow_blank_files", f.allowBlank),
		slog.Int64("max_file_size", f.maxFileSize),
		slog.Bool("ignore_file", f.patterns != nil),
	)

	return f, nil
}

func loadIgnoreFile(p string) (*ignore.GitIgnore, error) {
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	patterns, err := ignore.CompileIgnoreFile(p)
	if err != nil {
		return nil, fmt.Errorf("sync: reading ignore file %s: %w", p, err)
	}

	return patterns, nil
}

// Include reports whether the item named rel ("/a/b") passes the name and
// path rules. An excluded folder excludes everything below it; callers are
// expected to prune.
func (f *Filter) Include(rel string, isFolder bool) bool {
	if f.IsPathIgnored(rel) {
		return false
	}

	name := path.Base(rel)
	if reason := f.nameExclusion(name, isFolder); reason != "" {
		f.logger.Debug("filter: excluded", slog.String("name", rel), slog.String("reason", reason))
		return false
	}

	if f.patterns != nil {
		match := strings.TrimPrefix(rel, "/")
		if isFolder {
			match += "/"
		}

		if f.patterns.MatchesPath(match) {
			f.logger.Debug("filter: excluded by ignore file", slog.String("name", rel))
			return false
		}
	}

	if len(filepath.Join(f.localRoot, filepath.FromSlash(rel))) > maxPathLength {
		f.logger.Debug("filter: path too long", slog.String("name", rel))
		return false
	}

	return true
}

// ExcludesContent reports whether a file of the given size is left out by
// the blank-file or size rules.
func (f *Filter) ExcludesContent(size int64) bool {
	if !f.allowBlank && size <= 0 {
		return true
	}

	return f.maxFileSize > 0 && size > f.maxFileSize
}

// IsPathIgnored reports whether rel lies under a configured ignored path or
// contains a segment with invalid characters.
func (f *Filter) IsPathIgnored(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.ContainsAny(seg, invalidNameRune) {
			return true
		}
	}

	for _, ignored := range f.ignoredPaths {
		if IsPathAncestor(ignored, rel) {
			return true
		}
	}

	return false
}

// WorthSyncing reports whether the local entry name inside the absolute
// directory dir should be synced. Entries that cannot be stat'ed are judged
// by name alone.
func (f *Filter) WorthSyncing(dir, name string) bool {
	relDir, err := filepath.Rel(f.localRoot, dir)
	if err != nil || relDir == ".." || strings.HasPrefix(relDir, ".."+string(filepath.Separator)) {
		f.logger.Warn("filter: directory outside local root", slog.String("dir", dir))
		return false
	}

	rel := path.Join("/", filepath.ToSlash(relDir), name)

	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return f.Include(rel, false)
	}

	if !f.Include(rel, info.IsDir()) {
		return false
	}

	return info.IsDir() || !f.ExcludesContent(info.Size())
}

// nameExclusion returns why name is excluded, or "" when it is not.
func (f *Filter) nameExclusion(name string, isFolder bool) string {
	lower := strings.ToLower(name)

	if ignoredNames[lower] {
		return "ignored name"
	}

	if ignoredNamePattern.MatchString(lower) {
		return "ignored name pattern"
	}

	if f.skipHidden && strings.HasPrefix(name, ".") {
		return "hidden"
	}

	if !isFolder {
		if dot := strings.LastIndexByte(lower, '.'); dot >= 0 && ignoredExtensions[lower[dot+1:]] {
			return "ignored extension"
		}
	}

	return ""
}
