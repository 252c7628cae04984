// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for tripletsync. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). The file is organized in [sync], [filter] and [logging] sections.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Sync    SyncConfig    `toml:"sync"`
	Filter  FilterConfig  `toml:"filter"`
	Logging LoggingConfig `toml:"logging"`
}

// SyncConfig describes the sync folder and how the engine runs over it.
type SyncConfig struct {
	LocalRoot     string `toml:"local_root"`
	RemoteRoot    string `toml:"remote_root"`
	StateDir      string `toml:"state_dir"` // empty = derived from local_root
	Direction     string `toml:"direction"`
	Concurrency   int    `toml:"concurrency"`
	QueueCapacity int    `toml:"queue_capacity"`
	DryRun        bool   `toml:"dry_run"`
	PollInterval  string `toml:"poll_interval"`
	WatchDebounce string `toml:"watch_debounce"`
}

// FilterConfig controls which files and directories are included in sync.
// Paths are relative to the sync root and start with "/".
type FilterConfig struct {
	IgnoredPaths    []string `toml:"ignored_paths"`
	IgnoreFile      string   `toml:"ignore_file"`
	SkipHidden      bool     `toml:"skip_hidden"`
	AllowBlankFiles bool     `toml:"allow_blank_files"`
	MaxFileSize     string   `toml:"max_file_size"`
}

// LoggingConfig controls log output behavior: level, format, and rotation.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogMaxSizeMB     int    `toml:"log_max_size_mb"`
	LogMaxBackups    int    `toml:"log_max_backups"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value": --dry-run=false is different from
// not passing --dry-run at all.
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	LocalRoot   *string // --local
	RemoteRoot  *string // --remote
	Direction   *string // --direction
	Concurrency *int    // --concurrency
	DryRun      *bool   // --dry-run
}

// PollDuration returns the parsed poll interval. Validation guarantees it parses.
func (s *SyncConfig) PollDuration() time.Duration {
	return mustDuration(s.PollInterval)
}

// DebounceDuration returns the parsed watch debounce.
func (s *SyncConfig) DebounceDuration() time.Duration {
	return mustDuration(s.WatchDebounce)
}

func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q: %v", s, err))
	}

	return d
}
