package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	maxConcurrency   = 256
	minWatchDebounce = 100 * time.Millisecond
	minPollInterval  = 10 * time.Second
)

// validDirections are the accepted spellings of sync.direction.
var validDirections = map[string]bool{
	"":                true,
	"bidirectional":   true,
	"both":            true,
	"local_to_remote": true,
	"upload_only":     true,
	"upload":          true,
	"remote_to_local": true,
	"download_only":   true,
	"download":        true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateFilter(&cfg.Filter)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense once every
// override layer has been applied: both folder roots must be set, absolute,
// and disjoint.
func ValidateResolved(cfg *Config) error {
	var errs []error

	s := &cfg.Sync

	for _, f := range []struct{ name, value string }{
		{"local_root", s.LocalRoot},
		{"remote_root", s.RemoteRoot},
	} {
		switch {
		case f.value == "":
			errs = append(errs, fmt.Errorf("%s: must be set (config file, environment or flag)", f.name))
		case !filepath.IsAbs(f.value):
			errs = append(errs, fmt.Errorf("%s: must be absolute after expansion, got %q", f.name, f.value))
		}
	}

	if s.LocalRoot != "" && s.RemoteRoot != "" && (within(s.LocalRoot, s.RemoteRoot) || within(s.RemoteRoot, s.LocalRoot)) {
		errs = append(errs, fmt.Errorf("local_root %q and remote_root %q must not contain each other", s.LocalRoot, s.RemoteRoot))
	}

	return errors.Join(errs...)
}

// within reports whether p is dir or lies below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if !validDirections[strings.ToLower(strings.TrimSpace(s.Direction))] {
		errs = append(errs, fmt.Errorf(
			"direction: must be one of bidirectional, local_to_remote, remote_to_local; got %q", s.Direction))
	}

	if s.Concurrency < 0 || s.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency: must be between 0 (default) and %d, got %d",
			maxConcurrency, s.Concurrency))
	}

	if s.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("queue_capacity: must be >= 0, got %d", s.QueueCapacity))
	}

	errs = append(errs, validateDurationMin("poll_interval", s.PollInterval, minPollInterval, true)...)
	errs = append(errs, validateDurationMin("watch_debounce", s.WatchDebounce, minWatchDebounce, false)...)

	return errs
}

func validateFilter(f *FilterConfig) []error {
	var errs []error

	if _, err := ParseSize(f.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("max_file_size: %w", err))
	}

	for _, p := range f.IgnoredPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("ignored_paths: path %q must start with /", p))
		}
	}

	if filepath.IsAbs(f.IgnoreFile) {
		errs = append(errs, fmt.Errorf("ignore_file: must be relative to local_root, got %q", f.IgnoreFile))
	}

	return errs
}

// validateDurationMin checks that a duration string parses and meets a
// minimum. With zeroDisables, "0" is accepted as "off".
func validateDurationMin(field, value string, minimum time.Duration, zeroDisables bool) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if zeroDisables && d == 0 {
		return nil
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	for _, f := range []struct {
		name  string
		value int
	}{
		{"log_max_size_mb", l.LogMaxSizeMB},
		{"log_max_backups", l.LogMaxBackups},
		{"log_retention_days", l.LogRetentionDays},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s: must be >= 0, got %d", f.name, f.value))
		}
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
