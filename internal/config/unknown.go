package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string]map[string]bool{
	"sync": {
		"local_root": true, "remote_root": true, "state_dir": true, "direction": true,
		"concurrency": true, "queue_capacity": true, "dry_run": true,
		"poll_interval": true, "watch_debounce": true,
	},
	"filter": {
		"ignored_paths": true, "ignore_file": true, "skip_hidden": true,
		"allow_blank_files": true, "max_file_size": true,
	},
	"logging": {
		"log_level": true, "log_file": true, "log_format": true,
		"log_max_size_mb": true, "log_max_backups": true, "log_retention_days": true,
	},
}

// sortedKeys returns the keys of m in sorted order, for deterministic
// suggestions when two candidates have the same edit distance.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

var knownSections = func() map[string]bool {
	m := make(map[string]bool, len(knownKeys))
	for k := range knownKeys {
		m[k] = true
	}

	return m
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := buildKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key, suggesting the closest known
// section or key.
func buildKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		if len(key) == 1 {
			if s := closestSectionFor(section); s != "" {
				return fmt.Errorf("unknown top-level key %q: keys belong in a section, e.g. [%s]", section, s)
			}
		}

		if suggestion := closestMatch(section, sortedKeys(knownSections)); suggestion != "" {
			return fmt.Errorf("unknown config section [%s] (did you mean [%s]?)", section, suggestion)
		}

		return fmt.Errorf("unknown config section [%s]", section)
	}

	if len(key) == 1 {
		return nil
	}

	field := key[1]
	if keys[field] {
		return nil
	}

	if suggestion := closestMatch(field, sortedKeys(keys)); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s] (did you mean %q?)", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestSectionFor returns the section that defines key, for keys written
// at the top level by mistake.
func closestSectionFor(key string) string {
	for _, section := range sortedKeys(knownSections) {
		if knownKeys[section][strings.ToLower(key)] {
			return section
		}
	}

	return ""
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
