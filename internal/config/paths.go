package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "tripletsync"

// Config file name.
const configFileName = "config.toml"

// stateNamespace scopes the per-folder state directory names.
var stateNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://tripletsync/state"))

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/tripletsync).
// On macOS, uses ~/Library/Application Support/tripletsync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (tracking databases, logs).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/tripletsync).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, fallbackBase string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(fallbackBase, appName)
}

// DefaultConfigPath returns the full path to the default config file, used
// when neither TRIPLETSYNC_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultStateDir returns the state directory for the sync folder at
// localRoot. The name is stable for a given absolute path.
func DefaultStateDir(localRoot string) string {
	id := uuid.NewSHA1(stateNamespace, []byte(filepath.Clean(localRoot)))

	return filepath.Join(DefaultDataDir(), "folders", id.String())
}
