package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger so config debug output appears in
// test output for CI visibility.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
local_root = "/home/me/sync"
remote_root = "/mnt/share"
state_dir = "/var/lib/tripletsync"
direction = "remote_to_local"
concurrency = 8
queue_capacity = 64
dry_run = true
poll_interval = "10m"
watch_debounce = "500ms"

[filter]
ignored_paths = ["/build", "/tmp/cache"]
ignore_file = ".syncignore"
skip_hidden = true
allow_blank_files = false
max_file_size = "1GB"

[logging]
log_level = "debug"
log_file = "/var/log/tripletsync.log"
log_format = "json"
log_max_size_mb = 10
log_max_backups = 2
log_retention_days = 7
`)

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "/home/me/sync", cfg.Sync.LocalRoot)
	assert.Equal(t, "/mnt/share", cfg.Sync.RemoteRoot)
	assert.Equal(t, "/var/lib/tripletsync", cfg.Sync.StateDir)
	assert.Equal(t, "remote_to_local", cfg.Sync.Direction)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, 64, cfg.Sync.QueueCapacity)
	assert.True(t, cfg.Sync.DryRun)
	assert.Equal(t, "10m", cfg.Sync.PollInterval)
	assert.Equal(t, "500ms", cfg.Sync.WatchDebounce)

	assert.Equal(t, []string{"/build", "/tmp/cache"}, cfg.Filter.IgnoredPaths)
	assert.Equal(t, ".syncignore", cfg.Filter.IgnoreFile)
	assert.True(t, cfg.Filter.SkipHidden)
	assert.False(t, cfg.Filter.AllowBlankFiles)
	assert.Equal(t, "1GB", cfg.Filter.MaxFileSize)

	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "/var/log/tripletsync.log", cfg.Logging.LogFile)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, 10, cfg.Logging.LogMaxSizeMB)
	assert.Equal(t, 2, cfg.Logging.LogMaxBackups)
	assert.Equal(t, 7, cfg.Logging.LogRetentionDays)
}

func TestLoad_MinimalConfig_UsesDefaults(t *testing.T) {
	path := writeTestConfig(t, "")

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
concurrency = 2
`)

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sync.Concurrency)
	assert.Equal(t, defaultQueueCapacity, cfg.Sync.QueueCapacity)
	assert.True(t, cfg.Filter.AllowBlankFiles)
	assert.Equal(t, defaultLogLevel, cfg.Logging.LogLevel)
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeTestConfig(t, "[sync\nlocal_root = ")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), testLogger(t))
	assert.Error(t, err)
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
direction = "sideways"
`)

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoad_TypeMismatch(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
concurrency = "lots"
`)

	_, err := Load(path, testLogger(t))
	assert.Error(t, err)
}

func TestLoadOrDefault_FileExists(t *testing.T) {
	path := writeTestConfig(t, "[sync]\nconcurrency = 3\n")

	cfg, found, err := LoadOrDefault(path, testLogger(t))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, cfg.Sync.Concurrency)
}

func TestLoadOrDefault_FileNotFound(t *testing.T) {
	cfg, found, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"), testLogger(t))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, found, err := LoadOrDefault("", testLogger(t))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, DefaultConfig(), cfg)
}

func ptr[T any](v T) *T { return &v }

func TestResolve_FileOnly(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	local := t.TempDir()
	remote := t.TempDir()
	path := writeTestConfig(t, "[sync]\nlocal_root = \""+local+"\"\nremote_root = \""+remote+"\"\n")

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger(t))
	require.NoError(t, err)
	assert.True(t, r.FromFile)
	assert.Equal(t, path, r.ConfigPath)
	assert.Equal(t, local, r.Sync.LocalRoot)
	assert.Equal(t, remote, r.Sync.RemoteRoot)
	assert.Equal(t, DefaultStateDir(local), r.Sync.StateDir)
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path := writeTestConfig(t, `
[sync]
local_root = "/from/file/local"
remote_root = "/from/file/remote"
direction = "upload"
`)

	env := EnvOverrides{RemoteRoot: "/from/env/remote", Direction: "download"}

	r, err := Resolve(env, CLIOverrides{ConfigPath: path}, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "/from/file/local", r.Sync.LocalRoot)
	assert.Equal(t, "/from/env/remote", r.Sync.RemoteRoot)
	assert.Equal(t, "download", r.Sync.Direction)
}

func TestResolve_CLIOverridesEnv(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	env := EnvOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "env.toml"),
		LocalRoot:  "/env/local",
		RemoteRoot: "/env/remote",
		Direction:  "upload",
	}
	cli := CLIOverrides{
		ConfigPath:  filepath.Join(t.TempDir(), "cli.toml"),
		LocalRoot:   ptr("/cli/local"),
		Direction:   ptr("both"),
		Concurrency: ptr(1),
		DryRun:      ptr(true),
	}

	r, err := Resolve(env, cli, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, cli.ConfigPath, r.ConfigPath)
	assert.False(t, r.FromFile)
	assert.Equal(t, "/cli/local", r.Sync.LocalRoot)
	assert.Equal(t, "/env/remote", r.Sync.RemoteRoot)
	assert.Equal(t, "both", r.Sync.Direction)
	assert.Equal(t, 1, r.Sync.Concurrency)
	assert.True(t, r.Sync.DryRun)
}

func TestResolve_DryRunFalseOverridesFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path := writeTestConfig(t, `
[sync]
local_root = "/a"
remote_root = "/b"
dry_run = true
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path, DryRun: ptr(false)}, testLogger(t))
	require.NoError(t, err)
	assert.False(t, r.Sync.DryRun)
}

func TestResolve_ExpandsTildeAndRelativePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	wd, err := os.Getwd()
	require.NoError(t, err)

	cli := CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		LocalRoot:  ptr("~/Sync"),
		RemoteRoot: ptr("relative/remote"),
	}

	r, err := Resolve(EnvOverrides{}, cli, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Sync"), r.Sync.LocalRoot)
	assert.Equal(t, filepath.Join(wd, "relative", "remote"), r.Sync.RemoteRoot)
}

func TestResolve_MissingRoots(t *testing.T) {
	cli := CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}

	_, err := Resolve(EnvOverrides{}, cli, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local_root: must be set")
	assert.Contains(t, err.Error(), "remote_root: must be set")
}

func TestResolve_InvalidConfigFile(t *testing.T) {
	path := writeTestConfig(t, "[sync]\nbogus = 1\n")

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestResolve_InvalidCLIDirection(t *testing.T) {
	cli := CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		LocalRoot:  ptr("/a"),
		RemoteRoot: ptr("/b"),
		Direction:  ptr("sideways"),
	}

	_, err := Resolve(EnvOverrides{}, cli, testLogger(t))
	assert.ErrorContains(t, err, "direction")
}

func TestResolve_ExplicitStateDirKept(t *testing.T) {
	state := t.TempDir()
	path := writeTestConfig(t, "[sync]\nlocal_root = \"/a\"\nremote_root = \"/b\"\nstate_dir = \""+state+"\"\n")

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, state, r.Sync.StateDir)
}

func TestExpandTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandTilde("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = expandTilde("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y"), got)

	got, err = expandTilde("~other/x")
	require.NoError(t, err)
	assert.Equal(t, "~other/x", got)
}
