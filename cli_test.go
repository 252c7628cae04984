package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/tripletsync/internal/config"
)

// isolateEnv points every default location at temp directories so command
// tests never touch the user's config or data.
func isolateEnv(t *testing.T) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvLocalRoot, "")
	t.Setenv(config.EnvRemoteRoot, "")
	t.Setenv(config.EnvDirection, "")
}

func executeCLI(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)

	return cmd.ExecuteContext(t.Context())
}

type cliFolders struct {
	local  string
	remote string
}

func newCLIFolders(t *testing.T) cliFolders {
	t.Helper()

	return cliFolders{local: t.TempDir(), remote: t.TempDir()}
}

func (f cliFolders) args(cmd ...string) []string {
	return append(cmd, "--local", f.local, "--remote", f.remote, "-q")
}

func TestSyncCommand_SyncsFolders(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)
	writeFileT(t, filepath.Join(f.local, "docs", "a.txt"), "local")
	writeFileT(t, filepath.Join(f.remote, "b.txt"), "remote")

	require.NoError(t, executeCLI(t, f.args("sync")...))

	assert.FileExists(t, filepath.Join(f.remote, "docs", "a.txt"))
	assert.FileExists(t, filepath.Join(f.local, "b.txt"))

	require.NoError(t, executeCLI(t, f.args("status")...))
	require.NoError(t, executeCLI(t, f.args("status", "--json")...))
	require.NoError(t, executeCLI(t, f.args("conflicts")...))
}

func TestSyncCommand_DryRun(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)
	writeFileT(t, filepath.Join(f.local, "a.txt"), "local")

	require.NoError(t, executeCLI(t, f.args("sync", "--dry-run", "--json")...))
	assert.NoFileExists(t, filepath.Join(f.remote, "a.txt"))
}

func TestSyncCommand_DirectionFlag(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)
	writeFileT(t, filepath.Join(f.local, "a.txt"), "local")
	writeFileT(t, filepath.Join(f.remote, "b.txt"), "remote")

	require.NoError(t, executeCLI(t, f.args("sync", "--direction", "remote_to_local")...))

	assert.FileExists(t, filepath.Join(f.local, "b.txt"))
	assert.NoFileExists(t, filepath.Join(f.remote, "a.txt"))
}

func TestSyncCommand_ConfigFile(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)
	writeFileT(t, filepath.Join(f.local, "a.txt"), "local")
	writeFileT(t, filepath.Join(f.local, "skip.log"), "ignored")
	writeFileT(t, filepath.Join(f.local, ".tripletsyncignore"), "*.log\n")

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	writeFileT(t, cfgPath, `[sync]
local_root = "`+f.local+`"
remote_root = "`+f.remote+`"
direction = "upload_only"
concurrency = 2

[logging]
log_level = "error"
`)

	require.NoError(t, executeCLI(t, "--config", cfgPath, "sync"))

	assert.FileExists(t, filepath.Join(f.remote, "a.txt"))
	assert.NoFileExists(t, filepath.Join(f.remote, "skip.log"))

	require.NoError(t, executeCLI(t, "--config", cfgPath, "config", "show"))
	require.NoError(t, executeCLI(t, "--config", cfgPath, "config", "show", "--json"))
}

func TestSyncCommand_EnvironmentRoots(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)
	writeFileT(t, filepath.Join(f.remote, "b.txt"), "remote")

	t.Setenv(config.EnvLocalRoot, f.local)
	t.Setenv(config.EnvRemoteRoot, f.remote)

	require.NoError(t, executeCLI(t, "sync", "-q"))
	assert.FileExists(t, filepath.Join(f.local, "b.txt"))
}

func TestSyncCommand_MissingRoots(t *testing.T) {
	isolateEnv(t)

	err := executeCLI(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local_root")
	assert.Contains(t, err.Error(), "remote_root")
}

func TestSyncCommand_InvalidDirection(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)

	err := executeCLI(t, f.args("sync", "--direction", "sideways")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction")
}

func TestSyncCommand_UnknownConfigKey(t *testing.T) {
	isolateEnv(t)

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	writeFileT(t, cfgPath, "[sync]\nlocal_rot = \"/tmp\"\n")

	err := executeCLI(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "local_root"`)
}

func TestSyncCommand_MissingRemoteRoot(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)
	missing := filepath.Join(f.remote, "nope")

	err := executeCLI(t, "sync", "--local", f.local, "--remote", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote")
}

func TestSyncCommand_VerboseAndQuietExclusive(t *testing.T) {
	isolateEnv(t)

	f := newCLIFolders(t)

	err := executeCLI(t, "sync", "--local", f.local, "--remote", f.remote, "-v", "-q")
	assert.Error(t, err)
}

func writeFileT(t *testing.T, p, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}
