package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvLocalRoot, "/home/me/sync")
	t.Setenv(EnvRemoteRoot, "/mnt/share")
	t.Setenv(EnvDirection, "upload")

	overrides := ReadEnvOverrides(testLogger(t))
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "/home/me/sync", overrides.LocalRoot)
	assert.Equal(t, "/mnt/share", overrides.RemoteRoot)
	assert.Equal(t, "upload", overrides.Direction)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvLocalRoot, "")
	t.Setenv(EnvRemoteRoot, "")
	t.Setenv(EnvDirection, "")

	overrides := ReadEnvOverrides(testLogger(t))
	assert.Equal(t, EnvOverrides{}, overrides)
}

func TestReadEnvOverrides_PartiallySet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvLocalRoot, "")
	t.Setenv(EnvRemoteRoot, "/mnt/share")
	t.Setenv(EnvDirection, "")

	overrides := ReadEnvOverrides(testLogger(t))
	assert.Empty(t, overrides.ConfigPath)
	assert.Empty(t, overrides.LocalRoot)
	assert.Equal(t, "/mnt/share", overrides.RemoteRoot)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "TRIPLETSYNC_CONFIG", EnvConfig)
	assert.Equal(t, "TRIPLETSYNC_LOCAL_ROOT", EnvLocalRoot)
	assert.Equal(t, "TRIPLETSYNC_REMOTE_ROOT", EnvRemoteRoot)
	assert.Equal(t, "TRIPLETSYNC_DIRECTION", EnvDirection)
}
