package config

import (
	"log/slog"
	"os"
)

// Environment variable names for overrides.
const (
	EnvConfig     = "TRIPLETSYNC_CONFIG"
	EnvLocalRoot  = "TRIPLETSYNC_LOCAL_ROOT"
	EnvRemoteRoot = "TRIPLETSYNC_REMOTE_ROOT"
	EnvDirection  = "TRIPLETSYNC_DIRECTION"
)

// EnvOverrides holds values derived from environment variables. Empty
// means unset.
type EnvOverrides struct {
	ConfigPath string // TRIPLETSYNC_CONFIG: config file path
	LocalRoot  string // TRIPLETSYNC_LOCAL_ROOT
	RemoteRoot string // TRIPLETSYNC_REMOTE_ROOT
	Direction  string // TRIPLETSYNC_DIRECTION
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		LocalRoot:  os.Getenv(EnvLocalRoot),
		RemoteRoot: os.Getenv(EnvRemoteRoot),
		Direction:  os.Getenv(EnvDirection),
	}

	logger.Debug("environment overrides read",
		slog.String("config_path", env.ConfigPath),
		slog.String("local_root", env.LocalRoot),
		slog.String("remote_root", env.RemoteRoot),
		slog.String("direction", env.Direction),
	)

	return env
}
