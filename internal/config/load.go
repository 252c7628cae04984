package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Resolved is a configuration with every override layer applied, absolute
// paths, and a state directory.
type Resolved struct {
	Config

	ConfigPath string // file that was consulted; may not exist
	FromFile   bool   // whether ConfigPath existed
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file loaded", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. found reports which happened.
func LoadOrDefault(path string, logger *slog.Logger) (cfg *Config, found bool, err error) {
	if path == "" {
		return DefaultConfig(), false, nil
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		logger.Debug("no config file, using defaults", slog.String("path", path))
		return DefaultConfig(), false, nil
	}

	cfg, err = Load(path, logger)

	return cfg, err == nil, err
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, found, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	applyEnv(&cfg.Sync, env)
	applyCLI(&cfg.Sync, cli)

	if err := expandPaths(cfg); err != nil {
		return nil, err
	}

	if cfg.Sync.StateDir == "" && cfg.Sync.LocalRoot != "" {
		cfg.Sync.StateDir = DefaultStateDir(cfg.Sync.LocalRoot)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	logger.Debug("config resolved",
		slog.String("config_path", cfgPath),
		slog.Bool("from_file", found),
		slog.String("local_root", cfg.Sync.LocalRoot),
		slog.String("remote_root", cfg.Sync.RemoteRoot),
		slog.String("state_dir", cfg.Sync.StateDir),
	)

	return &Resolved{Config: *cfg, ConfigPath: cfgPath, FromFile: found}, nil
}

func applyEnv(s *SyncConfig, env EnvOverrides) {
	if env.LocalRoot != "" {
		s.LocalRoot = env.LocalRoot
	}

	if env.RemoteRoot != "" {
		s.RemoteRoot = env.RemoteRoot
	}

	if env.Direction != "" {
		s.Direction = env.Direction
	}
}

func applyCLI(s *SyncConfig, cli CLIOverrides) {
	if cli.LocalRoot != nil {
		s.LocalRoot = *cli.LocalRoot
	}

	if cli.RemoteRoot != nil {
		s.RemoteRoot = *cli.RemoteRoot
	}

	if cli.Direction != nil {
		s.Direction = *cli.Direction
	}

	if cli.Concurrency != nil {
		s.Concurrency = *cli.Concurrency
	}

	if cli.DryRun != nil {
		s.DryRun = *cli.DryRun
	}
}

// expandPaths expands "~" and makes the folder paths absolute.
func expandPaths(cfg *Config) error {
	for _, p := range []*string{&cfg.Sync.LocalRoot, &cfg.Sync.RemoteRoot, &cfg.Sync.StateDir, &cfg.Logging.LogFile} {
		if *p == "" {
			continue
		}

		expanded, err := expandTilde(*p)
		if err != nil {
			return err
		}

		abs, err := filepath.Abs(expanded)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", *p, err)
		}

		*p = abs
	}

	return nil
}

// expandTilde replaces a leading "~" with the user's home directory.
func expandTilde(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}

	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
