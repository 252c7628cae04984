package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultDirection        = "bidirectional"
	defaultConcurrency      = 4
	defaultQueueCapacity    = 256
	defaultPollInterval     = "5m"
	defaultWatchDebounce    = "2s"
	defaultIgnoreFile       = ".tripletsyncignore"
	defaultMaxFileSize      = "0"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLogMaxSizeMB     = 50
	defaultLogMaxBackups    = 5
	defaultLogRetentionDays = 30
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync:    defaultSyncConfig(),
		Filter:  defaultFilterConfig(),
		Logging: defaultLoggingConfig(),
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		Direction:     defaultDirection,
		Concurrency:   defaultConcurrency,
		QueueCapacity: defaultQueueCapacity,
		PollInterval:  defaultPollInterval,
		WatchDebounce: defaultWatchDebounce,
	}
}

func defaultFilterConfig() FilterConfig {
	return FilterConfig{
		IgnoreFile:      defaultIgnoreFile,
		SkipHidden:      false,
		AllowBlankFiles: true,
		MaxFileSize:     defaultMaxFileSize,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		LogMaxSizeMB:     defaultLogMaxSizeMB,
		LogMaxBackups:    defaultLogMaxBackups,
		LogRetentionDays: defaultLogRetentionDays,
	}
}
