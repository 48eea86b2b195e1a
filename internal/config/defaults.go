package config

const (
	defaultDataDir            = "~/.local/share/courier"
	defaultLogDir             = "~/.local/share/courier/logs"
	defaultSpoolDir           = "~/.local/share/courier/spool"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 60
	defaultRequestTimeout     = 30
	defaultDownloadTimeout    = 300
	defaultMaxFileMB          = 2000
	defaultMaxBatchSize       = 100
	defaultInterTaskDelay     = 2
	defaultPausePollInterval  = 2
	defaultRetryAttempts      = 3
	defaultRetryBackoff       = 1
	defaultRateLimitPadding   = 5
	defaultCheckpointDebounce = 2
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			SpoolDir: defaultSpoolDir,
		},
		Source: Source{
			RequestTimeout:  defaultRequestTimeout,
			DownloadTimeout: defaultDownloadTimeout,
			MaxFileMB:       defaultMaxFileMB,
		},
		Relay: Relay{
			MaxBatchSize:       defaultMaxBatchSize,
			InterTaskDelay:     defaultInterTaskDelay,
			PausePollInterval:  defaultPausePollInterval,
			RetryAttempts:      defaultRetryAttempts,
			RetryBackoff:       defaultRetryBackoff,
			RateLimitPadding:   defaultRateLimitPadding,
			CheckpointDebounce: defaultCheckpointDebounce,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			BatchStarted:   true,
			BatchCompleted: true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
