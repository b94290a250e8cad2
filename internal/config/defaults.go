package config

const (
	defaultConfigPath           = "~/.config/reelforge/config.toml"
	defaultWorkDir              = "~/.local/share/reelforge/work"
	defaultLogDir               = "~/.local/share/reelforge/logs"
	defaultSQLitePath           = "~/.local/share/reelforge/jobs.db"
	defaultAPIBind              = "127.0.0.1:7590"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultWorkRetentionDays    = 14
	defaultWorkers              = 2
	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultLeaseTimeout         = 120
	defaultMaxAttempts          = 3
	defaultRetryBaseDelayMs     = 1000
	defaultStageTimeoutSeconds  = 1800
	defaultTranscriptTimeout    = 30
	defaultNotifyRequestTimeout = 10
	defaultPlannerBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultPlannerTimeout       = 120
	defaultMaxHighlights        = 6
	defaultFFprobeBinary        = "ffprobe"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:           defaultWorkDir,
			LogDir:            defaultLogDir,
			APIBind:           defaultAPIBind,
			WorkRetentionDays: defaultWorkRetentionDays,
		},
		Store: Store{
			Backend:    BackendSQLite,
			SQLitePath: defaultSQLitePath,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			LeaseTimeout:        defaultLeaseTimeout,
			MaxAttempts:         defaultMaxAttempts,
			RetryBaseDelayMs:    defaultRetryBaseDelayMs,
			DefaultStageTimeout: defaultStageTimeoutSeconds,
			StageTimeouts: map[string]int{
				"auto-editing": 3600,
				"transcribing": 3600,
				"rendering":    7200,
				"uploading":    1800,
			},
		},
		TranscriptStore: TranscriptStore{
			TimeoutSeconds: defaultTranscriptTimeout,
		},
		Planner: Planner{
			BaseURL:        defaultPlannerBaseURL,
			TimeoutSeconds: defaultPlannerTimeout,
			MaxHighlights:  defaultMaxHighlights,
		},
		Media: Media{
			FFprobeBinary: defaultFFprobeBinary,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			StageSkipped:   true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
