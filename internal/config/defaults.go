package config

const (
	defaultDataDir   = "~/.local/share/trawler/data"
	defaultLogDir    = "~/.local/share/trawler/logs"
	defaultReplayDir = "~/.local/share/trawler/replays"

	defaultSteamBaseURL        = "https://api.steampowered.com"
	defaultSteamBatchSize      = 100
	defaultSteamRequestBudget  = 1
	defaultSteamWindowSeconds  = 5
	defaultSteamTimeoutSeconds = 30
	defaultSteamMaxAttempts    = 5

	defaultOpenDotaBaseURL        = "https://api.opendota.com/api"
	defaultOpenDotaRequestBudget  = 3
	defaultOpenDotaWindowSeconds  = 1
	defaultOpenDotaTimeoutSeconds = 30
	defaultOpenDotaMaxAttempts    = 5
	defaultOpenDotaWorkers        = 4

	defaultPollIntervalSeconds      = 15
	defaultEmptyPollIntervalSeconds = 45
	defaultErrorPauseSeconds        = 30
	defaultErrorPauseMaxSeconds     = 300
	defaultMilestoneEvery           = 100
	defaultSeenFilterCapacity       = 500000

	defaultReplayTimeoutSeconds = 120
	defaultReplayMaxAttempts    = 5
	defaultReplayDelaySeconds   = 10
	defaultReplayQueueSize      = 256

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			ReplayDir: defaultReplayDir,
		},
		Steam: Steam{
			BaseURL:        defaultSteamBaseURL,
			BatchSize:      defaultSteamBatchSize,
			RequestBudget:  defaultSteamRequestBudget,
			WindowSeconds:  defaultSteamWindowSeconds,
			TimeoutSeconds: defaultSteamTimeoutSeconds,
			MaxAttempts:    defaultSteamMaxAttempts,
		},
		OpenDota: OpenDota{
			BaseURL:        defaultOpenDotaBaseURL,
			RequestBudget:  defaultOpenDotaRequestBudget,
			WindowSeconds:  defaultOpenDotaWindowSeconds,
			TimeoutSeconds: defaultOpenDotaTimeoutSeconds,
			MaxAttempts:    defaultOpenDotaMaxAttempts,
			Workers:        defaultOpenDotaWorkers,
		},
		Pipeline: Pipeline{
			PollIntervalSeconds:      defaultPollIntervalSeconds,
			EmptyPollIntervalSeconds: defaultEmptyPollIntervalSeconds,
			ErrorPauseSeconds:        defaultErrorPauseSeconds,
			ErrorPauseMaxSeconds:     defaultErrorPauseMaxSeconds,
			MilestoneEvery:           defaultMilestoneEvery,
			SeenFilterCapacity:       defaultSeenFilterCapacity,
		},
		Replays: Replays{
			TimeoutSeconds: defaultReplayTimeoutSeconds,
			MaxAttempts:    defaultReplayMaxAttempts,
			DelaySeconds:   defaultReplayDelaySeconds,
			QueueSize:      defaultReplayQueueSize,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Lifecycle:      true,
			Errors:         true,
			Milestones:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
