package config

const (
	defaultDataDir    = "~/.local/share/vidsight"
	defaultLogDir     = "~/.local/share/vidsight/logs"
	defaultStagingDir = "~/.local/share/vidsight/staging"
	defaultAPIBind    = "127.0.0.1:8487"

	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultJobWorkerCount     = 2
	defaultPollInterval       = 2
	defaultStepTimeout        = 900
	defaultHeartbeatTimeout   = 300
	defaultErrorRetryInterval = 5
	defaultJobRetentionDays   = 30

	defaultTransientMaxAttempts = 3
	defaultTransientBackoffMS   = 2000
	defaultRateLimitMaxAttempts = 5
	defaultRateLimitBackoffMS   = 60000

	defaultYouTubeBaseURL        = "https://www.googleapis.com/youtube/v3"
	defaultYouTubeMaxComments    = 1000
	defaultYouTubeRequestTimeout = 30

	defaultTranscriptionModel   = "whisper-1"
	defaultAnalysisModel        = "gpt-4o-mini"
	defaultOpenAIRequestTimeout = 120
	defaultNotifyRequestTimeout = 10
	defaultSubscriberBufferSize = 64
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StagingDir: defaultStagingDir,
			APIBind:    defaultAPIBind,
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Workflow: Workflow{
			JobWorkerCount:     defaultJobWorkerCount,
			PollInterval:       defaultPollInterval,
			StepTimeout:        defaultStepTimeout,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ErrorRetryInterval: defaultErrorRetryInterval,
			JobRetentionDays:   defaultJobRetentionDays,
		},
		Retry: Retry{
			TransientMaxAttempts: defaultTransientMaxAttempts,
			TransientBackoffMS:   defaultTransientBackoffMS,
			RateLimitMaxAttempts: defaultRateLimitMaxAttempts,
			RateLimitBackoffMS:   defaultRateLimitBackoffMS,
		},
		YouTube: YouTube{
			BaseURL:        defaultYouTubeBaseURL,
			MaxComments:    defaultYouTubeMaxComments,
			RequestTimeout: defaultYouTubeRequestTimeout,
		},
		OpenAI: OpenAI{
			TranscriptionModel: defaultTranscriptionModel,
			AnalysisModel:      defaultAnalysisModel,
			RequestTimeout:     defaultOpenAIRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			SubscriberBuffer: defaultSubscriberBufferSize,
		},
	}
}
