package config

const (
	defaultDataDir     = "~/.local/share/reelforge"
	defaultCacheMaxGiB = 20

	defaultGenerationBaseURL        = "http://127.0.0.1:8790"
	defaultGenerationTimeoutSeconds = 600
	defaultGenerationRPM            = 60
	defaultGenerationBurst          = 4
	defaultMaxClipSeconds           = 15

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/reelforge/reelforge"
	defaultLLMTitle          = "Reelforge Workflow Selector"
	defaultLLMTimeoutSeconds = 60

	defaultSelectionMode         = "config_default"
	defaultWorkflowName          = "text_to_video"
	defaultMaxConcurrency        = 4
	defaultMaxRetries            = 3
	defaultRetryBackoffBase      = 2.0
	defaultJobTimeoutSeconds     = 600
	defaultSuccessRateThreshold  = 0.7
	defaultSegmentEpsilonSeconds = 0.2

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

func defaultEnabledWorkflows() []string {
	return []string{"interpolation", "ingredients", "timestamp", "image_to_video", "text_to_video"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			CacheMaxGiB: defaultCacheMaxGiB,
		},
		Generation: Generation{
			BaseURL:           defaultGenerationBaseURL,
			TimeoutSeconds:    defaultGenerationTimeoutSeconds,
			RequestsPerMinute: defaultGenerationRPM,
			Burst:             defaultGenerationBurst,
			MaxClipSeconds:    defaultMaxClipSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Workflow: Workflow{
			SelectionMode:           defaultSelectionMode,
			DefaultWorkflow:         defaultWorkflowName,
			EnabledWorkflows:        defaultEnabledWorkflows(),
			MaxConcurrency:          defaultMaxConcurrency,
			MaxRetries:              defaultMaxRetries,
			RetryBackoffBaseSeconds: defaultRetryBackoffBase,
			JobTimeoutSeconds:       defaultJobTimeoutSeconds,
			SuccessRateThreshold:    defaultSuccessRateThreshold,
			SegmentEpsilonSeconds:   defaultSegmentEpsilonSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
