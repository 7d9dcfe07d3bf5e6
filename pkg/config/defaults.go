package config

const (
	defaultAPIListen = ":8080"
	defaultAPITarget = "http://localhost:8080"

	defaultStorageDriver = "sqlite"

	defaultPrefer            = "local"
	defaultLLMTimeoutSeconds = 120

	defaultLocalProvider = "ollama"
	defaultLocalTarget   = "http://localhost:11434"
	defaultLocalModel    = "llama3.2"

	defaultCloudProvider = "anthropic"
	defaultCloudModel    = "claude-3-5-sonnet-latest"

	defaultTemperature = 0.7
	defaultMaxTokens   = 2048

	defaultProbeTimeoutSeconds = 5
	defaultProbeTTLSeconds     = 300

	defaultExtractionMaxMessages = 50
	defaultExtractionWorkers     = 3
	defaultExtractionQueueSize   = 256
	defaultAutoApplyThreshold    = 0.8

	defaultRevisionIntervalMinutes = 60
	defaultRevisionLimit           = 10
	defaultRevisionDaysBack        = 7

	defaultCalendarProvider    = "none"
	defaultCodeContextProvider = "none"

	defaultEventsTopic = "aide.memory.applied"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
			Target: defaultAPITarget,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		LLM: LLMConfig{
			Prefer:         defaultPrefer,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Local: BackendConfig{
				Provider: defaultLocalProvider,
				Target:   defaultLocalTarget,
				Model:    defaultLocalModel,
			},
			Cloud: BackendConfig{
				Provider: defaultCloudProvider,
				Model:    defaultCloudModel,
			},
			Params: ParamsConfig{
				Temperature: defaultTemperature,
				MaxTokens:   defaultMaxTokens,
			},
			Probe: ProbeConfig{
				TimeoutSeconds: defaultProbeTimeoutSeconds,
				TTLSeconds:     defaultProbeTTLSeconds,
			},
		},
		Extraction: ExtractionConfig{
			MaxMessages:        defaultExtractionMaxMessages,
			Workers:            defaultExtractionWorkers,
			QueueSize:          defaultExtractionQueueSize,
			AutoApplyThreshold: defaultAutoApplyThreshold,
		},
		Revision: RevisionConfig{
			IntervalMinutes: defaultRevisionIntervalMinutes,
			Limit:           defaultRevisionLimit,
			DaysBack:        defaultRevisionDaysBack,
		},
		Calendar: CalendarConfig{
			Provider: defaultCalendarProvider,
		},
		CodeContext: CodeContextConfig{
			Provider: defaultCodeContextProvider,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
