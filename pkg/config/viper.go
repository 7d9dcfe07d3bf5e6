package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/lodestarhq/aide/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the AIDE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (AIDE_API_LISTEN, AIDE_LLM_PREFER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: AIDE_API_LISTEN, AIDE_LLM_LOCAL_MODEL, etc.
	v.SetEnvPrefix("AIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the viper precedence chain. It is the
// read-side mirror of setViperDefaults: every key registered there is read
// back here, so flag and env overrides land in the same struct commands
// would get from LoadConfig.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Log: LogConfig{
			Debug: v.GetBool("log.debug"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
			Target: v.GetString("api.target"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		LLM: LLMConfig{
			Prefer:         v.GetString("llm.prefer"),
			TimeoutSeconds: v.GetUint("llm.timeout_seconds"),
			Local: BackendConfig{
				Provider: v.GetString("llm.local.provider"),
				Target:   v.GetString("llm.local.target"),
				Model:    v.GetString("llm.local.model"),
			},
			Cloud: BackendConfig{
				Provider: v.GetString("llm.cloud.provider"),
				Target:   v.GetString("llm.cloud.target"),
				Model:    v.GetString("llm.cloud.model"),
				APIKey:   v.GetString("llm.cloud.api_key"),
			},
			Params: ParamsConfig{
				Temperature: v.GetFloat64("llm.params.temperature"),
				TopP:        v.GetFloat64("llm.params.top_p"),
				MaxTokens:   v.GetUint("llm.params.max_tokens"),
			},
			Probe: ProbeConfig{
				TimeoutSeconds: v.GetUint("llm.probe.timeout_seconds"),
				TTLSeconds:     v.GetUint("llm.probe.ttl_seconds"),
			},
		},
		Prompt: PromptConfig{
			Path:  v.GetString("prompt.path"),
			Watch: v.GetBool("prompt.watch"),
		},
		Extraction: ExtractionConfig{
			Model:              v.GetString("extraction.model"),
			MaxMessages:        v.GetUint("extraction.max_messages"),
			Workers:            v.GetUint("extraction.workers"),
			QueueSize:          v.GetUint("extraction.queue_size"),
			AutoApply:          v.GetBool("extraction.auto_apply"),
			AutoApplyThreshold: v.GetFloat64("extraction.auto_apply_threshold"),
		},
		Revision: RevisionConfig{
			Enabled:         v.GetBool("revision.enabled"),
			IntervalMinutes: v.GetUint("revision.interval_minutes"),
			Limit:           v.GetUint("revision.limit"),
			DaysBack:        v.GetUint("revision.days_back"),
		},
		Calendar: CalendarConfig{
			Provider: v.GetString("calendar.provider"),
			Target:   v.GetString("calendar.target"),
		},
		CodeContext: CodeContextConfig{
			Provider: v.GetString("codecontext.provider"),
			Target:   v.GetString("codecontext.target"),
		},
		Events: EventsConfig{
			Brokers: splitBrokers(v.GetStringSlice("events.brokers")),
			Topic:   v.GetString("events.topic"),
		},
	}
}

// splitBrokers normalizes broker lists that arrive as a single comma-separated
// flag value rather than a TOML array.
func splitBrokers(raw []string) []string {
	var brokers []string
	for _, entry := range raw {
		for _, b := range strings.Split(entry, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	return brokers
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Log
	v.SetDefault("log.debug", d.Log.Debug)

	// API
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.target", d.API.Target)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// LLM routing
	v.SetDefault("llm.prefer", d.LLM.Prefer)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)

	// LLM backends
	v.SetDefault("llm.local.provider", d.LLM.Local.Provider)
	v.SetDefault("llm.local.target", d.LLM.Local.Target)
	v.SetDefault("llm.local.model", d.LLM.Local.Model)
	v.SetDefault("llm.cloud.provider", d.LLM.Cloud.Provider)
	v.SetDefault("llm.cloud.target", d.LLM.Cloud.Target)
	v.SetDefault("llm.cloud.model", d.LLM.Cloud.Model)
	v.SetDefault("llm.cloud.api_key", d.LLM.Cloud.APIKey)

	// LLM sampling params
	v.SetDefault("llm.params.temperature", d.LLM.Params.Temperature)
	v.SetDefault("llm.params.top_p", d.LLM.Params.TopP)
	v.SetDefault("llm.params.max_tokens", d.LLM.Params.MaxTokens)

	// LLM availability probe
	v.SetDefault("llm.probe.timeout_seconds", d.LLM.Probe.TimeoutSeconds)
	v.SetDefault("llm.probe.ttl_seconds", d.LLM.Probe.TTLSeconds)

	// Prompt
	v.SetDefault("prompt.path", d.Prompt.Path)
	v.SetDefault("prompt.watch", d.Prompt.Watch)

	// Extraction
	v.SetDefault("extraction.model", d.Extraction.Model)
	v.SetDefault("extraction.max_messages", d.Extraction.MaxMessages)
	v.SetDefault("extraction.workers", d.Extraction.Workers)
	v.SetDefault("extraction.queue_size", d.Extraction.QueueSize)
	v.SetDefault("extraction.auto_apply", d.Extraction.AutoApply)
	v.SetDefault("extraction.auto_apply_threshold", d.Extraction.AutoApplyThreshold)

	// Revision
	v.SetDefault("revision.enabled", d.Revision.Enabled)
	v.SetDefault("revision.interval_minutes", d.Revision.IntervalMinutes)
	v.SetDefault("revision.limit", d.Revision.Limit)
	v.SetDefault("revision.days_back", d.Revision.DaysBack)

	// Calendar
	v.SetDefault("calendar.provider", d.Calendar.Provider)
	v.SetDefault("calendar.target", d.Calendar.Target)

	// Code context
	v.SetDefault("codecontext.provider", d.CodeContext.Provider)
	v.SetDefault("codecontext.target", d.CodeContext.Target)

	// Events
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
