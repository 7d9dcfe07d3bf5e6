package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent aide configuration stored as config.toml
// in the .aide/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Log         LogConfig         `toml:"log"`
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	LLM         LLMConfig         `toml:"llm"`
	Prompt      PromptConfig      `toml:"prompt"`
	Extraction  ExtractionConfig  `toml:"extraction"`
	Revision    RevisionConfig    `toml:"revision"`
	Calendar    CalendarConfig    `toml:"calendar"`
	CodeContext CodeContextConfig `toml:"codecontext"`
	Events      EventsConfig      `toml:"events"`
}

// LogConfig holds logging settings shared by the server and the CLI.
type LogConfig struct {
	Debug bool `toml:"debug,omitempty"`
}

// APIConfig holds API server settings. Listen is the server bind address;
// Target is the URL CLI commands use to reach a running server.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
	Target string `toml:"target,omitempty"`
}

// StorageConfig selects and configures the storage driver.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres", "inmemory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// LLMConfig holds inference settings: routing preference, the two backends,
// sampling params, and the availability probe.
type LLMConfig struct {
	// Prefer is the default routing preference, "local" or "cloud".
	Prefer string `toml:"prefer,omitempty"`
	// TimeoutSeconds bounds a single backend chat call.
	TimeoutSeconds uint `toml:"timeout_seconds,omitempty"`

	Local  BackendConfig `toml:"local"`
	Cloud  BackendConfig `toml:"cloud"`
	Params ParamsConfig  `toml:"params"`
	Probe  ProbeConfig   `toml:"probe"`
}

// BackendConfig describes one inference backend.
type BackendConfig struct {
	Provider string `toml:"provider,omitempty"`
	// Target overrides the provider's default endpoint.
	Target string `toml:"target,omitempty"`
	Model  string `toml:"model,omitempty"`
	// APIKey wins over stored credentials and environment variables.
	APIKey string `toml:"api_key,omitempty"`
}

// ParamsConfig holds sampling parameters. Zero values are left unset so the
// backend's own defaults apply.
type ParamsConfig struct {
	Temperature float64 `toml:"temperature,omitempty"`
	TopP        float64 `toml:"top_p,omitempty"`
	MaxTokens   uint    `toml:"max_tokens,omitempty"`
}

// ProbeConfig tunes the router's availability cache.
type ProbeConfig struct {
	TimeoutSeconds uint `toml:"timeout_seconds,omitempty"`
	TTLSeconds     uint `toml:"ttl_seconds,omitempty"`
}

// PromptConfig points at the system prompt override file.
type PromptConfig struct {
	Path string `toml:"path,omitempty"`
	// Watch hot-reloads the prompt file on change (serve mode only).
	Watch bool `toml:"watch,omitempty"`
}

// ExtractionConfig tunes the memory extraction pipeline.
type ExtractionConfig struct {
	// Model overrides the routed model for extraction calls.
	Model              string  `toml:"model,omitempty"`
	MaxMessages        uint    `toml:"max_messages,omitempty"`
	Workers            uint    `toml:"workers,omitempty"`
	QueueSize          uint    `toml:"queue_size,omitempty"`
	AutoApply          bool    `toml:"auto_apply,omitempty"`
	AutoApplyThreshold float64 `toml:"auto_apply_threshold,omitempty"`
}

// RevisionConfig tunes the periodic revision sweep.
type RevisionConfig struct {
	Enabled         bool `toml:"enabled,omitempty"`
	IntervalMinutes uint `toml:"interval_minutes,omitempty"`
	Limit           uint `toml:"limit,omitempty"`
	DaysBack        uint `toml:"days_back,omitempty"`
}

// CalendarConfig selects the working-memory calendar provider.
type CalendarConfig struct {
	// Provider is "none" or "http".
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// CodeContextConfig selects the prompt code-context provider.
type CodeContextConfig struct {
	// Provider is "none", "http", or "git".
	Provider string `toml:"provider,omitempty"`
	// Target is the bridge URL for "http", or the repository directory for
	// "git" (empty means the working directory).
	Target string `toml:"target,omitempty"`
}

// EventsConfig configures the memory-applied event publisher. No brokers
// means events are dropped.
type EventsConfig struct {
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// The typed helpers below keep the conversion logic in one place; the aide
// schema has too many numeric and boolean keys to spell each one out.

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"log.debug": boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"api.target": {
		get: func(c *Config) string { return c.API.Target },
		set: func(c *Config, v string) error { c.API.Target = v; return nil },
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error { c.Storage.Driver = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"llm.prefer": {
		get: func(c *Config) string { return c.LLM.Prefer },
		set: func(c *Config, v string) error { c.LLM.Prefer = v; return nil },
	},
	"llm.timeout_seconds": uintKey("llm.timeout_seconds", func(c *Config) *uint { return &c.LLM.TimeoutSeconds }),
	"llm.local.provider": {
		get: func(c *Config) string { return c.LLM.Local.Provider },
		set: func(c *Config, v string) error { c.LLM.Local.Provider = v; return nil },
	},
	"llm.local.target": {
		get: func(c *Config) string { return c.LLM.Local.Target },
		set: func(c *Config, v string) error { c.LLM.Local.Target = v; return nil },
	},
	"llm.local.model": {
		get: func(c *Config) string { return c.LLM.Local.Model },
		set: func(c *Config, v string) error { c.LLM.Local.Model = v; return nil },
	},
	"llm.cloud.provider": {
		get: func(c *Config) string { return c.LLM.Cloud.Provider },
		set: func(c *Config, v string) error { c.LLM.Cloud.Provider = v; return nil },
	},
	"llm.cloud.target": {
		get: func(c *Config) string { return c.LLM.Cloud.Target },
		set: func(c *Config, v string) error { c.LLM.Cloud.Target = v; return nil },
	},
	"llm.cloud.model": {
		get: func(c *Config) string { return c.LLM.Cloud.Model },
		set: func(c *Config, v string) error { c.LLM.Cloud.Model = v; return nil },
	},
	"llm.cloud.api_key": {
		get: func(c *Config) string { return c.LLM.Cloud.APIKey },
		set: func(c *Config, v string) error { c.LLM.Cloud.APIKey = v; return nil },
	},
	"llm.params.temperature": floatKey("llm.params.temperature", func(c *Config) *float64 { return &c.LLM.Params.Temperature }),
	"llm.params.top_p":       floatKey("llm.params.top_p", func(c *Config) *float64 { return &c.LLM.Params.TopP }),
	"llm.params.max_tokens":  uintKey("llm.params.max_tokens", func(c *Config) *uint { return &c.LLM.Params.MaxTokens }),
	"llm.probe.timeout_seconds": uintKey("llm.probe.timeout_seconds", func(c *Config) *uint {
		return &c.LLM.Probe.TimeoutSeconds
	}),
	"llm.probe.ttl_seconds": uintKey("llm.probe.ttl_seconds", func(c *Config) *uint { return &c.LLM.Probe.TTLSeconds }),
	"prompt.path": {
		get: func(c *Config) string { return c.Prompt.Path },
		set: func(c *Config, v string) error { c.Prompt.Path = v; return nil },
	},
	"prompt.watch": boolKey("prompt.watch", func(c *Config) *bool { return &c.Prompt.Watch }),
	"extraction.model": {
		get: func(c *Config) string { return c.Extraction.Model },
		set: func(c *Config, v string) error { c.Extraction.Model = v; return nil },
	},
	"extraction.max_messages": uintKey("extraction.max_messages", func(c *Config) *uint { return &c.Extraction.MaxMessages }),
	"extraction.workers":      uintKey("extraction.workers", func(c *Config) *uint { return &c.Extraction.Workers }),
	"extraction.queue_size":   uintKey("extraction.queue_size", func(c *Config) *uint { return &c.Extraction.QueueSize }),
	"extraction.auto_apply":   boolKey("extraction.auto_apply", func(c *Config) *bool { return &c.Extraction.AutoApply }),
	"extraction.auto_apply_threshold": floatKey("extraction.auto_apply_threshold", func(c *Config) *float64 {
		return &c.Extraction.AutoApplyThreshold
	}),
	"revision.enabled":          boolKey("revision.enabled", func(c *Config) *bool { return &c.Revision.Enabled }),
	"revision.interval_minutes": uintKey("revision.interval_minutes", func(c *Config) *uint { return &c.Revision.IntervalMinutes }),
	"revision.limit":            uintKey("revision.limit", func(c *Config) *uint { return &c.Revision.Limit }),
	"revision.days_back":        uintKey("revision.days_back", func(c *Config) *uint { return &c.Revision.DaysBack }),
	"calendar.provider": {
		get: func(c *Config) string { return c.Calendar.Provider },
		set: func(c *Config, v string) error { c.Calendar.Provider = v; return nil },
	},
	"calendar.target": {
		get: func(c *Config) string { return c.Calendar.Target },
		set: func(c *Config, v string) error { c.Calendar.Target = v; return nil },
	},
	"codecontext.provider": {
		get: func(c *Config) string { return c.CodeContext.Provider },
		set: func(c *Config, v string) error { c.CodeContext.Provider = v; return nil },
	},
	"codecontext.target": {
		get: func(c *Config) string { return c.CodeContext.Target },
		set: func(c *Config, v string) error { c.CodeContext.Target = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
