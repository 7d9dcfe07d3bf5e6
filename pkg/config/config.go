package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/lodestarhq/aide/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .aide/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"log.debug",
		"api.listen",
		"api.target",
		"storage.driver",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"llm.prefer",
		"llm.timeout_seconds",
		"llm.local.provider",
		"llm.local.target",
		"llm.local.model",
		"llm.cloud.provider",
		"llm.cloud.target",
		"llm.cloud.model",
		"llm.cloud.api_key",
		"llm.params.temperature",
		"llm.params.top_p",
		"llm.params.max_tokens",
		"llm.probe.timeout_seconds",
		"llm.probe.ttl_seconds",
		"prompt.path",
		"prompt.watch",
		"extraction.model",
		"extraction.max_messages",
		"extraction.workers",
		"extraction.queue_size",
		"extraction.auto_apply",
		"extraction.auto_apply_threshold",
		"revision.enabled",
		"revision.interval_minutes",
		"revision.limit",
		"revision.days_back",
		"calendar.provider",
		"calendar.target",
		"codecontext.provider",
		"codecontext.target",
		"events.brokers",
		"events.topic",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .aide/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
// Boolean fields and fields whose empty value is meaningful (API keys, DSNs,
// backend targets that fall back to the provider's own endpoint) are left alone.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.API.Target == "" {
		cfg.API.Target = defaults.API.Target
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}

	if cfg.LLM.Prefer == "" {
		cfg.LLM.Prefer = defaults.LLM.Prefer
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = defaults.LLM.TimeoutSeconds
	}
	if cfg.LLM.Local.Provider == "" {
		cfg.LLM.Local.Provider = defaults.LLM.Local.Provider
	}
	if cfg.LLM.Local.Target == "" {
		cfg.LLM.Local.Target = defaults.LLM.Local.Target
	}
	if cfg.LLM.Local.Model == "" {
		cfg.LLM.Local.Model = defaults.LLM.Local.Model
	}
	if cfg.LLM.Cloud.Provider == "" {
		cfg.LLM.Cloud.Provider = defaults.LLM.Cloud.Provider
	}
	if cfg.LLM.Cloud.Model == "" {
		cfg.LLM.Cloud.Model = defaults.LLM.Cloud.Model
	}
	if cfg.LLM.Params.Temperature == 0 {
		cfg.LLM.Params.Temperature = defaults.LLM.Params.Temperature
	}
	if cfg.LLM.Params.MaxTokens == 0 {
		cfg.LLM.Params.MaxTokens = defaults.LLM.Params.MaxTokens
	}
	if cfg.LLM.Probe.TimeoutSeconds == 0 {
		cfg.LLM.Probe.TimeoutSeconds = defaults.LLM.Probe.TimeoutSeconds
	}
	if cfg.LLM.Probe.TTLSeconds == 0 {
		cfg.LLM.Probe.TTLSeconds = defaults.LLM.Probe.TTLSeconds
	}

	if cfg.Extraction.MaxMessages == 0 {
		cfg.Extraction.MaxMessages = defaults.Extraction.MaxMessages
	}
	if cfg.Extraction.Workers == 0 {
		cfg.Extraction.Workers = defaults.Extraction.Workers
	}
	if cfg.Extraction.QueueSize == 0 {
		cfg.Extraction.QueueSize = defaults.Extraction.QueueSize
	}
	if cfg.Extraction.AutoApplyThreshold == 0 {
		cfg.Extraction.AutoApplyThreshold = defaults.Extraction.AutoApplyThreshold
	}

	if cfg.Revision.IntervalMinutes == 0 {
		cfg.Revision.IntervalMinutes = defaults.Revision.IntervalMinutes
	}
	if cfg.Revision.Limit == 0 {
		cfg.Revision.Limit = defaults.Revision.Limit
	}
	if cfg.Revision.DaysBack == 0 {
		cfg.Revision.DaysBack = defaults.Revision.DaysBack
	}

	if cfg.Calendar.Provider == "" {
		cfg.Calendar.Provider = defaults.Calendar.Provider
	}
	if cfg.CodeContext.Provider == "" {
		cfg.CodeContext.Provider = defaults.CodeContext.Provider
	}

	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .aide/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config preconfigured for the named provider preset.
// Each preset starts from NewDefaultConfig and adjusts the LLM routing so a
// fresh install talks to the chosen provider out of the box.
// Supported presets: "ollama", "anthropic", "openai".
// Returns an error if the preset name is not recognized.
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "ollama":
		cfg.LLM.Prefer = "local"
		cfg.LLM.Local = BackendConfig{
			Provider: "ollama",
			Target:   "http://localhost:11434",
			Model:    defaultLocalModel,
		}
		return cfg, nil

	case "anthropic":
		cfg.LLM.Prefer = "cloud"
		cfg.LLM.Cloud = BackendConfig{
			Provider: "anthropic",
			Model:    defaultCloudModel,
		}
		return cfg, nil

	case "openai":
		cfg.LLM.Prefer = "cloud"
		cfg.LLM.Cloud = BackendConfig{
			Provider: "openai",
			Target:   "https://api.openai.com",
			Model:    "gpt-4o-mini",
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: ollama, anthropic, openai)", name)
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"ollama", "anthropic", "openai"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
