package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --target
// on "aide chat" and every "aide memory" subcommand).
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen     = "api-listen"
	FlagAPITarget     = "api-target"
	FlagStorageDriver = "storage-driver"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagPrefer        = "prefer"
	FlagLocalProvider = "local-provider"
	FlagLocalTarget   = "local-target"
	FlagLocalModel    = "local-model"
	FlagCloudProvider = "cloud-provider"
	FlagCloudTarget   = "cloud-target"
	FlagCloudModel    = "cloud-model"
	FlagPromptPath    = "prompt-path"
	FlagPromptWatch   = "prompt-watch"
	FlagWorkers       = "extraction-workers"
	FlagAutoApply     = "auto-apply"
	FlagRevision      = "revision"
	FlagEventsBrokers = "events-brokers"
)

// DefaultFlagSet returns the canonical flag definitions shared by the aide
// commands. Defaults come out of the viper chain at registration time, so the
// FlagSet itself carries none.
func DefaultFlagSet() FlagSet {
	return FlagSet{
		FlagAPIListen: {
			Name:        "listen",
			Shorthand:   "l",
			ViperKey:    "api.listen",
			Description: "Address for the API server to listen on",
		},
		FlagAPITarget: {
			Name:        "target",
			Shorthand:   "t",
			ViperKey:    "api.target",
			Description: "Base URL of a running aide API server",
		},
		FlagStorageDriver: {
			Name:        "driver",
			ViperKey:    "storage.driver",
			Description: "Storage driver (sqlite, postgres, inmemory)",
		},
		FlagSQLite: {
			Name:        "sqlite",
			Shorthand:   "s",
			ViperKey:    "storage.sqlite_path",
			Description: "Path to the SQLite database file (default: <config dir>/aide.db)",
		},
		FlagPostgres: {
			Name:        "postgres",
			ViperKey:    "storage.postgres_dsn",
			Description: "PostgreSQL connection string",
		},
		FlagPrefer: {
			Name:        "prefer",
			ViperKey:    "llm.prefer",
			Description: "Model routing preference (local, cloud)",
		},
		FlagLocalProvider: {
			Name:        "local-provider",
			ViperKey:    "llm.local.provider",
			Description: "Local LLM provider type (ollama, openai)",
		},
		FlagLocalTarget: {
			Name:        "local-target",
			ViperKey:    "llm.local.target",
			Description: "Local LLM provider URL",
		},
		FlagLocalModel: {
			Name:        "local-model",
			ViperKey:    "llm.local.model",
			Description: "Model name for the local backend",
		},
		FlagCloudProvider: {
			Name:        "cloud-provider",
			ViperKey:    "llm.cloud.provider",
			Description: "Cloud LLM provider type (anthropic, openai)",
		},
		FlagCloudTarget: {
			Name:        "cloud-target",
			ViperKey:    "llm.cloud.target",
			Description: "Cloud LLM provider URL (default: provider endpoint)",
		},
		FlagCloudModel: {
			Name:        "cloud-model",
			ViperKey:    "llm.cloud.model",
			Description: "Model name for the cloud backend",
		},
		FlagPromptPath: {
			Name:        "prompt",
			ViperKey:    "prompt.path",
			Description: "Path to a system prompt override file",
		},
		FlagPromptWatch: {
			Name:        "watch-prompt",
			ViperKey:    "prompt.watch",
			Description: "Reload the system prompt file when it changes",
		},
		FlagWorkers: {
			Name:        "workers",
			ViperKey:    "extraction.workers",
			Description: "Number of extraction pipeline workers",
		},
		FlagAutoApply: {
			Name:        "auto-apply",
			ViperKey:    "extraction.auto_apply",
			Description: "Automatically apply high-confidence extracted memories",
		},
		FlagRevision: {
			Name:        "revision",
			ViperKey:    "revision.enabled",
			Description: "Run the periodic memory revision sweep",
		},
		FlagEventsBrokers: {
			Name:        "brokers",
			ViperKey:    "events.brokers",
			Description: "Kafka brokers for memory-applied events (comma-separated)",
		},
	}
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
