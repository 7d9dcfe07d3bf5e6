// Package configcmder provides the config command for managing persistent
// aide configuration stored in the .aide/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent aide configuration.

Configuration is stored as config.toml in the .aide/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  api.listen, api.target,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  llm.prefer, llm.local.provider, llm.local.model, llm.cloud.provider,
  llm.cloud.model, llm.params.temperature, llm.params.max_tokens,
  prompt.path, prompt.watch,
  extraction.model, extraction.workers, extraction.auto_apply,
  revision.enabled, revision.interval_minutes,
  calendar.provider, codecontext.provider,
  events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  aide config set <key> <value>    Set a configuration value
  aide config get <key>            Get a configuration value
  aide config list                 List all configuration values

Examples:
  aide config set llm.prefer cloud
  aide config set llm.cloud.provider anthropic
  aide config get storage.driver
  aide config list`

const configShortDesc string = "Manage persistent aide configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
