// Package aidecmder
package aidecmder

import (
	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/cmd/aide/authcmder"
	"github.com/lodestarhq/aide/cmd/aide/chatcmder"
	"github.com/lodestarhq/aide/cmd/aide/configcmder"
	"github.com/lodestarhq/aide/cmd/aide/initcmder"
	"github.com/lodestarhq/aide/cmd/aide/memorycmder"
	"github.com/lodestarhq/aide/cmd/aide/servecmder"
	versioncmder "github.com/lodestarhq/aide/cmd/version"
)

const aideLongDesc string = `Aide is a personal assistant backend with layered memory.

Get started:
  aide init            Create the .aide/ directory and default config
  aide auth anthropic  Store a cloud API key
  aide chat "hello"    One-shot chat through the configured backends

Run services using:
  aide serve           Run the API server with extraction workers

Curate extracted memories:
  aide memory spots    List extraction candidates
  aide memory apply    Apply a candidate to canonical memory`

const aideShortDesc string = "Aide - personal assistant memory engine"

func NewAideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aide",
		Short: aideShortDesc,
		Long:  aideLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .aide/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
