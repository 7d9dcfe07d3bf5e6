// Package initcmder provides the init command for initializing an .aide/
// directory with a default config.toml.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const (
	dirName = ".aide"
)

const initLongDesc string = `Initialize an .aide/ directory with a default config.toml.

By default the home ~/.aide/ directory is used. With --local, a .aide/
directory is created in the current working directory instead; it takes
precedence over ~/.aide/ for configuration, credentials, storage, and
session state.

Presets preconfigure the LLM routing for a provider:
  aide init --preset ollama
  aide init --preset anthropic
  aide init --preset openai

Examples:
  aide init
  aide init --local
  aide init --preset anthropic --force`

const initShortDesc string = "Initialize an .aide/ directory and default config"

type initCommander struct {
	preset string
	local  bool
	force  bool
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.preset, "preset", "p", "",
		fmt.Sprintf("Provider preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))
	cmd.Flags().BoolVar(&cmder.local, "local", false, "Initialize ./.aide instead of ~/.aide")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Overwrite an existing config.toml")

	return cmd
}

func (c *initCommander) run(configDir string) error {
	if c.local && configDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		configDir = filepath.Join(cwd, dirName)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("resolving aide directory: %w", err)
	}

	configPath := cfger.GetTarget()
	if configPath == "" {
		return errors.New("could not resolve an .aide/ directory")
	}

	if _, err := os.Stat(configPath); err == nil && !c.force {
		fmt.Printf("  %s Already initialized: %s\n", cliui.DimStyle.Render("●"), configPath)
		fmt.Printf("  %s\n", cliui.DimStyle.Render("Use --force to overwrite the existing config."))
		return nil
	}

	cfg := config.NewDefaultConfig()
	if c.preset != "" {
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("\n  %s Initialized %s\n", cliui.SuccessMark, cliui.NameStyle.Render(filepath.Dir(configPath)))
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Config:"), cliui.ValueStyle.Render(configPath))
	if c.preset != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Preset:"), cliui.ValueStyle.Render(strings.ToLower(c.preset)))
	}
	fmt.Printf("\n  %s\n", cliui.DimStyle.Render(`Next: "aide auth anthropic" to store a cloud key, or "aide chat" to talk.`))

	return nil
}
