package memorycmder

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const applyLongDesc string = `Promote a candidate spot into canonical memory.

The spot's typed metadata becomes one record in its canonical layer: a
user fact, an identity preference, a self memory, or a capability. The
status change and the canonical write commit together. General spots have
no canonical table and cannot be applied.

Applying is terminal: an applied spot never moves again.

Examples:
  aide memory apply spot-9d2c11`

const applyShortDesc string = "Promote a spot to canonical memory"

type applyCommander struct {
	common commonFlags

	debug     bool
	configDir string
	cfg       *config.Config
}

func newApplyCmd() *cobra.Command {
	cmder := &applyCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "apply <spot-id>",
		Short: applyShortDesc,
		Long:  applyLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configDir, err := bindConfig(cmd, fs)
			if err != nil {
				return err
			}
			cmder.cfg, cmder.configDir = cfg, configDir
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			return cmder.run(args[0])
		},
	}

	addCommonFlags(cmd, fs, &cmder.common)

	return cmd
}

func (c *applyCommander) run(spotID string) error {
	ctx := context.Background()

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, false)
	if err != nil {
		return err
	}
	defer tb.Close()

	ok, msg, err := tb.extractor.Apply(ctx, spotID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(msg)
	}

	fmt.Printf("\n  %s %s\n\n", cliui.SuccessMark, msg)

	return nil
}
