package memorycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const rejectLongDesc string = `Close a candidate spot without promoting it.

Rejecting is terminal: the spot never reaches a canonical layer and the
session it came from is finalized against further extraction.

Examples:
  aide memory reject spot-9d2c11`

const rejectShortDesc string = "Reject a candidate spot"

type rejectCommander struct {
	common commonFlags

	debug     bool
	configDir string
	cfg       *config.Config
}

func newRejectCmd() *cobra.Command {
	cmder := &rejectCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "reject <spot-id>",
		Short: rejectShortDesc,
		Long:  rejectLongDesc,
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

func (c *rejectCommander) run(spotID string) error {
	ctx := context.Background()

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, false)
	if err != nil {
		return err
	}
	defer tb.Close()

	if err := tb.extractor.Reject(ctx, spotID); err != nil {
		return err
	}

	fmt.Printf("\n  %s rejected %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(spotID))

	return nil
}
