package memorycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const autoApplyLongDesc string = `Promote every high-confidence candidate in one sweep.

Extracted spots clearing both the confidence threshold and the importance
floor are applied to their canonical layers; everything else is left for
review. General spots have no canonical table and are always skipped.

"aide serve" runs this sweep automatically when extraction.auto_apply is
enabled.

Examples:
  aide memory auto-apply
  aide memory auto-apply --threshold 0.95`

const autoApplyShortDesc string = "Apply all high-confidence candidate spots"

type autoApplyCommander struct {
	threshold float64

	common commonFlags

	debug     bool
	configDir string
	cfg       *config.Config
}

func newAutoApplyCmd() *cobra.Command {
	cmder := &autoApplyCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "auto-apply",
		Short: autoApplyShortDesc,
		Long:  autoApplyLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configDir, err := bindConfig(cmd, fs)
			if err != nil {
				return err
			}
			cmder.cfg, cmder.configDir = cfg, configDir
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			return cmder.run()
		},
	}

	cmd.Flags().Float64Var(&cmder.threshold, "threshold", 0, "Minimum confidence to apply (default: extraction.auto_apply_threshold)")

	addCommonFlags(cmd, fs, &cmder.common)

	return cmd
}

func (c *autoApplyCommander) run() error {
	ctx := context.Background()

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, false)
	if err != nil {
		return err
	}
	defer tb.Close()

	threshold := c.threshold
	if threshold == 0 {
		threshold = c.cfg.Extraction.AutoApplyThreshold
	}

	result, err := tb.extractor.AutoApply(ctx, threshold)
	if err != nil {
		return err
	}

	for _, e := range result.Errors {
		fmt.Printf("  %s %v\n", cliui.WarnStyle.Render("!"), e)
	}

	if result.Applied == 0 && result.Skipped == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No candidates clear the threshold."))
		return nil
	}

	fmt.Printf("\n  %s applied %d %s, skipped %d\n\n",
		cliui.SuccessMark,
		result.Applied, plural(result.Applied, "spot"),
		result.Skipped,
	)

	return nil
}
