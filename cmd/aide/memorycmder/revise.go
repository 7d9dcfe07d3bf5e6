package memorycmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
	"github.com/lodestarhq/aide/pkg/extraction"
)

const reviseLongDesc string = `Sweep recent sessions and rerun extraction on each.

Candidates are sessions with enough transcript to matter, most recently
updated first. Each gets a revision pass: finalized sessions and sessions
extracted within the rate-limit window are skipped, and revised candidates
replace stored spots only when they score strictly better. Per-session
failures are reported but never stop the sweep.

This is the same sweep "aide serve" runs on its revision ticker.

Examples:
  aide memory revise
  aide memory revise --limit 25 --days 30`

const reviseShortDesc string = "Rerun extraction over recent sessions"

type reviseCommander struct {
	limit    uint
	daysBack uint

	common commonFlags
	prefer string

	debug     bool
	configDir string
	cfg       *config.Config
}

func newReviseCmd() *cobra.Command {
	cmder := &reviseCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "revise",
		Short: reviseShortDesc,
		Long:  reviseLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configDir, err := bindConfig(cmd, fs, config.FlagPrefer)
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

	cmd.Flags().UintVar(&cmder.limit, "limit", 0, "Sessions to examine (default: revision.limit)")
	cmd.Flags().UintVar(&cmder.daysBack, "days", 0, "Only sessions updated within this many days (default: revision.days_back)")

	addCommonFlags(cmd, fs, &cmder.common)
	config.AddStringFlag(cmd, fs, config.FlagPrefer, &cmder.prefer)

	return cmd
}

func (c *reviseCommander) run() error {
	ctx := context.Background()

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, true)
	if err != nil {
		return err
	}
	defer tb.Close()

	limit := c.limit
	if limit == 0 {
		limit = c.cfg.Revision.Limit
	}
	days := c.daysBack
	if days == 0 {
		days = c.cfg.Revision.DaysBack
	}

	var result *extraction.RevisionResult
	err = cliui.Step(os.Stdout, "Sweeping recent sessions", func() error {
		var stepErr error
		result, stepErr = tb.extractor.ReviseMany(ctx, int(limit), int(days))
		return stepErr
	})
	if err != nil {
		return err
	}

	for _, e := range result.Errors {
		fmt.Printf("  %s %v\n", cliui.WarnStyle.Render("!"), e)
	}
	fmt.Printf("\n  %s\n\n", cliui.ValueStyle.Render(result.Summary()))

	return nil
}
