package memorycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/utils"
)

const spotsLongDesc string = `List candidate spots, newest extraction first.

Spots are candidate memories waiting for curation. Filter by user, by
lifecycle status (extracted, reviewed, applied, rejected), or by minimum
confidence and importance scores. Without filters, everything is listed.

Examples:
  aide memory spots
  aide memory spots --user alice --status extracted
  aide memory spots --min-confidence 0.8 --limit 10`

const spotsShortDesc string = "List candidate spots"

type spotsCommander struct {
	user          string
	status        string
	limit         uint
	minConfidence float64
	minImportance uint

	common commonFlags

	debug     bool
	configDir string
	cfg       *config.Config
}

func newSpotsCmd() *cobra.Command {
	cmder := &spotsCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "spots",
		Short: spotsShortDesc,
		Long:  spotsLongDesc,
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

	cmd.Flags().StringVarP(&cmder.user, "user", "u", "", "Only spots for this user")
	cmd.Flags().StringVar(&cmder.status, "status", "", "Only spots in this lifecycle status")
	cmd.Flags().UintVar(&cmder.limit, "limit", 20, "Maximum spots to list (0 for all)")
	cmd.Flags().Float64Var(&cmder.minConfidence, "min-confidence", 0, "Only spots at or above this confidence")
	cmd.Flags().UintVar(&cmder.minImportance, "min-importance", 0, "Only spots at or above this importance")

	addCommonFlags(cmd, fs, &cmder.common)

	return cmd
}

func (c *spotsCommander) run() error {
	ctx := context.Background()

	filter := storage.SpotFilter{
		UserID:        c.user,
		MinConfidence: c.minConfidence,
		MinImportance: int(c.minImportance),
		Limit:         int(c.limit),
	}
	if c.status != "" {
		st := memory.Status(c.status)
		if !st.Valid() {
			return fmt.Errorf("unknown spot status %q", c.status)
		}
		filter.Statuses = []memory.Status{st}
	}

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, false)
	if err != nil {
		return err
	}
	defer tb.Close()

	spots, err := tb.store.ListSpots(ctx, filter)
	if err != nil {
		return err
	}

	if len(spots) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No spots match."))
		return nil
	}

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("%d %s", len(spots), plural(len(spots), "spot"))))
	for _, s := range spots {
		fmt.Printf("  %s  %s  %s\n",
			cliui.NameStyle.Render(s.ID),
			cliui.KeyStyle.Render(string(s.Type)),
			renderStatus(s.Status),
		)
		fmt.Printf("    %s\n", utils.Truncate(s.Content, 96))
		fmt.Printf("    %s\n", cliui.DimStyle.Render(fmt.Sprintf(
			"confidence %.2f, importance %d, %s, %s",
			s.Confidence, s.Importance, s.SessionID,
			s.ExtractedAt.Format("2006-01-02 15:04"),
		)))
	}
	fmt.Println()

	return nil
}

// renderStatus colors a lifecycle status: candidates that still need a
// decision stand out, closed ones recede.
func renderStatus(s memory.Status) string {
	switch s {
	case memory.StatusExtracted:
		return cliui.WarnStyle.Render(string(s))
	case memory.StatusApplied:
		return cliui.ValueStyle.Render(string(s))
	case memory.StatusRejected:
		return cliui.DimStyle.Render(string(s))
	default:
		return string(s)
	}
}
