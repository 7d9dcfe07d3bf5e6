package memorycmder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const extractLongDesc string = `Run one extraction pass over a session transcript.

The transcript is sent to the configured extraction model, which proposes
candidate memories: user facts, preferences, self memories, capabilities,
and general notes. Candidates that survive the redundancy filter are
written as spots in the extracted state, waiting for review.

Sessions need at least two messages, and a session whose spots have
already been reviewed, applied, or rejected is finalized and never
re-extracted. Use --revision to rerun extraction on a session that has
only extracted spots; revised candidates replace stored ones only when
they score strictly better.

Examples:
  aide memory extract ses-42f081
  aide memory extract ses-42f081 --user alice --max-messages 20
  aide memory extract ses-42f081 --revision`

const extractShortDesc string = "Extract candidate memories from a session"

type extractCommander struct {
	user        string
	maxMessages uint
	revision    bool

	common commonFlags
	prefer string

	debug     bool
	configDir string
	cfg       *config.Config
}

func newExtractCmd() *cobra.Command {
	cmder := &extractCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "extract <session-id>",
		Short: extractShortDesc,
		Long:  extractLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configDir, err := bindConfig(cmd, fs, config.FlagPrefer)
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

	cmd.Flags().StringVarP(&cmder.user, "user", "u", "", "User the memories belong to (default: the session's owner)")
	cmd.Flags().UintVar(&cmder.maxMessages, "max-messages", 0, "Transcript messages to read (default: extraction.max_messages)")
	cmd.Flags().BoolVar(&cmder.revision, "revision", false, "Run as a revision pass, arbitrating against existing spots")

	addCommonFlags(cmd, fs, &cmder.common)
	config.AddStringFlag(cmd, fs, config.FlagPrefer, &cmder.prefer)

	return cmd
}

func (c *extractCommander) run(sessionID string) error {
	ctx := context.Background()

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, true)
	if err != nil {
		return err
	}
	defer tb.Close()

	user, err := tb.sessionUser(ctx, sessionID, c.user)
	if err != nil {
		return err
	}

	var (
		written  int
		itemErrs []error
	)
	label := "Extracting memories"
	if c.revision {
		label = "Revising memories"
	}
	err = cliui.Step(os.Stdout, label, func() error {
		written, itemErrs = tb.extractor.Extract(ctx, sessionID, user, int(c.maxMessages), c.revision)
		if written == 0 && len(itemErrs) > 0 {
			return itemErrs[0]
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range itemErrs {
		fmt.Printf("  %s %v\n", cliui.WarnStyle.Render("!"), e)
	}

	if written == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("Nothing new to remember from this session."))
		return nil
	}

	fmt.Printf("\n  %s candidate %s from %s\n",
		cliui.ValueStyle.Render(strconv.Itoa(written)),
		plural(written, "spot"),
		cliui.NameStyle.Render(sessionID),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render(`Review them with "aide memory spots", promote with "aide memory apply".`))

	return nil
}
