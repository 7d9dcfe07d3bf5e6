package memorycmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const summarizeLongDesc string = `Refresh a session's episodic summary.

One LLM call condenses the transcript into a summary with tone, topics,
and open threads, and overwrites the session's previous summary wholesale.
The episodic memory layer serves the most recent summaries to the prompt
assembler; raw transcript never reaches a prompt.

Examples:
  aide memory summarize ses-42f081
  aide memory summarize ses-42f081 --user alice`

const summarizeShortDesc string = "Refresh a session's episodic summary"

type summarizeCommander struct {
	user string

	common commonFlags
	prefer string

	debug     bool
	configDir string
	cfg       *config.Config
}

func newSummarizeCmd() *cobra.Command {
	cmder := &summarizeCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "summarize <session-id>",
		Short: summarizeShortDesc,
		Long:  summarizeLongDesc,
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

	cmd.Flags().StringVarP(&cmder.user, "user", "u", "", "User the summary belongs to (default: the session's owner)")

	addCommonFlags(cmd, fs, &cmder.common)
	config.AddStringFlag(cmd, fs, config.FlagPrefer, &cmder.prefer)

	return cmd
}

func (c *summarizeCommander) run(sessionID string) error {
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

	err = cliui.Step(os.Stdout, "Summarizing session", func() error {
		return tb.extractor.Summarize(ctx, sessionID, user)
	})
	if err != nil {
		return err
	}

	summary, err := tb.store.GetSummary(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading back summary: %w", err)
	}

	fmt.Printf("\n  %s %s\n", cliui.KeyStyle.Render("Summary:"), summary.Summary)
	if summary.Tone != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Tone:"), summary.Tone)
	}
	if len(summary.Topics) > 0 {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Topics:"), strings.Join(summary.Topics, ", "))
	}
	if len(summary.OpenThreads) > 0 {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Open:"), strings.Join(summary.OpenThreads, ", "))
	}
	fmt.Println()

	return nil
}
