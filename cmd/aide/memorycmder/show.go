package memorycmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/config"
)

const showLongDesc string = `Render a user's memory the way a prompt sees it.

All four layers are loaded and formatted exactly as the prompt assembler
would inject them: profile, known facts, current context, and recent
conversations. --session pins that session's summary to the front of the
episodic layer. --self renders the assistant's own memories and
capabilities instead.

Examples:
  aide memory show
  aide memory show --user alice --session ses-42f081
  aide memory show --self`

const showShortDesc string = "Render a user's memory as prompt text"

type showCommander struct {
	user    string
	session string
	self    bool

	common commonFlags

	debug     bool
	configDir string
	cfg       *config.Config
}

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "show",
		Short: showShortDesc,
		Long:  showLongDesc,
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

	cmd.Flags().StringVarP(&cmder.user, "user", "u", "local", "User whose memory to render")
	cmd.Flags().StringVar(&cmder.session, "session", "", "Pin this session's summary to the episodic front")
	cmd.Flags().BoolVar(&cmder.self, "self", false, "Render the assistant's own memories instead")

	addCommonFlags(cmd, fs, &cmder.common)

	return cmd
}

func (c *showCommander) run() error {
	ctx := context.Background()

	tb, err := openToolbox(ctx, c.cfg, c.configDir, c.debug || c.cfg.Log.Debug, false)
	if err != nil {
		return err
	}
	defer tb.Close()

	var text string
	if c.self {
		text, err = tb.memories.FormatSelfMemories(ctx)
	} else {
		text, err = tb.memories.FormatForPrompt(ctx, c.user, c.session, "")
	}
	if err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("Nothing remembered yet."))
		return nil
	}

	rendered, err := cliui.RenderMarkdown(text)
	if err != nil {
		fmt.Println(text)
		return nil
	}
	fmt.Print(rendered)

	return nil
}
