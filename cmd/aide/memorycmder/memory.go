// Package memorycmder provides the memory command group: running extraction
// passes by hand and curating the candidate spots they produce.
package memorycmder

import (
	"github.com/spf13/cobra"
)

const memoryLongDesc string = `Inspect and curate aide's extracted memories.

Extraction reads a session transcript and proposes candidate memories
(spots). Spots move forward-only through a lifecycle: extracted, then
reviewed, then applied or rejected. Applying a spot promotes it into the
canonical memory layer the prompt assembler reads; rejecting closes it.

A running "aide serve" extracts and summarizes sessions out of band, and
can auto-apply high-confidence candidates. The subcommands here run the
same pipeline by hand against the configured storage:

  aide memory extract <session-id>   Run one extraction pass
  aide memory revise                 Sweep recent sessions for revisions
  aide memory summarize <session-id> Refresh a session's episodic summary
  aide memory spots                  List candidate spots
  aide memory apply <spot-id>        Promote a spot to canonical memory
  aide memory reject <spot-id>       Close a spot without promoting it
  aide memory auto-apply             Apply all high-confidence candidates
  aide memory show                   Render a user's memory as prompt text

Examples:
  aide memory extract ses-42f081
  aide memory spots --user alice --status extracted
  aide memory apply spot-9d2c11
  aide memory show --user alice`

const memoryShortDesc string = "Inspect and curate extracted memories"

func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
	}

	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newReviseCmd())
	cmd.AddCommand(newSummarizeCmd())
	cmd.AddCommand(newSpotsCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newRejectCmd())
	cmd.AddCommand(newAutoApplyCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}
