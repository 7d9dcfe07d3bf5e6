package memory

import (
	"context"
	"fmt"
	"strings"
)

// Prompt section headers. The assembler's output is byte-for-byte
// deterministic, so these are fixed strings, not templates.
const (
	HeaderProfile  = "# User Profile"
	HeaderFacts    = "# Known Facts"
	HeaderContext  = "# Current Context"
	HeaderCalendar = "## Calendar"
	HeaderRecent   = "# Recent Conversations"
	HeaderSelf     = "# About Me"
)

// workingTimeLayout renders the working layer's clock reading.
const workingTimeLayout = "Monday, 2 January 2006 15:04 MST"

// FormatForPrompt loads all four layers and renders them as prompt text.
func (m *Manager) FormatForPrompt(ctx context.Context, userID, sessionID, message string) (string, error) {
	l, err := m.AllLayers(ctx, userID, sessionID, message)
	if err != nil {
		return "", err
	}
	return FormatLayers(l), nil
}

// FormatSelfMemories loads the assistant's self-knowledge and renders the
// about-me prompt section. Returns "" when there is nothing to say.
func (m *Manager) FormatSelfMemories(ctx context.Context) (string, error) {
	selves, caps, err := m.SelfKnowledge(ctx)
	if err != nil {
		return "", err
	}
	return FormatSelf(selves, caps), nil
}

// FormatLayers renders the four layers as prompt sections in a fixed order:
// profile, facts, context, recent conversations. Empty sections are omitted.
// Given equal layers the output is identical, down to the byte.
func FormatLayers(l *Layers) string {
	var sections []string

	if s := formatIdentity(l.Identity); s != "" {
		sections = append(sections, s)
	}
	if s := formatFacts(l.Factual); s != "" {
		sections = append(sections, s)
	}
	sections = append(sections, formatWorking(l.Working))
	if s := formatEpisodic(l.Episodic); s != "" {
		sections = append(sections, s)
	}

	return strings.Join(sections, "\n\n")
}

// FormatSelf renders the assistant's own memories and capabilities as the
// about-me prompt section. Returns "" when there is nothing to say.
func FormatSelf(selves []SelfMemory, caps []Capability) string {
	if len(selves) == 0 && len(caps) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderSelf)
	for _, s := range selves {
		fmt.Fprintf(&b, "\n- [%s] %s: %s", s.Category, s.Key, s.Value)
	}
	for _, c := range caps {
		fmt.Fprintf(&b, "\n- %s (%s), proficiency %d/10", c.Name, c.Domain, c.Proficiency)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
	}
	return b.String()
}

func formatIdentity(entries []IdentityEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderProfile)
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- [%s] %s: %s", e.Category, e.Key, e.Value)
	}
	return b.String()
}

func formatFacts(facts []UserFact) string {
	if len(facts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderFacts)
	for _, f := range facts {
		fmt.Fprintf(&b, "\n- [%s] %s: %s", f.FactType, f.Key, f.Value)
	}
	return b.String()
}

// formatWorking always emits the context section: the clock reading is part
// of every prompt even when calendar and session title are empty.
func formatWorking(w Working) string {
	var b strings.Builder
	b.WriteString(HeaderContext)
	fmt.Fprintf(&b, "\nCurrent time: %s", w.Now.Format(workingTimeLayout))
	if w.SessionTitle != "" {
		fmt.Fprintf(&b, "\nActive conversation: %s", w.SessionTitle)
	}
	if w.Calendar != "" {
		b.WriteString("\n\n" + HeaderCalendar + "\n")
		b.WriteString(w.Calendar)
	}
	return b.String()
}

func formatEpisodic(summaries []ConversationSummary) string {
	if len(summaries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderRecent)
	for _, s := range summaries {
		fmt.Fprintf(&b, "\n- %s", s.Summary)

		var notes []string
		if s.Tone != "" {
			notes = append(notes, "tone: "+s.Tone)
		}
		if len(s.Topics) > 0 {
			notes = append(notes, "topics: "+strings.Join(s.Topics, ", "))
		}
		if len(s.OpenThreads) > 0 {
			notes = append(notes, "open: "+strings.Join(s.OpenThreads, ", "))
		}
		if len(notes) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(notes, "; "))
		}
	}
	return b.String()
}
