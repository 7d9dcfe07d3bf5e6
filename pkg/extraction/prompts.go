package extraction

import (
	"fmt"
	"strings"

	"github.com/lodestarhq/aide/pkg/memory"
)

// ExtractionSystemPrompt instructs the extraction model. The reply must be a
// single JSON object with the five candidate lists; each entry carries its
// own confidence/importance so arbitration can compare revisions.
const ExtractionSystemPrompt = `You are the memory-extraction step of a personal AI assistant. You read one conversation transcript and extract durable memories worth keeping across conversations.

Return ONLY valid JSON with these fields:

{
  "user_facts": [
    {"fact_type": "identity|professional|personal|context", "key": "snake_case_key", "value": "the fact", "confidence": 0.9, "importance": 5}
  ],
  "user_preferences": [
    {"category": "communication|workflow|interests", "key": "snake_case_key", "value": "the preference", "confidence": 0.8, "importance": 4}
  ],
  "ai_self_memories": [
    {"category": "persona|lessons|relationships", "key": "snake_case_key", "value": "what the assistant should remember about itself", "confidence": 0.8, "importance": 4}
  ],
  "capabilities": [
    {"name": "snake_case_name", "domain": "the capability's domain", "description": "what was demonstrated", "proficiency_level": 5, "confidence": 0.8}
  ],
  "general_memories": [
    {"content": "anything durable that fits none of the lists above", "confidence": 0.7, "importance": 3}
  ]
}

Guidelines:
- confidence is how strongly the transcript supports the memory, 0.0 to 1.0.
- importance and proficiency_level run from 1 (trivial) to 10 (defining).
- Use stable keys: the same fact in a later conversation must produce the same key (e.g. "name", "employer", "home_city").
- Extract only durable information. Skip pleasantries, one-off logistics, and anything the user would not expect the assistant to remember.
- Leave a list empty when the transcript offers nothing for it.`

// RedundancySystemPrompt instructs the dedup pass that runs after extraction
// for users who already have reviewed or applied memories.
const RedundancySystemPrompt = `You deduplicate candidate memories for a personal AI assistant. You receive numbered candidates and the assistant's existing knowledge. Keep a candidate only when it adds information the existing knowledge does not already cover; a changed value for a known key counts as new.

Return ONLY valid JSON: {"keep": [0, 2]} listing the zero-based indices of the candidates to keep. Return {"keep": []} when every candidate is redundant.`

// SummarySystemPrompt instructs the episodic summarization call.
const SummarySystemPrompt = `You summarize one conversation between a user and their personal assistant for the assistant's episodic memory. Capture what mattered, not the play-by-play.

Return ONLY valid JSON with these fields:

{
  "summary": "2-3 sentences on what the conversation was about and how it went",
  "tone": "one or two words for the user's mood",
  "topics": ["short", "topic", "labels"],
  "open_threads": ["anything left unresolved that a future conversation may pick up"]
}`

// buildTranscript renders session messages as "[role] content" lines,
// truncated so a long session cannot blow the extraction context.
func buildTranscript(msgs []memory.SessionMessage) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}

	transcript := b.String()
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}
	return transcript
}

// buildRedundancyContent renders the numbered candidates and the canonical
// knowledge block the filter compares them against.
func buildRedundancyContent(candidates []memory.Spot, canonical string) string {
	var b strings.Builder
	b.WriteString("Candidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i, c.Type, c.Key, c.Content)
	}
	b.WriteString("\nExisting knowledge:\n")
	if canonical == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(canonical)
	}
	return b.String()
}
