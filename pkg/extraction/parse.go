package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lodestarhq/aide/pkg/memory"
)

// extractionReply is the five-list JSON object the extraction model returns.
type extractionReply struct {
	UserFacts       []factCandidate       `json:"user_facts"`
	UserPreferences []preferenceCandidate `json:"user_preferences"`
	AISelfMemories  []selfMemoryCandidate `json:"ai_self_memories"`
	Capabilities    []capabilityCandidate `json:"capabilities"`
	GeneralMemories []generalCandidate    `json:"general_memories"`
}

type factCandidate struct {
	FactType   string  `json:"fact_type"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Importance int     `json:"importance"`
}

type preferenceCandidate struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Importance int     `json:"importance"`
}

type selfMemoryCandidate struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Importance int     `json:"importance"`
}

type capabilityCandidate struct {
	Name             string  `json:"name"`
	Domain           string  `json:"domain"`
	Description      string  `json:"description"`
	ProficiencyLevel int     `json:"proficiency_level"`
	Confidence       float64 `json:"confidence"`
	Importance       int     `json:"importance"`
}

type generalCandidate struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Importance int     `json:"importance"`
}

// keepReply is the redundancy filter's verdict.
type keepReply struct {
	Keep []int `json:"keep"`
}

// summaryReply is the episodic summarization reply.
type summaryReply struct {
	Summary     string   `json:"summary"`
	Tone        string   `json:"tone"`
	Topics      []string `json:"topics"`
	OpenThreads []string `json:"open_threads"`
}

// extractJSON pulls the JSON object out of a reply that may be wrapped in a
// fenced code block or surrounded by prose.
func extractJSON(response string) string {
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}
	return jsonStr
}

func parseExtractionReply(response string) (*extractionReply, error) {
	var reply extractionReply
	if err := json.Unmarshal([]byte(extractJSON(response)), &reply); err != nil {
		return nil, &ParseError{Raw: response, Cause: err}
	}
	return &reply, nil
}

func parseKeepReply(response string) ([]int, error) {
	var reply keepReply
	if err := json.Unmarshal([]byte(extractJSON(response)), &reply); err != nil {
		return nil, fmt.Errorf("unmarshal keep reply: %w", err)
	}
	return reply.Keep, nil
}

func parseSummaryReply(response string) (*summaryReply, error) {
	var reply summaryReply
	if err := json.Unmarshal([]byte(extractJSON(response)), &reply); err != nil {
		return nil, &ParseError{Raw: response, Cause: err}
	}
	if strings.TrimSpace(reply.Summary) == "" {
		return nil, &ParseError{Raw: response, Cause: errors.New("empty summary")}
	}
	return &reply, nil
}

// clampConfidence bounds a confidence to [0, 1].
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampScale bounds an importance or proficiency to [1, 10].
func clampScale(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// generalKey derives a stable dedupe key for free-form content.
func generalKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// spotsFromReply converts the parsed reply into candidate spots with clamped
// scores and per-type dedupe keys. Entries missing their identifying fields
// are skipped and reported.
func spotsFromReply(reply *extractionReply, userID, sessionID string, now time.Time) ([]memory.Spot, []error) {
	var (
		spots []memory.Spot
		errs  []error
	)

	add := func(t memory.Type, key, content string, meta map[string]any, confidence float64, importance int) {
		spots = append(spots, memory.Spot{
			SessionID:   sessionID,
			UserID:      userID,
			Type:        t,
			Key:         key,
			Content:     content,
			Metadata:    meta,
			Confidence:  clampConfidence(confidence),
			Importance:  clampScale(importance),
			Status:      memory.StatusExtracted,
			ExtractedAt: now,
		})
	}

	for i, f := range reply.UserFacts {
		if f.FactType == "" || f.Key == "" || f.Value == "" {
			errs = append(errs, fmt.Errorf("user_facts[%d]: missing fact_type, key, or value", i))
			continue
		}
		add(memory.TypeUserFact, f.FactType+"/"+f.Key, f.Value, map[string]any{
			"fact_type": f.FactType,
			"key":       f.Key,
			"value":     f.Value,
		}, f.Confidence, f.Importance)
	}

	for i, p := range reply.UserPreferences {
		if p.Category == "" || p.Key == "" || p.Value == "" {
			errs = append(errs, fmt.Errorf("user_preferences[%d]: missing category, key, or value", i))
			continue
		}
		add(memory.TypeUserPreference, p.Category+"/"+p.Key, p.Value, map[string]any{
			"category": p.Category,
			"key":      p.Key,
			"value":    p.Value,
		}, p.Confidence, p.Importance)
	}

	for i, s := range reply.AISelfMemories {
		if s.Category == "" || s.Key == "" || s.Value == "" {
			errs = append(errs, fmt.Errorf("ai_self_memories[%d]: missing category, key, or value", i))
			continue
		}
		add(memory.TypeSelfMemory, s.Category+"/"+s.Key, s.Value, map[string]any{
			"category": s.Category,
			"key":      s.Key,
			"value":    s.Value,
		}, s.Confidence, s.Importance)
	}

	for i, c := range reply.Capabilities {
		if c.Name == "" || c.Domain == "" {
			errs = append(errs, fmt.Errorf("capabilities[%d]: missing name or domain", i))
			continue
		}
		content := c.Description
		if content == "" {
			content = c.Name
		}
		importance := c.Importance
		if importance == 0 {
			importance = c.ProficiencyLevel
		}
		add(memory.TypeCapability, c.Name+"/"+c.Domain, content, map[string]any{
			"name":              c.Name,
			"domain":            c.Domain,
			"description":       c.Description,
			"proficiency_level": clampScale(c.ProficiencyLevel),
		}, c.Confidence, importance)
	}

	for i, g := range reply.GeneralMemories {
		if strings.TrimSpace(g.Content) == "" {
			errs = append(errs, fmt.Errorf("general_memories[%d]: missing content", i))
			continue
		}
		add(memory.TypeGeneral, generalKey(g.Content), g.Content, nil, g.Confidence, g.Importance)
	}

	return spots, errs
}
