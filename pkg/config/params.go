package config

import (
	"time"

	"github.com/lodestarhq/aide/pkg/llm"
)

// LLMParams converts the configured sampling params to llm.Params. Zero
// values stay unset so the backend's own defaults apply.
func (p ParamsConfig) LLMParams() llm.Params {
	var out llm.Params
	if p.Temperature != 0 {
		out.Temperature = llm.Float(p.Temperature)
	}
	if p.TopP != 0 {
		out.TopP = llm.Float(p.TopP)
	}
	if p.MaxTokens != 0 {
		out.MaxTokens = llm.Int(int(p.MaxTokens))
	}
	return out
}

// Timeout returns the configured chat call timeout as a duration.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Timeout returns the availability probe timeout as a duration.
func (p ProbeConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// TTL returns the availability cache lifetime as a duration.
func (p ProbeConfig) TTL() time.Duration {
	return time.Duration(p.TTLSeconds) * time.Second
}

// Interval returns the revision sweep period as a duration.
func (r RevisionConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}
