package extraction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/eventstream"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/storage"
)

const (
	// DefaultAutoApplyThreshold is the minimum confidence AutoApply accepts.
	DefaultAutoApplyThreshold = 0.8

	// autoApplyMinImportance is the importance floor for AutoApply.
	autoApplyMinImportance = 7
)

// ApplyResult aggregates an AutoApply run.
type ApplyResult struct {
	Applied int
	Skipped int
	Errors  []error
}

// Apply promotes one spot into its canonical table. It returns (false, msg,
// nil) for no-op failures (already applied, rejected, no canonical home, bad
// metadata) and an error only when storage or lookup fails. Spot status
// change and canonical write commit as one transaction; the applied event is
// published best-effort afterwards.
func (e *Extractor) Apply(ctx context.Context, spotID string) (bool, string, error) {
	spot, err := e.store.GetSpot(ctx, spotID)
	if err != nil {
		return false, "", err
	}

	switch spot.Status {
	case memory.StatusApplied:
		return false, "spot already applied", nil
	case memory.StatusRejected:
		return false, "spot was rejected", nil
	}
	if spot.Type == memory.TypeGeneral {
		return false, "general memories have no canonical table", nil
	}

	now := e.opts.Clock()
	app := storage.SpotApplication{SpotID: spot.ID, AppliedAt: now}

	switch spot.Type {
	case memory.TypeUserFact:
		factType := metaString(spot.Metadata, "fact_type")
		key := metaString(spot.Metadata, "key")
		value := metaString(spot.Metadata, "value")
		if factType == "" || key == "" || value == "" {
			return false, "spot metadata is missing fact fields", nil
		}
		app.Fact = &memory.UserFact{
			UserID:     spot.UserID,
			FactType:   factType,
			Key:        key,
			Value:      value,
			Confidence: spot.Confidence,
			Source:     factSource(spot),
			UpdatedAt:  now,
		}

	case memory.TypeUserPreference:
		category := metaString(spot.Metadata, "category")
		key := metaString(spot.Metadata, "key")
		value := metaString(spot.Metadata, "value")
		if category == "" || key == "" || value == "" {
			return false, "spot metadata is missing preference fields", nil
		}
		app.Preference = &memory.IdentityEntry{
			UserID:    spot.UserID,
			Category:  category,
			Key:       key,
			Value:     value,
			UpdatedAt: now,
		}

	case memory.TypeSelfMemory:
		category := metaString(spot.Metadata, "category")
		key := metaString(spot.Metadata, "key")
		value := metaString(spot.Metadata, "value")
		if category == "" || key == "" || value == "" {
			return false, "spot metadata is missing self-memory fields", nil
		}
		app.Self = &memory.SelfMemory{
			Category:   category,
			Key:        key,
			Value:      value,
			Importance: spot.Importance,
			UpdatedAt:  now,
		}

	case memory.TypeCapability:
		capability, msg := e.capabilityFromSpot(ctx, spot)
		if capability == nil {
			return false, msg, nil
		}
		app.Capability = capability

	default:
		return false, fmt.Sprintf("unknown memory type %q", spot.Type), nil
	}

	if err := e.store.ApplySpot(ctx, app); err != nil {
		return false, "", err
	}

	e.publishApplied(ctx, spot, now)

	return true, fmt.Sprintf("applied %s %s", spot.Type, spot.Key), nil
}

// capabilityFromSpot builds the canonical capability for an apply, merging
// the evidence list of any existing record. The evidence read happens
// outside the apply transaction; the storage upsert's proficiency clamp is
// the invariant that matters, a lost evidence append cannot regress it.
func (e *Extractor) capabilityFromSpot(ctx context.Context, spot *memory.Spot) (*memory.Capability, string) {
	name := metaString(spot.Metadata, "name")
	domain := metaString(spot.Metadata, "domain")
	if name == "" || domain == "" {
		return nil, "spot metadata is missing capability fields"
	}

	now := e.opts.Clock()
	capability := &memory.Capability{
		Name:             name,
		Domain:           domain,
		Description:      metaString(spot.Metadata, "description"),
		Proficiency:      clampScale(metaInt(spot.Metadata, "proficiency_level")),
		LastDemonstrated: &now,
		UpdatedAt:        now,
	}

	existing, err := e.store.GetCapability(ctx, name, domain)
	if err == nil {
		capability.Evidence = existing.Evidence
		if capability.Description == "" {
			capability.Description = existing.Description
		}
	} else if !storage.IsNotFound(err) {
		e.log.Warn("reading existing capability for evidence merge",
			zap.String("name", name),
			zap.String("domain", domain),
			zap.Error(err),
		)
	}

	if spot.Content != "" && !containsString(capability.Evidence, spot.Content) {
		capability.Evidence = append(capability.Evidence, spot.Content)
	}

	return capability, ""
}

// AutoApply promotes every extracted spot that clears the confidence
// threshold (default 0.8) and the importance floor. General spots have no
// canonical home and are skipped.
func (e *Extractor) AutoApply(ctx context.Context, threshold float64) (*ApplyResult, error) {
	if threshold <= 0 {
		threshold = DefaultAutoApplyThreshold
	}

	spots, err := e.store.ListSpots(ctx, storage.SpotFilter{
		Statuses:      []memory.Status{memory.StatusExtracted},
		MinConfidence: threshold,
		MinImportance: autoApplyMinImportance,
	})
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply candidates: %w", err)
	}

	result := &ApplyResult{}
	for _, spot := range spots {
		if spot.Type == memory.TypeGeneral {
			result.Skipped++
			continue
		}

		ok, msg, err := e.Apply(ctx, spot.ID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Errorf("spot %s: %w", spot.ID, err))
		case !ok:
			e.log.Debug("auto-apply skipped spot",
				zap.String("spot_id", spot.ID),
				zap.String("reason", msg),
			)
			result.Skipped++
		default:
			result.Applied++
		}
	}

	return result, nil
}

// Review marks a spot human-reviewed. Backward moves fail in storage.
func (e *Extractor) Review(ctx context.Context, spotID string) error {
	return e.store.UpdateSpotStatus(ctx, spotID, memory.StatusReviewed, e.opts.Clock())
}

// Reject closes a spot without promoting it.
func (e *Extractor) Reject(ctx context.Context, spotID string) error {
	return e.store.UpdateSpotStatus(ctx, spotID, memory.StatusRejected, e.opts.Clock())
}

// publishApplied emits the applied event best-effort; a failed publish is
// logged and never unwinds the apply.
func (e *Extractor) publishApplied(ctx context.Context, spot *memory.Spot, appliedAt time.Time) {
	if e.pub == nil {
		return
	}

	event := eventstream.NewMemoryAppliedEvent(spot, appliedAt)
	if err := e.pub.PublishApplied(ctx, event); err != nil {
		e.log.Warn("publishing memory applied event",
			zap.String("spot_id", spot.ID),
			zap.Error(err),
		)
	}
}

func factSource(spot *memory.Spot) string {
	if spot.SessionID != "" {
		return "extraction:" + spot.SessionID
	}
	return "extraction"
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// metaInt reads an int that may have round-tripped through JSON as float64.
func metaInt(meta map[string]any, key string) int {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
