package aigateway

import (
	"github.com/ferro-labs/llm-gateway/internal/pricing"
	"github.com/ferro-labs/llm-gateway/registry"
)

// canonicalModels converts the curated-model config section into registry
// records, ready for registry.Register.
func (c Config) canonicalModels() []registry.CanonicalModel {
	out := make([]registry.CanonicalModel, 0, len(c.CuratedModels))
	for _, cm := range c.CuratedModels {
		bindings := make([]registry.ProviderBinding, 0, len(cm.Bindings))
		for _, b := range cm.Bindings {
			enabled := true
			if b.Enabled != nil {
				enabled = *b.Enabled
			}
			bindings = append(bindings, registry.ProviderBinding{
				Provider:        b.Provider,
				NativeID:        b.NativeID,
				Priority:        b.Priority,
				Enabled:         enabled,
				InputPerToken:   b.InputPerToken,
				OutputPerToken:  b.OutputPerToken,
				MaxOutputTokens: b.MaxOutputTokens,
				ContextLength:   b.ContextLength,
				Features:        b.Features,
			})
		}
		out = append(out, registry.CanonicalModel{
			ID:            cm.ID,
			DisplayName:   cm.DisplayName,
			Description:   cm.Description,
			ContextLength: cm.ContextLength,
			Modalities:    cm.Modalities,
			Features:      cm.Features,
			Aliases:       cm.Aliases,
			Bindings:      bindings,
		})
	}
	return out
}

// manualQuotes converts the manual pricing override section into the
// pricing resolver's override map.
func (c Config) manualQuotes() map[string]pricing.Quote {
	out := make(map[string]pricing.Quote, len(c.ManualPricing))
	for canonicalID, p := range c.ManualPricing {
		out[canonicalID] = pricing.Quote{
			InputPerToken:  p.InputPerToken,
			OutputPerToken: p.OutputPerToken,
			Source:         pricing.SourceManual,
		}
	}
	return out
}
