package registry

import "sort"

// Strategy is one of the four provider-ranking strategies a canonical
// model's bindings can be ordered by.
type Strategy string

const (
	StrategyPriority Strategy = "priority"
	StrategyCost     Strategy = "cost"
	StrategyLatency  Strategy = "latency"
	StrategyBalanced Strategy = "balanced"
)

// SelectOptions narrows and reorders a SelectProviders call.
type SelectOptions struct {
	Preferred        string
	RequiredFeatures []string
	MaxCostPerToken  *float64
	Excluded         map[string]bool
}

// SelectProviders returns canonicalID's bindings ranked by strategy, after
// applying the filter pipeline from SPEC_FULL §5.1: enabled-only, required
// features, max cost, excluded providers, and health-tracker availability.
// A missing canonical id returns (nil, false); an empty result after
// filtering returns (nil, true) so the caller can tell "unknown model"
// from "no eligible provider" apart.
func (r *Registry) SelectProviders(canonicalID string, strategy Strategy, opts SelectOptions) ([]ProviderBinding, bool) {
	r.mu.RLock()
	cm, ok := r.models[canonicalID]
	var snapshot []ProviderBinding
	if ok {
		snapshot = make([]ProviderBinding, len(cm.Bindings))
		for i, b := range cm.Bindings {
			snapshot[i] = cloneBinding(b)
		}
	}
	health := r.health
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	filtered := snapshot[:0:0]
	for _, b := range snapshot {
		if !b.Enabled {
			continue
		}
		if !hasAllFeatures(b, opts.RequiredFeatures) {
			continue
		}
		if opts.MaxCostPerToken != nil {
			cost, known := b.costPerToken()
			if !known || cost > *opts.MaxCostPerToken {
				continue
			}
		}
		if opts.Excluded != nil && opts.Excluded[b.Provider] {
			continue
		}
		if health != nil && !health.IsAvailable(canonicalID, b.Provider) {
			continue
		}
		filtered = append(filtered, b)
	}

	rankByStrategy(canonicalID, strategy, filtered, health)

	if opts.Preferred != "" {
		moveToHead(filtered, opts.Preferred)
	}

	return filtered, true
}

func hasAllFeatures(b ProviderBinding, required []string) bool {
	for _, f := range required {
		if !b.HasFeature(f) {
			return false
		}
	}
	return true
}

func moveToHead(bindings []ProviderBinding, provider string) {
	for i, b := range bindings {
		if b.Provider == provider {
			if i != 0 {
				copy(bindings[1:i+1], bindings[0:i])
				bindings[0] = b
			}
			return
		}
	}
}

func rankByStrategy(canonicalID string, strategy Strategy, bindings []ProviderBinding, health HealthSource) {
	switch strategy {
	case StrategyCost:
		sort.SliceStable(bindings, func(i, j int) bool {
			ci, oki := bindings[i].costPerToken()
			cj, okj := bindings[j].costPerToken()
			if oki != okj {
				return oki // known cost sorts before unknown
			}
			if !oki {
				return bindings[i].Provider < bindings[j].Provider
			}
			if ci != cj {
				return ci < cj
			}
			return bindings[i].Provider < bindings[j].Provider
		})
	case StrategyLatency:
		sort.SliceStable(bindings, func(i, j int) bool {
			li, oki := latencyOf(canonicalID, bindings[i], health)
			lj, okj := latencyOf(canonicalID, bindings[j], health)
			if oki != okj {
				return oki
			}
			if !oki {
				return bindings[i].Provider < bindings[j].Provider
			}
			if li != lj {
				return li < lj
			}
			return bindings[i].Provider < bindings[j].Provider
		})
	case StrategyBalanced:
		sort.SliceStable(bindings, func(i, j int) bool {
			si := balancedScore(canonicalID, bindings[i], health)
			sj := balancedScore(canonicalID, bindings[j], health)
			if si != sj {
				return si < sj
			}
			return bindings[i].Provider < bindings[j].Provider
		})
	case StrategyPriority, "":
		fallthrough
	default:
		sortBindings(bindings)
	}
}

func latencyOf(canonicalID string, b ProviderBinding, health HealthSource) (float64, bool) {
	if health == nil {
		return 0, false
	}
	return health.AverageLatencyMS(canonicalID, b.Provider)
}

// balancedScore mirrors the original Python registry's scoring: cost scaled
// to per-1k tokens divided by 10, latency in seconds, and (1 - success
// rate), summed ascending. Missing inputs are treated neutrally (no
// penalty for cost/latency we don't know about, optimistic 100% success
// for never-seen pairs) rather than disqualifying the binding — the
// disqualification already happened in the availability filter.
func balancedScore(canonicalID string, b ProviderBinding, health HealthSource) float64 {
	var costScore float64
	if cost, ok := b.costPerToken(); ok {
		costScore = (cost * 1000) / 10
	}
	var latencyScore float64
	if health != nil {
		if ms, ok := health.AverageLatencyMS(canonicalID, b.Provider); ok {
			latencyScore = ms / 1000
		}
	}
	successScore := 0.0
	if health != nil {
		if rate, ok := health.SuccessRate(canonicalID, b.Provider); ok {
			successScore = 1 - rate
		}
	}
	return costScore + latencyScore + successScore
}
