// Package registry implements the canonical multi-provider model registry:
// it aggregates per-provider catalog entries into logical "canonical
// models", resolves aliases and native ids back to a canonical id, and
// ranks a canonical model's provider bindings for the selector.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthSource is the subset of the health tracker that the registry needs
// to filter and rank provider bindings. It is supplied by the caller at
// construction time rather than looked up as a package-level singleton, so
// tests can substitute a fake clock/fake health view.
type HealthSource interface {
	IsAvailable(canonical, provider string) bool
	AverageLatencyMS(canonical, provider string) (ms float64, ok bool)
	SuccessRate(canonical, provider string) (rate float64, ok bool)
}

// ProviderBinding is one provider's implementation of a canonical model.
type ProviderBinding struct {
	Provider            string
	NativeID            string
	Priority            int
	Enabled             bool
	RequiresCredentials bool
	InputPerToken       *float64
	OutputPerToken      *float64
	MaxOutputTokens     *int
	ContextLength       int
	Features            []string
}

// HasFeature reports whether the binding declares the given feature.
func (b ProviderBinding) HasFeature(feature string) bool {
	for _, f := range b.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// costPerToken returns the sum of input+output per-token cost, and whether
// both components are known.
func (b ProviderBinding) costPerToken() (float64, bool) {
	if b.InputPerToken == nil || b.OutputPerToken == nil {
		return 0, false
	}
	return *b.InputPerToken + *b.OutputPerToken, true
}

func cloneBinding(b ProviderBinding) ProviderBinding {
	out := b
	if b.InputPerToken != nil {
		v := *b.InputPerToken
		out.InputPerToken = &v
	}
	if b.OutputPerToken != nil {
		v := *b.OutputPerToken
		out.OutputPerToken = &v
	}
	if b.MaxOutputTokens != nil {
		v := *b.MaxOutputTokens
		out.MaxOutputTokens = &v
	}
	out.Features = append([]string(nil), b.Features...)
	return out
}

// CanonicalModel is the logical, provider-agnostic identity of a model.
type CanonicalModel struct {
	ID            string
	DisplayName   string
	Description   string
	ContextLength int
	Modalities    []string
	Features      []string
	Aliases       []string

	Bindings []ProviderBinding

	MinInputCost  *float64
	MaxInputCost  *float64
	MinOutputCost *float64
	MaxOutputCost *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCanonical(cm *CanonicalModel) *CanonicalModel {
	out := *cm
	out.Modalities = append([]string(nil), cm.Modalities...)
	out.Features = append([]string(nil), cm.Features...)
	out.Aliases = append([]string(nil), cm.Aliases...)
	out.Bindings = make([]ProviderBinding, len(cm.Bindings))
	for i, b := range cm.Bindings {
		out.Bindings[i] = cloneBinding(b)
	}
	out.MinInputCost = clonePtr(cm.MinInputCost)
	out.MaxInputCost = clonePtr(cm.MaxInputCost)
	out.MinOutputCost = clonePtr(cm.MinOutputCost)
	out.MaxOutputCost = clonePtr(cm.MaxOutputCost)
	return &out
}

// sortBindings keeps the invariant that bindings are ordered by priority
// ascending, tie-broken by provider slug for determinism.
func sortBindings(bindings []ProviderBinding) {
	sort.SliceStable(bindings, func(i, j int) bool {
		if bindings[i].Priority != bindings[j].Priority {
			return bindings[i].Priority < bindings[j].Priority
		}
		return bindings[i].Provider < bindings[j].Provider
	})
}

// recomputeAggregates updates the canonical model's min/max cost range from
// its bindings, per invariant (c) in SPEC_FULL §4.
func recomputeAggregates(cm *CanonicalModel) {
	cm.MinInputCost, cm.MaxInputCost = nil, nil
	cm.MinOutputCost, cm.MaxOutputCost = nil, nil
	for _, b := range cm.Bindings {
		if b.InputPerToken != nil {
			if cm.MinInputCost == nil || *b.InputPerToken < *cm.MinInputCost {
				cm.MinInputCost = clonePtr(b.InputPerToken)
			}
			if cm.MaxInputCost == nil || *b.InputPerToken > *cm.MaxInputCost {
				cm.MaxInputCost = clonePtr(b.InputPerToken)
			}
		}
		if b.OutputPerToken != nil {
			if cm.MinOutputCost == nil || *b.OutputPerToken < *cm.MinOutputCost {
				cm.MinOutputCost = clonePtr(b.OutputPerToken)
			}
			if cm.MaxOutputCost == nil || *b.OutputPerToken > *cm.MaxOutputCost {
				cm.MaxOutputCost = clonePtr(b.OutputPerToken)
			}
		}
	}
}

// Registry is the process-wide canonical model store. All methods are safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	models      map[string]*CanonicalModel   // canonical id -> model
	aliases     map[string]string            // lowercased alias -> canonical id
	nativeIndex map[string]string            // "provider\x00nativeID" -> canonical id
	health      HealthSource
	logger      *slog.Logger
}

// New constructs an empty registry. health may be nil in tests that don't
// exercise latency/balanced strategies or availability filtering.
func New(health HealthSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		models:      make(map[string]*CanonicalModel),
		aliases:     make(map[string]string),
		nativeIndex: make(map[string]string),
		health:      health,
		logger:      logger,
	}
}

func nativeKey(provider, nativeID string) string {
	return provider + "\x00" + nativeID
}

// Register upserts a canonical model. Bindings with the same provider slug
// as an existing binding are replaced; all others are kept. Aliases carried
// on the model are (re)registered.
func (r *Registry) Register(cm CanonicalModel) error {
	if len(cm.Bindings) == 0 {
		return fmt.Errorf("registry: canonical model %q must have at least one provider binding", cm.ID)
	}
	if cm.ID == "" {
		return fmt.Errorf("registry: canonical model must have a non-empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.models[cm.ID]
	merged := cloneCanonical(&cm)
	if ok {
		byProvider := make(map[string]int, len(merged.Bindings))
		for i, b := range merged.Bindings {
			byProvider[b.Provider] = i
		}
		for _, b := range existing.Bindings {
			if _, replaced := byProvider[b.Provider]; !replaced {
				merged.Bindings = append(merged.Bindings, cloneBinding(b))
			}
		}
		merged.CreatedAt = existing.CreatedAt
	} else {
		merged.CreatedAt = now
	}
	merged.UpdatedAt = now

	for i := range merged.Bindings {
		// Remove stale native-index entries for providers being replaced.
		if ok {
			for _, old := range existing.Bindings {
				if old.Provider == merged.Bindings[i].Provider {
					delete(r.nativeIndex, nativeKey(old.Provider, old.NativeID))
				}
			}
		}
	}
	sortBindings(merged.Bindings)
	recomputeAggregates(merged)

	r.models[merged.ID] = merged
	for _, b := range merged.Bindings {
		r.nativeIndex[nativeKey(b.Provider, b.NativeID)] = merged.ID
	}
	for _, alias := range merged.Aliases {
		r.addAliasLocked(alias, merged.ID)
	}
	return nil
}

// AddAlias registers a case-insensitive alias for a canonical id. If the
// alias already resolves to a different canonical id, the new registration
// is dropped and a warning is logged ("first writer wins").
func (r *Registry) AddAlias(alias, canonicalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addAliasLocked(alias, canonicalID)
}

func (r *Registry) addAliasLocked(alias, canonicalID string) {
	key := strings.ToLower(alias)
	if existing, ok := r.aliases[key]; ok && existing != canonicalID {
		r.logger.Warn("alias collision, keeping first writer",
			"alias", alias, "existing", existing, "rejected", canonicalID)
		return
	}
	r.aliases[key] = canonicalID
}

// Resolve maps any supported identifier form to a canonical id: direct
// canonical match, then alias, then "provider/native-id" composite, then
// the provider-native index.
func (r *Registry) Resolve(identifier string) (string, bool) {
	if identifier == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(identifier)
}

func (r *Registry) resolveLocked(identifier string) (string, bool) {
	if _, ok := r.models[identifier]; ok {
		return identifier, true
	}
	if id, ok := r.aliases[strings.ToLower(identifier)]; ok {
		return id, true
	}
	if provider, native, found := strings.Cut(identifier, "/"); found {
		if id, ok := r.nativeIndex[nativeKey(provider, native)]; ok {
			return id, true
		}
	}
	for k, id := range r.nativeIndex {
		if _, native, _ := strings.Cut(k, "\x00"); native == identifier {
			return id, true
		}
	}
	return "", false
}

// Get returns a deep copy of the canonical model, or false if unknown.
func (r *Registry) Get(canonicalID string) (CanonicalModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.models[canonicalID]
	if !ok {
		return CanonicalModel{}, false
	}
	return *cloneCanonical(cm), true
}

// CatalogPrice returns the catalog-declared per-token input/output price
// for a (canonical, provider) binding, satisfying pricing.CatalogSource so
// the pricing resolver can fall back to whatever price the catalog
// ingester last recorded on the binding itself.
func (r *Registry) CatalogPrice(canonicalID, provider string) (input, output *float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, found := r.models[canonicalID]
	if !found {
		return nil, nil, false
	}
	for _, b := range cm.Bindings {
		if b.Provider != provider {
			continue
		}
		if b.InputPerToken == nil || b.OutputPerToken == nil {
			return nil, nil, false
		}
		return clonePtr(b.InputPerToken), clonePtr(b.OutputPerToken), true
	}
	return nil, nil, false
}

// ListByProvider returns every canonical model that has an enabled or
// disabled binding for the given provider slug.
func (r *Registry) ListByProvider(slug string) []CanonicalModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CanonicalModel
	for _, cm := range r.models {
		for _, b := range cm.Bindings {
			if b.Provider == slug {
				out = append(out, *cloneCanonical(cm))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SearchFilters narrows a Search call. Zero-value fields are unconstrained.
type SearchFilters struct {
	Modality string
	Feature  string
}

// Search returns canonical models whose id, display name, or description
// contains query (case-insensitive), further narrowed by filters. It does
// not rank results; order is by canonical id for determinism.
func (r *Registry) Search(query string, filters SearchFilters) []CanonicalModel {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CanonicalModel
	for _, cm := range r.models {
		if q != "" {
			hay := strings.ToLower(cm.ID + " " + cm.DisplayName + " " + cm.Description)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		if filters.Modality != "" && !containsFold(cm.Modalities, filters.Modality) {
			continue
		}
		if filters.Feature != "" && !containsFold(cm.Features, filters.Feature) {
			continue
		}
		out = append(out, *cloneCanonical(cm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsFold(items []string, want string) bool {
	for _, it := range items {
		if strings.EqualFold(it, want) {
			return true
		}
	}
	return false
}

// Export dumps the full registry state for backup/debugging.
type Export struct {
	Models  []CanonicalModel  `json:"models"`
	Aliases map[string]string `json:"aliases"`
}

// Export returns a portable snapshot of the registry.
func (r *Registry) Export() Export {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Export{Aliases: make(map[string]string, len(r.aliases))}
	for _, cm := range r.models {
		out.Models = append(out.Models, *cloneCanonical(cm))
	}
	sort.Slice(out.Models, func(i, j int) bool { return out.Models[i].ID < out.Models[j].ID })
	for k, v := range r.aliases {
		out.Aliases[k] = v
	}
	return out
}

// Import reloads a previously exported snapshot on top of the current
// state: each model is upserted as Register does, then each alias whose
// target exists is set. Models already registered but absent from the
// snapshot are kept. It is the registry's own export round-trip, not a
// generic catalog ingest path (see internal/ingest for that).
func (r *Registry) Import(snapshot Export) error {
	for _, cm := range snapshot.Models {
		if err := r.Register(cm); err != nil {
			return fmt.Errorf("registry: import %q: %w", cm.ID, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for alias, id := range snapshot.Aliases {
		if _, ok := r.models[id]; ok {
			r.aliases[alias] = id
		}
	}
	return nil
}
