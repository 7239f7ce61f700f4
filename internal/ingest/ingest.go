// Package ingest implements the catalog ingester (C6): it pulls
// per-provider model catalogs on a schedule or on demand and feeds the
// canonical model registry (C3), normalizing pricing through the same
// rules the pricing resolver (C1) uses.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ferro-labs/llm-gateway/internal/pricing"
	"github.com/ferro-labs/llm-gateway/registry"
)

// ProviderModel is one entry from a provider's catalog, already decoded
// from whatever wire shape the provider returns.
type ProviderModel struct {
	NativeID        string
	DisplayName     string
	ContextLength   int
	MaxOutputTokens int
	InputPrice      float64
	OutputPrice     float64
	PriceUnit       pricing.Unit
	Modalities      []string
	Features        []string
	Priority        int
}

// Fetcher pulls the current catalog for one provider slug. Provider
// adapters that expose a live models endpoint (see providers/discovery.go)
// implement this by decoding their own wire format into ProviderModel.
type Fetcher interface {
	FetchModels(ctx context.Context, provider string) ([]ProviderModel, error)
}

// Mapper derives a canonical model id from a provider slug and that
// provider's native model id.
type Mapper func(provider, nativeID string) string

var knownPrefixes = []string{
	"openai/",
	"meta-llama/",
	"accounts/fireworks/models/",
}

// DefaultMapper strips common vendor-namespace prefixes so that, e.g.,
// fireworks's "accounts/fireworks/models/llama-v3p3-70b-instruct" and
// together's "meta-llama/Llama-3.3-70B-Instruct" both normalize toward a
// comparable canonical id. It does not guarantee cross-provider identity
// on its own — operators reconcile remaining mismatches via curated
// config aliases.
func DefaultMapper(provider, nativeID string) string {
	id := nativeID
	for _, p := range knownPrefixes {
		if strings.HasPrefix(id, p) {
			id = strings.TrimPrefix(id, p)
			break
		}
	}
	return strings.ToLower(id)
}

// SyncReport summarizes the result of syncing one provider.
type SyncReport struct {
	Provider string
	Synced   int
	Disabled int
	Errors   []string
	Duration time.Duration
}

// CombinedReport summarizes a SyncAll call across every configured provider.
type CombinedReport struct {
	Reports []SyncReport
	Total   int
}

// Ingester drives catalog sync for a fixed set of provider slugs.
type Ingester struct {
	reg       *registry.Registry
	fetcher   Fetcher
	mapper    Mapper
	providers []string
	logger    *slog.Logger
}

// New constructs an Ingester. mapper defaults to DefaultMapper if nil.
func New(reg *registry.Registry, fetcher Fetcher, mapper Mapper, providers []string, logger *slog.Logger) *Ingester {
	if mapper == nil {
		mapper = DefaultMapper
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{reg: reg, fetcher: fetcher, mapper: mapper, providers: providers, logger: logger}
}

// Sync pulls the current catalog for one provider and commits it to the
// registry. It never aborts on a per-model error; failures are logged and
// collected in the report. Entries the provider no longer reports are
// disabled, not deleted, per the registry's never-delete-at-runtime rule.
func (in *Ingester) Sync(ctx context.Context, provider string) SyncReport {
	start := time.Now()
	report := SyncReport{Provider: provider}

	models, err := in.fetcher.FetchModels(ctx, provider)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("fetch: %v", err))
		report.Duration = time.Since(start)
		return report
	}

	seen := make(map[string]bool, len(models))
	for _, m := range models {
		seen[m.NativeID] = true
		canonicalID := in.mapper(provider, m.NativeID)
		if canonicalID == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("native id %q mapped to empty canonical id", m.NativeID))
			continue
		}

		input := pricing.Normalize(m.InputPrice, m.PriceUnit)
		output := pricing.Normalize(m.OutputPrice, m.PriceUnit)
		binding := registry.ProviderBinding{
			Provider:        provider,
			NativeID:        m.NativeID,
			Priority:        m.Priority,
			Enabled:         true,
			InputPerToken:   &input,
			OutputPerToken:  &output,
			ContextLength:   m.ContextLength,
			MaxOutputTokens: optionalInt(m.MaxOutputTokens),
			Features:        m.Features,
		}
		cm := registry.CanonicalModel{
			ID:            canonicalID,
			DisplayName:   displayNameOr(m.DisplayName, canonicalID),
			ContextLength: m.ContextLength,
			Modalities:    m.Modalities,
			Features:      m.Features,
			Aliases:       []string{provider + "/" + m.NativeID},
			Bindings:      []registry.ProviderBinding{binding},
		}
		if err := in.reg.Register(cm); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("register %q: %v", canonicalID, err))
			continue
		}
		report.Synced++
	}

	for _, cm := range in.reg.ListByProvider(provider) {
		for _, b := range cm.Bindings {
			if b.Provider != provider || !b.Enabled || seen[b.NativeID] {
				continue
			}
			disabled := b
			disabled.Enabled = false
			err := in.reg.Register(registry.CanonicalModel{
				ID:            cm.ID,
				DisplayName:   cm.DisplayName,
				ContextLength: cm.ContextLength,
				Modalities:    cm.Modalities,
				Features:      cm.Features,
				Bindings:      []registry.ProviderBinding{disabled},
			})
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("disable %q/%q: %v", cm.ID, b.NativeID, err))
				continue
			}
			report.Disabled++
		}
	}

	report.Duration = time.Since(start)
	in.logger.Info("catalog sync complete",
		"provider", provider, "synced", report.Synced, "disabled", report.Disabled, "errors", len(report.Errors))
	return report
}

// SyncAll syncs every configured provider, one after another. A failing
// provider does not prevent the rest from syncing.
func (in *Ingester) SyncAll(ctx context.Context) CombinedReport {
	combined := CombinedReport{}
	for _, provider := range in.providers {
		r := in.Sync(ctx, provider)
		combined.Reports = append(combined.Reports, r)
		combined.Total += r.Synced
	}
	return combined
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func displayNameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
