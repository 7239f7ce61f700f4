package aigateway

// Config holds the configuration for the LLM gateway.
type Config struct {
	// Providers maps a provider slug to its credential/endpoint config.
	Providers map[string]ProviderConfig `json:"providers,omitempty" yaml:"providers,omitempty"`
	// CuratedModels seeds the canonical model registry at startup, ahead of
	// (and on top of) anything the catalog ingester later discovers.
	CuratedModels []CuratedModel `json:"curated_models,omitempty" yaml:"curated_models,omitempty"`
	// ManualPricing overrides resolved pricing for a canonical id, used when
	// neither the database nor a provider catalog carries a price.
	ManualPricing map[string]ManualPrice `json:"manual_pricing,omitempty" yaml:"manual_pricing,omitempty"`
	// Aliases maps an arbitrary caller-facing model string to a canonical id,
	// layered on top of the registry's own alias table.
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	// FallbackMappings maps a canonical id to a substitute canonical id,
	// consulted only when the selector reports NoAvailableProvider for the
	// original id.
	FallbackMappings map[string]string `json:"fallback_mappings,omitempty" yaml:"fallback_mappings,omitempty"`
	// IngestSchedule is a 6-field cron expression (seconds included) driving
	// the catalog ingester's periodic SyncAll. Empty uses ingest.DefaultSchedule.
	IngestSchedule string `json:"ingest_schedule,omitempty" yaml:"ingest_schedule,omitempty"`
	// IngestProviders lists the provider slugs the catalog ingester cycles
	// through on each scheduled or manual SyncAll.
	IngestProviders []string `json:"ingest_providers,omitempty" yaml:"ingest_providers,omitempty"`
	// Database configures the optional durable store for canonical models,
	// pricing, and request outcomes.
	Database DatabaseConfig `json:"database,omitempty" yaml:"database,omitempty"`
	// LogLevel is one of debug/info/warn/error (default info).
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	// LogFormat is "json" (default) or "text".
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
}

// ProviderConfig names the environment variable holding a provider's API
// key and, for self-hosted or region-pinned deployments, a base URL
// override.
type ProviderConfig struct {
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// CuratedModel is the config-file shape of registry.CanonicalModel.
type CuratedModel struct {
	ID            string           `json:"id" yaml:"id"`
	DisplayName   string           `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	ContextLength int              `json:"context_length,omitempty" yaml:"context_length,omitempty"`
	Modalities    []string         `json:"modalities,omitempty" yaml:"modalities,omitempty"`
	Features      []string         `json:"features,omitempty" yaml:"features,omitempty"`
	Aliases       []string         `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Bindings      []CuratedBinding `json:"bindings" yaml:"bindings"`
}

// CuratedBinding is the config-file shape of registry.ProviderBinding.
type CuratedBinding struct {
	Provider        string   `json:"provider" yaml:"provider"`
	NativeID        string   `json:"native_id" yaml:"native_id"`
	Priority        int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	InputPerToken   *float64 `json:"input_per_token,omitempty" yaml:"input_per_token,omitempty"`
	OutputPerToken  *float64 `json:"output_per_token,omitempty" yaml:"output_per_token,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	ContextLength   int      `json:"context_length,omitempty" yaml:"context_length,omitempty"`
	Features        []string `json:"features,omitempty" yaml:"features,omitempty"`
}

// ManualPrice is a flat per-token price pair for the manual pricing override.
type ManualPrice struct {
	InputPerToken  float64 `json:"input_per_token" yaml:"input_per_token"`
	OutputPerToken float64 `json:"output_per_token" yaml:"output_per_token"`
}

// DatabaseConfig selects and addresses the durable store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres". Empty disables durable persistence;
	// the gateway still runs, recording outcomes in logs/metrics only.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}
