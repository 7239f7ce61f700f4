// Package bootstrap wires a Gateway's provider adapters and catalog
// ingester from a loaded Config, shared between the gatewayd server and
// the gatewayctl command-line tool so both build identical gateways from
// the same config file.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"

	aigateway "github.com/ferro-labs/llm-gateway"
	"github.com/ferro-labs/llm-gateway/internal/ingest"
	"github.com/ferro-labs/llm-gateway/providers"
)

// RegisterProviders wires a providers.Provider adapter onto gw for every
// entry in cfg.Providers, reading its API key from the named environment
// variable. Entries naming an unknown slug, or a slug whose env var is
// unset, are logged and skipped rather than failing the whole gateway.
func RegisterProviders(gw *aigateway.Gateway, cfg *aigateway.Config) {
	type factory func(apiKey, baseURL string) (providers.Provider, error)
	factories := map[string]factory{
		"openai":     func(k, b string) (providers.Provider, error) { return providers.NewOpenAI(k, b) },
		"fireworks":  func(k, b string) (providers.Provider, error) { return providers.NewFireworks(k, b) },
		"together":   func(k, b string) (providers.Provider, error) { return providers.NewTogether(k, b) },
		"openrouter": func(k, b string) (providers.Provider, error) { return providers.NewOpenRouter(k, b) },
	}

	for slug, pc := range cfg.Providers {
		if slug == "bedrock" || slug == "vertex" {
			continue // constructed below: no single API-key env var
		}
		f, ok := factories[slug]
		if !ok {
			log.Printf("Warning: unknown provider slug %q in config, skipping", slug)
			continue
		}
		apiKey := os.Getenv(pc.APIKeyEnv)
		if apiKey == "" {
			log.Printf("Warning: provider %q configured but %s is unset, skipping", slug, pc.APIKeyEnv)
			continue
		}
		p, err := f(apiKey, pc.BaseURL)
		if err != nil {
			log.Fatalf("provider %s: %v", slug, err)
		}
		gw.RegisterProvider(p)
		log.Printf("Provider registered: %s", slug)
	}

	if pc, ok := cfg.Providers["bedrock"]; ok {
		region := pc.BaseURL
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		p, err := providers.NewBedrock(region)
		if err != nil {
			log.Fatalf("provider bedrock: %v", err)
		}
		gw.RegisterProvider(p)
		log.Println("Provider registered: bedrock")
	}

	if pc, ok := cfg.Providers["vertex"]; ok {
		project := os.Getenv("VERTEX_PROJECT")
		p, err := providers.NewVertex(context.Background(), project, pc.BaseURL, vertexOAuthFromEnv())
		if err != nil {
			log.Fatalf("provider vertex: %v", err)
		}
		gw.RegisterProvider(p)
		log.Println("Provider registered: vertex")
	}
}

// Fetcher adapts a Gateway's registered providers.DiscoveryProvider
// adapters into a single ingest.Fetcher, dispatching by provider slug.
type Fetcher struct {
	Gateway *aigateway.Gateway
}

// FetchModels implements ingest.Fetcher.
func (f Fetcher) FetchModels(ctx context.Context, provider string) ([]ingest.ProviderModel, error) {
	p, ok := f.Gateway.GetProvider(provider)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", provider)
	}
	dp, ok := p.(providers.DiscoveryProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support catalog discovery", provider)
	}
	models, err := dp.DiscoverModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ingest.ProviderModel, 0, len(models))
	for _, m := range models {
		out = append(out, ingest.ProviderModel{NativeID: m.ID, DisplayName: m.ID})
	}
	return out, nil
}

// vertexOAuthFromEnv builds a VertexOAuthConfig from VERTEX_OAUTH_* env vars,
// for fleets that front Vertex AI with a workload-identity broker instead of
// Google's own Application Default Credentials. Returns nil (use ADC) unless
// all of client id/secret/token URL are set.
func vertexOAuthFromEnv() *providers.VertexOAuthConfig {
	clientID := os.Getenv("VERTEX_OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("VERTEX_OAUTH_CLIENT_SECRET")
	tokenURL := os.Getenv("VERTEX_OAUTH_TOKEN_URL")
	if clientID == "" || clientSecret == "" || tokenURL == "" {
		return nil
	}
	return &providers.VertexOAuthConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://www.googleapis.com/auth/cloud-platform"},
	}
}
