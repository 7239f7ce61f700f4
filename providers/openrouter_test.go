package providers

import (
	"testing"
)

func TestNewOpenRouter(t *testing.T) {
	p, err := NewOpenRouter("test-key", "")
	if err != nil {
		t.Fatalf("NewOpenRouter() error: %v", err)
	}
	if p.Name() != "openrouter" {
		t.Errorf("Name() = %q, want openrouter", p.Name())
	}
	if p.baseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("baseURL = %q, want default OpenRouter URL", p.baseURL)
	}
}

func TestNewOpenRouter_CustomBaseURL(t *testing.T) {
	p, err := NewOpenRouter("test-key", "https://proxy.example.com/v1")
	if err != nil {
		t.Fatalf("NewOpenRouter() error: %v", err)
	}
	if p.baseURL != "https://proxy.example.com/v1" {
		t.Errorf("baseURL = %q, want custom proxy URL", p.baseURL)
	}
}

func TestOpenRouterProvider_SupportsModel(t *testing.T) {
	p, _ := NewOpenRouter("test-key", "")
	tests := []struct {
		model string
		want  bool
	}{
		{"anthropic/claude-3.5-sonnet", true},
		{"openai/gpt-4o", true},
		{"gpt-4o", false}, // missing vendor prefix
	}
	for _, tt := range tests {
		if got := p.SupportsModel(tt.model); got != tt.want {
			t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestOpenRouterProvider_Models(t *testing.T) {
	p, _ := NewOpenRouter("test-key", "")
	models := p.Models()
	if len(models) == 0 {
		t.Fatal("Models() returned empty list")
	}
	for _, m := range models {
		if m.OwnedBy != "openrouter" {
			t.Errorf("ModelInfo.OwnedBy = %q, want openrouter", m.OwnedBy)
		}
	}
}

func TestOpenRouterProvider_InterfaceCompliance(_ *testing.T) {
	p, _ := NewOpenRouter("test-key", "")
	var _ Provider = p
	var _ StreamProvider = p
	var _ DiscoveryProvider = p
}
