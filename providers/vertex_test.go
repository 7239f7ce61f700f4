package providers

import (
	"context"
	"testing"
)

func TestNewVertex_RequiresProject(t *testing.T) {
	if _, err := NewVertex(context.Background(), "", "us-central1", nil); err == nil {
		t.Fatal("expected error when project is empty")
	}
}

func TestVertexProvider_SupportsModel(t *testing.T) {
	p := &VertexProvider{Base: Base{name: "vertex"}}
	tests := []struct {
		model string
		want  bool
	}{
		{"gemini-1.5-pro", true},
		{"gemini-2.0-flash", true},
		{"gpt-4o", false},
		{"claude-3-opus", false},
	}
	for _, tt := range tests {
		if got := p.SupportsModel(tt.model); got != tt.want {
			t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestVertexProvider_Models(t *testing.T) {
	p := &VertexProvider{Base: Base{name: "vertex"}}
	models := p.Models()
	if len(models) == 0 {
		t.Fatal("Models() returned empty list")
	}
	for _, m := range models {
		if m.OwnedBy != "vertex" {
			t.Errorf("ModelInfo.OwnedBy = %q, want vertex", m.OwnedBy)
		}
	}
}

func TestBuildVertexContents_SplitsSystemMessage(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be concise"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	contents, sys := buildVertexContents(msgs)
	if sys == nil || len(sys.Parts) != 1 || sys.Parts[0].Text != "be concise" {
		t.Fatalf("expected system instruction to be extracted, got %+v", sys)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 non-system contents, got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("contents[0].Role = %q, want user", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("contents[1].Role = %q, want model (assistant mapped to model)", contents[1].Role)
	}
}

func TestBuildVertexConfig_AppliesOptionalFields(t *testing.T) {
	temp := 0.5
	maxTokens := 256
	req := Request{Temperature: &temp, MaxTokens: &maxTokens, Stop: []string{"END"}}
	cfg := buildVertexConfig(req, nil)
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.5) {
		t.Errorf("cfg.Temperature = %v, want 0.5", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 256 {
		t.Errorf("cfg.MaxOutputTokens = %d, want 256", cfg.MaxOutputTokens)
	}
	if len(cfg.StopSequences) != 1 || cfg.StopSequences[0] != "END" {
		t.Errorf("cfg.StopSequences = %v, want [END]", cfg.StopSequences)
	}
}
