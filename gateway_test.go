package aigateway

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ferro-labs/llm-gateway/internal/selector"
	"github.com/ferro-labs/llm-gateway/plugin"
	"github.com/ferro-labs/llm-gateway/providers"
)

// mockProvider is a test double for providers.Provider.
type mockProvider struct {
	name   string
	models []string
	resp   *providers.Response
	err    error
	stream chan providers.StreamChunk
}

func (m *mockProvider) Name() string                  { return m.name }
func (m *mockProvider) SupportedModels() []string     { return m.models }
func (m *mockProvider) Models() []providers.ModelInfo { return nil }
func (m *mockProvider) SupportsModel(model string) bool {
	for _, mm := range m.models {
		if mm == model {
			return true
		}
	}
	return false
}
func (m *mockProvider) Complete(_ context.Context, _ providers.Request) (*providers.Response, error) {
	return m.resp, m.err
}
func (m *mockProvider) CompleteStream(_ context.Context, _ providers.Request) (<-chan providers.StreamChunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

func oneBindingConfig(canonicalID, provider, nativeID string) Config {
	return Config{
		CuratedModels: []CuratedModel{
			{
				ID: canonicalID,
				Bindings: []CuratedBinding{
					{Provider: provider, NativeID: nativeID, Priority: 1},
				},
			},
		},
		ManualPricing: map[string]ManualPrice{
			canonicalID: {InputPerToken: 1e-6, OutputPerToken: 2e-6},
		},
	}
}

func twoBindingConfig(canonicalID, firstProvider, firstNative, secondProvider, secondNative string) Config {
	return Config{
		CuratedModels: []CuratedModel{
			{
				ID: canonicalID,
				Bindings: []CuratedBinding{
					{Provider: firstProvider, NativeID: firstNative, Priority: 1},
					{Provider: secondProvider, NativeID: secondNative, Priority: 2},
				},
			},
		},
	}
}

func TestGateway_Execute_HappyPath(t *testing.T) {
	gw, err := New(oneBindingConfig("gpt-4o", "mock", "gpt-4o-2024"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "mock",
		models: []string{"gpt-4o-2024"},
		resp: &providers.Response{
			ID:      "r1",
			Choices: []providers.Choice{{Message: providers.Message{Content: "hi there"}}},
			Usage:   providers.Usage{PromptTokens: 10, CompletionTokens: 5},
		},
	})

	resp, out, err := gw.Execute(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "r1" {
		t.Errorf("got ID %q, want r1", resp.ID)
	}
	if out.Status != "success" {
		t.Errorf("got status %q, want success", out.Status)
	}
	if out.Provider != "mock" || out.NativeID != "gpt-4o-2024" {
		t.Errorf("got provider=%q native=%q, want mock/gpt-4o-2024", out.Provider, out.NativeID)
	}
	wantCost := 10*1e-6 + 5*2e-6
	if math.Abs(out.Cost.Total-wantCost) > 1e-15 {
		t.Errorf("got cost %v, want %v", out.Cost.Total, wantCost)
	}
}

func TestGateway_Execute_Failover(t *testing.T) {
	gw, err := New(twoBindingConfig("gpt-4o", "bad", "bad-native", "good", "good-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "bad",
		models: []string{"bad-native"},
		err:    fmt.Errorf("bad API error (503): overloaded"),
	})
	gw.RegisterProvider(&mockProvider{
		name:   "good",
		models: []string{"good-native"},
		resp:   &providers.Response{ID: "fallback-ok", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})

	resp, out, err := gw.Execute(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "fallback-ok" {
		t.Errorf("got ID %q, want fallback-ok", resp.ID)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(out.Attempts))
	}
	if out.Attempts[0].Success {
		t.Error("first attempt should have failed")
	}
	if !out.Attempts[1].Success {
		t.Error("second attempt should have succeeded")
	}
}

func TestGateway_Execute_PreferredProviderHint(t *testing.T) {
	gw, err := New(twoBindingConfig("gpt-4o", "primary", "primary-native", "secondary", "secondary-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "primary",
		models: []string{"primary-native"},
		resp:   &providers.Response{ID: "from-primary", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})
	gw.RegisterProvider(&mockProvider{
		name:   "secondary",
		models: []string{"secondary-native"},
		resp:   &providers.Response{ID: "from-secondary", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})

	// "secondary" has lower priority than "primary" but is named as the
	// preferred-provider hint, so it should be tried first.
	resp, out, err := gw.Execute(context.Background(), providers.Request{
		Model:             "gpt-4o",
		Messages:          []providers.Message{{Role: "user", Content: "hi"}},
		PreferredProvider: "secondary",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "from-secondary" {
		t.Errorf("got ID %q, want from-secondary", resp.ID)
	}
	if out.Provider != "secondary" {
		t.Errorf("got provider %q, want secondary", out.Provider)
	}
	if len(out.Attempts) != 1 {
		t.Errorf("got %d attempts, want 1 (preferred provider should be tried first)", len(out.Attempts))
	}
}

func TestGateway_Execute_RequiredFeaturesHint(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{
				ID: "gpt-4o",
				Bindings: []CuratedBinding{
					{Provider: "basic", NativeID: "basic-native", Priority: 1},
					{Provider: "vision", NativeID: "vision-native", Priority: 2, Features: []string{"vision"}},
				},
			},
		},
	}
	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "basic",
		models: []string{"basic-native"},
		resp:   &providers.Response{ID: "from-basic", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})
	gw.RegisterProvider(&mockProvider{
		name:   "vision",
		models: []string{"vision-native"},
		resp:   &providers.Response{ID: "from-vision", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})

	resp, out, err := gw.Execute(context.Background(), providers.Request{
		Model:            "gpt-4o",
		Messages:         []providers.Message{{Role: "user", Content: "describe this image"}},
		RequiredFeatures: []string{"vision"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "from-vision" {
		t.Errorf("got ID %q, want from-vision (only binding with the required feature)", resp.ID)
	}
	if out.Provider != "vision" {
		t.Errorf("got provider %q, want vision", out.Provider)
	}
}

func TestGateway_Execute_UnknownModel(t *testing.T) {
	gw, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, out, err := gw.Execute(context.Background(), providers.Request{
		Model:    "does-not-exist",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if out.ErrorKind != selector.KindUnknownModel {
		t.Errorf("got error kind %q, want %q", out.ErrorKind, selector.KindUnknownModel)
	}
}

func TestGateway_Execute_FallbackMappingOnNoAvailableProvider(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{
				ID: "primary",
				Bindings: []CuratedBinding{
					{Provider: "gone", NativeID: "gone-native", Priority: 1, Enabled: boolPtr(false)},
				},
			},
			{
				ID: "backup",
				Bindings: []CuratedBinding{
					{Provider: "mock", NativeID: "backup-native", Priority: 1},
				},
			},
		},
		FallbackMappings: map[string]string{"primary": "backup"},
	}

	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "mock",
		models: []string{"backup-native"},
		resp:   &providers.Response{ID: "via-fallback-mapping", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})

	resp, out, err := gw.Execute(context.Background(), providers.Request{
		Model:    "primary",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "via-fallback-mapping" {
		t.Errorf("got ID %q, want via-fallback-mapping", resp.ID)
	}
	if out.CanonicalID != "backup" {
		t.Errorf("got canonical id %q, want backup", out.CanonicalID)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestGateway_Execute_ClientErrorNotRetried(t *testing.T) {
	gw, err := New(twoBindingConfig("gpt-4o", "first", "first-native", "second", "second-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "first",
		models: []string{"first-native"},
		err:    fmt.Errorf("first API error (400): bad request"),
	})
	gw.RegisterProvider(&mockProvider{
		name:   "second",
		models: []string{"second-native"},
		resp:   &providers.Response{ID: "should-not-be-reached"},
	})

	_, out, err := gw.Execute(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(out.Attempts) != 1 {
		t.Fatalf("got %d attempts, want 1 (client error should not retry)", len(out.Attempts))
	}
	if out.ErrorKind != selector.KindProviderClient {
		t.Errorf("got error kind %q, want %q", out.ErrorKind, selector.KindProviderClient)
	}
}

// testPlugin is a mock plugin for gateway tests.
type testPlugin struct {
	name   string
	typ    plugin.PluginType
	execFn func(ctx context.Context, pctx *plugin.Context) error
}

func (p *testPlugin) Name() string                      { return p.name }
func (p *testPlugin) Type() plugin.PluginType            { return p.typ }
func (p *testPlugin) Init(map[string]interface{}) error { return nil }
func (p *testPlugin) Execute(ctx context.Context, pctx *plugin.Context) error {
	if p.execFn != nil {
		return p.execFn(ctx, pctx)
	}
	return nil
}

func TestGateway_Execute_WithBeforePlugin(t *testing.T) {
	gw, err := New(oneBindingConfig("gpt-4o", "mock", "gpt-4o-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "mock",
		models: []string{"gpt-4o-native"},
		resp:   &providers.Response{ID: "ok", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})

	called := false
	_ = gw.RegisterPlugin(plugin.StageBeforeRequest, &testPlugin{
		name: "tracker",
		typ:  plugin.TypeGuardrail,
		execFn: func(_ context.Context, _ *plugin.Context) error {
			called = true
			return nil
		},
	})

	_, _, err = gw.Execute(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("before-request plugin was not called")
	}
}

func TestGateway_Execute_PluginRejectsRequest(t *testing.T) {
	gw, err := New(oneBindingConfig("gpt-4o", "mock", "gpt-4o-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "mock",
		models: []string{"gpt-4o-native"},
		resp:   &providers.Response{ID: "should-not-reach"},
	})

	_ = gw.RegisterPlugin(plugin.StageBeforeRequest, &testPlugin{
		name: "blocker",
		typ:  plugin.TypeGuardrail,
		execFn: func(_ context.Context, pctx *plugin.Context) error {
			pctx.Reject = true
			pctx.Reason = "PII detected"
			return nil
		},
	})

	_, _, err = gw.Execute(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestGateway_ExecuteStream_ForwardsChunks(t *testing.T) {
	gw, err := New(oneBindingConfig("gpt-4o", "mock", "gpt-4o-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	upstream := make(chan providers.StreamChunk, 2)
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{Content: "hel"}}}}
	upstream <- providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{Content: "lo"}}}}
	close(upstream)
	gw.RegisterProvider(&mockProvider{
		name:   "mock",
		models: []string{"gpt-4o-native"},
		stream: upstream,
	})

	ch, err := gw.ExecuteStream(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}

	var got string
	for chunk := range ch {
		for _, c := range chunk.Choices {
			got += c.Delta.Content
		}
	}
	if got != "hello" {
		t.Errorf("got forwarded content %q, want hello", got)
	}
}

func TestGateway_AddHook_FiresOnSuccess(t *testing.T) {
	gw, err := New(oneBindingConfig("gpt-4o", "mock", "gpt-4o-native"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.RegisterProvider(&mockProvider{
		name:   "mock",
		models: []string{"gpt-4o-native"},
		resp:   &providers.Response{ID: "ok", Choices: []providers.Choice{{Message: providers.Message{Content: "ok"}}}},
	})

	done := make(chan string, 1)
	gw.AddHook(func(_ context.Context, subject string, _ map[string]interface{}) {
		done <- subject
	})

	_, _, err = gw.Execute(context.Background(), providers.Request{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case subject := <-done:
		if subject != SubjectRequestCompleted {
			t.Errorf("got subject %q, want %q", subject, SubjectRequestCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("hook did not fire")
	}
}
