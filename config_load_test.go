package aigateway

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Valid(t *testing.T) {
	data := `{
		"curated_models": [
			{
				"id": "gpt-4o",
				"bindings": [
					{"provider": "openai", "native_id": "gpt-4o-2024-08-06", "priority": 1}
				]
			}
		],
		"manual_pricing": {
			"gpt-4o": {"input_per_token": 0.000005, "output_per_token": 0.000015}
		}
	}`
	path := writeTempFile(t, "config.json", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CuratedModels) != 1 {
		t.Fatalf("expected 1 curated model, got %d", len(cfg.CuratedModels))
	}
	if cfg.CuratedModels[0].Bindings[0].Provider != "openai" {
		t.Errorf("got provider %q, want openai", cfg.CuratedModels[0].Bindings[0].Provider)
	}
	if _, ok := cfg.ManualPricing["gpt-4o"]; !ok {
		t.Error("expected manual pricing entry for gpt-4o")
	}
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/tmp/does-not-exist-config-12345.json")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, "bad.json", `{invalid`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadConfig_SchemaRejectsBindingMissingNativeID(t *testing.T) {
	data := `{
		"curated_models": [
			{"id": "gpt-4o", "bindings": [{"provider": "openai"}]}
		]
	}`
	path := writeTempFile(t, "config.json", data)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected schema validation error for binding missing native_id")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	data := `
curated_models:
  - id: gpt-4o
    bindings:
      - provider: openai
        native_id: gpt-4o-2024-08-06
        priority: 1
  - id: llama-70b
    bindings:
      - provider: fireworks
        native_id: accounts/fireworks/models/llama-v3-70b
`
	path := writeTempFile(t, "config.yaml", data)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CuratedModels) != 2 {
		t.Errorf("expected 2 curated models, got %d", len(cfg.CuratedModels))
	}
}

func TestLoadConfig_YML(t *testing.T) {
	data := `
curated_models:
  - id: gpt-4o
    bindings:
      - provider: openai
        native_id: gpt-4o-2024-08-06
`
	path := writeTempFile(t, "config.yml", data)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CuratedModels) != 1 {
		t.Errorf("expected 1 curated model, got %d", len(cfg.CuratedModels))
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.toml", "key = value")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidateConfig_Valid(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{ID: "gpt-4o", Bindings: []CuratedBinding{{Provider: "openai", NativeID: "gpt-4o-2024"}}},
		},
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateConfig_MissingID(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{Bindings: []CuratedBinding{{Provider: "openai", NativeID: "gpt-4o-2024"}}},
		},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for curated model with no id")
	}
}

func TestValidateConfig_DuplicateID(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{ID: "gpt-4o", Bindings: []CuratedBinding{{Provider: "openai", NativeID: "a"}}},
			{ID: "gpt-4o", Bindings: []CuratedBinding{{Provider: "openai", NativeID: "b"}}},
		},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for duplicate curated model id")
	}
}

func TestValidateConfig_NoBindings(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{{ID: "gpt-4o"}},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for curated model with no bindings")
	}
}

func TestValidateConfig_BindingMissingProvider(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{ID: "gpt-4o", Bindings: []CuratedBinding{{NativeID: "gpt-4o-2024"}}},
		},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for binding missing provider")
	}
}

func TestValidateConfig_SelfMappingFallback(t *testing.T) {
	cfg := Config{
		CuratedModels: []CuratedModel{
			{ID: "gpt-4o", Bindings: []CuratedBinding{{Provider: "openai", NativeID: "gpt-4o-2024"}}},
		},
		FallbackMappings: map[string]string{"gpt-4o": "gpt-4o"},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for self-mapping fallback")
	}
}

func TestValidateConfig_UnknownDatabaseDriver(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: "oracle", DSN: "x"}}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for unknown database driver")
	}
}

func TestValidateConfig_DatabaseDriverWithoutDSN(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: "sqlite"}}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for database driver configured without dsn")
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
