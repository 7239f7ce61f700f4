package aigateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). The document is
// validated against the curated-model/manual-pricing schema before being
// returned, so malformed config is caught before the gateway starts
// serving rather than on first use.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	if err := validateSchema(cfg); err != nil {
		return nil, fmt.Errorf("config schema validation: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// validateSchema re-marshals cfg to JSON and validates it against
// configSchemaJSON, catching shape errors (missing required fields, wrong
// types) independent of what LoadConfig's own semantic checks cover.
func validateSchema(cfg Config) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", bytes.NewReader([]byte(configSchemaJSON))); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("re-marshaling config for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding config for validation: %w", err)
	}
	return schema.Validate(doc)
}

// ValidateConfig validates semantic constraints on top of the schema: every
// curated model must have at least one binding (enforced again here since a
// config may be constructed in code, bypassing LoadConfig), every fallback
// mapping must point at a different canonical id than its key, and the
// database driver, if set, must be recognized.
func ValidateConfig(cfg Config) error {
	seen := make(map[string]bool, len(cfg.CuratedModels))
	for _, cm := range cfg.CuratedModels {
		if cm.ID == "" {
			return fmt.Errorf("curated model missing id")
		}
		if seen[cm.ID] {
			return fmt.Errorf("curated model %q declared more than once", cm.ID)
		}
		seen[cm.ID] = true
		if len(cm.Bindings) == 0 {
			return fmt.Errorf("curated model %q has no bindings", cm.ID)
		}
		for _, b := range cm.Bindings {
			if b.Provider == "" || b.NativeID == "" {
				return fmt.Errorf("curated model %q has a binding missing provider or native_id", cm.ID)
			}
		}
	}

	for from, to := range cfg.FallbackMappings {
		if from == to {
			return fmt.Errorf("fallback mapping %q -> %q is a self-mapping", from, to)
		}
	}

	switch cfg.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q: use sqlite or postgres", cfg.Database.Driver)
	}
	if cfg.Database.Driver != "" && cfg.Database.DSN == "" {
		return fmt.Errorf("database driver %q configured without a dsn", cfg.Database.Driver)
	}

	return nil
}
