package aigateway

// configSchemaJSON is the JSON Schema curated-model and manual-pricing
// config documents are validated against before the gateway loads them,
// surfacing malformed config at startup rather than at first request.
const configSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "curated_models": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "bindings"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "display_name": {"type": "string"},
          "description": {"type": "string"},
          "context_length": {"type": "integer", "minimum": 0},
          "modalities": {"type": "array", "items": {"type": "string"}},
          "features": {"type": "array", "items": {"type": "string"}},
          "aliases": {"type": "array", "items": {"type": "string"}},
          "bindings": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["provider", "native_id"],
              "properties": {
                "provider": {"type": "string", "minLength": 1},
                "native_id": {"type": "string", "minLength": 1},
                "priority": {"type": "integer"},
                "enabled": {"type": "boolean"},
                "input_per_token": {"type": "number", "minimum": 0},
                "output_per_token": {"type": "number", "minimum": 0},
                "max_output_tokens": {"type": "integer", "minimum": 0},
                "context_length": {"type": "integer", "minimum": 0},
                "features": {"type": "array", "items": {"type": "string"}}
              }
            }
          }
        }
      }
    },
    "manual_pricing": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["input_per_token", "output_per_token"],
        "properties": {
          "input_per_token": {"type": "number", "minimum": 0},
          "output_per_token": {"type": "number", "minimum": 0}
        }
      }
    },
    "ingest_schedule": {"type": "string"},
    "ingest_providers": {"type": "array", "items": {"type": "string"}},
    "database": {
      "type": "object",
      "properties": {
        "driver": {"type": "string", "enum": ["", "sqlite", "postgres"]},
        "dsn": {"type": "string"}
      }
    },
    "log_level": {"type": "string", "enum": ["", "debug", "info", "warn", "error"]},
    "log_format": {"type": "string", "enum": ["", "json", "text"]}
  }
}`
