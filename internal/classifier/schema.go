package classifier

import (
	"fmt"

	"github.com/dativo-io/piiguard/internal/schema"
)

// recognizerSchema is the JSON Schema for recognizer YAML files.
const recognizerSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "piiguard recognizers",
  "type": "object",
  "required": ["recognizers"],
  "properties": {
    "recognizers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "supported_entity"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "supported_entity": {"type": "string", "pattern": "^[A-Z][A-Z0-9_]*$"},
          "enabled": {"type": "boolean"},
          "supported_language": {"type": "string", "minLength": 2},
          "context": {"type": "array", "items": {"type": "string"}},
          "supported_languages": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["language"],
              "properties": {
                "language": {"type": "string", "minLength": 2},
                "context": {"type": "array", "items": {"type": "string"}}
              }
            }
          },
          "patterns": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "regex", "score"],
              "properties": {
                "name": {"type": "string"},
                "regex": {"type": "string", "minLength": 1},
                "score": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "deny_list": {"type": "array", "items": {"type": "string"}},
          "deny_list_score": {"type": "number", "minimum": 0, "maximum": 1},
          "validate": {"type": "string", "enum": ["luhn", "iban", "verhoeff", "in_pan", "us_ssn"]}
        },
        "anyOf": [
          {"required": ["patterns"]},
          {"required": ["deny_list"]}
        ]
      }
    }
  }
}`

// ValidateRecognizerSchema checks a recognizer YAML document against the
// recognizer schema.
func ValidateRecognizerSchema(data []byte) error {
	if err := schema.ValidateYAML(data, recognizerSchema); err != nil {
		return fmt.Errorf("%w: recognizer file: %v", ErrConfiguration, err)
	}
	return nil
}
