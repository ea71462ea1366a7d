package anonymizer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/schema"
	"github.com/dativo-io/piiguard/patterns"
)

// operatorSchema is the JSON Schema for operator YAML files.
const operatorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "piiguard operators",
  "type": "object",
  "required": ["operators"],
  "properties": {
    "operators": {
      "type": "object",
      "propertyNames": {"pattern": "^[A-Z][A-Z0-9_]*$"},
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "type": {"type": "string", "enum": ["replace", "redact", "mask", "hash", "encrypt", "keep"]},
          "new_value": {"type": "string"},
          "masking_char": {"type": "string", "minLength": 1},
          "chars_to_mask": {"type": "integer", "minimum": 0},
          "from_end": {"type": "boolean"},
          "hash_type": {"type": "string", "enum": ["sha256", "sha512", "blake2b"]},
          "key": {"type": "string"}
        }
      }
    }
  }
}`

// OperatorFile is the top-level YAML structure of an operator file.
type OperatorFile struct {
	Operators map[string]OperatorConfig `yaml:"operators"`
}

// ParseOperatorFile validates operator YAML against the embedded schema
// and decodes it.
func ParseOperatorFile(data []byte) (*OperatorFile, error) {
	if err := schema.ValidateYAML(data, operatorSchema); err != nil {
		return nil, fmt.Errorf("%w: operator file: %v", classifier.ErrConfiguration, err)
	}
	var f OperatorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing operator YAML: %v", classifier.ErrConfiguration, err)
	}
	return &f, nil
}

// LoadOperatorFile reads an operator file from disk. A missing file yields
// nil, nil.
func LoadOperatorFile(path string) (*OperatorFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading operator file %s: %v", classifier.ErrConfiguration, path, err)
	}
	f, err := ParseOperatorFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// DefaultOperatorConfigs returns the embedded operator defaults.
func DefaultOperatorConfigs() (map[string]OperatorConfig, error) {
	f, err := ParseOperatorFile(patterns.DefaultOperatorsYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded operators: %w", err)
	}
	return f.Operators, nil
}

// MergeOperatorConfigs layers operator maps; later layers win per entity.
func MergeOperatorConfigs(layers ...map[string]OperatorConfig) map[string]OperatorConfig {
	out := make(map[string]OperatorConfig)
	for _, layer := range layers {
		for e, cfg := range layer {
			out[e] = cfg
		}
	}
	return out
}

// LoadOperators builds Operators for entities from the embedded defaults
// overlaid with the operator file at path, if any.
func LoadOperators(entities []string, path string, opts ...Option) (*Operators, error) {
	defaults, err := DefaultOperatorConfigs()
	if err != nil {
		return nil, err
	}
	var fromFile map[string]OperatorConfig
	if path != "" {
		f, err := LoadOperatorFile(path)
		if err != nil {
			return nil, err
		}
		if f != nil {
			fromFile = f.Operators
		}
	}
	return NewOperators(entities, MergeOperatorConfigs(defaults, fromFile), opts...)
}
