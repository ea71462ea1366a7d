// Package patterns provides embedded default recognizer definitions.
// YAML files in this directory use the Presidio-compatible recognizer format
// with the piiguard `validate` extension.
package patterns

import _ "embed"

//go:embed recognizers_default.yaml
var defaultRecognizersYAML []byte

//go:embed operators_default.yaml
var defaultOperatorsYAML []byte

// DefaultRecognizersYAML returns the embedded default recognizer definitions.
func DefaultRecognizersYAML() []byte { return defaultRecognizersYAML }

// DefaultOperatorsYAML returns the embedded default operator definitions.
func DefaultOperatorsYAML() []byte { return defaultOperatorsYAML }
