package classifier

import (
	"fmt"

	"github.com/dativo-io/piiguard/patterns"
)

// DefaultRecognizers returns the built-in recognizer definitions parsed from
// the embedded recognizers_default.yaml. This is the first layer in the
// merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.DefaultRecognizersYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}
	return rf.Recognizers, nil
}
