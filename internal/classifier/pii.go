package classifier

import (
	"fmt"
)

// LoadOption configures LoadRegistry via the functional options pattern.
type LoadOption func(*loadConfig)

type loadConfig struct {
	recognizerFile    string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	ner               []*NERRecognizer
	registryOpts      []RegistryOption
	noDefaults        bool
}

// WithRecognizerFile loads additional recognizers from a YAML file.
// If the file does not exist, it is silently skipped.
func WithRecognizerFile(path string) LoadOption {
	return func(c *loadConfig) { c.recognizerFile = path }
}

// WithEnabledEntities sets a whitelist of entity types. When non-empty, only
// recognizers emitting a listed entity are registered.
func WithEnabledEntities(entities []string) LoadOption {
	return func(c *loadConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types to exclude.
func WithDisabledEntities(entities []string) LoadOption {
	return func(c *loadConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds programmatic recognizer definitions on top of
// the defaults and the recognizer file.
func WithCustomRecognizers(recognizers []RecognizerConfig) LoadOption {
	return func(c *loadConfig) { c.customRecognizers = recognizers }
}

// WithNER registers a NER recognizer alongside the pattern recognizers.
func WithNER(rec *NERRecognizer) LoadOption {
	return func(c *loadConfig) {
		if rec != nil {
			c.ner = append(c.ner, rec)
		}
	}
}

// WithRegistryOptions passes options through to NewRegistry.
func WithRegistryOptions(opts ...RegistryOption) LoadOption {
	return func(c *loadConfig) { c.registryOpts = append(c.registryOpts, opts...) }
}

// WithoutDefaults skips the embedded default recognizers.
func WithoutDefaults() LoadOption {
	return func(c *loadConfig) { c.noDefaults = true }
}

// LoadRegistry builds a sealed Registry. Without options it holds the
// embedded default recognizers. Options layer a recognizer file and
// programmatic recognizers on top, filter by entity type and add NER.
func LoadRegistry(opts ...LoadOption) (*Registry, error) {
	var cfg loadConfig
	for _, o := range opts {
		o(&cfg)
	}

	// Layer 1: embedded defaults
	var defaultRecs []*RecognizerConfig
	if !cfg.noDefaults {
		defaults, err := DefaultRecognizers()
		if err != nil {
			return nil, fmt.Errorf("loading default recognizers: %w", err)
		}
		defaultRecs = toPtrSlice(defaults)
	}

	// Layer 2: recognizer file (optional)
	var fileRecs []*RecognizerConfig
	if cfg.recognizerFile != "" {
		rf, err := LoadRecognizerFile(cfg.recognizerFile)
		if err != nil {
			return nil, fmt.Errorf("loading recognizer file: %w", err)
		}
		if rf != nil {
			fileRecs = toPtrSlice(rf.Recognizers)
		}
	}

	// Layer 3: programmatic recognizers
	var customRecs []*RecognizerConfig
	if len(cfg.customRecognizers) > 0 {
		customRecs = toPtrSlice(cfg.customRecognizers)
	}

	merged := MergeRecognizers(defaultRecs, fileRecs, customRecs)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := BuildRecognizers(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}

	reg := NewRegistry(cfg.registryOpts...)
	for _, rec := range compiled {
		if err := reg.Add(rec); err != nil {
			return nil, err
		}
	}
	for _, rec := range cfg.ner {
		rec = rec.restrict(cfg.enabledEntities, cfg.disabledEntities)
		if len(rec.SupportedEntities()) == 0 {
			continue
		}
		if err := reg.Add(rec); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return reg, nil
}

// MustLoadRegistry is like LoadRegistry but panics on error. Useful for
// zero-config startup where the embedded defaults are expected to compile.
func MustLoadRegistry(opts ...LoadOption) *Registry {
	r, err := LoadRegistry(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.LoadRegistry: %v", err))
	}
	return r
}
