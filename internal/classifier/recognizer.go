package classifier

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Recognizer produces candidate detections for a single language.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	// Name identifies the recognizer; unique per language in a Registry.
	Name() string
	// Language is the language code the recognizer is registered for.
	Language() string
	// SupportedEntities lists the entity types the recognizer can emit.
	SupportedEntities() []string
	// Recognize returns candidate detections for text.
	Recognize(ctx context.Context, text *Text) ([]Detection, error)
}

// Pattern is a named, compiled regular expression with a base score.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Score float64
}

// NewPattern compiles expr into a Pattern. Invalid expressions and scores
// outside [0,1] are configuration errors.
func NewPattern(name, expr string, score float64) (Pattern, error) {
	if !ValidScore(score) {
		return Pattern{}, fmt.Errorf("%w: pattern %q score %.2f outside [0,1]", ErrConfiguration, name, score)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: compiling pattern %q: %v", ErrConfiguration, name, err)
	}
	return Pattern{Name: name, Regex: re, Score: score}, nil
}

// PatternRecognizer detects one entity type with an ordered list of regex
// patterns, an optional validation gate and a set of context keywords.
type PatternRecognizer struct {
	name      string
	entity    string
	language  string
	patterns  []Pattern
	context   []string
	validator Validator
}

// PatternRecognizerOption configures optional PatternRecognizer fields.
type PatternRecognizerOption func(*PatternRecognizer)

// WithContext sets the context keywords used by the ContextEnhancer.
func WithContext(words ...string) PatternRecognizerOption {
	return func(r *PatternRecognizer) { r.context = append(r.context, normalizeWords(words)...) }
}

// WithValidator sets a hard validation gate applied to every match.
func WithValidator(v Validator) PatternRecognizerOption {
	return func(r *PatternRecognizer) { r.validator = v }
}

// NewPatternRecognizer builds a recognizer for entity in language.
func NewPatternRecognizer(name, entity, language string, patterns []Pattern, opts ...PatternRecognizerOption) (*PatternRecognizer, error) {
	if name == "" || entity == "" || language == "" {
		return nil, fmt.Errorf("%w: recognizer needs name, entity and language (got %q, %q, %q)", ErrConfiguration, name, entity, language)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: recognizer %q has no patterns", ErrConfiguration, name)
	}
	r := &PatternRecognizer{
		name:     name,
		entity:   entity,
		language: language,
		patterns: append([]Pattern(nil), patterns...),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Name returns the recognizer name.
func (r *PatternRecognizer) Name() string { return r.name }

// Language returns the language the recognizer serves.
func (r *PatternRecognizer) Language() string { return r.language }

// SupportedEntities returns the single entity type of the recognizer.
func (r *PatternRecognizer) SupportedEntities() []string { return []string{r.entity} }

// ContextWords returns the configured context keywords.
func (r *PatternRecognizer) ContextWords() []string { return r.context }

// Recognize runs every pattern and resolves overlaps between them, keeping
// the best match of each overlapping group. Scores are the patterns' base
// scores; context enhancement happens later in the Registry.
func (r *PatternRecognizer) Recognize(_ context.Context, text *Text) ([]Detection, error) {
	return r.Analyze(text), nil
}

// Analyze is the context-free form of Recognize.
func (r *PatternRecognizer) Analyze(text *Text) []Detection {
	s := text.String()
	var out []Detection
	for _, p := range r.patterns {
		for _, m := range p.Regex.FindAllStringIndex(s, -1) {
			if m[0] == m[1] {
				continue
			}
			if r.validator != nil && !r.validator(s[m[0]:m[1]]) {
				continue
			}
			out = append(out, Detection{
				EntityType: r.entity,
				Start:      text.RuneOffset(m[0]),
				End:        text.RuneOffset(m[1]),
				Score:      p.Score,
				Recognizer: r.name,
				Source:     SourcePattern,
			})
		}
	}
	if len(r.patterns) > 1 {
		out = Resolve(out)
	}
	return out
}

// NERModel is the capability boundary to a statistical named-entity
// recognizer. Adapters return detections with code point offsets and
// Source set to SourceNER; an unreachable backend must return an error
// wrapping ErrModelUnavailable or ErrModelTimeout, never an empty result.
type NERModel interface {
	Detect(ctx context.Context, text, language string) ([]Detection, error)
}

// NERRecognizer adapts a NERModel into a Recognizer for one language and a
// fixed set of entity types. Labels outside the set are dropped.
type NERRecognizer struct {
	name     string
	language string
	model    NERModel
	entities map[string]bool
}

// NewNERRecognizer wraps model for language, emitting only entities.
func NewNERRecognizer(name, language string, model NERModel, entities []string) (*NERRecognizer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: ner recognizer %q has no model", ErrConfiguration, name)
	}
	if name == "" || language == "" || len(entities) == 0 {
		return nil, fmt.Errorf("%w: ner recognizer needs name, language and entities", ErrConfiguration)
	}
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		set[e] = true
	}
	return &NERRecognizer{name: name, language: language, model: model, entities: set}, nil
}

// Name returns the recognizer name.
func (r *NERRecognizer) Name() string { return r.name }

// Language returns the language the recognizer serves.
func (r *NERRecognizer) Language() string { return r.language }

// SupportedEntities returns the emitted entity types, sorted.
func (r *NERRecognizer) SupportedEntities() []string {
	out := make([]string, 0, len(r.entities))
	for e := range r.entities {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// restrict returns a copy limited by the enabled/disabled entity filters.
func (r *NERRecognizer) restrict(enabled, disabled []string) *NERRecognizer {
	if len(enabled) == 0 && len(disabled) == 0 {
		return r
	}
	allowed, blocked := toSet(enabled), toSet(disabled)
	set := make(map[string]bool, len(r.entities))
	for e := range r.entities {
		if len(enabled) > 0 && !allowed[e] {
			continue
		}
		if blocked[e] {
			continue
		}
		set[e] = true
	}
	return &NERRecognizer{name: r.name, language: r.language, model: r.model, entities: set}
}

// Recognize calls the model and validates its output. A malformed span is
// treated as a backend failure so that a broken model never yields a
// silently truncated result.
func (r *NERRecognizer) Recognize(ctx context.Context, text *Text) ([]Detection, error) {
	raw, err := r.model.Detect(ctx, text.String(), r.language)
	if err != nil {
		return nil, err
	}
	out := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if !r.entities[d.EntityType] {
			continue
		}
		if err := d.validate(text.Len()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, r.name, err)
		}
		d.Recognizer = r.name
		d.Source = SourceNER
		out = append(out, d)
	}
	return out, nil
}

// normalizeWords trims context keywords and drops empty ones.
func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}
