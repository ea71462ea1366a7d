package classifier

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used for recognizers that do not declare a language.
const DefaultLanguage = "en"

// DefaultDenyListScore is the score of a deny-list match (Presidio default).
const DefaultDenyListScore = 1.0

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with the
// `validate` extension for hard validation gates.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguage  string            `yaml:"supported_language,omitempty" json:"supported_language,omitempty"`
	Context            []string          `yaml:"context,omitempty" json:"context,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      *float64          `yaml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
	Validate           string            `yaml:"validate,omitempty" json:"validate,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// languages returns the language/context pairs the recognizer is built for.
// supported_languages wins over the single supported_language + context form.
func (r *RecognizerConfig) languages() []LanguageContext {
	if len(r.SupportedLanguages) > 0 {
		return r.SupportedLanguages
	}
	lang := r.SupportedLanguage
	if lang == "" {
		lang = DefaultLanguage
	}
	return []LanguageContext{{Language: lang, Context: r.Context}}
}

// ParseRecognizerFile validates recognizer YAML against the embedded schema
// and parses it into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	if err := ValidateRecognizerSchema(data); err != nil {
		return nil, err
	}
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: parsing recognizer YAML: %v", ErrConfiguration, err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing global config as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading recognizer file %s: %v", ErrConfiguration, path, err)
	}
	rf, err := ParseRecognizerFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, nil
}

// MergeRecognizers performs a layered merge: embedded defaults, then the
// operator's recognizer file, then programmatic additions. Later layers
// override earlier ones by matching on the recognizer Name field. New
// recognizers are appended.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

// toPtrSlice converts []RecognizerConfig to []*RecognizerConfig for MergeRecognizers.
func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// FilterByEntities applies enabled/disabled entity filters to a recognizer list.
// If enabledEntities is non-empty, only recognizers with matching supported_entity
// are kept (whitelist). Then any recognizer in disabledEntities is removed (blacklist).
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := toSet(enabledEntities)
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := toSet(disabledEntities)
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// BuildRecognizers compiles recognizer configs into PatternRecognizers, one
// per declared language. Disabled recognizers are skipped. Any invalid
// regex, score or validator name fails the whole build.
func BuildRecognizers(configs []RecognizerConfig) ([]*PatternRecognizer, error) {
	var out []*PatternRecognizer
	for _, rc := range configs {
		if !rc.isEnabled() {
			continue
		}
		patterns := make([]Pattern, 0, len(rc.Patterns)+1)
		for _, pc := range rc.Patterns {
			p, err := NewPattern(pc.Name, pc.Regex, pc.Score)
			if err != nil {
				return nil, fmt.Errorf("recognizer %q: %w", rc.Name, err)
			}
			patterns = append(patterns, p)
		}
		if len(rc.DenyList) > 0 {
			score := DefaultDenyListScore
			if rc.DenyListScore != nil {
				score = *rc.DenyListScore
			}
			p, err := NewPattern(rc.Name+" deny list", denyListRegex(rc.DenyList), score)
			if err != nil {
				return nil, fmt.Errorf("recognizer %q: %w", rc.Name, err)
			}
			patterns = append(patterns, p)
		}
		validator, err := lookupValidator(rc.Validate)
		if err != nil {
			return nil, fmt.Errorf("recognizer %q: %w", rc.Name, err)
		}
		for _, lc := range rc.languages() {
			opts := []PatternRecognizerOption{WithContext(lc.Context...)}
			if validator != nil {
				opts = append(opts, WithValidator(validator))
			}
			r, err := NewPatternRecognizer(rc.Name, rc.SupportedEntity, lc.Language, patterns, opts...)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// denyListRegex builds a case-insensitive alternation of literal words.
// RE2's \b is ASCII-only, so boundaries are only added next to ASCII word
// characters; entries like "c/o" or "Zoë" still match.
func denyListRegex(words []string) string {
	alts := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		alt := regexp.QuoteMeta(w)
		if first, _ := utf8.DecodeRuneInString(w); isASCIIWordRune(first) {
			alt = `\b` + alt
		}
		if last, _ := utf8.DecodeLastRuneInString(w); isASCIIWordRune(last) {
			alt += `\b`
		}
		alts = append(alts, alt)
	}
	return `(?i)(?:` + strings.Join(alts, "|") + `)`
}

func isASCIIWordRune(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

