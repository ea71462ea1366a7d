// Package config holds the deployment configuration of a piiguard process.
//
// Values are resolved by Viper from, in order of precedence, explicit flags,
// PIIGUARD_* environment variables, an optional piiguard.config.yaml file,
// and the defaults registered in init. Recognizer and operator definitions
// live in their own YAML files; this package only records their paths.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the PIIGUARD_ prefix
// (e.g. "ner_url" → PIIGUARD_NER_URL) and to a YAML field in
// piiguard.config.yaml (e.g. ner_url: "...").
const (
	KeyDefaultLanguage     = "default_language"
	KeyScoreThreshold      = "score_threshold"
	KeyRecognizerFile      = "recognizer_file"
	KeyOperatorFile        = "operator_file"
	KeyEnabledEntities     = "enabled_entities"
	KeyDisabledEntities    = "disabled_entities"
	KeyContextBoost        = "context_boost"
	KeyContextWordsBefore  = "context_window_before"
	KeyContextWordsAfter   = "context_window_after"
	KeyNERBackend          = "ner_backend"
	KeyNERURL              = "ner_url"
	KeyNERModel            = "ner_model"
	KeyNERAPIKey           = "ner_api_key"
	KeyNERTimeout          = "ner_timeout"
	KeyNERPolicy           = "ner_policy"
	KeyNERCacheTTL         = "ner_cache_ttl"
	KeyNERByteOffsets      = "ner_byte_offsets"
	KeyEncryptionKey       = "encryption_key"
	KeyCORSOrigins         = "cors_origins"
	KeyMaxTextBytes        = "max_text_bytes"
	KeyListenAddr          = "listen_addr"
	KeyMinScoreWithContext = "context_min_score"
)

// NER backends.
const (
	NERBackendNone    = "none"
	NERBackendSidecar = "sidecar"
	NERBackendLLM     = "llm"
)

// Defaults.
const (
	DefaultScoreThreshold = 0.3
	DefaultListenAddr     = ":8080"
	DefaultNERURL         = "http://localhost:5001"
	DefaultMaxTextBytes   = 1 << 20
	DefaultNERCacheTTL    = 2 * time.Minute
)

// Config holds the resolved configuration for a piiguard process.
type Config struct {
	DefaultLanguage  string
	ScoreThreshold   float64
	RecognizerFile   string // Extra recognizers merged over the embedded defaults
	OperatorFile     string // Per-entity operator overrides
	EnabledEntities  []string
	DisabledEntities []string

	Context classifier.ContextEnhancer

	NERBackend     string
	NERURL         string
	NERModel       string
	NERAPIKey      string
	NERTimeout     time.Duration
	NERPolicy      classifier.NERPolicy
	NERCacheTTL    time.Duration // 0 disables the cache
	NERByteOffsets bool          // Sidecar reports UTF-8 byte offsets

	EncryptionKey string // 32 raw bytes or 64 hex chars; required by encrypt operators
	CORSOrigins   []string
	MaxTextBytes  int
	ListenAddr    string
}

func init() {
	viper.SetEnvPrefix("PIIGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDefaultLanguage, classifier.DefaultLanguage)
	v.SetDefault(KeyScoreThreshold, DefaultScoreThreshold)
	v.SetDefault(KeyContextBoost, classifier.DefaultContextBoost)
	v.SetDefault(KeyMinScoreWithContext, classifier.DefaultMinScoreWithContext)
	v.SetDefault(KeyContextWordsBefore, classifier.DefaultContextWordsBefore)
	v.SetDefault(KeyContextWordsAfter, classifier.DefaultContextWordsAfter)
	v.SetDefault(KeyNERBackend, NERBackendNone)
	v.SetDefault(KeyNERURL, DefaultNERURL)
	v.SetDefault(KeyNERTimeout, classifier.DefaultNERTimeout)
	v.SetDefault(KeyNERPolicy, string(classifier.NERPolicyDegrade))
	v.SetDefault(KeyNERCacheTTL, DefaultNERCacheTTL)
	v.SetDefault(KeyMaxTextBytes, DefaultMaxTextBytes)
	v.SetDefault(KeyListenAddr, DefaultListenAddr)
}

// Load reads configuration from the global Viper instance (which merges
// env vars, config file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves a Config from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	policy, err := classifier.ParseNERPolicy(v.GetString(KeyNERPolicy))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := &Config{
		DefaultLanguage:  strings.TrimSpace(v.GetString(KeyDefaultLanguage)),
		ScoreThreshold:   v.GetFloat64(KeyScoreThreshold),
		RecognizerFile:   v.GetString(KeyRecognizerFile),
		OperatorFile:     v.GetString(KeyOperatorFile),
		EnabledEntities:  listValue(v, KeyEnabledEntities),
		DisabledEntities: listValue(v, KeyDisabledEntities),
		Context: classifier.ContextEnhancer{
			Boost:               v.GetFloat64(KeyContextBoost),
			MinScoreWithContext: v.GetFloat64(KeyMinScoreWithContext),
			WordsBefore:         v.GetInt(KeyContextWordsBefore),
			WordsAfter:          v.GetInt(KeyContextWordsAfter),
		},
		NERBackend:     strings.ToLower(strings.TrimSpace(v.GetString(KeyNERBackend))),
		NERURL:         v.GetString(KeyNERURL),
		NERModel:       v.GetString(KeyNERModel),
		NERAPIKey:      v.GetString(KeyNERAPIKey),
		NERTimeout:     v.GetDuration(KeyNERTimeout),
		NERPolicy:      policy,
		NERCacheTTL:    v.GetDuration(KeyNERCacheTTL),
		NERByteOffsets: v.GetBool(KeyNERByteOffsets),
		EncryptionKey:  v.GetString(KeyEncryptionKey),
		CORSOrigins:    listValue(v, KeyCORSOrigins),
		MaxTextBytes:   v.GetInt(KeyMaxTextBytes),
		ListenAddr:     v.GetString(KeyListenAddr),
	}
	if cfg.NERBackend == "" {
		cfg.NERBackend = NERBackendNone
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// listValue accepts both YAML lists and comma-separated env values.
func listValue(v *viper.Viper, key string) []string {
	var out []string
	for _, raw := range v.GetStringSlice(key) {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.DefaultLanguage == "" {
		return fmt.Errorf("%w: default_language must not be empty", classifier.ErrConfiguration)
	}
	if !classifier.ValidScore(c.ScoreThreshold) {
		return fmt.Errorf("%w: score_threshold must be in [0,1] (got %v)", classifier.ErrConfiguration, c.ScoreThreshold)
	}
	if !classifier.ValidScore(c.Context.Boost) {
		return fmt.Errorf("%w: context_boost must be in [0,1] (got %v)", classifier.ErrConfiguration, c.Context.Boost)
	}
	if !classifier.ValidScore(c.Context.MinScoreWithContext) {
		return fmt.Errorf("%w: context_min_score must be in [0,1]", classifier.ErrConfiguration)
	}
	if c.Context.WordsBefore < 0 || c.Context.WordsAfter < 0 {
		return fmt.Errorf("%w: context windows must not be negative", classifier.ErrConfiguration)
	}
	if c.MaxTextBytes <= 0 {
		return fmt.Errorf("%w: max_text_bytes must be positive", classifier.ErrConfiguration)
	}
	if c.NERCacheTTL < 0 {
		return fmt.Errorf("%w: ner_cache_ttl must not be negative", classifier.ErrConfiguration)
	}
	switch c.NERBackend {
	case NERBackendNone:
	case NERBackendSidecar:
		if err := validateURL(KeyNERURL, c.NERURL); err != nil {
			return err
		}
	case NERBackendLLM:
		if c.NERAPIKey == "" {
			return fmt.Errorf("%w: ner_api_key is required for the llm backend; set PIIGUARD_NER_API_KEY", classifier.ErrConfiguration)
		}
		if c.NERURL != "" && c.NERURL != DefaultNERURL {
			if err := validateURL(KeyNERURL, c.NERURL); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: ner_backend must be none, sidecar or llm (got %q)", classifier.ErrConfiguration, c.NERBackend)
	}
	if c.NERBackend != NERBackendNone && c.NERTimeout <= 0 {
		return fmt.Errorf("%w: ner_timeout must be positive", classifier.ErrConfiguration)
	}
	if c.EncryptionKey != "" {
		if _, err := cryptoutil.ResolveKey(c.EncryptionKey); err != nil {
			return fmt.Errorf("%w: encryption_key must be exactly 32 bytes or 64 hex characters; set PIIGUARD_ENCRYPTION_KEY", classifier.ErrConfiguration)
		}
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute URL (got %q)", classifier.ErrConfiguration, key, raw)
	}
	return nil
}

// LLMBaseURL returns the OpenAI-compatible endpoint for the llm backend.
// An unset ner_url (still the sidecar default) selects the public API.
func (c *Config) LLMBaseURL() string {
	if c.NERURL == DefaultNERURL {
		return ""
	}
	return c.NERURL
}

// WarnIfInsecure logs warnings for settings that are unsafe in production.
func (c *Config) WarnIfInsecure() {
	if c.EncryptionKey == "" {
		log.Debug().Msg("encryption_key not set; encrypt operators and deanonymize are unavailable")
	}
	for _, o := range c.CORSOrigins {
		if o == "*" {
			log.Warn().Msg("cors_origins allows any origin")
		}
	}
}
