package anonymizer

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/cryptoutil"
)

// DefaultEntity is the operator key used for entity types without their
// own operator.
const DefaultEntity = "DEFAULT"

// DefaultPlaceholder replaces entities that fall back to DEFAULT.
const DefaultPlaceholder = "<PII>"

// OperatorType names a transformation applied to a detected span.
type OperatorType string

const (
	OperatorReplace OperatorType = "replace"
	OperatorRedact  OperatorType = "redact"
	OperatorMask    OperatorType = "mask"
	OperatorHash    OperatorType = "hash"
	OperatorEncrypt OperatorType = "encrypt"
	OperatorKeep    OperatorType = "keep"
	// OperatorDecrypt only appears in deanonymization items.
	OperatorDecrypt OperatorType = "decrypt"
)

// Hash algorithms supported by the hash operator.
const (
	HashSHA256  = "sha256"
	HashSHA512  = "sha512"
	HashBLAKE2b = "blake2b"
)

// OperatorConfig selects an operator and its parameters. Fields that do
// not apply to Type are ignored.
type OperatorConfig struct {
	Type        OperatorType `yaml:"type" json:"type"`
	NewValue    string       `yaml:"new_value,omitempty" json:"new_value,omitempty"`
	MaskingChar string       `yaml:"masking_char,omitempty" json:"masking_char,omitempty"`
	CharsToMask int          `yaml:"chars_to_mask,omitempty" json:"chars_to_mask,omitempty"`
	FromEnd     bool         `yaml:"from_end,omitempty" json:"from_end,omitempty"`
	HashType    string       `yaml:"hash_type,omitempty" json:"hash_type,omitempty"`
	Key         string       `yaml:"key,omitempty" json:"key,omitempty"`
}

// operator is a compiled OperatorConfig.
type operator struct {
	typ   OperatorType
	apply func(value string) (string, error)
}

// Operators maps entity types to operators. It is immutable after
// construction and safe for concurrent use.
type Operators struct {
	byEntity map[string]operator
	fallback operator
	configs  map[string]OperatorConfig
	// explicit holds the entity types that came from configs.
	explicit map[string]bool
}

// Option configures NewOperators.
type Option func(*options)

type options struct {
	key string
}

// WithEncryptionKey sets the key used by encrypt operators that do not
// carry their own.
func WithEncryptionKey(key string) Option {
	return func(o *options) { o.key = key }
}

// NewOperators builds the operator table. Every entity in entities defaults
// to replace with "<ENTITY>", DEFAULT defaults to replace with "<PII>", and
// configs override both. Config keys need not be known entity types.
func NewOperators(entities []string, configs map[string]OperatorConfig, opts ...Option) (*Operators, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	all := make(map[string]OperatorConfig, len(entities)+len(configs)+1)
	for _, e := range entities {
		all[e] = OperatorConfig{Type: OperatorReplace, NewValue: placeholder(e)}
	}
	all[DefaultEntity] = OperatorConfig{Type: OperatorReplace, NewValue: DefaultPlaceholder}
	explicit := make(map[string]bool, len(configs))
	for e, cfg := range configs {
		if e == "" {
			return nil, fmt.Errorf("%w: operator config with empty entity type", classifier.ErrConfiguration)
		}
		all[e] = cfg
		explicit[e] = true
	}

	ops := &Operators{byEntity: make(map[string]operator, len(all)), configs: all, explicit: explicit}
	for e, cfg := range all {
		op, err := compile(e, cfg, o.key)
		if err != nil {
			return nil, fmt.Errorf("%w: operator for %s: %v", classifier.ErrConfiguration, e, err)
		}
		ops.byEntity[e] = op
	}
	ops.fallback = ops.byEntity[DefaultEntity]
	return ops, nil
}

// Type returns the operator type used for entity.
func (o *Operators) Type(entity string) OperatorType {
	return o.lookup(entity).typ
}

// Config returns the effective config for entity and whether it came from
// configuration. Built-in placeholders and the DEFAULT fallback are not
// explicit.
func (o *Operators) Config(entity string) (OperatorConfig, bool) {
	cfg, ok := o.configs[entity]
	if !ok {
		return o.configs[DefaultEntity], false
	}
	return cfg, o.explicit[entity]
}

// Entities returns every entity type with its own operator, sorted.
func (o *Operators) Entities() []string {
	out := make([]string, 0, len(o.configs))
	for e := range o.configs {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (o *Operators) lookup(entity string) operator {
	if op, ok := o.byEntity[entity]; ok {
		return op
	}
	return o.fallback
}

func placeholder(entity string) string { return "<" + entity + ">" }

func compile(entity string, cfg OperatorConfig, defaultKey string) (operator, error) {
	switch cfg.Type {
	case OperatorReplace:
		v := cfg.NewValue
		if v == "" {
			v = placeholder(entity)
			if entity == DefaultEntity {
				v = DefaultPlaceholder
			}
		}
		return operator{typ: cfg.Type, apply: func(string) (string, error) { return v, nil }}, nil

	case OperatorRedact:
		return operator{typ: cfg.Type, apply: func(string) (string, error) { return "", nil }}, nil

	case OperatorKeep:
		return operator{typ: cfg.Type, apply: func(v string) (string, error) { return v, nil }}, nil

	case OperatorMask:
		if utf8.RuneCountInString(cfg.MaskingChar) != 1 {
			return operator{}, fmt.Errorf("masking_char must be a single character, got %q", cfg.MaskingChar)
		}
		if cfg.CharsToMask < 0 {
			return operator{}, fmt.Errorf("chars_to_mask must not be negative, got %d", cfg.CharsToMask)
		}
		return operator{typ: cfg.Type, apply: func(v string) (string, error) {
			return mask(v, cfg.MaskingChar, cfg.CharsToMask, cfg.FromEnd), nil
		}}, nil

	case OperatorHash:
		newHash, err := hashFunc(cfg.HashType)
		if err != nil {
			return operator{}, err
		}
		return operator{typ: cfg.Type, apply: func(v string) (string, error) {
			h := newHash()
			h.Write([]byte(v))
			return hex.EncodeToString(h.Sum(nil)), nil
		}}, nil

	case OperatorEncrypt:
		raw := cfg.Key
		if raw == "" {
			raw = defaultKey
		}
		key, err := cryptoutil.ResolveKey(raw)
		if err != nil {
			return operator{}, err
		}
		return operator{typ: cfg.Type, apply: func(v string) (string, error) {
			return cryptoutil.Seal(key, v)
		}}, nil
	}
	return operator{}, fmt.Errorf("unknown operator type %q", cfg.Type)
}

// mask replaces n code points of v with c, from the start or the end.
// n larger than the value masks everything.
func mask(v, c string, n int, fromEnd bool) string {
	runes := []rune(v)
	if n > len(runes) {
		n = len(runes)
	}
	var b strings.Builder
	b.Grow(len(v))
	if fromEnd {
		b.WriteString(string(runes[:len(runes)-n]))
		b.WriteString(strings.Repeat(c, n))
		return b.String()
	}
	b.WriteString(strings.Repeat(c, n))
	b.WriteString(string(runes[n:]))
	return b.String()
}

func hashFunc(name string) (func() hash.Hash, error) {
	switch name {
	case "", HashSHA256:
		return sha256.New, nil
	case HashSHA512:
		return sha512.New, nil
	case HashBLAKE2b:
		return func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}, nil
	}
	return nil, fmt.Errorf("unknown hash_type %q (want sha256, sha512 or blake2b)", name)
}
