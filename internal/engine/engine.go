// Package engine is the entry point used by the CLI and the HTTP server.
// It assembles a sealed recognizer registry, the optional NER backend and
// the operator registry from a config.Config, and exposes analyze,
// anonymize and deanonymize with request-scoped correlation ids.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/piiguard/internal/anonymizer"
	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/config"
	"github.com/dativo-io/piiguard/internal/ner"
	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiguard/internal/engine")

// nerRecognizerName is the registry name of the NER recognizer.
const nerRecognizerName = "NERRecognizer"

// Engine is safe for concurrent use. Build one with New and release it
// with Close.
type Engine struct {
	registry      *classifier.Registry
	operators     *anonymizer.Operators
	language      string
	threshold     float64
	maxTextBytes  int
	encryptionKey string

	nerBackend string
	nerModel   classifier.NERModel
	closers    []func()
}

// Option customizes New.
type Option func(*options)

type options struct {
	nerModel   classifier.NERModel
	nerBackend string
}

// WithNERModel replaces the backend selected by configuration. Tests use it
// to inject fakes; backend is the label reported by Health.
func WithNERModel(model classifier.NERModel, backend string) Option {
	return func(o *options) {
		o.nerModel = model
		o.nerBackend = backend
	}
}

// New builds an Engine from cfg.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		language:      cfg.DefaultLanguage,
		threshold:     cfg.ScoreThreshold,
		maxTextBytes:  cfg.MaxTextBytes,
		encryptionKey: cfg.EncryptionKey,
	}
	if e.maxTextBytes <= 0 {
		e.maxTextBytes = config.DefaultMaxTextBytes
	}

	model, backend, err := newNERModel(cfg, o)
	if err != nil {
		return nil, err
	}
	if model != nil && cfg.NERCacheTTL > 0 {
		cached := ner.NewCachedModel(model, backend, cfg.NERCacheTTL)
		e.closers = append(e.closers, cached.Close)
		model = cached
	}
	e.nerModel = model
	e.nerBackend = backend

	loadOpts := []classifier.LoadOption{
		classifier.WithRecognizerFile(cfg.RecognizerFile),
		classifier.WithEnabledEntities(cfg.EnabledEntities),
		classifier.WithDisabledEntities(cfg.DisabledEntities),
		classifier.WithRegistryOptions(
			classifier.WithContextEnhancer(cfg.Context),
			classifier.WithNERTimeout(cfg.NERTimeout),
			classifier.WithNERPolicy(cfg.NERPolicy),
		),
	}
	if model != nil {
		rec, err := classifier.NewNERRecognizer(nerRecognizerName, cfg.DefaultLanguage, model, ner.DefaultEntities)
		if err != nil {
			e.Close()
			return nil, err
		}
		loadOpts = append(loadOpts, classifier.WithNER(rec))
	}
	e.registry, err = classifier.LoadRegistry(loadOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	var opOpts []anonymizer.Option
	if cfg.EncryptionKey != "" {
		opOpts = append(opOpts, anonymizer.WithEncryptionKey(cfg.EncryptionKey))
	}
	e.operators, err = anonymizer.LoadOperators(e.registry.SupportedEntities(""), cfg.OperatorFile, opOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	log.Info().
		Str("language", e.language).
		Float64("score_threshold", e.threshold).
		Str("ner_backend", e.nerBackend).
		Int("entities", len(e.registry.SupportedEntities(""))).
		Msg("engine_ready")
	return e, nil
}

func newNERModel(cfg *config.Config, o options) (classifier.NERModel, string, error) {
	if o.nerModel != nil {
		return o.nerModel, o.nerBackend, nil
	}
	switch cfg.NERBackend {
	case config.NERBackendSidecar:
		var sopts []ner.SidecarOption
		if cfg.NERByteOffsets {
			sopts = append(sopts, ner.WithByteOffsets())
		}
		return ner.NewSidecarModel(cfg.NERURL, sopts...), config.NERBackendSidecar, nil
	case config.NERBackendLLM:
		return ner.NewLLMModel(cfg.NERAPIKey, cfg.LLMBaseURL(), cfg.NERModel, ner.DefaultEntities), config.NERBackendLLM, nil
	case config.NERBackendNone, "":
		return nil, config.NERBackendNone, nil
	}
	return nil, "", fmt.Errorf("%w: unknown ner backend %q", classifier.ErrConfiguration, cfg.NERBackend)
}

// Close stops background work owned by the engine.
func (e *Engine) Close() {
	for _, c := range e.closers {
		c()
	}
	e.closers = nil
}

// Registry returns the sealed recognizer registry.
func (e *Engine) Registry() *classifier.Registry { return e.registry }

// Operators returns the operator registry.
func (e *Engine) Operators() *anonymizer.Operators { return e.operators }

// DefaultLanguage is used when a request names no language.
func (e *Engine) DefaultLanguage() string { return e.language }

// DefaultThreshold is used when a request carries no score threshold.
func (e *Engine) DefaultThreshold() float64 { return e.threshold }

// NERBackend names the configured NER backend ("none" when disabled).
func (e *Engine) NERBackend() string { return e.nerBackend }

// EncryptionEnabled reports whether an encryption key is configured.
func (e *Engine) EncryptionEnabled() bool { return e.encryptionKey != "" }

// SupportedEntities lists the entity types detectable for language, or for
// every language when language is empty.
func (e *Engine) SupportedEntities(language string) []string {
	return e.registry.SupportedEntities(language)
}

// AnalyzeRequest is the input of Analyze and Anonymize.
type AnalyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	AllowList      []string `json:"allow_list,omitempty"`
}

// Entity is one detection on the analyze surface.
type Entity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	Recognizer string  `json:"recognizer"`
}

// AnalyzeResponse is the output of Analyze.
type AnalyzeResponse struct {
	RequestID string                         `json:"request_id"`
	Language  string                         `json:"language"`
	Entities  []Entity                       `json:"entities"`
	Count     int                            `json:"count"`
	Degraded  bool                           `json:"degraded,omitempty"`
	Failures  []classifier.RecognizerFailure `json:"failures,omitempty"`
}

// AnonymizeResponse is the output of Anonymize.
type AnonymizeResponse struct {
	RequestID string                         `json:"request_id"`
	Text      string                         `json:"text"`
	Items     []anonymizer.Item              `json:"items"`
	Count     int                            `json:"count"`
	Degraded  bool                           `json:"degraded,omitempty"`
	Failures  []classifier.RecognizerFailure `json:"failures,omitempty"`
}

// DeanonymizeRequest is the input of Deanonymize.
type DeanonymizeRequest struct {
	Text  string            `json:"text"`
	Items []anonymizer.Item `json:"items"`
}

// DeanonymizeResponse is the output of Deanonymize.
type DeanonymizeResponse struct {
	RequestID string            `json:"request_id"`
	Text      string            `json:"text"`
	Items     []anonymizer.Item `json:"items"`
	Count     int               `json:"count"`
}

// Analyze detects PII in req.Text.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "engine.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", id))

	language, analysis, err := e.analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	text := classifier.NewText(req.Text)
	entities := make([]Entity, 0, len(analysis.Detections))
	for _, d := range analysis.Detections {
		entities = append(entities, Entity{
			EntityType: d.EntityType,
			Start:      d.Start,
			End:        d.End,
			Score:      roundScore(d.Score),
			Text:       text.Slice(d.Start, d.End),
			Recognizer: d.Recognizer,
		})
	}
	log.Debug().Str("request_id", id).Int("count", len(entities)).Func(piiotel.LogTraceFields(ctx)).Msg("analyzed")
	return &AnalyzeResponse{
		RequestID: id,
		Language:  language,
		Entities:  entities,
		Count:     len(entities),
		Degraded:  analysis.Degraded,
		Failures:  analysis.Failures,
	}, nil
}

// Anonymize detects PII in req.Text and replaces it using the configured
// operators.
func (e *Engine) Anonymize(ctx context.Context, req AnalyzeRequest) (*AnonymizeResponse, error) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "engine.anonymize")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", id))

	_, analysis, err := e.analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res, err := anonymizer.Anonymize(ctx, req.Text, analysis.Detections, e.operators)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	items := roundItems(res.Items)
	log.Debug().Str("request_id", id).Int("count", len(items)).Func(piiotel.LogTraceFields(ctx)).Msg("anonymized")
	return &AnonymizeResponse{
		RequestID: id,
		Text:      res.Text,
		Items:     items,
		Count:     len(items),
		Degraded:  analysis.Degraded,
		Failures:  analysis.Failures,
	}, nil
}

// Deanonymize restores the plaintext of encrypt items in req.Text.
func (e *Engine) Deanonymize(ctx context.Context, req DeanonymizeRequest) (*DeanonymizeResponse, error) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "engine.deanonymize")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", id))

	if e.encryptionKey == "" {
		return nil, fmt.Errorf("%w: deanonymize requires encryption_key", classifier.ErrConfiguration)
	}
	if len(req.Text) > e.maxTextBytes {
		return nil, fmt.Errorf("%w: text exceeds %d bytes", classifier.ErrInvalidInput, e.maxTextBytes)
	}
	res, err := anonymizer.Deanonymize(ctx, req.Text, req.Items, e.encryptionKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &DeanonymizeResponse{RequestID: id, Text: res.Text, Items: res.Items, Count: len(res.Items)}, nil
}

func (e *Engine) analyze(ctx context.Context, req AnalyzeRequest) (string, *classifier.Analysis, error) {
	if len(req.Text) > e.maxTextBytes {
		return "", nil, fmt.Errorf("%w: text exceeds %d bytes", classifier.ErrInvalidInput, e.maxTextBytes)
	}
	language := req.Language
	if language == "" {
		language = e.language
	}
	threshold := e.threshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}
	var opts []classifier.AnalyzeOption
	if len(req.Entities) > 0 {
		opts = append(opts, classifier.WithEntities(req.Entities...))
	}
	if len(req.AllowList) > 0 {
		opts = append(opts, classifier.WithAllowList(req.AllowList...))
	}
	analysis, err := e.registry.Analyze(ctx, req.Text, language, threshold, opts...)
	if err != nil {
		return "", nil, err
	}
	return language, analysis, nil
}

// NERStatus reports the NER backend state for health checks.
type NERStatus struct {
	Backend string `json:"backend"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Health is the payload of the health endpoint.
type Health struct {
	Status            string    `json:"status"`
	EntitiesSupported []string  `json:"entities_supported"`
	Languages         []string  `json:"languages"`
	NER               NERStatus `json:"ner"`
	ScoreThreshold    float64   `json:"score_threshold"`
	EncryptionEnabled bool      `json:"encryption_enabled"`
}

// healthTimeout bounds the NER backend probe.
const healthTimeout = 3 * time.Second

// Health probes the NER backend when it supports health checks. A failing
// backend marks the service degraded rather than down.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{
		Status:            "ok",
		EntitiesSupported: e.registry.SupportedEntities(""),
		Languages:         e.registry.Languages(),
		NER:               NERStatus{Backend: e.nerBackend, Status: "disabled"},
		ScoreThreshold:    e.threshold,
		EncryptionEnabled: e.encryptionKey != "",
	}
	if e.nerModel == nil {
		return h
	}
	h.NER.Status = "ok"
	if hc, ok := e.nerModel.(ner.HealthChecker); ok {
		ctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := hc.Health(ctx); err != nil {
			h.Status = "degraded"
			h.NER.Status = "unavailable"
			h.NER.Error = err.Error()
		}
	}
	return h
}

// redactedKey replaces operator keys in the read-only entity view.
const redactedKey = "[redacted]"

// EntityConfig describes how one entity type is detected and anonymized.
type EntityConfig struct {
	EntityType  string                    `json:"entity_type"`
	Recognizers []string                  `json:"recognizers"`
	Operator    anonymizer.OperatorConfig `json:"operator"`
	Explicit    bool                      `json:"explicit"`
}

// Entities returns a read-only view of every entity for language (all
// languages when empty), sorted by entity type.
func (e *Engine) Entities(language string) []EntityConfig {
	byEntity := map[string][]string{}
	languages := e.registry.Languages()
	if language != "" {
		languages = []string{language}
	}
	for _, lang := range languages {
		for _, rec := range e.registry.Recognizers(lang) {
			for _, ent := range rec.SupportedEntities() {
				byEntity[ent] = appendUnique(byEntity[ent], rec.Name())
			}
		}
	}
	out := make([]EntityConfig, 0, len(byEntity))
	for ent, recs := range byEntity {
		sort.Strings(recs)
		cfg, explicit := e.operators.Config(ent)
		if cfg.Key != "" {
			cfg.Key = redactedKey
		}
		out = append(out, EntityConfig{EntityType: ent, Recognizers: recs, Operator: cfg, Explicit: explicit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func roundScore(s float64) float64 {
	return math.Round(s*1e4) / 1e4
}

func roundItems(items []anonymizer.Item) []anonymizer.Item {
	out := make([]anonymizer.Item, len(items))
	for i, it := range items {
		it.Score = roundScore(it.Score)
		out[i] = it
	}
	return out
}
