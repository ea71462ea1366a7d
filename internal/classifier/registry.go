package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiguard/internal/classifier")

// DefaultNERTimeout bounds a single NER backend call.
const DefaultNERTimeout = 10 * time.Second

// NERPolicy decides what Analyze does when a NER backend fails.
type NERPolicy string

const (
	// NERPolicyDegrade continues with the remaining recognizers and marks
	// the Analysis as degraded.
	NERPolicyDegrade NERPolicy = "degrade"
	// NERPolicyFail fails the whole request.
	NERPolicyFail NERPolicy = "fail"
)

// ParseNERPolicy converts a config string into a NERPolicy.
func ParseNERPolicy(s string) (NERPolicy, error) {
	switch NERPolicy(s) {
	case NERPolicyDegrade, NERPolicyFail:
		return NERPolicy(s), nil
	case "":
		return NERPolicyDegrade, nil
	}
	return "", fmt.Errorf("%w: unknown ner policy %q (want degrade or fail)", ErrConfiguration, s)
}

// contextual is implemented by recognizers that carry context keywords.
type contextual interface {
	ContextWords() []string
}

// snapshot is an immutable view of the registered recognizers. Analyze
// reads it without locking; writers publish a fresh copy.
type snapshot struct {
	byLang map[string][]Recognizer
}

// Registry holds recognizers per language and runs analysis requests
// against them. Recognizers are registered at startup; once Seal is called
// the set is frozen. Analyze is safe for concurrent use at any time.
type Registry struct {
	mu     sync.Mutex
	sealed bool
	snap   atomic.Pointer[snapshot]

	enhancer   ContextEnhancer
	nerTimeout time.Duration
	nerPolicy  NERPolicy
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithContextEnhancer replaces the default context enhancer.
func WithContextEnhancer(e ContextEnhancer) RegistryOption {
	return func(r *Registry) { r.enhancer = e }
}

// WithNERTimeout bounds each recognizer call. Zero keeps the default.
func WithNERTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.nerTimeout = d
		}
	}
}

// WithNERPolicy sets how NER backend failures are handled.
func WithNERPolicy(p NERPolicy) RegistryOption {
	return func(r *Registry) { r.nerPolicy = p }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		enhancer:   DefaultContextEnhancer(),
		nerTimeout: DefaultNERTimeout,
		nerPolicy:  NERPolicyDegrade,
	}
	for _, o := range opts {
		o(r)
	}
	r.snap.Store(&snapshot{byLang: map[string][]Recognizer{}})
	return r
}

// Add registers rec under its language. Names must be unique per language.
func (r *Registry) Add(rec Recognizer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: registry is sealed, cannot add %q", ErrConfiguration, rec.Name())
	}
	cur := r.snap.Load()
	lang := rec.Language()
	for _, existing := range cur.byLang[lang] {
		if existing.Name() == rec.Name() {
			return fmt.Errorf("%w: recognizer %q already registered for %q", ErrConfiguration, rec.Name(), lang)
		}
	}
	next := cur.clone()
	next.byLang[lang] = append(next.byLang[lang], rec)
	r.snap.Store(next)
	return nil
}

// Remove deregisters the named recognizer from language.
func (r *Registry) Remove(language, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: registry is sealed, cannot remove %q", ErrConfiguration, name)
	}
	cur := r.snap.Load()
	recs := cur.byLang[language]
	for i, rec := range recs {
		if rec.Name() != name {
			continue
		}
		next := cur.clone()
		kept := make([]Recognizer, 0, len(recs)-1)
		kept = append(kept, recs[:i]...)
		kept = append(kept, recs[i+1:]...)
		if len(kept) == 0 {
			delete(next.byLang, language)
		} else {
			next.byLang[language] = kept
		}
		r.snap.Store(next)
		return nil
	}
	return fmt.Errorf("%w: recognizer %q not registered for %q", ErrConfiguration, name, language)
}

// Seal freezes the registry. Later Add and Remove calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Languages returns the languages that have at least one recognizer, sorted.
func (r *Registry) Languages() []string {
	cur := r.snap.Load()
	out := make([]string, 0, len(cur.byLang))
	for lang := range cur.byLang {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Recognizers returns the recognizers registered for language, in
// registration order.
func (r *Registry) Recognizers(language string) []Recognizer {
	return append([]Recognizer(nil), r.snap.Load().byLang[language]...)
}

// SupportedEntities returns the sorted union of entity types the
// recognizers of language can emit. An empty language means all languages.
func (r *Registry) SupportedEntities(language string) []string {
	cur := r.snap.Load()
	set := map[string]bool{}
	for lang, recs := range cur.byLang {
		if language != "" && lang != language {
			continue
		}
		for _, rec := range recs {
			for _, e := range rec.SupportedEntities() {
				set[e] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// RecognizerFailure records a recognizer skipped under NERPolicyDegrade.
type RecognizerFailure struct {
	Recognizer string `json:"recognizer"`
	Error      string `json:"error"`
	err        error
}

// Err returns the underlying error.
func (f RecognizerFailure) Err() error { return f.err }

// Analysis is the result of Registry.Analyze.
type Analysis struct {
	// Detections are resolved: non-overlapping and sorted by start.
	Detections []Detection `json:"detections"`
	// Degraded is true when a NER backend failed and was skipped.
	Degraded bool                `json:"degraded"`
	Failures []RecognizerFailure `json:"failures,omitempty"`
}

// AnalyzeOption narrows a single Analyze call.
type AnalyzeOption func(*analyzeConfig)

type analyzeConfig struct {
	entities  map[string]bool
	allowList map[string]bool
}

// WithEntities restricts the result to the given entity types.
func WithEntities(entities ...string) AnalyzeOption {
	return func(c *analyzeConfig) {
		if len(entities) > 0 {
			c.entities = toSet(entities)
		}
	}
}

// WithAllowList drops detections whose exact text is in words.
func WithAllowList(words ...string) AnalyzeOption {
	return func(c *analyzeConfig) {
		if len(words) > 0 {
			c.allowList = toSet(words)
		}
	}
}

// Analyze runs every recognizer registered for language over text and
// returns the resolved detections with score >= threshold.
//
// Recognizers run concurrently, each under the NER timeout. Pattern
// detections are context-enhanced before the threshold is applied. A NER
// failure either fails the call or is recorded in Analysis.Failures,
// depending on the registry's NERPolicy; any other recognizer error, or
// cancellation of ctx, always fails the call.
func (r *Registry) Analyze(ctx context.Context, text, language string, threshold float64, opts ...AnalyzeOption) (*Analysis, error) {
	ctx, span := tracer.Start(ctx, "classifier.analyze")
	defer span.End()

	if !ValidScore(threshold) {
		return nil, fmt.Errorf("%w: score threshold %.4f outside [0,1]", ErrInvalidInput, threshold)
	}
	recs := r.snap.Load().byLang[language]
	if len(recs) == 0 {
		err := fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	var cfg analyzeConfig
	for _, o := range opts {
		o(&cfg)
	}

	t := NewText(text)
	results := make([][]Detection, len(recs))
	errs := make([]error, len(recs))
	var g errgroup.Group
	for i, rec := range recs {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, r.nerTimeout)
			defer cancel()
			results[i], errs[i] = rec.Recognize(rctx, t)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis := &Analysis{Detections: []Detection{}}
	var candidates []Detection
	for i, rec := range recs {
		if err := errs[i]; err != nil {
			err = classifyRecognizerError(rec, err)
			if !IsModelError(err) || r.nerPolicy == NERPolicyFail {
				recordNERFailure(ctx, rec.Name(), err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("recognizer %q: %w", rec.Name(), err)
			}
			recordNERFailure(ctx, rec.Name(), err)
			log.Warn().
				Err(err).
				Str("recognizer", rec.Name()).
				Str("language", language).
				Func(piiotel.LogTraceFields(ctx)).
				Msg("ner_degraded")
			analysis.Degraded = true
			analysis.Failures = append(analysis.Failures, RecognizerFailure{
				Recognizer: rec.Name(),
				Error:      err.Error(),
				err:        err,
			})
			continue
		}
		var keywords []string
		if c, ok := rec.(contextual); ok {
			keywords = c.ContextWords()
		}
		for _, d := range results[i] {
			if cfg.entities != nil && !cfg.entities[d.EntityType] {
				continue
			}
			if d.Source == SourcePattern {
				d = r.enhancer.Enhance(t, d, keywords)
			}
			if d.Score < threshold {
				continue
			}
			if cfg.allowList != nil && cfg.allowList[t.Slice(d.Start, d.End)] {
				continue
			}
			candidates = append(candidates, d)
		}
	}

	analysis.Detections = Resolve(candidates)
	recordDetections(ctx, language, analysis.Detections)

	span.SetAttributes(piiotel.AnalyzeAttributes(language, len(analysis.Detections), analysis.Degraded)...)
	span.SetAttributes(attribute.Int("pii.candidate_count", len(candidates)))
	return analysis, nil
}

// classifyRecognizerError maps NER backend errors onto the model error
// taxonomy. Adapters normally do this themselves; a bare deadline or
// transport error from a NER recognizer is wrapped here.
func classifyRecognizerError(rec Recognizer, err error) error {
	if IsModelError(err) {
		return err
	}
	if _, ok := rec.(*NERRecognizer); !ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{byLang: make(map[string][]Recognizer, len(s.byLang)+1)}
	for lang, recs := range s.byLang {
		next.byLang[lang] = append([]Recognizer(nil), recs...)
	}
	return next
}
