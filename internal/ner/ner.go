// Package ner holds NER backend adapters implementing classifier.NERModel:
// an HTTP sidecar client, an OpenAI-compatible LLM client and a caching
// wrapper. Adapters never return a silent empty result for an unreachable
// backend; failures wrap classifier.ErrModelUnavailable or
// classifier.ErrModelTimeout.
package ner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dativo-io/piiguard/internal/classifier"
	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiguard/internal/ner")

// DefaultScore is assigned to entities whose backend reports no score.
const DefaultScore = 0.85

// DefaultEntities are the entity types NER recognizers emit by default.
var DefaultEntities = []string{"PERSON", "LOCATION", "ORGANIZATION", "DATE_TIME", "NRP"}

// DefaultLabelMap maps common NER labels (spaCy, CoNLL, OntoNotes) to
// entity types.
var DefaultLabelMap = map[string]string{
	"PER":          "PERSON",
	"PERSON":       "PERSON",
	"LOC":          "LOCATION",
	"GPE":          "LOCATION",
	"FAC":          "LOCATION",
	"LOCATION":     "LOCATION",
	"ORG":          "ORGANIZATION",
	"ORGANIZATION": "ORGANIZATION",
	"DATE":         "DATE_TIME",
	"TIME":         "DATE_TIME",
	"DATE_TIME":    "DATE_TIME",
	"NORP":         "NRP",
	"NRP":          "NRP",
}

// HealthChecker is implemented by backends that can report readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// mapLabel converts a backend label to an entity type. Unknown labels are
// upper-cased and passed through; the NER recognizer drops them unless
// they are in its entity set.
func mapLabel(labels map[string]string, label string) string {
	l := strings.ToUpper(strings.TrimSpace(label))
	if mapped, ok := labels[l]; ok {
		return mapped
	}
	return l
}

// wrapBackendError maps a transport error onto the model error taxonomy.
func wrapBackendError(ctx context.Context, backend string, err error) error {
	if classifier.IsModelError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", classifier.ErrModelTimeout, backend, err)
	}
	return fmt.Errorf("%w: %s: %v", classifier.ErrModelUnavailable, backend, err)
}
