package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by analyzer, anonymizer and NER spans and metrics.
const (
	PIILanguage    = attribute.Key("pii.language")
	PIIEntityType  = attribute.Key("pii.entity_type")
	PIIEntityCount = attribute.Key("pii.entity_count")
	PIIRecognizer  = attribute.Key("pii.recognizer")
	PIIOperator    = attribute.Key("pii.operator")
	PIIDegraded    = attribute.Key("pii.degraded")

	// NER backend attributes
	NERBackend = attribute.Key("ner.backend") // e.g. "sidecar", "llm"
	NERModel   = attribute.Key("ner.model")
	NERCached  = attribute.Key("ner.cache_hit")
	NERFailure = attribute.Key("ner.failure") // "timeout" or "unavailable"
)

// AnalyzeAttributes creates the standard attributes for an analyze span.
func AnalyzeAttributes(language string, entityCount int, degraded bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		PIILanguage.String(language),
		PIIEntityCount.Int(entityCount),
		PIIDegraded.Bool(degraded),
	}
}

// NERAttributes creates attributes for a NER backend call.
func NERAttributes(backend, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		NERBackend.String(backend),
		NERModel.String(model),
	}
}
