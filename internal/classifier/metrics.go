package classifier

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"

	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

var meter = piiotel.Meter("github.com/dativo-io/piiguard/internal/classifier")

var (
	detectionsTotal metric.Int64Counter
	nerFailures     metric.Int64Counter
)

func init() {
	var err error
	detectionsTotal, err = meter.Int64Counter("piiguard.detections.total",
		metric.WithDescription("Resolved PII detections by entity type"))
	if err != nil {
		detectionsTotal, _ = meter.Int64Counter("piiguard.detections.total.fallback")
	}

	nerFailures, err = meter.Int64Counter("piiguard.ner.failures",
		metric.WithDescription("NER backend failures by recognizer"))
	if err != nil {
		nerFailures, _ = meter.Int64Counter("piiguard.ner.failures.fallback")
	}
}

func recordDetections(ctx context.Context, language string, detections []Detection) {
	for _, d := range detections {
		detectionsTotal.Add(ctx, 1, metric.WithAttributes(
			piiotel.PIILanguage.String(language),
			piiotel.PIIEntityType.String(d.EntityType),
			piiotel.PIIRecognizer.String(d.Recognizer),
		))
	}
}

func recordNERFailure(ctx context.Context, recognizer string, err error) {
	kind := "unavailable"
	if errors.Is(err, ErrModelTimeout) {
		kind = "timeout"
	}
	nerFailures.Add(ctx, 1, metric.WithAttributes(
		piiotel.PIIRecognizer.String(recognizer),
		piiotel.NERFailure.String(kind),
	))
}
