package anonymizer

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

var meter = piiotel.Meter("github.com/dativo-io/piiguard/internal/anonymizer")

var itemsTotal metric.Int64Counter

func init() {
	var err error
	itemsTotal, err = meter.Int64Counter("piiguard.anonymize.items",
		metric.WithDescription("Anonymized spans by entity type and operator"))
	if err != nil {
		itemsTotal, _ = meter.Int64Counter("piiguard.anonymize.items.fallback")
	}
}

func recordItems(ctx context.Context, items []Item) {
	for _, it := range items {
		itemsTotal.Add(ctx, 1, metric.WithAttributes(
			piiotel.PIIEntityType.String(it.EntityType),
			piiotel.PIIOperator.String(string(it.Operator)),
		))
	}
}
