// Package anonymizer rewrites text by applying per-entity operators to
// resolved detections and reports an offset-correct manifest of the edits.
package anonymizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiguard/internal/classifier"
	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiguard/internal/anonymizer")

// Item is one manifest entry. Start/End index the input text, OutputStart/
// OutputEnd the rewritten text; all offsets are code points.
type Item struct {
	EntityType  string       `json:"entity_type"`
	Start       int          `json:"start"`
	End         int          `json:"end"`
	OutputStart int          `json:"output_start"`
	OutputEnd   int          `json:"output_end"`
	Score       float64      `json:"score"`
	Operator    OperatorType `json:"operator"`
	NewValue    string       `json:"new_value"`
}

// Result is the rewritten text and its manifest, ordered by Start.
type Result struct {
	Text  string `json:"text"`
	Items []Item `json:"items"`
}

// Anonymize applies ops to each detection in a single left-to-right pass.
// Detections must be sorted by start, non-overlapping and inside text,
// which is what classifier.Resolve produces; anything else is
// ErrInvalidInput. With no detections the text is returned unchanged.
func Anonymize(ctx context.Context, text string, detections []classifier.Detection, ops *Operators) (*Result, error) {
	ctx, span := tracer.Start(ctx, "anonymizer.anonymize")
	defer span.End()

	t := classifier.NewText(text)
	if err := checkDetections(t.Len(), detections); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res := &Result{Text: text, Items: []Item{}}
	if len(detections) == 0 {
		return res, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	delta, prev := 0, 0
	for _, d := range detections {
		op := ops.lookup(d.EntityType)
		value := t.Slice(d.Start, d.End)
		replacement, err := op.apply(value)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("applying %s to %s: %w", op.typ, d.EntityType, err)
		}
		b.WriteString(t.Slice(prev, d.Start))
		b.WriteString(replacement)
		prev = d.End

		n := utf8.RuneCountInString(replacement)
		res.Items = append(res.Items, Item{
			EntityType:  d.EntityType,
			Start:       d.Start,
			End:         d.End,
			OutputStart: d.Start + delta,
			OutputEnd:   d.Start + delta + n,
			Score:       d.Score,
			Operator:    op.typ,
			NewValue:    replacement,
		})
		delta += n - d.Len()
	}
	b.WriteString(t.Slice(prev, t.Len()))
	res.Text = b.String()

	recordItems(ctx, res.Items)
	span.SetAttributes(piiotel.PIIEntityCount.Int(len(res.Items)))
	return res, nil
}

func checkDetections(n int, detections []classifier.Detection) error {
	prevEnd := 0
	for i, d := range detections {
		if d.Start < 0 || d.End > n || d.Start >= d.End {
			return fmt.Errorf("%w: detection %d span [%d,%d) outside text of length %d", classifier.ErrInvalidInput, i, d.Start, d.End, n)
		}
		if d.Start < prevEnd {
			return fmt.Errorf("%w: detection %d at %d overlaps or precedes the previous one ending at %d", classifier.ErrInvalidInput, i, d.Start, prevEnd)
		}
		prevEnd = d.End
	}
	return nil
}
