package anonymizer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/cryptoutil"
)

// Deanonymize restores the plaintext of encrypt items in an anonymized
// text. items are manifest entries from Anonymize; their OutputStart/
// OutputEnd locate the ciphertext in text. Items of other operators are
// left in place. The returned items describe the decrypted spans: Start/
// End in the input text, OutputStart/OutputEnd in the restored text.
func Deanonymize(ctx context.Context, text string, items []Item, key string) (*Result, error) {
	_, span := tracer.Start(ctx, "anonymizer.deanonymize")
	defer span.End()

	k, err := cryptoutil.ResolveKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifier.ErrConfiguration, err)
	}

	var encrypted []Item
	for _, it := range items {
		if it.Operator == OperatorEncrypt {
			encrypted = append(encrypted, it)
		}
	}
	slices.SortFunc(encrypted, func(a, b Item) int { return a.OutputStart - b.OutputStart })

	t := classifier.NewText(text)
	res := &Result{Text: text, Items: []Item{}}
	if len(encrypted) == 0 {
		return res, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	delta, prev := 0, 0
	for i, it := range encrypted {
		if it.OutputStart < prev || it.OutputEnd > t.Len() || it.OutputStart >= it.OutputEnd {
			err := fmt.Errorf("%w: item %d span [%d,%d) is out of order or outside text of length %d", classifier.ErrInvalidInput, i, it.OutputStart, it.OutputEnd, t.Len())
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		token := t.Slice(it.OutputStart, it.OutputEnd)
		if it.NewValue != "" && token != it.NewValue {
			return nil, fmt.Errorf("%w: item %d does not match the text at [%d,%d)", classifier.ErrInvalidInput, i, it.OutputStart, it.OutputEnd)
		}
		plain, err := cryptoutil.Open(k, token)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: item %d: %v", classifier.ErrInvalidInput, i, err)
		}
		b.WriteString(t.Slice(prev, it.OutputStart))
		b.WriteString(plain)
		prev = it.OutputEnd

		n := utf8.RuneCountInString(plain)
		res.Items = append(res.Items, Item{
			EntityType:  it.EntityType,
			Start:       it.OutputStart,
			End:         it.OutputEnd,
			OutputStart: it.OutputStart + delta,
			OutputEnd:   it.OutputStart + delta + n,
			Score:       it.Score,
			Operator:    OperatorDecrypt,
			NewValue:    plain,
		})
		delta += n - (it.OutputEnd - it.OutputStart)
	}
	b.WriteString(t.Slice(prev, t.Len()))
	res.Text = b.String()
	return res, nil
}
