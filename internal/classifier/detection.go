package classifier

import (
	"fmt"
	"sync"
	"unicode/utf8"
)

// Source identifies which kind of recognizer produced a detection.
type Source string

// Recognizer sources. Context enhancement only applies to SourcePattern.
const (
	SourcePattern Source = "pattern"
	SourceNER     Source = "ner"
)

// Detection is a PII span found in a text. Start and End are half-open
// Unicode code point offsets, not byte offsets, so they index the text the
// same way in every client language.
//
// The same type carries candidates (straight out of a recognizer) and
// resolved detections (after Resolve); the resolver only drops entries.
type Detection struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Recognizer string  `json:"recognizer"`
	Source     Source  `json:"source"`
}

// Len returns the span length in code points.
func (d Detection) Len() int { return d.End - d.Start }

// Overlaps reports whether the two half-open spans share at least one code point.
func (d Detection) Overlaps(o Detection) bool {
	return d.Start < o.End && o.Start < d.End
}

// ValidScore reports whether s lies in [0,1]. NaN is not a valid score.
func ValidScore(s float64) bool { return s >= 0 && s <= 1 }

// validate checks the span against a text of n code points.
func (d Detection) validate(n int) error {
	if d.EntityType == "" {
		return fmt.Errorf("detection without entity type")
	}
	if d.Start < 0 || d.End > n || d.Start >= d.End {
		return fmt.Errorf("span [%d,%d) outside text of length %d", d.Start, d.End, n)
	}
	if !ValidScore(d.Score) {
		return fmt.Errorf("score %.4f outside [0,1]", d.Score)
	}
	return nil
}

// Text is an analyzed input with offset tables, built once per request and
// shared by all recognizers.
type Text struct {
	s string
	n int
	// runeAt maps a byte offset to its code point index and byteAt maps a
	// code point index back to its byte offset. Both are nil for ASCII input.
	runeAt []int
	byteAt []int

	runesOnce sync.Once
	runes     []rune
}

// NewText indexes s for offset conversion.
func NewText(s string) *Text {
	t := &Text{s: s, n: utf8.RuneCountInString(s)}
	if t.n == len(s) {
		return t
	}
	t.byteAt = make([]int, 0, t.n+1)
	for i := range s {
		t.byteAt = append(t.byteAt, i)
	}
	t.byteAt = append(t.byteAt, len(s))
	// Continuation bytes map to the code point that contains them.
	t.runeAt = make([]int, len(s)+1)
	for r := 0; r < t.n; r++ {
		for b := t.byteAt[r]; b < t.byteAt[r+1]; b++ {
			t.runeAt[b] = r
		}
	}
	t.runeAt[len(s)] = t.n
	return t
}

// String returns the original text.
func (t *Text) String() string { return t.s }

// Len returns the text length in code points.
func (t *Text) Len() int { return t.n }

// RuneOffset converts a byte offset to a code point offset.
func (t *Text) RuneOffset(b int) int {
	if t.runeAt == nil {
		return b
	}
	return t.runeAt[b]
}

// ByteOffset converts a code point offset to a byte offset.
func (t *Text) ByteOffset(r int) int {
	if t.byteAt == nil {
		return r
	}
	return t.byteAt[r]
}

// Slice returns the substring between two code point offsets.
func (t *Text) Slice(start, end int) string {
	return t.s[t.ByteOffset(start):t.ByteOffset(end)]
}

// Runes returns the text as code points, decoded once and shared.
func (t *Text) Runes() []rune {
	t.runesOnce.Do(func() { t.runes = []rune(t.s) })
	return t.runes
}
