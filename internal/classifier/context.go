package classifier

import (
	"unicode"

	"golang.org/x/text/cases"
)

const (
	// DefaultContextBoost is the score added when a context word is found
	// near a match. Matches Presidio's default context_similarity_factor.
	DefaultContextBoost = 0.35

	// DefaultMinScoreWithContext is the floor applied to a boosted score.
	DefaultMinScoreWithContext = 0.4

	// DefaultContextWordsBefore and DefaultContextWordsAfter bound the
	// window searched for context words around a match.
	DefaultContextWordsBefore = 5
	DefaultContextWordsAfter  = 5
)

// ContextEnhancer raises the score of pattern detections whose surrounding
// words include one of the recognizer's context keywords.
type ContextEnhancer struct {
	Boost               float64
	MinScoreWithContext float64
	WordsBefore         int
	WordsAfter          int
}

// DefaultContextEnhancer returns the Presidio-compatible defaults.
func DefaultContextEnhancer() ContextEnhancer {
	return ContextEnhancer{
		Boost:               DefaultContextBoost,
		MinScoreWithContext: DefaultMinScoreWithContext,
		WordsBefore:         DefaultContextWordsBefore,
		WordsAfter:          DefaultContextWordsAfter,
	}
}

// Enhance returns d with its score boosted when any keyword appears within
// the word window around the span. The boosted score is capped at 1.0.
func (e ContextEnhancer) Enhance(text *Text, d Detection, keywords []string) Detection {
	if len(keywords) == 0 || e.Boost <= 0 {
		return d
	}
	fold := cases.Fold()
	want := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		want[fold.String(k)] = true
	}
	for _, w := range e.window(text, d) {
		if want[fold.String(w)] {
			score := d.Score + e.Boost
			if score < e.MinScoreWithContext {
				score = e.MinScoreWithContext
			}
			if score > 1 {
				score = 1
			}
			d.Score = score
			return d
		}
	}
	return d
}

// window returns up to WordsBefore words ending before the span and up to
// WordsAfter words starting after it. Words are maximal runs of letters and
// digits, so "UPI:" and "(pay)" yield "UPI" and "pay".
func (e ContextEnhancer) window(text *Text, d Detection) []string {
	runes := text.Runes()
	var out []string

	end := d.Start
	for n := 0; n < e.WordsBefore; n++ {
		for end > 0 && !isWordRune(runes[end-1]) {
			end--
		}
		if end == 0 {
			break
		}
		start := end
		for start > 0 && isWordRune(runes[start-1]) {
			start--
		}
		out = append(out, string(runes[start:end]))
		end = start
	}

	start := d.End
	for n := 0; n < e.WordsAfter; n++ {
		for start < len(runes) && !isWordRune(runes[start]) {
			start++
		}
		if start == len(runes) {
			break
		}
		end := start
		for end < len(runes) && isWordRune(runes[end]) {
			end++
		}
		out = append(out, string(runes[start:end]))
		start = end
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
