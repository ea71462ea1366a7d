package classifier

import "errors"

// Domain errors returned by recognizers, the registry and the anonymizer.
// Callers match them with errors.Is; every returned error wraps one of these.
var (
	// ErrConfiguration covers invalid patterns, duplicate recognizers and
	// malformed operator config. Raised at startup, never mid-request.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnsupportedLanguage means no recognizers are registered for the language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrModelTimeout means the NER backend did not answer before the deadline.
	ErrModelTimeout = errors.New("ner model timeout")
	// ErrModelUnavailable means the NER backend could not be reached or
	// returned something that is not a valid detection list.
	ErrModelUnavailable = errors.New("ner model unavailable")
	// ErrInvalidInput is a caller contract violation (threshold outside [0,1],
	// unsorted or overlapping detections handed to the anonymizer).
	ErrInvalidInput = errors.New("invalid input")
)

// IsModelError reports whether err came from a NER backend failure.
func IsModelError(err error) bool {
	return errors.Is(err, ErrModelTimeout) || errors.Is(err, ErrModelUnavailable)
}
