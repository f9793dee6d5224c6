package domain

// Classification is the combined intent/mood verdict for one message.
type Classification struct {
	Intent           string
	IntentConfidence float64
	Mood             MoodLabel
	MoodConfidence   float64
}

// FAQMatch is the best knowledge-base candidate for a question.
type FAQMatch struct {
	EntryID string
	Answer  string
	Score   float64
}

// LookupOutcome enumerates data-source lookup results.
type LookupOutcome string

const (
	LookupFound      LookupOutcome = "found"
	LookupNotFound   LookupOutcome = "not_found"
	LookupInvalidKey LookupOutcome = "invalid_key"
)

// LookupResult carries the record returned by a data-source lookup. Record
// is nil unless Outcome is LookupFound.
type LookupResult struct {
	Outcome LookupOutcome
	Record  map[string]any
}
