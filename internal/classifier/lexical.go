// Package classifier provides the built-in lexical classifier. It scores an
// utterance against per-intent anchor phrases and a mood lexicon, and sits
// behind the flow engine's Classifier interface so a remote model service
// can replace it without touching the state machine.
package classifier

import (
	"context"
	"strings"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/intents"
	"github.com/spec-kit/support-engine/internal/textsim"
)

// DefaultIntentThreshold is the anchor-similarity floor below which a
// message is routed as unknown.
const DefaultIntentThreshold = 0.25

// Lexical classifies intent by cosine similarity against schema anchors and
// mood by keyword lexicon.
type Lexical struct {
	anchors         map[string][]textsim.Vector
	intentThreshold float64
}

// NewLexical builds the classifier from the intent schema's anchor phrases.
func NewLexical(schema *intents.Schema, intentThreshold float64) *Lexical {
	if intentThreshold <= 0 {
		intentThreshold = DefaultIntentThreshold
	}
	anchors := map[string][]textsim.Vector{}
	for _, intent := range schema.Intents() {
		for _, phrase := range schema.Anchors(intent) {
			anchors[intent] = append(anchors[intent], textsim.Vectorize(phrase))
		}
	}
	return &Lexical{anchors: anchors, intentThreshold: intentThreshold}
}

// Classify returns the best-matching intent and the detected mood. Intents
// scoring below the threshold come back as the reserved unknown label.
func (l *Lexical) Classify(_ context.Context, text string) (domain.Classification, error) {
	query := textsim.Vectorize(text)

	bestIntent := domain.IntentUnknown
	bestScore := -1.0
	for intent, vectors := range l.anchors {
		for _, anchor := range vectors {
			if score := textsim.Cosine(query, anchor); score > bestScore {
				bestScore = score
				bestIntent = intent
			}
		}
	}
	if bestScore < l.intentThreshold {
		bestIntent = domain.IntentUnknown
	}
	if bestScore < 0 {
		bestScore = 0
	}

	mood, moodConfidence := detectMood(text)
	return domain.Classification{
		Intent:           bestIntent,
		IntentConfidence: bestScore,
		Mood:             mood,
		MoodConfidence:   moodConfidence,
	}, nil
}

// moodLexicon holds the keyword layer, ordered so that anger cues win over
// softer signals when several moods match.
var moodLexicon = []struct {
	mood  domain.MoodLabel
	words []string
}{
	{domain.MoodAngry, []string{
		"angry", "upset", "frustrated", "annoyed", "furious", "mad", "disappointed",
		"worst", "terrible", "horrible", "awful", "useless", "broken", "damaged", "defective",
		"scam", "fraud", "rip off", "refund", "money back", "chargeback", "cheated",
		"ridiculous", "pathetic", "sucks",
	}},
	{domain.MoodUrgent, []string{
		"asap", "urgent", "emergency", "immediately", "right now", "hurry", "rush",
		"deadline", "overdue", "haven't received",
	}},
	{domain.MoodConfused, []string{
		"confused", "don't understand", "didn't understand", "unsure", "not sure",
		"clarify", "explain", "doesn't make sense", "how do i", "what does this mean",
	}},
	{domain.MoodHappy, []string{
		"thanks", "thank you", "thx", "appreciate", "grateful",
		"love", "great", "awesome", "amazing", "excellent", "perfect", "wonderful",
		"fantastic", "satisfied", "happy",
	}},
}

func detectMood(text string) (domain.MoodLabel, float64) {
	lower := strings.ToLower(text)

	// Negated positives are anger, whatever else matches.
	if strings.Contains(lower, "not happy") || strings.Contains(lower, "unhappy") {
		return domain.MoodAngry, 0.9
	}
	for _, class := range moodLexicon {
		for _, word := range class.words {
			if strings.Contains(lower, word) {
				return class.mood, 0.7
			}
		}
	}
	return domain.MoodNeutral, 0
}
