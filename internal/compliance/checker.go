// Package compliance vets drafted outbound text before it leaves the
// system. The built-in checker is a blocked-phrase lexicon; the boundary is
// an interface so an LLM reviewer can replace it.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Lexicon fails any draft containing a blocked phrase.
type Lexicon struct {
	blocked []string
}

// Load reads the blocked-phrase list from a JSON config file.
func Load(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compliance config: %w", err)
	}
	var doc struct {
		BlockedPhrases []string `json:"blocked_phrases"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse compliance config: %w", err)
	}
	return NewLexicon(doc.BlockedPhrases), nil
}

// NewLexicon builds a checker over an in-memory phrase list.
func NewLexicon(blocked []string) *Lexicon {
	lowered := make([]string, 0, len(blocked))
	for _, phrase := range blocked {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" {
			lowered = append(lowered, phrase)
		}
	}
	return &Lexicon{blocked: lowered}
}

// Vet returns false when the draft contains a blocked phrase.
func (l *Lexicon) Vet(_ context.Context, text string) (bool, error) {
	lower := strings.ToLower(text)
	for _, phrase := range l.blocked {
		if strings.Contains(lower, phrase) {
			return false, nil
		}
	}
	return true, nil
}
