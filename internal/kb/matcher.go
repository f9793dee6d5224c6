package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/textsim"
)

// Entry is one knowledge-base article: an answer plus the question phrasings
// it covers.
type Entry struct {
	ID        string   `json:"id"`
	Questions []string `json:"questions"`
	Answer    string   `json:"answer"`
}

// Matcher answers FAQ queries by similarity search over the knowledge base.
type Matcher struct {
	entries []Entry
	vectors []textsim.Vector
	index   []int
}

// Load builds a matcher from a knowledge_base.json file.
func Load(path string) (*Matcher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var doc struct {
		Entries []Entry `json:"faq_entries"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	return NewMatcher(doc.Entries), nil
}

// NewMatcher builds a matcher over in-memory entries, pre-computing one
// vector per question phrasing.
func NewMatcher(entries []Entry) *Matcher {
	m := &Matcher{entries: entries}
	for i, entry := range entries {
		for _, question := range entry.Questions {
			m.vectors = append(m.vectors, textsim.Vectorize(question))
			m.index = append(m.index, i)
		}
	}
	return m
}

// Match returns the best-scoring entry for the question, or nil when the
// knowledge base is empty. Thresholding is the caller's decision.
func (m *Matcher) Match(_ context.Context, question string) (*domain.FAQMatch, error) {
	if len(m.vectors) == 0 {
		return nil, nil
	}
	query := textsim.Vectorize(question)
	bestIdx := -1
	bestScore := -1.0
	for i, vec := range m.vectors {
		if score := textsim.Cosine(query, vec); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	entry := m.entries[m.index[bestIdx]]
	return &domain.FAQMatch{EntryID: entry.ID, Answer: entry.Answer, Score: bestScore}, nil
}
