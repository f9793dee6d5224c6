// Package textsim provides bag-of-words cosine similarity for short texts.
// It backs the lexical classifier and the knowledge-base matcher; both score
// an utterance against anchor phrases the same way.
package textsim

import (
	"math"
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into alphanumeric tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Vector is a sparse term-frequency vector.
type Vector map[string]float64

// Vectorize builds a term-frequency vector for the text.
func Vectorize(text string) Vector {
	vec := Vector{}
	for _, token := range Tokenize(text) {
		vec[token]++
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors in [0,1].
// Empty vectors score 0 against everything.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, weight := range a {
		dot += weight * b[term]
	}
	if dot == 0 {
		return 0
	}
	return dot / (norm(a) * norm(b))
}

// Similarity scores two texts directly.
func Similarity(a, b string) float64 {
	return Cosine(Vectorize(a), Vectorize(b))
}

func norm(v Vector) float64 {
	var sum float64
	for _, weight := range v {
		sum += weight * weight
	}
	return math.Sqrt(sum)
}
