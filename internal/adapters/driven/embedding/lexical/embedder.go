// Package lexical provides the built-in sparse term-frequency embedder.
package lexical

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure Embedder implements the interface.
var _ driven.TextEmbedder = (*Embedder)(nil)

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Embedder maps text to an L2-normalized term-frequency vector.
type Embedder struct{}

// New creates a lexical embedder.
func New() *Embedder {
	return &Embedder{}
}

// Embed implements driven.TextEmbedder. It never fails.
func (e *Embedder) Embed(_ context.Context, text string) (domain.SparseVector, error) {
	return Vectorize(text), nil
}

// Tokenize returns the lowercase word tokens of text.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// Vectorize counts tokens and divides by the L2 norm. Text without words
// yields the zero vector.
func Vectorize(text string) domain.SparseVector {
	counts := make(map[string]float64)
	for _, tok := range Tokenize(text) {
		counts[tok]++
	}

	var sum float64
	for _, c := range counts {
		sum += c * c
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	vec := make(domain.SparseVector, len(counts))
	for k, c := range counts {
		vec[k] = c / norm
	}
	return vec
}

// Cosine returns the dot product of two pre-normalized sparse vectors,
// iterating over the smaller one. Keys are visited in sorted order so the
// floating point sum is reproducible.
func Cosine(a, b domain.SparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}

	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dot float64
	for _, k := range keys {
		if w, ok := b[k]; ok {
			dot += a[k] * w
		}
	}
	return dot
}
