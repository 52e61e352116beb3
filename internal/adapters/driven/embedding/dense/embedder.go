// Package dense adapts a remote EmbeddingService to the TextEmbedder
// interface so generous retrieval can run over model embeddings.
package dense

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure Embedder implements the interface.
var _ driven.TextEmbedder = (*Embedder)(nil)

// Embedder turns dense embeddings into L2-normalized sparse vectors keyed
// by dimension number.
type Embedder struct {
	svc driven.EmbeddingService
}

// New wraps an embedding service.
func New(svc driven.EmbeddingService) *Embedder {
	return &Embedder{svc: svc}
}

// Embed implements driven.TextEmbedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.SparseVector, error) {
	if e.svc == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	vec, err := e.svc.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("dense embed: %w", err)
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	out := make(domain.SparseVector, len(vec))
	for i, x := range vec {
		if x != 0 {
			out[strconv.Itoa(i)] = float64(x) / norm
		}
	}
	return out, nil
}
