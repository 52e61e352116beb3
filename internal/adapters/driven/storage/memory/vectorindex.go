package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/embedding/lexical"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

type indexedChunk struct {
	chunk  domain.Chunk
	vector domain.SparseVector
}

// VectorIndex is an ephemeral brute-force index over sparse vectors.
// It is not safe for concurrent use; build one per retrieval call.
type VectorIndex struct {
	embedder driven.TextEmbedder
	rows     []indexedChunk
}

// NewVectorIndex creates an empty index that embeds with the given embedder.
func NewVectorIndex(embedder driven.TextEmbedder) *VectorIndex {
	return &VectorIndex{embedder: embedder}
}

// Add embeds and stores a chunk.
func (x *VectorIndex) Add(ctx context.Context, chunk domain.Chunk) error {
	vec, err := x.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embedding chunk %s: %w", chunk.ID, err)
	}
	x.rows = append(x.rows, indexedChunk{chunk: chunk, vector: vec})
	return nil
}

// Search scores every stored chunk against the query. The sort is stable,
// so equal scores keep insertion order.
func (x *VectorIndex) Search(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	q, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored := make([]domain.ScoredChunk, len(x.rows))
	for i, row := range x.rows {
		scored[i] = domain.ScoredChunk{Chunk: row.chunk, Score: lexical.Cosine(q, row.vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Len returns the number of stored chunks.
func (x *VectorIndex) Len() int {
	return len(x.rows)
}
