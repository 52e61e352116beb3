package driven

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// VectorIndex is an ephemeral similarity index over a small set of chunks.
// It is built fresh per retrieval call and needs no synchronization.
type VectorIndex interface {
	// Add embeds and stores a chunk.
	Add(ctx context.Context, chunk domain.Chunk) error

	// Search returns at most limit chunks, descending by score.
	// Ties keep insertion order.
	Search(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error)

	// Len returns the number of stored chunks.
	Len() int
}

// IndexHit is one persistent index search result.
// VectorID is -1 for an empty slot.
type IndexHit struct {
	VectorID int
	Score    float32
}

// SimilarityIndex is an exact dense index that can be persisted as an
// opaque blob.
type SimilarityIndex interface {
	// Search returns k hits ordered by similarity: descending score for
	// cosine, ascending distance for l2. Slots beyond the index size carry
	// VectorID -1.
	Search(query []float32, k int) ([]IndexHit, error)

	// BuildID returns the build that produced the index.
	BuildID() string

	// Metric returns the metric the index was built with.
	Metric() domain.Metric

	// Dimension returns the vector width.
	Dimension() int

	// Len returns the number of vectors.
	Len() int

	// MarshalBinary encodes the index blob.
	MarshalBinary() ([]byte, error)
}

// LoadedIndex is a persistent artifact set read back from disk.
type LoadedIndex struct {
	Index    SimilarityIndex
	Rows     []domain.IndexRow
	Manifest *domain.IndexManifest
	Paths    domain.ArtifactPaths
}

// IndexArtifactStore persists and loads the three-file index artifact set.
type IndexArtifactStore interface {
	// Paths returns the artifact locations.
	Paths() domain.ArtifactPaths

	// BuildIndex creates an exact index over vectors for one build. Cosine
	// rows are L2-normalized in place first.
	BuildIndex(buildID string, metric domain.Metric, vectors [][]float32) (SimilarityIndex, error)

	// Conflicts returns the artifact paths that already exist.
	Conflicts() ([]string, error)

	// Write persists index, metadata and manifest as a unit, each stamped
	// with the index build id. Without overwrite it fails with
	// *domain.OutputConflictError before writing.
	Write(ctx context.Context, idx SimilarityIndex, rows []domain.IndexRow,
		manifest domain.IndexManifest, overwrite bool) error

	// Load reads the artifact set. Manifest is nil when absent. Artifacts
	// from different builds are rejected with domain.ErrMissingArtifact.
	Load(ctx context.Context) (*LoadedIndex, error)
}
