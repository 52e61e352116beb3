package driven

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// ChunkStore persists chunk windows under a per-document namespace.
type ChunkStore interface {
	// Write persists each chunk as one unit named by its chunk id.
	Write(ctx context.Context, paperID string, chunks []domain.Chunk) error

	// Read returns a document's chunks sorted by index.
	Read(ctx context.Context, paperID string) ([]domain.Chunk, error)

	// HasChunks reports whether the document already has at least one chunk.
	HasChunks(ctx context.Context, paperID string) (bool, error)

	// Papers lists the documents that have chunks, sorted.
	Papers(ctx context.Context) ([]string, error)

	// Discover lists every chunk file in stable sorted order.
	Discover(ctx context.Context) ([]domain.ChunkFile, error)

	// ReadFile returns the text of one discovered chunk file.
	ReadFile(ctx context.Context, file domain.ChunkFile) (string, error)
}

// ManifestStore persists the per-document build manifest.
type ManifestStore interface {
	// Upsert records the entry for its paper id, replacing any previous one.
	Upsert(ctx context.Context, entry domain.BuildManifestEntry) error

	// Get returns the entry for a paper id or domain.ErrNotFound.
	Get(ctx context.Context, paperID string) (*domain.BuildManifestEntry, error)

	// List returns all entries sorted by paper id.
	List(ctx context.Context) ([]domain.BuildManifestEntry, error)

	// Close releases resources.
	Close() error
}

// Corpus reads the cleaned source documents that feed ingestion.
type Corpus interface {
	// List returns document paths in stable sorted order.
	List(ctx context.Context) ([]string, error)

	// Read returns a document's text and the sha256 of its bytes.
	Read(ctx context.Context, path string) (text string, sha256 string, err error)

	// Hash returns the sha256 of a document without decoding it.
	Hash(ctx context.Context, path string) (string, error)
}
