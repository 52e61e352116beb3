package driving

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// IngestService turns cleaned corpus documents into persisted chunks.
type IngestService interface {
	// IngestDocument chunks one source file. Unless force is set, documents
	// that already have chunks are skipped and their stored chunks returned.
	IngestDocument(ctx context.Context, sourcePath string, force bool) ([]domain.Chunk, error)

	// IngestAll ingests every corpus document, continuing past failures.
	// The returned error joins all per-document failures.
	IngestAll(ctx context.Context, force bool) (domain.IngestSummary, error)

	// Chunks returns the stored chunks of one document.
	Chunks(ctx context.Context, paperID string) ([]domain.Chunk, error)

	// Manifest lists the build manifest entries.
	Manifest(ctx context.Context) ([]domain.BuildManifestEntry, error)
}
