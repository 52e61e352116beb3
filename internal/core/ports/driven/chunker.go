package driven

import "github.com/custodia-labs/evidence-bench/internal/core/domain"

// Chunker splits a document's text into overlapping token windows.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Chunk returns the windows in emission order. Text without tokens
	// yields an empty slice.
	Chunk(paperID, text string) []domain.Chunk
}
