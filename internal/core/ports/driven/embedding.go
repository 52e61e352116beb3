package driven

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// EmbeddingService generates dense vector embeddings through a remote model.
//
// EmbedBatch must return exactly one vector per input text, index-aligned
// with the request. The index builder's row identity depends on it.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one request.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the expected embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// TextEmbedder maps text to a sparse vector. The lexical implementation
// is the default; a dense variant wraps an EmbeddingService.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) (domain.SparseVector, error)
}

// EmbeddingBackend is the result of probing for the remote embedding
// backend once at startup. Exactly one of Service and Reason is set.
type EmbeddingBackend struct {
	Service EmbeddingService
	Reason  string
}

// AvailableBackend wraps a ready service.
func AvailableBackend(svc EmbeddingService) EmbeddingBackend {
	return EmbeddingBackend{Service: svc}
}

// UnavailableBackend records why no service could be constructed.
func UnavailableBackend(reason string) EmbeddingBackend {
	return EmbeddingBackend{Reason: reason}
}

// Available reports whether a service is present.
func (b EmbeddingBackend) Available() bool {
	return b.Service != nil
}
