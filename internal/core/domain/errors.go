package domain

import (
	"errors"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig indicates invalid tuning parameters (chunk overlap, batch
	// size, metric). Never silently corrected.
	ErrConfig = errors.New("configuration error")

	// ErrMissingCredential indicates the remote embedding API key is absent.
	ErrMissingCredential = errors.New("missing credential")

	// ErrMissingArtifact indicates persistent index files or the chunk root are absent.
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrNoChunks indicates a chunk root holds no chunk files.
	ErrNoChunks = errors.New("no chunk files found")

	// ErrOutputConflict indicates build artifacts already exist and
	// overwrite was not requested.
	ErrOutputConflict = errors.New("output files already exist")

	// ErrEmbeddingFailed indicates the remote embedding API returned an error.
	ErrEmbeddingFailed = errors.New("embedding request failed")

	// ErrEmbeddingUnavailable indicates the embedding backend is not available.
	// Persistent retrieval degrades to empty results without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// OutputConflictError lists the artifact paths that block a build.
type OutputConflictError struct {
	Paths []string
}

// Error implements error.
func (e *OutputConflictError) Error() string {
	return "output files already exist (" + strings.Join(e.Paths, ", ") +
		"). Use --overwrite to replace them"
}

// Is matches ErrOutputConflict.
func (e *OutputConflictError) Is(target error) bool {
	return target == ErrOutputConflict
}
