package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string][]domain.Chunk),
	}
}

// Write replaces the stored chunks of a document.
func (s *ChunkStore) Write(_ context.Context, paperID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := append([]domain.Chunk{}, chunks...)
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })
	s.chunks[paperID] = stored
	return nil
}

// Read returns a copy of a document's chunks sorted by index.
func (s *ChunkStore) Read(_ context.Context, paperID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk{}, s.chunks[paperID]...), nil
}

// HasChunks reports whether any chunk is stored for the document.
func (s *ChunkStore) HasChunks(_ context.Context, paperID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[paperID]) > 0, nil
}

// Papers lists documents with chunks, sorted.
func (s *ChunkStore) Papers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	papers := make([]string, 0, len(s.chunks))
	for id, chunks := range s.chunks {
		if len(chunks) > 0 {
			papers = append(papers, id)
		}
	}
	sort.Strings(papers)
	return papers, nil
}

// Discover lists every chunk sorted by paper then chunk id.
func (s *ChunkStore) Discover(ctx context.Context) ([]domain.ChunkFile, error) {
	papers, _ := s.Papers(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var files []domain.ChunkFile
	for _, paperID := range papers {
		for _, c := range s.chunks[paperID] {
			files = append(files, domain.ChunkFile{
				PaperID: paperID,
				ChunkID: c.ID,
				Path:    "memory://" + paperID + "/" + c.ID,
			})
		}
	}
	if len(files) == 0 {
		return nil, domain.ErrNoChunks
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].PaperID != files[j].PaperID {
			return files[i].PaperID < files[j].PaperID
		}
		return files[i].ChunkID < files[j].ChunkID
	})
	return files, nil
}

// ReadFile returns the text of a discovered chunk.
func (s *ChunkStore) ReadFile(_ context.Context, file domain.ChunkFile) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks[file.PaperID] {
		if c.ID == file.ChunkID {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("chunk %s: %w", file.ChunkID, domain.ErrNotFound)
}
