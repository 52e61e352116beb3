package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure ManifestStore implements the interface.
var _ driven.ManifestStore = (*ManifestStore)(nil)

// ManifestStore is an in-memory implementation of driven.ManifestStore.
type ManifestStore struct {
	mu      sync.RWMutex
	entries map[string]domain.BuildManifestEntry
}

// NewManifestStore creates a new in-memory manifest store.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{
		entries: make(map[string]domain.BuildManifestEntry),
	}
}

// Upsert stores or replaces an entry.
func (s *ManifestStore) Upsert(_ context.Context, entry domain.BuildManifestEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.PaperID] = entry
	return nil
}

// Get retrieves an entry by paper id.
func (s *ManifestStore) Get(_ context.Context, paperID string) (*domain.BuildManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[paperID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// List returns all entries sorted by paper id.
func (s *ManifestStore) List(_ context.Context) ([]domain.BuildManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.BuildManifestEntry, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PaperID < result[j].PaperID })
	return result, nil
}

// Close is a no-op.
func (s *ManifestStore) Close() error {
	return nil
}
