package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure ManifestStore implements the interface.
var _ driven.ManifestStore = (*ManifestStore)(nil)

// ManifestFileName is the build manifest file inside a chunk root.
const ManifestFileName = "manifest.json"

// ManifestStore keeps the build manifest as one JSON object keyed by
// paper id.
type ManifestStore struct {
	mu   sync.Mutex
	path string
}

// NewManifestStore creates a manifest store backed by the given file.
func NewManifestStore(path string) *ManifestStore {
	return &ManifestStore{path: path}
}

// Path returns the manifest file path.
func (s *ManifestStore) Path() string {
	return s.path
}

// Upsert replaces the entry for entry.PaperID and rewrites the file.
func (s *ManifestStore) Upsert(_ context.Context, entry domain.BuildManifestEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[entry.PaperID] = entry
	return s.save(entries)
}

// Get returns the entry for a paper id.
func (s *ManifestStore) Get(_ context.Context, paperID string) (*domain.BuildManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[paperID]
	if !ok {
		return nil, fmt.Errorf("manifest entry %s: %w", paperID, domain.ErrNotFound)
	}
	return &entry, nil
}

// List returns all entries sorted by paper id.
func (s *ManifestStore) List(_ context.Context) ([]domain.BuildManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make([]domain.BuildManifestEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PaperID < result[j].PaperID })
	return result, nil
}

// Close is a no-op; every write is flushed immediately.
func (s *ManifestStore) Close() error {
	return nil
}

// load reads the manifest (caller must hold lock). A missing file is empty.
func (s *ManifestStore) load() (map[string]domain.BuildManifestEntry, error) {
	entries := make(map[string]domain.BuildManifestEntry)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", s.path, err)
	}
	return entries, nil
}

// save writes the manifest through a temp file (caller must hold lock).
func (s *ManifestStore) save(entries map[string]domain.BuildManifestEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return os.Rename(tmp, s.path)
}
