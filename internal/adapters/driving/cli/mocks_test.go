package cli

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// fakeEmbedder maps known texts to fixed vectors. Unknown texts get a
// uniform vector.
type fakeEmbedder struct {
	mu      sync.Mutex
	model   string
	vectors map[string][]float32
	batches int
}

func newFakeEmbedder(model string) *fakeEmbedder {
	return &fakeEmbedder{
		model: model,
		vectors: map[string][]float32{
			"alpha": {1, 0, 0},
			"omega": {0, 1, 0},
		},
	}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return append([]float32{}, v...)
	}
	return []float32{1, 1, 1}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) ModelName() string { return f.model }
func (f *fakeEmbedder) Ping(_ context.Context) error {
	return nil
}
func (f *fakeEmbedder) Close() error { return nil }

// stubEmbeddingBackend swaps the embedding constructors for fakes.
func stubEmbeddingBackend(t *testing.T) {
	t.Helper()
	origNew, origProbe := newEmbeddingService, probeEmbeddingBackend
	newEmbeddingService = func(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
		return newFakeEmbedder(settings.Model), nil
	}
	probeEmbeddingBackend = func(_ context.Context, settings domain.EmbeddingSettings) driven.EmbeddingBackend {
		return driven.AvailableBackend(newFakeEmbedder(settings.Model))
	}
	t.Cleanup(func() {
		newEmbeddingService, probeEmbeddingBackend = origNew, origProbe
	})
}

// stubRetrieval implements retrievalPort with canned results.
type stubRetrieval struct {
	generous    []domain.EvidenceCandidate
	generousErr error
	top         []domain.EvidenceCandidate
	lastErr     string
	texts       map[string]domain.Chunk

	gotQuery  string
	gotChunks []domain.Chunk
	gotLimit  int
	resets    int
}

func (s *stubRetrieval) RetrieveGenerous(
	_ context.Context, query string, chunks []domain.Chunk,
) ([]domain.EvidenceCandidate, error) {
	s.gotQuery, s.gotChunks = query, chunks
	return s.generous, s.generousErr
}

func (s *stubRetrieval) RetrieveTop(_ context.Context, query string, limit int) []domain.EvidenceCandidate {
	s.gotQuery, s.gotLimit = query, limit
	return s.top
}

func (s *stubRetrieval) LoadChunksForCandidates(
	_ context.Context, candidates []domain.EvidenceCandidate,
) map[string]domain.Chunk {
	out := map[string]domain.Chunk{}
	for _, c := range candidates {
		if chunk, ok := s.texts[c.ChunkID]; ok {
			out[c.ChunkID] = chunk
		}
	}
	return out
}

func (s *stubRetrieval) LastError() string { return s.lastErr }
func (s *stubRetrieval) Reset()            { s.resets++ }

// stubIngest implements driving.IngestService over a fixed chunk map.
type stubIngest struct {
	chunks   map[string][]domain.Chunk
	manifest []domain.BuildManifestEntry
}

func (s *stubIngest) IngestDocument(_ context.Context, path string, _ bool) ([]domain.Chunk, error) {
	return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
}

func (s *stubIngest) IngestAll(_ context.Context, _ bool) (domain.IngestSummary, error) {
	summary := domain.IngestSummary{}
	for id, c := range s.chunks {
		summary[id] = len(c)
	}
	return summary, nil
}

func (s *stubIngest) Chunks(_ context.Context, paperID string) ([]domain.Chunk, error) {
	return s.chunks[paperID], nil
}

func (s *stubIngest) Manifest(_ context.Context) ([]domain.BuildManifestEntry, error) {
	return s.manifest, nil
}

// useServices installs stub services for one test.
func useServices(t *testing.T, retrieval retrievalPort, ingest *stubIngest) {
	t.Helper()
	origRetrieval, origIngest := retrievalService, ingestService
	retrievalService = retrieval
	if ingest != nil {
		ingestService = ingest
	}
	t.Cleanup(func() {
		retrievalService, ingestService = origRetrieval, origIngest
	})
}
