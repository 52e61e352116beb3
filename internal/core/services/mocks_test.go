package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/embedding/lexical"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// --- Mock implementations ---

// scriptedIndex implements driven.VectorIndex with fixed per-chunk scores.
// Chunks without a scripted score get 0.
type scriptedIndex struct {
	scores    map[string]float64
	chunks    []domain.Chunk
	addErr    error
	searchErr error
	lastLimit int
}

func (m *scriptedIndex) Add(_ context.Context, chunk domain.Chunk) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.chunks = append(m.chunks, chunk)
	return nil
}

func (m *scriptedIndex) Search(_ context.Context, _ string, limit int) ([]domain.ScoredChunk, error) {
	m.lastLimit = limit
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	out := make([]domain.ScoredChunk, len(m.chunks))
	for i, c := range m.chunks {
		out[i] = domain.ScoredChunk{Chunk: c, Score: m.scores[c.ID]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *scriptedIndex) Len() int {
	return len(m.chunks)
}

func indexFactory(idx *scriptedIndex) VectorIndexFactory {
	return func() driven.VectorIndex {
		idx.chunks = nil
		return idx
	}
}

func memoryIndexFactory() VectorIndexFactory {
	return func() driven.VectorIndex {
		return memory.NewVectorIndex(lexical.New())
	}
}

// tableEmbedder implements driven.EmbeddingService by looking texts up in
// a fixed table. Unknown texts fail.
type tableEmbedder struct {
	mu       sync.Mutex
	model    string
	vectors  map[string][]float32
	embedErr error
	batchErr error
	batches  [][]string
	calls    int
	closed   bool
}

func newTableEmbedder(model string, vectors map[string][]float32) *tableEmbedder {
	return &tableEmbedder{model: model, vectors: vectors}
}

func (m *tableEmbedder) lookup(text string) ([]float32, error) {
	v, ok := m.vectors[text]
	if !ok {
		return nil, fmt.Errorf("%w: no vector for %q", domain.ErrEmbeddingFailed, text)
	}
	return append([]float32{}, v...), nil
}

func (m *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.lookup(text)
}

func (m *tableEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]string{}, texts...))
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.lookup(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *tableEmbedder) Dimensions() int {
	for _, v := range m.vectors {
		return len(v)
	}
	return 0
}

func (m *tableEmbedder) ModelName() string { return m.model }

func (m *tableEmbedder) Ping(_ context.Context) error { return nil }

func (m *tableEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// failingArtifacts implements driven.IndexArtifactStore and counts loads.
type failingArtifacts struct {
	loadErr error
	loads   int
}

func (m *failingArtifacts) Paths() domain.ArtifactPaths { return domain.ArtifactPaths{} }

func (m *failingArtifacts) BuildIndex(_ string, _ domain.Metric, _ [][]float32) (driven.SimilarityIndex, error) {
	return nil, errors.New("not supported")
}

func (m *failingArtifacts) Conflicts() ([]string, error) { return nil, nil }

func (m *failingArtifacts) Write(
	_ context.Context, _ driven.SimilarityIndex, _ []domain.IndexRow, _ domain.IndexManifest, _ bool,
) error {
	return errors.New("not supported")
}

func (m *failingArtifacts) Load(_ context.Context) (*driven.LoadedIndex, error) {
	m.loads++
	return nil, m.loadErr
}

// stubChunker implements driven.Chunker by splitting on "|".
type stubChunker struct {
	calls int
}

func (m *stubChunker) Name() string { return "stub" }

func (m *stubChunker) Chunk(paperID, text string) []domain.Chunk {
	m.calls++
	var out []domain.Chunk
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '|' {
			if i > start {
				out = append(out, domain.NewChunk(paperID, len(out), text[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

// memCorpus implements driven.Corpus over an in-memory file map.
type memCorpus struct {
	files   map[string]string
	readErr map[string]error
	reads   int
}

func (m *memCorpus) List(_ context.Context) ([]string, error) {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *memCorpus) Read(_ context.Context, path string) (string, string, error) {
	m.reads++
	if err := m.readErr[path]; err != nil {
		return "", "", err
	}
	text, ok := m.files[path]
	if !ok {
		return "", "", fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	return text, "sha-" + text, nil
}

func (m *memCorpus) Hash(_ context.Context, path string) (string, error) {
	text, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	return "sha-" + text, nil
}
