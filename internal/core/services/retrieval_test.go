package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/flatindex"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

const testModel = "test-embed"

func sixChunks() []domain.Chunk {
	chunks := make([]domain.Chunk, 6)
	for i := range chunks {
		chunks[i] = domain.NewChunk("p", i, fmt.Sprintf("text %d", i))
	}
	return chunks
}

func sixScores() map[string]float64 {
	return map[string]float64{
		"p_chunk_0000": 0.2,
		"p_chunk_0001": 0.5,
		"p_chunk_0002": 0.9,
		"p_chunk_0003": 0.7,
		"p_chunk_0004": 0.1,
		"p_chunk_0005": 0.05,
	}
}

func generousService(idx *scriptedIndex, topK int, threshold float64, capN int) *RetrievalService {
	cfg := domain.DefaultConfig()
	cfg.Retrieval.TopK = topK
	cfg.Retrieval.Threshold = threshold
	cfg.Retrieval.Cap = capN
	return NewRetrievalService(cfg, indexFactory(idx), driven.UnavailableBackend("unused"), nil, nil)
}

func candidateIDs(cands []domain.EvidenceCandidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ChunkID
	}
	return ids
}

// --- Generous retrieval ---

func TestRetrieveGenerous_AddsNeighboursOfTopHit(t *testing.T) {
	idx := &scriptedIndex{scores: sixScores()}
	svc := generousService(idx, 1, 0.99, 5)

	got, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)

	assert.Equal(t, []string{"p_chunk_0002", "p_chunk_0003", "p_chunk_0001"}, candidateIDs(got))
	for i, c := range got {
		assert.Equal(t, i+1, c.Rank)
	}
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
}

func TestRetrieveGenerous_ThresholdFillStopsAtCap(t *testing.T) {
	idx := &scriptedIndex{scores: sixScores()}
	svc := generousService(idx, 0, 0.0, 3)

	got, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)
	assert.Equal(t, []string{"p_chunk_0002", "p_chunk_0003", "p_chunk_0001"}, candidateIDs(got))
}

func TestRetrieveGenerous_TruncatesNeighboursToCap(t *testing.T) {
	idx := &scriptedIndex{scores: sixScores()}
	svc := generousService(idx, 3, 0.99, 2)

	got, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)
	assert.Equal(t, []string{"p_chunk_0002", "p_chunk_0003"}, candidateIDs(got))
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 2, got[1].Rank)
}

func TestRetrieveGenerous_FirstChunkHasNoLeftNeighbour(t *testing.T) {
	idx := &scriptedIndex{scores: map[string]float64{
		"p_chunk_0000": 0.9,
		"p_chunk_0001": 0.3,
	}}
	svc := generousService(idx, 1, 0.99, 5)

	got, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)
	assert.Equal(t, []string{"p_chunk_0000", "p_chunk_0001"}, candidateIDs(got))
}

func TestRetrieveGenerous_TiesKeepInsertionOrder(t *testing.T) {
	scores := map[string]float64{}
	for _, c := range sixChunks() {
		scores[c.ID] = 0.5
	}
	idx := &scriptedIndex{scores: scores}
	svc := generousService(idx, 1, 0.5, 3)

	got, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)
	assert.Equal(t, []string{"p_chunk_0000", "p_chunk_0001", "p_chunk_0002"}, candidateIDs(got))
}

func TestRetrieveGenerous_SearchesAtLeastCap(t *testing.T) {
	idx := &scriptedIndex{scores: sixScores()}
	svc := generousService(idx, 1, 0.5, 25)

	_, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)
	assert.Equal(t, 25, idx.lastLimit)

	svc = generousService(idx, 1, 0.5, 2)
	_, err = svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	require.NoError(t, err)
	assert.Equal(t, 6, idx.lastLimit)
}

func TestRetrieveGenerous_NeverExceedsCap(t *testing.T) {
	for capN := 0; capN <= 7; capN++ {
		for topK := 0; topK <= 6; topK++ {
			idx := &scriptedIndex{scores: sixScores()}
			svc := generousService(idx, topK, 0.0, capN)

			got, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
			require.NoError(t, err)
			assert.LessOrEqual(t, len(got), capN, "top_k=%d cap=%d", topK, capN)

			seen := map[string]bool{}
			for i, c := range got {
				assert.Equal(t, i+1, c.Rank)
				assert.False(t, seen[c.ChunkID], "duplicate %s", c.ChunkID)
				seen[c.ChunkID] = true
				if i > 0 {
					assert.GreaterOrEqual(t, got[i-1].Score, c.Score)
				}
			}
		}
	}
}

func TestRetrieveGenerous_EmptyChunks(t *testing.T) {
	idx := &scriptedIndex{}
	svc := generousService(idx, 8, 0.15, 25)

	got, err := svc.RetrieveGenerous(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveGenerous_IndexErrors(t *testing.T) {
	addErr := errors.New("embedder down")
	svc := generousService(&scriptedIndex{addErr: addErr}, 1, 0.5, 5)
	_, err := svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	assert.ErrorIs(t, err, addErr)

	searchErr := errors.New("search down")
	svc = generousService(&scriptedIndex{searchErr: searchErr}, 1, 0.5, 5)
	_, err = svc.RetrieveGenerous(context.Background(), "q", sixChunks())
	assert.ErrorIs(t, err, searchErr)
}

func TestRetrieveGenerous_LexicalEndToEnd(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Retrieval.TopK = 1
	cfg.Retrieval.Threshold = 0.99
	cfg.Retrieval.Cap = 5
	svc := NewRetrievalService(cfg, memoryIndexFactory(), driven.UnavailableBackend("unused"), nil, nil)

	chunks := []domain.Chunk{
		domain.NewChunk("p", 0, "cats and dogs"),
		domain.NewChunk("p", 1, "weather report"),
		domain.NewChunk("p", 2, "quantum photons entanglement"),
		domain.NewChunk("p", 3, "stock market"),
	}
	got, err := svc.RetrieveGenerous(context.Background(), "quantum photons", chunks)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "p_chunk_0002", got[0].ChunkID)
	assert.ElementsMatch(t, []string{"p_chunk_0001", "p_chunk_0002", "p_chunk_0003"}, candidateIDs(got))
}

// --- Persistent retrieval ---

func seededChunkStore(t *testing.T) *memory.ChunkStore {
	t.Helper()
	ctx := context.Background()
	store := memory.NewChunkStore()
	require.NoError(t, store.Write(ctx, "p1", []domain.Chunk{
		domain.NewChunk("p1", 0, "alpha"),
		domain.NewChunk("p1", 1, "beta"),
	}))
	require.NoError(t, store.Write(ctx, "p2", []domain.Chunk{
		domain.NewChunk("p2", 0, "gamma"),
		domain.NewChunk("p2", 1, "delta"),
	}))
	return store
}

func embedderTable() map[string][]float32 {
	return map[string][]float32{
		"alpha":    {1, 0, 0, 0},
		"beta":     {0, 1, 0, 0},
		"gamma":    {0, 0, 1, 0},
		"delta":    {0, 0, 0, 1},
		"mostly a": {0.9, 0.1, 0, 0},
	}
}

// buildTestIndex writes a persistent index over the seeded chunks.
func buildTestIndex(t *testing.T, metric domain.Metric) (*flatindex.Store, *memory.ChunkStore) {
	t.Helper()
	chunks := seededChunkStore(t)
	artifacts, err := flatindex.NewStore(t.TempDir())
	require.NoError(t, err)

	builder := NewIndexBuilder(chunks, artifacts, func(model string) (driven.EmbeddingService, error) {
		return newTableEmbedder(model, embedderTable()), nil
	})
	_, err = builder.Build(context.Background(), domain.BuildRequest{
		EmbeddingModel: testModel,
		BatchSize:      2,
		Metric:         metric,
	}, nil)
	require.NoError(t, err)
	return artifacts, chunks
}

func persistentService(
	artifacts driven.IndexArtifactStore, chunks driven.ChunkStore, backend driven.EmbeddingBackend,
) *RetrievalService {
	cfg := domain.DefaultConfig()
	cfg.Embedding.Model = testModel
	return NewRetrievalService(cfg, memoryIndexFactory(), backend, artifacts, chunks)
}

func TestRetrieveTop_SelfRetrieval(t *testing.T) {
	for _, metric := range []domain.Metric{domain.MetricCosine, domain.MetricL2} {
		t.Run(string(metric), func(t *testing.T) {
			artifacts, chunks := buildTestIndex(t, metric)
			embedder := newTableEmbedder(testModel, embedderTable())
			svc := persistentService(artifacts, chunks, driven.AvailableBackend(embedder))

			want := map[string]string{
				"alpha": "p1_chunk_0000",
				"beta":  "p1_chunk_0001",
				"gamma": "p2_chunk_0000",
				"delta": "p2_chunk_0001",
			}
			for text, id := range want {
				got := svc.RetrieveTop(context.Background(), text, 2)
				require.Len(t, got, 2, text)
				assert.Equal(t, id, got[0].ChunkID)
				assert.Equal(t, 1, got[0].Rank)
				assert.Equal(t, 2, got[1].Rank)
				if metric == domain.MetricCosine {
					assert.InDelta(t, 1.0, got[0].Score, 1e-5)
				} else {
					assert.InDelta(t, 0.0, got[0].Score, 1e-5)
				}
			}
			assert.Empty(t, svc.LastError())
		})
	}
}

func TestRetrieveTop_CosineNormalisesQuery(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(newTableEmbedder(testModel, embedderTable())))

	got := svc.RetrieveTop(context.Background(), "mostly a", 4)
	require.Len(t, got, 4)
	assert.Equal(t, "p1_chunk_0000", got[0].ChunkID)
	assert.Equal(t, "p1_chunk_0001", got[1].ChunkID)
	assert.LessOrEqual(t, got[0].Score, 1.0+1e-6)
}

func TestRetrieveTop_LimitBeyondIndexSize(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(newTableEmbedder(testModel, embedderTable())))

	got := svc.RetrieveTop(context.Background(), "alpha", 50)
	assert.Len(t, got, 4)
	for i, c := range got {
		assert.Equal(t, i+1, c.Rank)
	}
}

func TestRetrieveTop_NonPositiveLimit(t *testing.T) {
	artifacts := &failingArtifacts{loadErr: domain.ErrMissingArtifact}
	svc := persistentService(artifacts, nil, driven.UnavailableBackend("x"))

	assert.Empty(t, svc.RetrieveTop(context.Background(), "q", 0))
	assert.NotNil(t, svc.RetrieveTop(context.Background(), "q", -1))
	assert.Equal(t, 0, artifacts.loads)
}

func TestRetrieveTop_MissingArtifactsIsSticky(t *testing.T) {
	artifacts := &failingArtifacts{
		loadErr: fmt.Errorf("%w: missing index artifacts, expected a and b", domain.ErrMissingArtifact),
	}
	svc := persistentService(artifacts, nil, driven.AvailableBackend(newTableEmbedder(testModel, embedderTable())))

	got := svc.RetrieveTop(context.Background(), "alpha", 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, svc.LastError(), "missing index artifacts")

	svc.RetrieveTop(context.Background(), "alpha", 3)
	assert.Equal(t, 1, artifacts.loads)
	assert.Contains(t, svc.LastError(), "missing index artifacts")

	svc.Reset()
	assert.Empty(t, svc.LastError())
	svc.RetrieveTop(context.Background(), "alpha", 3)
	assert.Equal(t, 2, artifacts.loads)
}

func TestRetrieveTop_BackendUnavailable(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, chunks, driven.UnavailableBackend("OPENAI_API_KEY is not set."))

	assert.Empty(t, svc.RetrieveTop(context.Background(), "alpha", 3))
	assert.Contains(t, svc.LastError(), "OPENAI_API_KEY is not set.")
	assert.Empty(t, svc.LoadChunksForCandidates(context.Background(), []domain.EvidenceCandidate{{ChunkID: "p1_chunk_0000"}}))
}

func TestRetrieveTop_EmbedsQueryWithIndexModel(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	configured := newTableEmbedder("other-model", embedderTable())
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(configured))

	var models []string
	var created *tableEmbedder
	svc.SetEmbeddingFactory(func(model string) (driven.EmbeddingService, error) {
		models = append(models, model)
		created = newTableEmbedder(model, embedderTable())
		return created, nil
	})

	got := svc.RetrieveTop(context.Background(), "gamma", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "p2_chunk_0000", got[0].ChunkID)
	assert.Empty(t, svc.LastError())

	svc.RetrieveTop(context.Background(), "delta", 1)
	assert.Equal(t, []string{testModel}, models)
	assert.Equal(t, 2, created.calls)
	assert.Equal(t, 0, configured.calls)

	svc.Reset()
	assert.True(t, created.closed)
	assert.False(t, configured.closed)
}

func TestRetrieveTop_IndexModelFactoryErrorIsSoft(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(newTableEmbedder("other-model", embedderTable())))
	svc.SetEmbeddingFactory(func(string) (driven.EmbeddingService, error) {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", domain.ErrMissingCredential)
	})

	got := svc.RetrieveTop(context.Background(), "alpha", 3)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, svc.LastError(), testModel)
	assert.Contains(t, svc.LastError(), "OPENAI_API_KEY")
}

func TestRetrieveTop_ModelMismatchWithoutFactory(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(newTableEmbedder("other-model", embedderTable())))

	assert.Empty(t, svc.RetrieveTop(context.Background(), "alpha", 3))
	assert.Contains(t, svc.LastError(), testModel)
	assert.Contains(t, svc.LastError(), "other-model")
}

func TestRetrievalService_CloseReleasesIndexModelEmbedder(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	configured := newTableEmbedder("other-model", embedderTable())
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(configured))
	created := newTableEmbedder(testModel, embedderTable())
	svc.SetEmbeddingFactory(func(string) (driven.EmbeddingService, error) { return created, nil })

	require.Len(t, svc.RetrieveTop(context.Background(), "alpha", 1), 1)
	require.NoError(t, svc.Close())

	assert.True(t, created.closed)
	assert.False(t, configured.closed)
}

func TestRetrieveTop_QueryErrorIsSoftAndClears(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	embedder := newTableEmbedder(testModel, embedderTable())
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(embedder))

	embedder.embedErr = fmt.Errorf("%w: 503 from upstream", domain.ErrEmbeddingFailed)
	got := svc.RetrieveTop(context.Background(), "alpha", 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, svc.LastError(), "503 from upstream")

	embedder.embedErr = nil
	got = svc.RetrieveTop(context.Background(), "alpha", 3)
	assert.Len(t, got, 3)
	assert.Empty(t, svc.LastError())
}

// countingArtifacts counts loads of a real artifact store.
type countingArtifacts struct {
	driven.IndexArtifactStore
	loads atomic.Int32
}

func (c *countingArtifacts) Load(ctx context.Context) (*driven.LoadedIndex, error) {
	c.loads.Add(1)
	return c.IndexArtifactStore.Load(ctx)
}

func TestRetrieveTop_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	store, chunks := buildTestIndex(t, domain.MetricCosine)
	artifacts := &countingArtifacts{IndexArtifactStore: store}
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(newTableEmbedder(testModel, embedderTable())))

	var wg sync.WaitGroup
	results := make([][]domain.EvidenceCandidate, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.RetrieveTop(context.Background(), "gamma", 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), artifacts.loads.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, "p2_chunk_0000", r[0].ChunkID)
	}
}

func TestLoadChunksForCandidates(t *testing.T) {
	artifacts, chunks := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, chunks, driven.AvailableBackend(newTableEmbedder(testModel, embedderTable())))

	got := svc.LoadChunksForCandidates(context.Background(), []domain.EvidenceCandidate{
		{ChunkID: "p2_chunk_0001", Score: 0.5, Rank: 1},
		{ChunkID: "nope_chunk_0000", Score: 0.4, Rank: 2},
	})
	require.Len(t, got, 1)
	chunk := got["p2_chunk_0001"]
	assert.Equal(t, "delta", chunk.Text)
	assert.Equal(t, "p2", chunk.PaperID)
	assert.Equal(t, 1, chunk.Index)
}

func TestLoadChunksForCandidates_SkipsUnreadableChunks(t *testing.T) {
	artifacts, _ := buildTestIndex(t, domain.MetricCosine)
	svc := persistentService(artifacts, memory.NewChunkStore(),
		driven.AvailableBackend(newTableEmbedder(testModel, embedderTable())))

	got := svc.LoadChunksForCandidates(context.Background(), []domain.EvidenceCandidate{{ChunkID: "p1_chunk_0000"}})
	assert.Empty(t, got)
}
