package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driving"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// VectorIndexFactory creates an empty ephemeral index for one generous
// retrieval call.
type VectorIndexFactory func() driven.VectorIndex

// Retrieval status labels.
const (
	retrievalOK          = "ok"
	retrievalUnavailable = "unavailable"
	retrievalError       = "error"
)

// persistentState is the loaded persistent index. It is immutable once
// published, so readers need no lock.
type persistentState struct {
	index     driven.SimilarityIndex
	rowsByID  map[int]domain.IndexRow
	rowsByRef map[string]domain.IndexRow
	metric    domain.Metric
	model     string
	embedder  driven.EmbeddingService

	// ownsEmbedder is set when embedder was created for the index model
	// and must be closed with the state.
	ownsEmbedder bool
}

// RetrievalService implements generous and persistent retrieval.
type RetrievalService struct {
	settings     domain.RetrievalSettings
	defaultModel string
	newIndex     VectorIndexFactory
	backend      driven.EmbeddingBackend
	embedders    EmbeddingServiceFactory
	artifacts    driven.IndexArtifactStore
	chunks       driven.ChunkStore
	metrics      *observability.Metrics

	// initMu serialises the readiness check. Once state is published the
	// fast path only does an atomic load.
	initMu   sync.Mutex
	state    atomic.Pointer[persistentState]
	readyErr string

	queryErr atomic.Pointer[string]

	textMu    sync.Mutex
	textCache map[string]string
}

// NewRetrievalService creates a retrieval service. The backend is the
// result of a single startup probe; artifacts and chunks are only touched
// by persistent retrieval.
func NewRetrievalService(
	cfg domain.Config,
	newIndex VectorIndexFactory,
	backend driven.EmbeddingBackend,
	artifacts driven.IndexArtifactStore,
	chunks driven.ChunkStore,
) *RetrievalService {
	return &RetrievalService{
		settings:     cfg.Retrieval,
		defaultModel: cfg.Embedding.Model,
		newIndex:     newIndex,
		backend:      backend,
		artifacts:    artifacts,
		chunks:       chunks,
		textCache:    make(map[string]string),
	}
}

// SetMetrics attaches optional metrics.
func (s *RetrievalService) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// SetEmbeddingFactory lets persistent retrieval embed queries with the
// model recorded in the index manifest when it differs from the model of
// the probed backend.
func (s *RetrievalService) SetEmbeddingFactory(f EmbeddingServiceFactory) {
	s.embedders = f
}

// Close releases an embedding service created for the index model.
func (s *RetrievalService) Close() error {
	s.initMu.Lock()
	old := s.state.Swap(nil)
	s.initMu.Unlock()
	return closeState(old)
}

func closeState(st *persistentState) error {
	if st == nil || !st.ownsEmbedder {
		return nil
	}
	return st.embedder.Close()
}

// RetrieveGenerous selects the top_k hits, their positional neighbours and
// every hit at or above threshold, capped and re-ranked by score.
func (s *RetrievalService) RetrieveGenerous(
	ctx context.Context, query string, chunks []domain.Chunk,
) ([]domain.EvidenceCandidate, error) {
	logger.Section("Generous Retrieval")
	start := time.Now()

	result, err := s.retrieveGenerous(ctx, query, chunks)
	if err != nil {
		s.metrics.Retrieval("generous", retrievalError, 0, time.Since(start))
		return nil, err
	}
	s.metrics.Retrieval("generous", retrievalOK, len(result), time.Since(start))
	return result, nil
}

func (s *RetrievalService) retrieveGenerous(
	ctx context.Context, query string, chunks []domain.Chunk,
) ([]domain.EvidenceCandidate, error) {
	topK, threshold, capN := s.settings.TopK, s.settings.Threshold, s.settings.Cap
	logger.Debug("Chunks: %d, top_k: %d, threshold: %.3f, cap: %d", len(chunks), topK, threshold, capN)

	index := s.newIndex()
	for _, c := range chunks {
		if err := index.Add(ctx, c); err != nil {
			return nil, fmt.Errorf("indexing chunk %s: %w", c.ID, err)
		}
	}

	scored, err := index.Search(ctx, query, max(len(chunks), capN))
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	byID := make(map[string]float64, len(scored))
	for _, sc := range scored {
		byID[sc.Chunk.ID] = sc.Score
	}

	sel := newSelection()
	for _, hit := range scored[:min(max(topK, 0), len(scored))] {
		sel.put(hit.Chunk.ID, hit.Score)
		for _, n := range []int{hit.Chunk.Index - 1, hit.Chunk.Index + 1} {
			if n < 0 {
				continue
			}
			id := domain.ChunkID(hit.Chunk.PaperID, n)
			if score, ok := byID[id]; ok {
				sel.put(id, score)
			}
		}
	}
	logger.Debug("Seeded %d candidates from top hits and neighbours", sel.len())

	for _, hit := range scored {
		if hit.Score >= threshold {
			sel.put(hit.Chunk.ID, hit.Score)
		}
		if sel.len() >= capN {
			break
		}
	}

	ranked := sel.ranked()
	if len(ranked) > capN {
		ranked = ranked[:max(capN, 0)]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	logger.Debug("Returning %d candidates", len(ranked))
	return ranked, nil
}

// selection is an insertion-ordered id to score map. Re-putting an id
// updates its score in place.
type selection struct {
	order  []string
	scores map[string]float64
}

func newSelection() *selection {
	return &selection{scores: make(map[string]float64)}
}

func (s *selection) put(id string, score float64) {
	if _, ok := s.scores[id]; !ok {
		s.order = append(s.order, id)
	}
	s.scores[id] = score
}

func (s *selection) len() int { return len(s.order) }

// ranked returns candidates sorted by descending score, ties in insertion
// order.
func (s *selection) ranked() []domain.EvidenceCandidate {
	out := make([]domain.EvidenceCandidate, len(s.order))
	for i, id := range s.order {
		out[i] = domain.EvidenceCandidate{ChunkID: id, Score: s.scores[id]}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

// RetrieveTop queries the persistent index. Any failure yields an empty
// result and is reported through LastError.
func (s *RetrievalService) RetrieveTop(ctx context.Context, query string, limit int) []domain.EvidenceCandidate {
	logger.Section("Persistent Retrieval")
	start := time.Now()

	if limit <= 0 {
		return []domain.EvidenceCandidate{}
	}

	st, ok := s.ensureReady(ctx)
	if !ok {
		s.metrics.Retrieval("top", retrievalUnavailable, 0, time.Since(start))
		return []domain.EvidenceCandidate{}
	}

	ranked, err := s.searchPersistent(ctx, st, query, limit)
	if err != nil {
		s.setQueryErr(err.Error())
		logger.Warn("persistent retrieval failed: %v", err)
		s.metrics.Retrieval("top", retrievalError, 0, time.Since(start))
		return []domain.EvidenceCandidate{}
	}
	s.setQueryErr("")
	s.metrics.Retrieval("top", retrievalOK, len(ranked), time.Since(start))
	return ranked
}

func (s *RetrievalService) searchPersistent(
	ctx context.Context, st *persistentState, query string, limit int,
) ([]domain.EvidenceCandidate, error) {
	vec, err := st.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if st.metric == domain.MetricCosine {
		normalizeL2(vec)
	}

	hits, err := st.index.Search(vec, limit)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	ranked := make([]domain.EvidenceCandidate, 0, len(hits))
	for _, hit := range hits {
		if hit.VectorID < 0 {
			continue
		}
		row, ok := st.rowsByID[hit.VectorID]
		if !ok {
			continue
		}
		ranked = append(ranked, domain.EvidenceCandidate{
			ChunkID: row.ChunkID,
			Score:   float64(hit.Score),
			Rank:    len(ranked) + 1,
		})
	}
	logger.Debug("Persistent search returned %d of %d hits", len(ranked), len(hits))
	return ranked, nil
}

// LoadChunksForCandidates resolves candidates to chunk text through the
// index metadata. Candidates without a row or whose file is gone are
// omitted.
func (s *RetrievalService) LoadChunksForCandidates(
	ctx context.Context, candidates []domain.EvidenceCandidate,
) map[string]domain.Chunk {
	out := make(map[string]domain.Chunk)
	st, ok := s.ensureReady(ctx)
	if !ok {
		return out
	}

	for _, cand := range candidates {
		row, ok := st.rowsByRef[cand.ChunkID]
		if !ok {
			continue
		}
		text, err := s.chunkText(ctx, row)
		if err != nil {
			logger.Debug("Skipping %s: %v", cand.ChunkID, err)
			continue
		}
		index, _ := domain.ParseChunkIndex(cand.ChunkID)
		out[cand.ChunkID] = domain.Chunk{
			ID:      cand.ChunkID,
			PaperID: row.PaperID,
			Text:    text,
			Index:   index,
		}
	}
	return out
}

func (s *RetrievalService) chunkText(ctx context.Context, row domain.IndexRow) (string, error) {
	s.textMu.Lock()
	defer s.textMu.Unlock()

	if text, ok := s.textCache[row.ChunkID]; ok {
		return text, nil
	}
	text, err := s.chunks.ReadFile(ctx, domain.ChunkFile{
		PaperID: row.PaperID,
		ChunkID: row.ChunkID,
		Path:    row.FilePath,
	})
	if err != nil {
		return "", err
	}
	s.textCache[row.ChunkID] = text
	return text, nil
}

// LastError returns the readiness diagnostic if the persistent index is
// unusable, otherwise the error of the last persistent query.
func (s *RetrievalService) LastError() string {
	s.initMu.Lock()
	readyErr := s.readyErr
	s.initMu.Unlock()
	if readyErr != "" {
		return readyErr
	}
	if p := s.queryErr.Load(); p != nil {
		return *p
	}
	return ""
}

// Reset drops the loaded index, cached texts and diagnostics so the next
// persistent call runs the readiness check again.
func (s *RetrievalService) Reset() {
	s.initMu.Lock()
	old := s.state.Swap(nil)
	s.readyErr = ""
	s.initMu.Unlock()

	if err := closeState(old); err != nil {
		logger.Debug("Closing query embedder: %v", err)
	}
	s.queryErr.Store(nil)

	s.textMu.Lock()
	s.textCache = make(map[string]string)
	s.textMu.Unlock()
	logger.Debug("Persistent retrieval state reset")
}

func (s *RetrievalService) setQueryErr(msg string) {
	if msg == "" {
		s.queryErr.Store(nil)
		return
	}
	s.queryErr.Store(&msg)
}

// ensureReady loads the persistent index once. A failure is sticky until
// Reset.
func (s *RetrievalService) ensureReady(ctx context.Context) (*persistentState, bool) {
	if st := s.state.Load(); st != nil {
		return st, true
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if st := s.state.Load(); st != nil {
		return st, true
	}
	if s.readyErr != "" {
		return nil, false
	}

	st, err := s.load(ctx)
	if err != nil {
		s.readyErr = err.Error()
		logger.Warn("persistent retrieval unavailable: %s", s.readyErr)
		return nil, false
	}
	s.state.Store(st)
	s.metrics.IndexLoaded(st.index.Len())
	logger.Info("Loaded persistent index: %d vectors, metric %s, model %s", st.index.Len(), st.metric, st.model)
	return st, true
}

func (s *RetrievalService) load(ctx context.Context) (*persistentState, error) {
	if s.artifacts == nil {
		return nil, fmt.Errorf("%w: no index store configured", domain.ErrMissingArtifact)
	}
	loaded, err := s.artifacts.Load(ctx)
	if err != nil {
		return nil, err
	}

	st := &persistentState{
		index:     loaded.Index,
		rowsByID:  make(map[int]domain.IndexRow, len(loaded.Rows)),
		rowsByRef: make(map[string]domain.IndexRow, len(loaded.Rows)),
		metric:    loaded.Index.Metric(),
		model:     s.defaultModel,
	}
	for _, row := range loaded.Rows {
		st.rowsByID[row.VectorID] = row
		st.rowsByRef[row.ChunkID] = row
	}
	if m := loaded.Manifest; m != nil {
		if m.EmbeddingModel != "" {
			st.model = m.EmbeddingModel
		}
		if m.Metric != "" && m.Metric != st.metric {
			logger.Warn("index manifest says metric %s but the index was built with %s", m.Metric, st.metric)
		}
	} else {
		logger.Debug("No index manifest, assuming model %s", st.model)
	}

	if !s.backend.Available() {
		reason := s.backend.Reason
		if reason == "" {
			reason = "embedding backend is not configured"
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrEmbeddingUnavailable, reason)
	}
	if s.backend.Service.ModelName() == st.model {
		st.embedder = s.backend.Service
		return st, nil
	}
	if s.embedders == nil {
		return nil, fmt.Errorf("%w: index was built with embedding model %s but the embedding service uses %s",
			domain.ErrConfig, st.model, s.backend.Service.ModelName())
	}
	svc, err := s.embedders(st.model)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service for index model %s: %w", st.model, err)
	}
	logger.Debug("Embedding queries with index model %s instead of %s", st.model, s.backend.Service.ModelName())
	st.embedder = svc
	st.ownsEmbedder = true
	return st, nil
}

// normalizeL2 scales v to unit length in place. Zero vectors are left as is.
func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
