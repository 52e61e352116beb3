package mcp

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	generous     []domain.EvidenceCandidate
	generousErr  error
	top          []domain.EvidenceCandidate
	lastError    string
	chunks       map[string]domain.Chunk
	lastQuery    string
	lastLimit    int
	lastChunks   []domain.Chunk
	loadedLookup []domain.EvidenceCandidate
}

func (m *mockRetrievalService) RetrieveGenerous(
	_ context.Context, query string, chunks []domain.Chunk,
) ([]domain.EvidenceCandidate, error) {
	m.lastQuery = query
	m.lastChunks = chunks
	return m.generous, m.generousErr
}

func (m *mockRetrievalService) RetrieveTop(_ context.Context, query string, limit int) []domain.EvidenceCandidate {
	m.lastQuery = query
	m.lastLimit = limit
	if m.top == nil {
		return []domain.EvidenceCandidate{}
	}
	return m.top
}

func (m *mockRetrievalService) LoadChunksForCandidates(
	_ context.Context, candidates []domain.EvidenceCandidate,
) map[string]domain.Chunk {
	m.loadedLookup = candidates
	out := make(map[string]domain.Chunk)
	for _, c := range candidates {
		if chunk, ok := m.chunks[c.ChunkID]; ok {
			out[c.ChunkID] = chunk
		}
	}
	return out
}

func (m *mockRetrievalService) LastError() string {
	return m.lastError
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	chunks   map[string][]domain.Chunk
	manifest []domain.BuildManifestEntry
	err      error
}

func (m *mockIngestService) IngestDocument(_ context.Context, _ string, _ bool) ([]domain.Chunk, error) {
	return nil, m.err
}

func (m *mockIngestService) IngestAll(_ context.Context, _ bool) (domain.IngestSummary, error) {
	return domain.IngestSummary{}, m.err
}

func (m *mockIngestService) Chunks(_ context.Context, paperID string) ([]domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.chunks[paperID], nil
}

func (m *mockIngestService) Manifest(_ context.Context) ([]domain.BuildManifestEntry, error) {
	return m.manifest, m.err
}
