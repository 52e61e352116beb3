package driving

import (
	"context"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

// RetrievalService exposes both retrieval paths to external actors.
type RetrievalService interface {
	// RetrieveGenerous runs top-k plus neighbour plus threshold retrieval
	// over one document's chunks.
	RetrieveGenerous(ctx context.Context, query string, chunks []domain.Chunk) ([]domain.EvidenceCandidate, error)

	// RetrieveTop queries the persistent index. It never fails: when the
	// index is unusable it returns an empty slice and LastError explains why.
	RetrieveTop(ctx context.Context, query string, limit int) []domain.EvidenceCandidate

	// LoadChunksForCandidates resolves candidate ids to chunk text through
	// the persistent index metadata.
	LoadChunksForCandidates(ctx context.Context, candidates []domain.EvidenceCandidate) map[string]domain.Chunk

	// LastError returns the most recent soft-failure diagnostic, or "".
	LastError() string
}

// EvidenceProposer reduces ranked candidates to a gold-chunk proposal.
type EvidenceProposer interface {
	// Propose returns up to maxCandidates chunk ids by descending score.
	Propose(candidates []domain.EvidenceCandidate, maxCandidates int) []string
}
