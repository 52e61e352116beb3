package services

import (
	"sort"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driving"
)

// Ensure Proposer implements the interface.
var _ driving.EvidenceProposer = (*Proposer)(nil)

// DefaultMaxCandidates is the proposal size used when none is configured.
const DefaultMaxCandidates = 3

// Proposer picks gold-evidence suggestions from ranked candidates.
// It never queries an index.
type Proposer struct{}

// NewProposer creates a proposer.
func NewProposer() *Proposer {
	return &Proposer{}
}

// Propose returns up to maxCandidates chunk ids by descending score. Ties
// keep input order. Duplicate ids are reported once.
func (p *Proposer) Propose(candidates []domain.EvidenceCandidate, maxCandidates int) []string {
	if maxCandidates <= 0 || len(candidates) == 0 {
		return []string{}
	}

	sorted := make([]domain.EvidenceCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	out := make([]string, 0, min(maxCandidates, len(sorted)))
	seen := make(map[string]struct{}, len(sorted))
	for _, c := range sorted {
		if len(out) == maxCandidates {
			break
		}
		if _, dup := seen[c.ChunkID]; dup {
			continue
		}
		seen[c.ChunkID] = struct{}{}
		out = append(out, c.ChunkID)
	}
	return out
}
