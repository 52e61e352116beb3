package mcp

import (
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval runs generous and persistent retrieval.
	Retrieval driving.RetrievalService

	// Proposer reduces candidates to a gold-evidence proposal.
	// A default proposer is used when nil.
	Proposer driving.EvidenceProposer

	// Ingest reads stored chunks and the build manifest. Optional; tools
	// and resources that need it report an error without it.
	Ingest driving.IngestService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
