package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/services"
)

// defaultTopLimit is used by retrieve_top when no limit is given.
const defaultTopLimit = 10

// GenerousInput is the input schema for the retrieve_generous tool.
type GenerousInput struct {
	Query   string `json:"query" jsonschema:"the claim or question to find evidence for"`
	PaperID string `json:"paper_id" jsonschema:"the paper whose chunks are searched"`
}

// TopInput is the input schema for the retrieve_top tool.
type TopInput struct {
	Query string `json:"query" jsonschema:"the claim or question to find evidence for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of candidates to return (default 10)"`
}

// RetrievalOutput is the output schema of both retrieval tools.
type RetrievalOutput struct {
	Candidates []CandidateOutput `json:"candidates"`
	Count      int               `json:"count"`
	LastError  string            `json:"last_error,omitempty"`
}

// CandidateOutput represents one ranked evidence candidate.
type CandidateOutput struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// ProposeInput is the input schema for the propose_evidence tool.
type ProposeInput struct {
	Query         string `json:"query" jsonschema:"the claim or question to find evidence for"`
	PaperID       string `json:"paper_id,omitempty" jsonschema:"search this paper with generous retrieval instead of the persistent index"`
	MaxCandidates int    `json:"max_candidates,omitempty" jsonschema:"maximum number of chunk ids to propose (default 3)"`
}

// ProposeOutput is the output schema for the propose_evidence tool.
type ProposeOutput struct {
	ChunkIDs  []string `json:"chunk_ids"`
	LastError string   `json:"last_error,omitempty"`
}

// LoadChunksInput is the input schema for the load_chunks tool.
type LoadChunksInput struct {
	ChunkIDs []string `json:"chunk_ids" jsonschema:"chunk ids to resolve to text"`
}

// LoadChunksOutput is the output schema for the load_chunks tool.
type LoadChunksOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
}

// ChunkOutput is one resolved chunk.
type ChunkOutput struct {
	ChunkID string `json:"chunk_id"`
	PaperID string `json:"paper_id"`
	Index   int    `json:"index"`
	Text    string `json:"text"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_generous",
		Description: "Find evidence chunks in one paper: top hits, their neighbours and every chunk above the similarity threshold",
	}, s.handleRetrieveGenerous)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_top",
		Description: "Find the most similar chunks across the whole corpus using the persistent index",
	}, s.handleRetrieveTop)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "propose_evidence",
		Description: "Propose gold evidence chunk ids for a claim",
	}, s.handleProposeEvidence)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "load_chunks",
		Description: "Resolve chunk ids returned by retrieve_top to their text",
	}, s.handleLoadChunks)
}

func (s *Server) handleRetrieveGenerous(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerousInput,
) (*mcp.CallToolResult, RetrievalOutput, error) {
	candidates, err := s.generous(ctx, input.Query, input.PaperID)
	if err != nil {
		return nil, RetrievalOutput{}, err
	}
	return nil, toRetrievalOutput(candidates, ""), nil
}

func (s *Server) generous(ctx context.Context, query, paperID string) ([]domain.EvidenceCandidate, error) {
	if paperID == "" {
		return nil, fmt.Errorf("%w: paper_id is required", domain.ErrInvalidInput)
	}
	if s.ports.Ingest == nil {
		return nil, ErrMissingIngestService
	}
	chunks, err := s.ports.Ingest.Chunks(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("reading chunks for %s: %w", paperID, err)
	}
	return s.ports.Retrieval.RetrieveGenerous(ctx, query, chunks)
}

func (s *Server) handleRetrieveTop(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TopInput,
) (*mcp.CallToolResult, RetrievalOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultTopLimit
	}
	candidates := s.ports.Retrieval.RetrieveTop(ctx, input.Query, limit)
	return nil, toRetrievalOutput(candidates, s.ports.Retrieval.LastError()), nil
}

func (s *Server) handleProposeEvidence(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProposeInput,
) (*mcp.CallToolResult, ProposeOutput, error) {
	maxCandidates := input.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = services.DefaultMaxCandidates
	}

	var (
		candidates []domain.EvidenceCandidate
		lastErr    string
	)
	if input.PaperID != "" {
		var err error
		candidates, err = s.generous(ctx, input.Query, input.PaperID)
		if err != nil {
			return nil, ProposeOutput{}, err
		}
	} else {
		candidates = s.ports.Retrieval.RetrieveTop(ctx, input.Query, max(maxCandidates, defaultTopLimit))
		lastErr = s.ports.Retrieval.LastError()
	}

	return nil, ProposeOutput{
		ChunkIDs:  s.ports.Proposer.Propose(candidates, maxCandidates),
		LastError: lastErr,
	}, nil
}

func (s *Server) handleLoadChunks(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LoadChunksInput,
) (*mcp.CallToolResult, LoadChunksOutput, error) {
	candidates := make([]domain.EvidenceCandidate, len(input.ChunkIDs))
	for i, id := range input.ChunkIDs {
		candidates[i] = domain.EvidenceCandidate{ChunkID: id, Rank: i + 1}
	}
	loaded := s.ports.Retrieval.LoadChunksForCandidates(ctx, candidates)

	output := LoadChunksOutput{Chunks: make([]ChunkOutput, 0, len(loaded))}
	for _, id := range input.ChunkIDs {
		chunk, ok := loaded[id]
		if !ok {
			continue
		}
		output.Chunks = append(output.Chunks, ChunkOutput{
			ChunkID: chunk.ID,
			PaperID: chunk.PaperID,
			Index:   chunk.Index,
			Text:    chunk.Text,
		})
		delete(loaded, id)
	}
	return nil, output, nil
}

func toRetrievalOutput(candidates []domain.EvidenceCandidate, lastErr string) RetrievalOutput {
	output := RetrievalOutput{
		Candidates: make([]CandidateOutput, len(candidates)),
		Count:      len(candidates),
		LastError:  lastErr,
	}
	for i, c := range candidates {
		output.Candidates[i] = CandidateOutput{ChunkID: c.ChunkID, Score: c.Score, Rank: c.Rank}
	}
	return output
}
