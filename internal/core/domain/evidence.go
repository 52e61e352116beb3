package domain

// EvidenceCandidate is a chunk proposed as possible supporting evidence.
// Score is comparable only within one retrieval call; Rank is dense and
// 1-based.
type EvidenceCandidate struct {
	ChunkID string  `json:"chunk_id" yaml:"chunk_id"`
	Score   float64 `json:"score" yaml:"score"`
	Rank    int     `json:"rank" yaml:"rank"`
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// SparseVector maps terms (or dimension keys) to weights.
// Absent keys are implicit zeros.
type SparseVector map[string]float64
