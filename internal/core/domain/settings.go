package domain

import (
	"fmt"
	"time"
)

// SkipPolicy decides when re-ingestion of a document is a no-op.
type SkipPolicy string

// Available skip policies.
const (
	// SkipPolicyNonEmpty skips when the document's chunk directory holds
	// at least one chunk file.
	SkipPolicyNonEmpty SkipPolicy = "non_empty"

	// SkipPolicyHashMatch additionally requires the manifest hash to match
	// the current source file.
	SkipPolicyHashMatch SkipPolicy = "hash_match"
)

// IsValid returns true if the policy is recognised.
func (p SkipPolicy) IsValid() bool {
	return p == SkipPolicyNonEmpty || p == SkipPolicyHashMatch
}

// ManifestBackend selects where the build manifest is kept.
type ManifestBackend string

// Available manifest backends.
const (
	ManifestBackendJSON   ManifestBackend = "json"
	ManifestBackendSQLite ManifestBackend = "sqlite"
)

// IsValid returns true if the backend is recognised.
func (b ManifestBackend) IsValid() bool {
	return b == ManifestBackendJSON || b == ManifestBackendSQLite
}

// EmbedderKind selects the embedder used by generous retrieval.
type EmbedderKind string

// Available generous-retrieval embedders.
const (
	EmbedderLexical EmbedderKind = "lexical"
	EmbedderRemote  EmbedderKind = "remote"
)

// IsValid returns true if the embedder kind is recognised.
func (k EmbedderKind) IsValid() bool {
	return k == EmbedderLexical || k == EmbedderRemote
}

// ChunkingSettings configures the token window chunker.
type ChunkingSettings struct {
	Size    int
	Overlap int
}

// RetrievalSettings bounds generous retrieval.
type RetrievalSettings struct {
	TopK      int
	Threshold float64
	Cap       int
	Embedder  EmbedderKind
}

// ProposerSettings configures evidence proposal.
type ProposerSettings struct {
	MaxCandidates int
}

// EmbeddingSettings configures the remote embedding API.
type EmbeddingSettings struct {
	Model             string
	BaseURL           string
	BatchSize         int
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond float64
}

// PathSettings locates corpus, chunk and index directories.
type PathSettings struct {
	CorpusDir string
	ChunkDir  string
	IndexDir  string
}

// IngestSettings configures the ingestion pipeline.
type IngestSettings struct {
	SkipPolicy      SkipPolicy
	ManifestBackend ManifestBackend
}

// Config is the complete application configuration.
type Config struct {
	Chunking  ChunkingSettings
	Retrieval RetrievalSettings
	Proposer  ProposerSettings
	Embedding EmbeddingSettings
	Paths     PathSettings
	Ingest    IngestSettings
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Chunking: ChunkingSettings{Size: 300, Overlap: 60},
		Retrieval: RetrievalSettings{
			TopK:      8,
			Threshold: 0.15,
			Cap:       25,
			Embedder:  EmbedderLexical,
		},
		Proposer: ProposerSettings{MaxCandidates: 3},
		Embedding: EmbeddingSettings{
			Model:       "text-embedding-3-small",
			BatchSize:   64,
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		Paths: PathSettings{
			CorpusDir: "data/rag_corpus_text",
			ChunkDir:  "data/rag_corpus_chunked",
			IndexDir:  "data/faiss_rag_index",
		},
		Ingest: IngestSettings{
			SkipPolicy:      SkipPolicyNonEmpty,
			ManifestBackend: ManifestBackendJSON,
		},
	}
}

// Validate fails fast on settings that cannot be honoured.
func (c Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfig, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d",
			ErrConfig, c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Retrieval.TopK < 0 || c.Retrieval.Cap < 0 {
		return fmt.Errorf("%w: retrieval top_k and cap must not be negative", ErrConfig)
	}
	if !c.Retrieval.Embedder.IsValid() {
		return fmt.Errorf("%w: unknown retrieval embedder %q", ErrConfig, c.Retrieval.Embedder)
	}
	if c.Proposer.MaxCandidates < 0 {
		return fmt.Errorf("%w: max candidates must not be negative", ErrConfig)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrConfig, c.Embedding.BatchSize)
	}
	if !c.Ingest.SkipPolicy.IsValid() {
		return fmt.Errorf("%w: unknown skip policy %q", ErrConfig, c.Ingest.SkipPolicy)
	}
	if !c.Ingest.ManifestBackend.IsValid() {
		return fmt.Errorf("%w: unknown manifest backend %q", ErrConfig, c.Ingest.ManifestBackend)
	}
	return nil
}
