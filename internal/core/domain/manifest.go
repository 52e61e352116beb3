package domain

import "time"

// BuildManifestEntry records how one document was chunked.
// It is used to detect whether chunking is stale relative to its source.
type BuildManifestEntry struct {
	PaperID    string    `json:"paper_id" yaml:"paper_id"`
	SourcePath string    `json:"source_path" yaml:"source_path"`
	SHA256     string    `json:"sha256" yaml:"sha256"`
	ChunkCount int       `json:"chunk_count" yaml:"chunk_count"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// IngestSummary maps each processed paper id to its chunk count.
type IngestSummary map[string]int
