package domain

import (
	"fmt"
	"time"
)

// Artifact file names inside a persistent index directory.
const (
	IndexFileName    = "chunks.index"
	MetadataFileName = "chunks_metadata.jsonl"
	ManifestFileName = "index_manifest.json"
)

// Metric is the similarity metric of a persistent index.
type Metric string

// Supported metrics.
const (
	// MetricCosine ranks by inner product over L2-normalized vectors, descending.
	MetricCosine Metric = "cosine"

	// MetricL2 ranks by squared euclidean distance, ascending.
	MetricL2 Metric = "l2"
)

// IsValid returns true if the metric is recognised.
func (m Metric) IsValid() bool {
	return m == MetricCosine || m == MetricL2
}

// String returns the string representation.
func (m Metric) String() string {
	return string(m)
}

// ParseMetric converts a user-supplied value into a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: metric must be one of cosine, l2, got %q", ErrConfig, s)
	}
	return m, nil
}

// IndexRow joins one vector of the persistent index back to its chunk.
// VectorID equals the row position in the embedding matrix. BuildID ties
// the row to the index blob it was written with.
type IndexRow struct {
	VectorID int    `json:"vector_id"`
	PaperID  string `json:"paper_id"`
	ChunkID  string `json:"chunk_id"`
	FilePath string `json:"file_path"`
	BuildID  string `json:"build_id,omitempty"`
}

// IndexManifest describes one persistent index build.
type IndexManifest struct {
	BuildID        string    `json:"build_id"`
	CreatedAt      time.Time `json:"created_at"`
	EmbeddingModel string    `json:"embedding_model"`
	Metric         Metric    `json:"metric"`
	Dimension      int       `json:"dimension"`
	NumVectors     int       `json:"num_vectors"`
	IndexFile      string    `json:"index_file"`
	MetadataFile   string    `json:"metadata_file"`
}

// ArtifactPaths lists the absolute locations of a persistent index set.
type ArtifactPaths struct {
	Dir      string `json:"output_dir" yaml:"output_dir"`
	Index    string `json:"index_path" yaml:"index_path"`
	Metadata string `json:"metadata_path" yaml:"metadata_path"`
	Manifest string `json:"manifest_path" yaml:"manifest_path"`
}

// All returns the three artifact paths in write order.
func (p ArtifactPaths) All() []string {
	return []string{p.Index, p.Metadata, p.Manifest}
}

// BuildRequest carries the parameters of one persistent index build.
type BuildRequest struct {
	EmbeddingModel string
	BatchSize      int
	Metric         Metric
	Overwrite      bool
}

// Validate rejects malformed build parameters.
func (r BuildRequest) Validate() error {
	if r.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrConfig, r.BatchSize)
	}
	if !r.Metric.IsValid() {
		return fmt.Errorf("%w: unknown metric %q", ErrConfig, r.Metric)
	}
	return nil
}

// BuildSummary reports the outcome of a successful build.
type BuildSummary struct {
	BuildID       string `json:"build_id" yaml:"build_id"`
	NumChunks     int    `json:"num_chunks" yaml:"num_chunks"`
	Dimension     int    `json:"dimension" yaml:"dimension"`
	ArtifactPaths `yaml:",inline"`
}

// BuildProgress receives a completion fraction in [0, 1] and a message.
type BuildProgress func(fraction float64, message string)
