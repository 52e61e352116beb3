package file

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Configuration keys.
const (
	KeyChunkSize         = "chunking.size"
	KeyChunkOverlap      = "chunking.overlap"
	KeyTopK              = "retrieval.top_k"
	KeyThreshold         = "retrieval.threshold"
	KeyCap               = "retrieval.cap"
	KeyEmbedder          = "retrieval.embedder"
	KeyMaxCandidates     = "proposer.max_candidates"
	KeyEmbeddingModel    = "embedding.model"
	KeyEmbeddingBaseURL  = "embedding.base_url"
	KeyBatchSize         = "embedding.batch_size"
	KeyTimeoutSeconds    = "embedding.timeout_seconds"
	KeyMaxAttempts       = "embedding.max_attempts"
	KeyRequestsPerSecond = "embedding.requests_per_second"
	KeyCorpusDir         = "paths.corpus_dir"
	KeyChunkDir          = "paths.chunk_dir"
	KeyIndexDir          = "paths.index_dir"
	KeySkipPolicy        = "ingest.skip_policy"
	KeyManifestBackend   = "ingest.manifest_backend"
)

// valueKind is the TOML type a key is stored as.
type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
)

var keyKinds = map[string]valueKind{
	KeyChunkSize:         kindInt,
	KeyChunkOverlap:      kindInt,
	KeyTopK:              kindInt,
	KeyThreshold:         kindFloat,
	KeyCap:               kindInt,
	KeyEmbedder:          kindString,
	KeyMaxCandidates:     kindInt,
	KeyEmbeddingModel:    kindString,
	KeyEmbeddingBaseURL:  kindString,
	KeyBatchSize:         kindInt,
	KeyTimeoutSeconds:    kindInt,
	KeyMaxAttempts:       kindInt,
	KeyRequestsPerSecond: kindFloat,
	KeyCorpusDir:         kindString,
	KeyChunkDir:          kindString,
	KeyIndexDir:          kindString,
	KeySkipPolicy:        kindString,
	KeyManifestBackend:   kindString,
}

// KnownKeys lists every configuration key, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue converts a command line value to the type stored for key.
func ParseValue(key, raw string) (any, error) {
	kind, ok := keyKinds[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidInput, key)
	}
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidInput, key, raw)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number, got %q", domain.ErrInvalidInput, key, raw)
		}
		return f, nil
	default:
		return raw, nil
	}
}

// LoadConfig overlays the values present in store onto domain.DefaultConfig
// and validates the result. Absent keys keep their defaults.
func LoadConfig(store driven.ConfigStore) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	has := func(key string) bool {
		_, ok := store.Get(key)
		return ok
	}
	setInt := func(key string, dst *int) {
		if has(key) {
			*dst = store.GetInt(key)
		}
	}
	setFloat := func(key string, dst *float64) {
		if has(key) {
			*dst = store.GetFloat(key)
		}
	}
	setString := func(key string, dst *string) {
		if has(key) {
			*dst = store.GetString(key)
		}
	}

	setInt(KeyChunkSize, &cfg.Chunking.Size)
	setInt(KeyChunkOverlap, &cfg.Chunking.Overlap)

	setInt(KeyTopK, &cfg.Retrieval.TopK)
	setFloat(KeyThreshold, &cfg.Retrieval.Threshold)
	setInt(KeyCap, &cfg.Retrieval.Cap)
	if has(KeyEmbedder) {
		cfg.Retrieval.Embedder = domain.EmbedderKind(store.GetString(KeyEmbedder))
	}

	setInt(KeyMaxCandidates, &cfg.Proposer.MaxCandidates)

	setString(KeyEmbeddingModel, &cfg.Embedding.Model)
	setString(KeyEmbeddingBaseURL, &cfg.Embedding.BaseURL)
	setInt(KeyBatchSize, &cfg.Embedding.BatchSize)
	if has(KeyTimeoutSeconds) {
		cfg.Embedding.Timeout = time.Duration(store.GetInt(KeyTimeoutSeconds)) * time.Second
	}
	setInt(KeyMaxAttempts, &cfg.Embedding.MaxAttempts)
	setFloat(KeyRequestsPerSecond, &cfg.Embedding.RequestsPerSecond)

	setString(KeyCorpusDir, &cfg.Paths.CorpusDir)
	setString(KeyChunkDir, &cfg.Paths.ChunkDir)
	setString(KeyIndexDir, &cfg.Paths.IndexDir)

	if has(KeySkipPolicy) {
		cfg.Ingest.SkipPolicy = domain.SkipPolicy(store.GetString(KeySkipPolicy))
	}
	if has(KeyManifestBackend) {
		cfg.Ingest.ManifestBackend = domain.ManifestBackend(store.GetString(KeyManifestBackend))
	}

	if err := cfg.Validate(); err != nil {
		return domain.Config{}, fmt.Errorf("%s: %w", store.Path(), err)
	}
	return cfg, nil
}
