package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 300, cfg.Chunking.Size)
	assert.Equal(t, 60, cfg.Chunking.Overlap)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.15, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 25, cfg.Retrieval.Cap)
	assert.Equal(t, EmbedderLexical, cfg.Retrieval.Embedder)
	assert.Equal(t, 3, cfg.Proposer.MaxCandidates)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, SkipPolicyNonEmpty, cfg.Ingest.SkipPolicy)
	assert.Equal(t, ManifestBackendJSON, cfg.Ingest.ManifestBackend)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }},
		{"overlap exceeds size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size + 1 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"zero size", func(c *Config) { c.Chunking.Size = 0 }},
		{"zero batch size", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"negative cap", func(c *Config) { c.Retrieval.Cap = -1 }},
		{"negative top_k", func(c *Config) { c.Retrieval.TopK = -1 }},
		{"unknown embedder", func(c *Config) { c.Retrieval.Embedder = "bm25" }},
		{"unknown skip policy", func(c *Config) { c.Ingest.SkipPolicy = "always" }},
		{"unknown manifest backend", func(c *Config) { c.Ingest.ManifestBackend = "redis" }},
		{"negative max candidates", func(c *Config) { c.Proposer.MaxCandidates = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
}

func TestSkipPolicy_IsValid(t *testing.T) {
	assert.True(t, SkipPolicyNonEmpty.IsValid())
	assert.True(t, SkipPolicyHashMatch.IsValid())
	assert.False(t, SkipPolicy("").IsValid())
}

func TestManifestBackend_IsValid(t *testing.T) {
	assert.True(t, ManifestBackendJSON.IsValid())
	assert.True(t, ManifestBackendSQLite.IsValid())
	assert.False(t, ManifestBackend("csv").IsValid())
}
