package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/ai"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/embedding/dense"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/embedding/lexical"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/flatindex"
	storagefile "github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driving"
	"github.com/custodia-labs/evidence-bench/internal/core/services"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
	"github.com/custodia-labs/evidence-bench/internal/postprocessors/chunker"
)

// retrievalPort is the retrieval service plus the readiness reset used by
// the index watcher.
type retrievalPort interface {
	driving.RetrievalService
	Reset()
}

// Services used by commands. When a service is nil it is built from cfg
// for the duration of one command; tests set them directly.
var (
	ingestService    driving.IngestService
	retrievalService retrievalPort
	proposer         driving.EvidenceProposer = services.NewProposer()

	// metrics is only set by mcp serve --metrics-addr.
	metrics *observability.Metrics

	// newEmbeddingService builds the remote embedding client.
	newEmbeddingService = func(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
		return ai.CreateEmbeddingService(settings, ai.Options{Metrics: metrics})
	}

	// probeEmbeddingBackend resolves the remote embedding client once per
	// retrieval service.
	probeEmbeddingBackend = func(ctx context.Context, settings domain.EmbeddingSettings) driven.EmbeddingBackend {
		return ai.ProbeEmbeddingBackend(ctx, settings, ai.Options{Metrics: metrics})
	}
)

func noop() {}

// openManifestStore opens the build manifest backend selected in cfg. Both
// backends live inside the chunk directory.
func openManifestStore(c domain.Config) (driven.ManifestStore, error) {
	switch c.Ingest.ManifestBackend {
	case domain.ManifestBackendSQLite:
		return sqlite.NewStore(c.Paths.ChunkDir)
	default:
		return storagefile.NewManifestStore(filepath.Join(c.Paths.ChunkDir, storagefile.ManifestFileName)), nil
	}
}

// openIngestService returns the ingest service and a cleanup func.
func openIngestService() (driving.IngestService, func(), error) {
	if ingestService != nil {
		return ingestService, noop, nil
	}

	proc, err := chunker.FromSettings(cfg.Chunking)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := storagefile.NewChunkStore(cfg.Paths.ChunkDir)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := openManifestStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening manifest: %w", err)
	}

	corpus := storagefile.NewCorpus(cfg.Paths.CorpusDir, storagefile.DefaultCorpusPattern)
	svc := services.NewIngestService(corpus, proc, chunks, manifest, cfg.Ingest.SkipPolicy)
	svc.SetMetrics(metrics)

	cleanup := func() {
		if err := manifest.Close(); err != nil {
			logger.Warn("Closing manifest: %v", err)
		}
	}
	return svc, cleanup, nil
}

// openRetrievalService returns the retrieval service and a cleanup func.
func openRetrievalService(ctx context.Context) (retrievalPort, func(), error) {
	if retrievalService != nil {
		return retrievalService, noop, nil
	}

	chunks, err := storagefile.NewChunkStore(cfg.Paths.ChunkDir)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := flatindex.NewStore(cfg.Paths.IndexDir)
	if err != nil {
		return nil, nil, err
	}

	backend := probeEmbeddingBackend(ctx, cfg.Embedding)
	svc := services.NewRetrievalService(cfg, vectorIndexFactory(cfg.Retrieval.Embedder, backend), backend, artifacts, chunks)
	svc.SetMetrics(metrics)
	svc.SetEmbeddingFactory(func(model string) (driven.EmbeddingService, error) {
		settings := cfg.Embedding
		settings.Model = model
		return newEmbeddingService(settings)
	})

	cleanup := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("Closing query embedder: %v", err)
		}
		if backend.Available() {
			backend.Service.Close() //nolint:errcheck
		}
	}
	return svc, cleanup, nil
}

// vectorIndexFactory selects the embedder for generous retrieval. The
// remote embedder reports ErrEmbeddingUnavailable per call when the
// backend is missing.
func vectorIndexFactory(kind domain.EmbedderKind, backend driven.EmbeddingBackend) services.VectorIndexFactory {
	var embedder driven.TextEmbedder = lexical.New()
	if kind == domain.EmbedderRemote {
		embedder = dense.New(backend.Service)
	}
	return func() driven.VectorIndex {
		return memory.NewVectorIndex(embedder)
	}
}
