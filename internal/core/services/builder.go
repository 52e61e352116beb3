package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driving"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
)

// Ensure IndexBuilder implements the interface.
var _ driving.IndexBuilder = (*IndexBuilder)(nil)

// EmbeddingServiceFactory creates a remote embedding service for a model.
type EmbeddingServiceFactory func(model string) (driven.EmbeddingService, error)

// IndexBuilder embeds every stored chunk and writes the persistent index.
type IndexBuilder struct {
	chunks    driven.ChunkStore
	artifacts driven.IndexArtifactStore
	embedders EmbeddingServiceFactory
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewIndexBuilder creates an index builder over the chunks in chunks that
// writes to artifacts.
func NewIndexBuilder(
	chunks driven.ChunkStore,
	artifacts driven.IndexArtifactStore,
	embedders EmbeddingServiceFactory,
) *IndexBuilder {
	return &IndexBuilder{
		chunks:    chunks,
		artifacts: artifacts,
		embedders: embedders,
		now:       time.Now,
	}
}

// SetMetrics attaches optional metrics.
func (b *IndexBuilder) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

// Build runs discover, embed, index and write. Nothing is written unless
// every batch was embedded.
func (b *IndexBuilder) Build(
	ctx context.Context, req domain.BuildRequest, progress domain.BuildProgress,
) (*domain.BuildSummary, error) {
	logger.Section("Index Build")
	start := time.Now()
	report := func(fraction float64, msg string) {
		logger.Debug("[%3.0f%%] %s", fraction*100, msg)
		if progress != nil {
			progress(fraction, msg)
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	report(0.02, "Checking build prerequisites...")
	if !req.Overwrite {
		existing, err := b.artifacts.Conflicts()
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, &domain.OutputConflictError{Paths: existing}
		}
	}

	report(0.05, "Discovering chunk files...")
	files, err := b.chunks.Discover(ctx)
	if err != nil {
		return nil, err
	}
	rows, texts, err := b.loadRows(ctx, files)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered %d chunk files", len(files))

	svc, err := b.embedders(req.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	vectors, err := b.embed(ctx, svc, texts, req.BatchSize, report)
	if err != nil {
		return nil, err
	}
	dimension := len(vectors[0])

	report(0.82, "Building index...")
	buildID := uuid.NewString()
	idx, err := b.artifacts.BuildIndex(buildID, req.Metric, vectors)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	report(0.92, "Writing index artifacts...")
	paths := b.artifacts.Paths()
	manifest := domain.IndexManifest{
		BuildID:        buildID,
		CreatedAt:      b.now().UTC(),
		EmbeddingModel: req.EmbeddingModel,
		Metric:         req.Metric,
		Dimension:      dimension,
		NumVectors:     len(vectors),
		IndexFile:      domain.IndexFileName,
		MetadataFile:   domain.MetadataFileName,
	}
	if err := b.artifacts.Write(ctx, idx, rows, manifest, req.Overwrite); err != nil {
		return nil, err
	}

	report(1.0, "Index build complete.")
	b.metrics.BuildFinished(time.Since(start))
	logger.Info("Index build %s complete: %d vectors of dimension %d in %s", buildID, len(vectors), dimension, paths.Dir)

	return &domain.BuildSummary{
		BuildID:       buildID,
		NumChunks:     len(vectors),
		Dimension:     dimension,
		ArtifactPaths: paths,
	}, nil
}

// loadRows assigns vector ids in discovery order and reads each chunk.
func (b *IndexBuilder) loadRows(ctx context.Context, files []domain.ChunkFile) ([]domain.IndexRow, []string, error) {
	rows := make([]domain.IndexRow, len(files))
	texts := make([]string, len(files))
	for i, f := range files {
		text, err := b.chunks.ReadFile(ctx, f)
		if err != nil {
			return nil, nil, err
		}
		rows[i] = domain.IndexRow{
			VectorID: i,
			PaperID:  f.PaperID,
			ChunkID:  f.ChunkID,
			FilePath: f.Path,
		}
		texts[i] = text
	}
	return rows, texts, nil
}

// embed sends sequential fixed-size batches and returns one vector per
// text, in input order.
func (b *IndexBuilder) embed(
	ctx context.Context,
	svc driven.EmbeddingService,
	texts []string,
	batchSize int,
	report domain.BuildProgress,
) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no chunk texts to embed", domain.ErrNoChunks)
	}

	batches := (len(texts) + batchSize - 1) / batchSize
	report(0.1, fmt.Sprintf("Embedding %d chunks in %d batches...", len(texts), batches))

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < batches; i++ {
		lo := i * batchSize
		hi := min(lo+batchSize, len(texts))

		got, err := svc.EmbedBatch(ctx, texts[lo:hi])
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("embedding batch %d/%d: %w", i+1, batches, err)
		}
		if len(got) != hi-lo {
			return nil, fmt.Errorf("%w: batch %d/%d returned %d vectors for %d texts",
				domain.ErrEmbeddingFailed, i+1, batches, len(got), hi-lo)
		}
		for j, v := range got {
			if len(v) == 0 || (len(vectors) > 0 && len(v) != len(vectors[0])) {
				return nil, fmt.Errorf("%w: unexpected vector width %d for chunk %d",
					domain.ErrEmbeddingFailed, len(v), lo+j)
			}
			vectors = append(vectors, v)
		}

		if (i+1)%10 == 0 || i+1 == batches {
			logger.Info("Completed %d/%d batches", i+1, batches)
		}
		report(0.1+0.65*float64(i+1)/float64(batches), fmt.Sprintf("Embedded batch %d/%d", i+1, batches))
	}
	return vectors, nil
}
