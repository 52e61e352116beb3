package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driving"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// Ingest outcomes recorded in metrics.
const (
	outcomeChunked = "chunked"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// IngestService chunks corpus documents and records the build manifest.
type IngestService struct {
	corpus   driven.Corpus
	chunker  driven.Chunker
	chunks   driven.ChunkStore
	manifest driven.ManifestStore
	policy   domain.SkipPolicy
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewIngestService creates an ingest service.
func NewIngestService(
	corpus driven.Corpus,
	chunker driven.Chunker,
	chunks driven.ChunkStore,
	manifest driven.ManifestStore,
	policy domain.SkipPolicy,
) *IngestService {
	if !policy.IsValid() {
		policy = domain.SkipPolicyNonEmpty
	}
	return &IngestService{
		corpus:   corpus,
		chunker:  chunker,
		chunks:   chunks,
		manifest: manifest,
		policy:   policy,
		now:      time.Now,
	}
}

// SetMetrics attaches optional metrics.
func (s *IngestService) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// PaperIDFromPath derives a paper id from a source file name.
func PaperIDFromPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IngestDocument chunks one document unless the skip policy says its
// stored chunks are current.
func (s *IngestService) IngestDocument(ctx context.Context, sourcePath string, force bool) ([]domain.Chunk, error) {
	paperID := PaperIDFromPath(sourcePath)
	if paperID == "" {
		return nil, fmt.Errorf("%w: cannot derive paper id from %q", domain.ErrInvalidInput, sourcePath)
	}

	if !force {
		skip, err := s.shouldSkip(ctx, paperID, sourcePath)
		if err != nil {
			s.metrics.Ingested(outcomeFailed)
			return nil, err
		}
		if skip {
			logger.Debug("Skipping %s: chunks are current", paperID)
			s.metrics.Ingested(outcomeSkipped)
			return s.chunks.Read(ctx, paperID)
		}
	}

	text, sum, err := s.corpus.Read(ctx, sourcePath)
	if err != nil {
		s.metrics.Ingested(outcomeFailed)
		return nil, fmt.Errorf("reading %s: %w", sourcePath, err)
	}

	chunks := s.chunker.Chunk(paperID, text)
	if err := s.chunks.Write(ctx, paperID, chunks); err != nil {
		s.metrics.Ingested(outcomeFailed)
		return nil, fmt.Errorf("writing chunks for %s: %w", paperID, err)
	}

	entry := domain.BuildManifestEntry{
		PaperID:    paperID,
		SourcePath: sourcePath,
		SHA256:     sum,
		ChunkCount: len(chunks),
		UpdatedAt:  s.now().UTC(),
	}
	if err := s.manifest.Upsert(ctx, entry); err != nil {
		s.metrics.Ingested(outcomeFailed)
		return nil, fmt.Errorf("recording manifest for %s: %w", paperID, err)
	}

	logger.Debug("Chunked %s into %d chunks", paperID, len(chunks))
	s.metrics.Ingested(outcomeChunked)
	return chunks, nil
}

func (s *IngestService) shouldSkip(ctx context.Context, paperID, sourcePath string) (bool, error) {
	has, err := s.chunks.HasChunks(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("checking chunks for %s: %w", paperID, err)
	}
	if !has {
		return false, nil
	}
	if s.policy != domain.SkipPolicyHashMatch {
		return true, nil
	}

	entry, err := s.manifest.Get(ctx, paperID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading manifest for %s: %w", paperID, err)
	}
	sum, err := s.corpus.Hash(ctx, sourcePath)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", sourcePath, err)
	}
	return entry.SHA256 == sum, nil
}

// IngestAll ingests every corpus document in sorted order. A failing
// document does not stop the run.
func (s *IngestService) IngestAll(ctx context.Context, force bool) (domain.IngestSummary, error) {
	logger.Section("Ingest")

	paths, err := s.corpus.List(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Found %d documents", len(paths))

	summary := make(domain.IngestSummary, len(paths))
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		chunks, err := s.IngestDocument(ctx, p, force)
		if err != nil {
			logger.Warn("Ingest failed for %s: %v", p, err)
			errs = append(errs, err)
			continue
		}
		summary[PaperIDFromPath(p)] = len(chunks)
	}
	return summary, errors.Join(errs...)
}

// Chunks returns the stored chunks of a document.
func (s *IngestService) Chunks(ctx context.Context, paperID string) ([]domain.Chunk, error) {
	return s.chunks.Read(ctx, paperID)
}

// Manifest lists the build manifest.
func (s *IngestService) Manifest(ctx context.Context) ([]domain.BuildManifestEntry, error) {
	return s.manifest.List(ctx)
}
