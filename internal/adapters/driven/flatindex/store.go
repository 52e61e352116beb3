package flatindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.IndexArtifactStore = (*Store)(nil)

const stagingPrefix = ".staging-"

// Store reads and writes the artifact set in one directory.
type Store struct {
	paths domain.ArtifactPaths
}

// NewStore creates a store rooted at dir. The directory is created on Write.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: index directory is required", domain.ErrConfig)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving index directory: %w", err)
	}
	return &Store{paths: domain.ArtifactPaths{
		Dir:      abs,
		Index:    filepath.Join(abs, domain.IndexFileName),
		Metadata: filepath.Join(abs, domain.MetadataFileName),
		Manifest: filepath.Join(abs, domain.ManifestFileName),
	}}, nil
}

// Paths returns the artifact locations.
func (s *Store) Paths() domain.ArtifactPaths {
	return s.paths
}

// BuildIndex creates an exact index over vectors for one build.
func (s *Store) BuildIndex(buildID string, metric domain.Metric, vectors [][]float32) (driven.SimilarityIndex, error) {
	return New(metric, vectors, WithBuildID(buildID))
}

// Conflicts returns the artifact paths that already exist.
func (s *Store) Conflicts() ([]string, error) {
	var existing []string
	for _, p := range s.paths.All() {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			existing = append(existing, p)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("checking %s: %w", p, err)
		}
	}
	return existing, nil
}

// Write persists the artifact set.
func (s *Store) Write(
	ctx context.Context,
	idx driven.SimilarityIndex,
	rows []domain.IndexRow,
	manifest domain.IndexManifest,
	overwrite bool,
) error {
	if idx.Len() != len(rows) {
		return fmt.Errorf("%w: %d vectors but %d metadata rows", domain.ErrInvalidInput, idx.Len(), len(rows))
	}
	buildID := idx.BuildID()
	if buildID == "" {
		return fmt.Errorf("%w: index has no build id", domain.ErrInvalidInput)
	}
	if manifest.BuildID != "" && manifest.BuildID != buildID {
		return fmt.Errorf("%w: manifest is for build %s but the index is build %s",
			domain.ErrInvalidInput, manifest.BuildID, buildID)
	}
	manifest.BuildID = buildID
	if !overwrite {
		existing, err := s.Conflicts()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &domain.OutputConflictError{Paths: existing}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	blob, err := idx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	metadata, err := encodeRows(rows, buildID)
	if err != nil {
		return err
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := os.MkdirAll(s.paths.Dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	staging := filepath.Join(s.paths.Dir, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	files := []struct {
		name string
		data []byte
		dest string
	}{
		{domain.IndexFileName, blob, s.paths.Index},
		{domain.MetadataFileName, metadata, s.paths.Metadata},
		{domain.ManifestFileName, append(manifestJSON, '\n'), s.paths.Manifest},
	}
	for _, f := range files {
		if err := writeSynced(filepath.Join(staging, f.name), f.data); err != nil {
			return err
		}
	}

	// A stale manifest must not describe the files being replaced.
	if err := os.Remove(s.paths.Manifest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing previous manifest: %w", err)
	}
	for _, f := range files {
		if err := os.Rename(filepath.Join(staging, f.name), f.dest); err != nil {
			return fmt.Errorf("installing %s: %w", f.name, err)
		}
	}
	syncDir(s.paths.Dir)

	logger.Debug("flatindex: wrote %d vectors to %s", len(rows), s.paths.Dir)
	return nil
}

// Load reads the artifact set back. A missing manifest is tolerated, but
// index, metadata and manifest must all carry the same build id.
func (s *Store) Load(ctx context.Context) (*driven.LoadedIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, p := range []string{s.paths.Index, s.paths.Metadata} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: missing index artifacts, expected %s and %s",
				domain.ErrMissingArtifact, s.paths.Index, s.paths.Metadata)
		}
	}

	blob, err := os.ReadFile(s.paths.Index)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	idx, err := Unmarshal(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMissingArtifact, s.paths.Index, err)
	}

	rows, err := readRows(s.paths.Metadata)
	if err != nil {
		return nil, err
	}
	if len(rows) != idx.Len() {
		return nil, fmt.Errorf("%w: index holds %d vectors but metadata has %d rows",
			domain.ErrMissingArtifact, idx.Len(), len(rows))
	}
	for i := range rows {
		if rows[i].BuildID != idx.BuildID() {
			return nil, fmt.Errorf("%w: metadata line %d belongs to build %q but the index is build %q",
				domain.ErrMissingArtifact, i+1, rows[i].BuildID, idx.BuildID())
		}
	}

	manifest, err := readManifest(s.paths.Manifest)
	if err != nil {
		return nil, err
	}
	if manifest != nil && manifest.BuildID != idx.BuildID() {
		return nil, fmt.Errorf("%w: manifest belongs to build %q but the index is build %q",
			domain.ErrMissingArtifact, manifest.BuildID, idx.BuildID())
	}
	if manifest != nil && manifest.Dimension != 0 && manifest.Dimension != idx.Dimension() {
		return nil, fmt.Errorf("%w: manifest dimension %d does not match index dimension %d",
			domain.ErrMissingArtifact, manifest.Dimension, idx.Dimension())
	}

	return &driven.LoadedIndex{
		Index:    idx,
		Rows:     rows,
		Manifest: manifest,
		Paths:    s.paths,
	}, nil
}

func encodeRows(rows []domain.IndexRow, buildID string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range rows {
		row := rows[i]
		row.BuildID = buildID
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encoding metadata row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func readRows(path string) ([]domain.IndexRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata: %w", err)
	}
	defer f.Close()

	rows := []domain.IndexRow{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row domain.IndexRow
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("%w: metadata line %d: %w", domain.ErrMissingArtifact, line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return rows, nil
}

func readManifest(path string) (*domain.IndexManifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m domain.IndexManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", domain.ErrMissingArtifact, err)
	}
	return &m, nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// syncDir flushes directory entries. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
