package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

const (
	chunkFileExt = ".txt"
	dirPerm      = 0o755
	filePerm     = 0o644
)

// ChunkStore persists one UTF-8 text file per chunk under a directory per
// document.
type ChunkStore struct {
	root string
}

// NewChunkStore creates a chunk store rooted at root. The directory is
// created lazily on first write.
func NewChunkStore(root string) (*ChunkStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving chunk root: %w", err)
	}
	return &ChunkStore{root: abs}, nil
}

// Root returns the absolute chunk root.
func (s *ChunkStore) Root() string {
	return s.root
}

func (s *ChunkStore) paperDir(paperID string) string {
	return filepath.Join(s.root, paperID)
}

// Write persists each chunk as <paper_id>/<chunk_id>.txt. Chunk files of
// the document that are not part of chunks are removed afterwards.
func (s *ChunkStore) Write(ctx context.Context, paperID string, chunks []domain.Chunk) error {
	dir := s.paperDir(paperID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	existing, err := s.chunkNames(paperID)
	if err != nil {
		return err
	}

	written := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := c.ID + chunkFileExt
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(strings.ToValidUTF8(c.Text, "\uFFFD")), filePerm); err != nil {
			return fmt.Errorf("writing chunk %s: %w", c.ID, err)
		}
		written[name] = struct{}{}
	}

	for _, name := range existing {
		if _, ok := written[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing stale chunk %s: %w", name, err)
		}
	}
	return nil
}

// Read returns a document's chunks sorted by the index parsed from each
// file name. Files that do not follow the naming convention are ignored.
func (s *ChunkStore) Read(ctx context.Context, paperID string) ([]domain.Chunk, error) {
	names, err := s.chunkNames(paperID)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunkID := strings.TrimSuffix(name, chunkFileExt)
		idx, ok := domain.ParseChunkIndex(chunkID)
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.paperDir(paperID), name))
		if err != nil {
			return nil, fmt.Errorf("reading chunk %s: %w", chunkID, err)
		}
		chunks = append(chunks, domain.Chunk{
			ID:      chunkID,
			PaperID: paperID,
			Text:    strings.ToValidUTF8(string(data), "\uFFFD"),
			Index:   idx,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// HasChunks reports whether the document directory exists and holds at
// least one chunk file.
func (s *ChunkStore) HasChunks(_ context.Context, paperID string) (bool, error) {
	names, err := s.chunkNames(paperID)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// chunkNames lists the chunk file names of one document. A missing
// directory yields no names.
func (s *ChunkStore) chunkNames(paperID string) ([]string, error) {
	entries, err := os.ReadDir(s.paperDir(paperID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing chunks of %s: %w", paperID, err)
	}

	prefix := paperID + "_chunk_"
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, chunkFileExt) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Papers lists document directories that hold chunks.
func (s *ChunkStore) Papers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing chunk root: %w", err)
	}

	papers := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ok, err := s.HasChunks(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			papers = append(papers, e.Name())
		}
	}
	sort.Strings(papers)
	return papers, nil
}

// Discover lists every chunk file under the root, ordered by document
// directory then file name. This order assigns vector ids.
func (s *ChunkStore) Discover(_ context.Context) ([]domain.ChunkFile, error) {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: chunks root not found: %s", domain.ErrMissingArtifact, s.root)
	}

	matches, err := doublestar.Glob(os.DirFS(s.root), domain.ChunkFilePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("globbing chunk files: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w under: %s", domain.ErrNoChunks, s.root)
	}

	sort.Slice(matches, func(i, j int) bool {
		di, ni := path.Split(matches[i])
		dj, nj := path.Split(matches[j])
		if di != dj {
			return strings.TrimSuffix(di, "/") < strings.TrimSuffix(dj, "/")
		}
		return ni < nj
	})

	files := make([]domain.ChunkFile, 0, len(matches))
	for _, m := range matches {
		dir, name := path.Split(m)
		files = append(files, domain.ChunkFile{
			PaperID: strings.TrimSuffix(dir, "/"),
			ChunkID: strings.TrimSuffix(name, chunkFileExt),
			Path:    filepath.Join(s.root, filepath.FromSlash(m)),
		})
	}
	return files, nil
}

// ReadFile returns the text of a discovered chunk file.
func (s *ChunkStore) ReadFile(_ context.Context, file domain.ChunkFile) (string, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return "", fmt.Errorf("reading chunk file %s: %w", file.Path, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
