package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure Corpus implements the interface.
var _ driven.Corpus = (*Corpus)(nil)

// DefaultCorpusPattern matches cleaned-text documents in a corpus directory.
const DefaultCorpusPattern = "*.txt"

// Corpus reads cleaned document text from a directory.
type Corpus struct {
	dir     string
	pattern string
}

// NewCorpus creates a corpus reader over dir. An empty pattern uses
// DefaultCorpusPattern.
func NewCorpus(dir, pattern string) *Corpus {
	if pattern == "" {
		pattern = DefaultCorpusPattern
	}
	return &Corpus{dir: dir, pattern: pattern}
}

// List returns the corpus documents in sorted order.
func (c *Corpus) List(_ context.Context) ([]string, error) {
	if _, err := os.Stat(c.dir); err != nil {
		return nil, fmt.Errorf("corpus directory: %w", err)
	}
	matches, err := doublestar.Glob(os.DirFS(c.dir), c.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("globbing corpus: %w", err)
	}
	sort.Strings(matches)

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(c.dir, filepath.FromSlash(m))
	}
	return paths, nil
}

// Read returns a document's text and the hex sha256 of its raw bytes.
func (c *Corpus) Read(_ context.Context, path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), HashBytes(data), nil
}

// Hash returns the hex sha256 of a file.
func (c *Corpus) Hash(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex sha256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
