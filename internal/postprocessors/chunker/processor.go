// Package chunker provides a fixed-size token window chunker.
package chunker

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of tokens per window.
const DefaultChunkSize = 300

// DefaultChunkOverlap is the default number of tokens shared by consecutive windows.
const DefaultChunkOverlap = 60

// Processor splits whitespace-tokenized text into overlapping windows.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the window length in tokens.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		p.chunkSize = size
	}
}

// WithOverlap sets the number of tokens shared by consecutive windows.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		p.overlap = overlap
	}
}

// New creates a chunker. It fails with domain.ErrConfig unless
// 0 <= overlap < size.
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfig, p.chunkSize)
	}
	if p.overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrConfig, p.overlap)
	}
	if p.overlap >= p.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)",
			domain.ErrConfig, p.overlap, p.chunkSize)
	}

	return p, nil
}

// FromSettings builds a chunker from configured window settings.
func FromSettings(s domain.ChunkingSettings) (*Processor, error) {
	return New(WithChunkSize(s.Size), WithOverlap(s.Overlap))
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Step returns the token distance between consecutive window starts.
func (p *Processor) Step() int {
	return p.chunkSize - p.overlap
}

// Chunk splits text into windows starting at offsets 0, step, 2*step, ...
// The final window ends exactly at the token count and may be short.
// Text without tokens yields no chunks.
func (p *Processor) Chunk(paperID, text string) []domain.Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return []domain.Chunk{}
	}

	step := p.Step()
	chunks := make([]domain.Chunk, 0, len(tokens)/step+1)

	for start := 0; start < len(tokens); start += step {
		end := start + p.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		chunks = append(chunks, domain.NewChunk(paperID, len(chunks), strings.Join(tokens[start:end], " ")))

		if end == len(tokens) {
			break
		}
	}

	return chunks
}
