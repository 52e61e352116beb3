package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// chunkIDSeparator joins a paper id and the zero-padded chunk index.
const chunkIDSeparator = "_chunk_"

// Chunk is one contiguous token window extracted from a document.
// Chunks are immutable once written.
type Chunk struct {
	// ID is deterministic: {PaperID}_chunk_{Index:04d}.
	ID string `json:"chunk_id"`

	// PaperID identifies the source document.
	PaperID string `json:"paper_id"`

	// Text is the space-joined token window.
	Text string `json:"text"`

	// Index is the 0-based position within the document.
	Index int `json:"index"`
}

// NewChunk builds a chunk with its deterministic id.
func NewChunk(paperID string, index int, text string) Chunk {
	return Chunk{
		ID:      ChunkID(paperID, index),
		PaperID: paperID,
		Text:    text,
		Index:   index,
	}
}

// ChunkID returns the canonical id for the chunk at index within paperID.
func ChunkID(paperID string, index int) string {
	return fmt.Sprintf("%s%s%04d", paperID, chunkIDSeparator, index)
}

// ParseChunkIndex extracts the numeric suffix of a chunk id.
// The boolean is false when the id does not follow the naming convention.
func ParseChunkIndex(chunkID string) (int, bool) {
	pos := strings.LastIndex(chunkID, "_")
	if pos < 0 || pos == len(chunkID)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(chunkID[pos+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ChunkFile locates one persisted chunk on disk.
type ChunkFile struct {
	PaperID string
	ChunkID string
	Path    string
}

// ChunkFilePattern is the glob, relative to a chunk root, matching every
// persisted chunk file.
const ChunkFilePattern = "*/*" + chunkIDSeparator + "*.txt"

// ChunkFileGlob returns the glob matching one paper's chunk files inside
// its own directory.
func ChunkFileGlob(paperID string) string {
	return paperID + chunkIDSeparator + "*.txt"
}
