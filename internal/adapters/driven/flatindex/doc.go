// Package flatindex implements the persistent exact vector index.
//
// The index is a brute-force scan over every stored vector. It is persisted
// as three files in one output directory: the binary index blob
// (chunks.index), the row metadata as newline-delimited JSON
// (chunks_metadata.jsonl) and the build manifest (index_manifest.json).
//
// # Binary Format
//
// All integers are little-endian:
//
//	magic   [4]byte  "EVFX"
//	version uint32   currently 1
//	metric  uint32   length, followed by the metric name
//	dim     uint32
//	n       uint32
//	vectors float32[n*dim]
//
// # Writes
//
// Write stages all three files in a hidden directory next to the outputs,
// fsyncs them, then renames index and metadata into place before the
// manifest. A reader that finds a manifest therefore sees a complete set.
package flatindex
