// Package file provides filesystem-backed storage adapters: the per-document
// chunk store, the JSON build manifest and the cleaned-text corpus reader.
//
// Chunk layout:
//
//	<root>/<paper_id>/<paper_id>_chunk_0000.txt
//	<root>/<paper_id>/<paper_id>_chunk_0001.txt
//	<root>/manifest.json
package file
