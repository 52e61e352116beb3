// Package domain defines the core entities of the evidence engine.
//
// This package is the innermost layer of the hexagon. It has NO external
// dependencies and defines the fundamental types:
//
//   - Chunk: a fixed-size token window of one document
//   - EvidenceCandidate: a scored, ranked chunk id
//   - IndexRow and IndexManifest: the persistent index artifact records
//   - BuildManifestEntry: per-document chunking provenance
//   - Config: tuning bounds and paths
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
