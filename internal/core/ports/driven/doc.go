// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ChunkStore: per-document chunk persistence
//   - ManifestStore: build manifest persistence (JSON file or SQLite)
//   - TextEmbedder: text to sparse vector, used by the in-memory index
//   - VectorIndex: ephemeral per-call similarity index
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
// These may be unavailable; the application degrades gracefully:
//
//   - EmbeddingService: remote dense embeddings, delivered through an
//     EmbeddingBackend probe result. Persistent retrieval returns empty
//     results when it is unavailable.
//   - IndexArtifactStore: persistent index artifacts. Missing artifacts are
//     a soft failure at query time and fatal only to the builder.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
