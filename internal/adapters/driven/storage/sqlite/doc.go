// Package sqlite provides a SQLite-backed build manifest store.
//
// It is selected with ingest.manifest_backend = "sqlite" and keeps one row
// per document in metadata.db next to the chunk root. The schema is applied
// from embedded *.up.sql migrations.
package sqlite
