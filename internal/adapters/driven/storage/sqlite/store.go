package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
)

// DatabaseFileName is the SQLite file created inside the data directory.
const DatabaseFileName = "metadata.db"

// Ensure Store implements the interface.
var _ driven.ManifestStore = (*Store)(nil)

// Store is a SQLite-backed driven.ManifestStore.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) metadata.db in dataDir and applies migrations.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%w: sqlite data directory is required", domain.ErrConfig)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFileName)

	// WAL lets the CLI read the manifest while an ingest is writing it.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_*.up.sql newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Build Manifest ====================

// Upsert records the entry for its paper id.
func (s *Store) Upsert(ctx context.Context, entry domain.BuildManifestEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO build_manifest (paper_id, source_path, sha256, chunk_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			source_path = excluded.source_path,
			sha256      = excluded.sha256,
			chunk_count = excluded.chunk_count,
			updated_at  = excluded.updated_at
	`, entry.PaperID, entry.SourcePath, entry.SHA256, entry.ChunkCount,
		entry.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting manifest entry %s: %w", entry.PaperID, err)
	}
	return nil
}

// Get returns the entry for a paper id.
func (s *Store) Get(ctx context.Context, paperID string) (*domain.BuildManifestEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT paper_id, source_path, sha256, chunk_count, updated_at
		FROM build_manifest WHERE paper_id = ?
	`, paperID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manifest entry %s: %w", paperID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns all entries sorted by paper id.
func (s *Store) List(ctx context.Context) ([]domain.BuildManifestEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT paper_id, source_path, sha256, chunk_count, updated_at
		FROM build_manifest ORDER BY paper_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing manifest: %w", err)
	}
	defer rows.Close()

	result := []domain.BuildManifestEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.BuildManifestEntry, error) {
	var (
		entry     domain.BuildManifestEntry
		updatedAt string
	)
	if err := row.Scan(&entry.PaperID, &entry.SourcePath, &entry.SHA256, &entry.ChunkCount, &updatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at of %s: %w", entry.PaperID, err)
	}
	entry.UpdatedAt = t
	return &entry, nil
}
