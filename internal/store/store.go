// Package store persists repositories, components, packages, provisions,
// and dependency edges in a single SQLite-class database, and caches
// conditional-GET metadata for the fetcher. It mirrors the schema and query
// contracts of a relational store built around one writer connection plus
// any number of read-only replicas.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"
)

func init() {
	// deb_version_compare(a, b) lets version-constrained WHERE clauses run
	// inside the database instead of round-tripping rows through Go.
	sqlite.MustRegisterDeterministicScalarFunction("deb_version_compare", 2, versionCompareSQL)
}

// Store wraps the single writable connection (capped at one open connection
// to serialize writes the way a mutex-guarded rusqlite connection would) plus
// an independent read-only connection pool for concurrent SELECTs.
type Store struct {
	write *sql.DB
	read  *sql.DB

	mu sync.Mutex // serializes Go-side access to write, on top of SetMaxOpenConns(1)
}

// Open creates the database directory if needed, opens the writer
// connection (pragmas, then migrations, then a post-migration script), and
// opens a second, read-only connection for parallel SELECTs.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", dir, err)
		}
	}

	write, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	write.SetMaxOpenConns(1) // single-writer constraint

	if _, err := write.ExecContext(ctx, preamble); err != nil {
		write.Close()
		return nil, fmt.Errorf("store: preamble: %w", err)
	}
	if err := applyMigrations(ctx, write); err != nil {
		write.Close()
		return nil, fmt.Errorf("store: migrations: %w", err)
	}
	if _, err := write.ExecContext(ctx, postMigrations); err != nil {
		write.Close()
		return nil, fmt.Errorf("store: post-migrations: %w", err)
	}

	read, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_txlock=deferred")
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("store: opening read replica: %w", err)
	}

	return &Store{write: write, read: read}, nil
}

// Close runs the shutdown postamble and closes both connections.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, execErr := s.write.ExecContext(context.Background(), postamble)
	writeErr := s.write.Close()
	readErr := s.read.Close()
	if execErr != nil {
		return execErr
	}
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

// Optimize runs PRAGMA optimize and ANALYZE on the database (it does not
// VACUUM); called after large insert batches (end of a Packages pull).
func (s *Store) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.write.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	_, err := s.write.ExecContext(ctx, "ANALYZE")
	return err
}

const preamble = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;
PRAGMA busy_timeout = 5000;
`

const postMigrations = `
PRAGMA optimize;
`

const postamble = `
PRAGMA wal_checkpoint(TRUNCATE);
`
