// Package search implements the three lookup modes wolfpack's search
// command exposes against the full-text indexes: keyword search over
// package metadata, and path or command search over the files index.
package search

import (
	"context"
	"fmt"
	"io"

	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
	"github.com/wolfpack-pm/wolfpack/internal/table"
)

// By selects which index and field a Search call queries.
type By string

const (
	ByKeyword By = "keyword"
	ByFile    By = "file"
	ByCommand By = "command"
)

// resultLimit mirrors the original's TopDocs::with_limit(10_000) — a high
// ceiling that only ever bites on a pathologically broad query.
const resultLimit = 10_000

// Searcher answers search queries against a repo's indexed packages and
// files, printing a fixed-width table of matches.
type Searcher struct {
	store *store.Store
	index *searchindex.Indexes
}

// New builds a Searcher.
func New(st *store.Store, idx *searchindex.Indexes) *Searcher {
	return &Searcher{store: st, index: idx}
}

// Search runs one query against by's index, writes a table of results to w,
// and returns how many rows it printed (0 is not an error — an empty result
// set is a normal, successful search).
func (s *Searcher) Search(ctx context.Context, repoID int64, by By, keyword string, w io.Writer) (int, error) {
	switch by {
	case ByKeyword:
		return s.searchPackages(ctx, repoID, keyword, w)
	case ByFile:
		return s.searchFiles(ctx, repoID, keyword, w, s.index.SearchFilesByPath)
	case ByCommand:
		return s.searchFiles(ctx, repoID, keyword, w, s.index.SearchFilesByCommand)
	default:
		return 0, fmt.Errorf("search: unknown mode %q", by)
	}
}

func (s *Searcher) searchPackages(ctx context.Context, repoID int64, keyword string, w io.Writer) (int, error) {
	ids, err := s.index.SearchPackages(keyword, resultLimit)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}

	var rows [][]string
	for _, id := range ids {
		pkg, ok, err := s.lookup(ctx, repoID, id)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		rows = append(rows, []string{pkg.Name, pkg.Version, table.FirstLine(pkg.Description)})
	}
	if err := table.Print(w, rows); err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	return len(rows), nil
}

// fileSearchFunc is the shape both searchindex.SearchFilesByPath and
// SearchFilesByCommand share.
type fileSearchFunc func(text string, limit int) ([]searchindex.FileMatch, error)

func (s *Searcher) searchFiles(ctx context.Context, repoID int64, keyword string, w io.Writer, search fileSearchFunc) (int, error) {
	matches, err := search(keyword, resultLimit)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}

	var rows [][]string
	for _, m := range matches {
		pkg, ok, err := s.lookup(ctx, repoID, m.PackageID)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		rows = append(rows, []string{m.Path, pkg.Name, pkg.Version, table.FirstLine(pkg.Description)})
	}
	if err := table.Print(w, rows); err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	return len(rows), nil
}

// lookup resolves a package id within repoID to its store row. Both indexes
// hand back real store package ids — the package index directly, the file
// index via its stored package_id field (searchindex.FileMatch.PackageID) —
// so one lookup serves every search mode.
func (s *Searcher) lookup(ctx context.Context, repoID, id int64) (store.Package, bool, error) {
	pkg, ok, err := s.store.FindByID(ctx, repoID, id)
	if err != nil {
		return store.Package{}, false, fmt.Errorf("search: looking up package %d: %w", id, err)
	}
	return pkg, ok, nil
}
