package search

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
)

func newFixture(t *testing.T) (*Searcher, int64) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "wolfpack.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := searchindex.Open(t.TempDir())
	if err != nil {
		t.Fatalf("searchindex.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	repoID, err := st.InsertRepo(ctx, "stable", "https://example.test")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}
	componentID, err := st.InsertComponent(ctx, store.Component{
		URL: "https://example.test", RepoID: repoID, Suite: "stable", Component: "main", Architecture: "amd64",
	})
	if err != nil {
		t.Fatalf("InsertComponent: %v", err)
	}

	curlID, _, err := st.InsertPackage(ctx, store.Package{
		Name: "curl", Version: "8.4.0-1", Architecture: "amd64",
		Description: "command line tool for transferring data\nmore detail here",
		URL:         "https://example.test/pool/curl.deb", Filename: "pool/curl.deb",
		Hash: strings.Repeat("a", 64), ComponentID: componentID,
	})
	if err != nil {
		t.Fatalf("InsertPackage curl: %v", err)
	}
	gitID, _, err := st.InsertPackage(ctx, store.Package{
		Name: "git", Version: "1:2.42.0-1", Architecture: "amd64",
		Description: "fast, scalable, distributed revision control system",
		URL:         "https://example.test/pool/git.deb", Filename: "pool/git.deb",
		Hash: strings.Repeat("b", 64), ComponentID: componentID,
	})
	if err != nil {
		t.Fatalf("InsertPackage git: %v", err)
	}

	if err := idx.IndexPackages([]searchindex.PackageDoc{
		{ID: curlID, Name: "curl", Description: "command line tool for transferring data", Homepage: "https://curl.se"},
		{ID: gitID, Name: "git", Description: "fast, scalable, distributed revision control system"},
	}); err != nil {
		t.Fatalf("IndexPackages: %v", err)
	}

	if err := idx.IndexFiles([]searchindex.FileDoc{
		{ID: 1, PackageID: curlID, Path: "/usr/bin/curl", Command: "curl"},
		{ID: 2, PackageID: gitID, Path: "/usr/bin/git", Command: "git"},
		{ID: 3, PackageID: gitID, Path: "/usr/lib/git-core/git-add", Command: "git-add"},
	}); err != nil {
		t.Fatalf("IndexFiles: %v", err)
	}

	return New(st, idx), repoID
}

func TestSearchByKeywordMatchesDescription(t *testing.T) {
	s, repoID := newFixture(t)
	var buf bytes.Buffer

	n, err := s.Search(context.Background(), repoID, ByKeyword, "revision control", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 result, got %d:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "git") {
		t.Fatalf("expected output to mention git, got:\n%s", buf.String())
	}
}

func TestSearchByFileMatchesPath(t *testing.T) {
	s, repoID := newFixture(t)
	var buf bytes.Buffer

	n, err := s.Search(context.Background(), repoID, ByFile, "/usr/bin/curl", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 result, got %d:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "/usr/bin/curl") || !strings.Contains(buf.String(), "curl") {
		t.Fatalf("expected output to include the matched path and package, got:\n%s", buf.String())
	}
}

func TestSearchByCommandDedupesMultipleFilesPerPackage(t *testing.T) {
	s, repoID := newFixture(t)
	var buf bytes.Buffer

	n, err := s.Search(context.Background(), repoID, ByCommand, "git", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected git's two commands to dedupe to one row, got %d:\n%s", n, buf.String())
	}
}

func TestSearchNoMatchesIsNotAnError(t *testing.T) {
	s, repoID := newFixture(t)
	var buf bytes.Buffer

	n, err := s.Search(context.Background(), repoID, ByKeyword, "nonexistent-package-xyz", &buf)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 results, got %d", n)
	}
}
