package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wolfpack.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertRepoIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}
	id2, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo (again): %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected stable id across re-insert, got %d then %d", id1, id2)
	}
}

func seedPackage(t *testing.T, s *Store, name, version string) (componentID, packageID int64) {
	t.Helper()
	ctx := context.Background()
	repoID, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}
	compID, err := s.InsertComponent(ctx, Component{
		URL:          "https://deb.debian.org/debian/dists/stable/main/binary-amd64/Packages",
		RepoID:       repoID,
		Suite:        "stable",
		Component:    "main",
		Architecture: "amd64",
	})
	if err != nil {
		t.Fatalf("InsertComponent: %v", err)
	}
	pkgID, _, err := s.InsertPackage(ctx, Package{
		Name:         name,
		Version:      version,
		Architecture: "amd64",
		Description:  name + " package",
		URL:          "https://deb.debian.org/debian/pool/main/" + name + "_" + version + "_amd64.deb",
		Filename:     name + "_" + version + "_amd64.deb",
		Hash:         "deadbeef",
		ComponentID:  compID,
	})
	if err != nil {
		t.Fatalf("InsertPackage: %v", err)
	}
	return compID, pkgID
}

func TestInsertPackageReturnsExistingIDOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, id1 := seedPackage(t, s, "hello", "1.0-1")

	repoID, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}
	compID, err := s.InsertComponent(ctx, Component{
		URL: "https://deb.debian.org/debian/dists/stable/main/binary-amd64/Packages", RepoID: repoID,
	})
	if err != nil {
		t.Fatalf("InsertComponent: %v", err)
	}
	id2, inserted, err := s.InsertPackage(ctx, Package{
		Name: "hello", Version: "1.0-1", Architecture: "amd64",
		URL: "https://deb.debian.org/debian/pool/main/hello_1.0-1_amd64.deb", ComponentID: compID,
	})
	if err != nil {
		t.Fatalf("InsertPackage (re-insert): %v", err)
	}
	if inserted {
		t.Errorf("expected inserted=false for conflicting url")
	}
	if id2 != id1 {
		t.Errorf("expected same id %d, got %d", id1, id2)
	}
}

func TestFindByNameOrdersNewestVersionFirst(t *testing.T) {
	s := openTestStore(t)
	seedPackage(t, s, "hello", "1.0-1")
	seedPackage(t, s, "hello", "2.0-1")
	seedPackage(t, s, "hello", "1.5-1")

	repoID, err := s.InsertRepo(context.Background(), "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}
	pkgs, err := s.FindByName(context.Background(), repoID, "hello")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if len(pkgs) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(pkgs))
	}
	want := []string{"2.0-1", "1.5-1", "1.0-1"}
	for i, w := range want {
		if pkgs[i].Version != w {
			t.Errorf("position %d: want version %s, got %s", i, w, pkgs[i].Version)
		}
	}
}

func TestSelectDependenciesMatchesNameAndProvision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, realID := seedPackage(t, s, "vim", "9.0-1")
	_, virtID := seedPackage(t, s, "vim-nox", "9.0-1")
	if err := s.InsertProvision(ctx, virtID, "editor", ""); err != nil {
		t.Fatalf("InsertProvision: %v", err)
	}
	repoID, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}

	byName, err := s.SelectDependencies(ctx, repoID, []DependencyAtom{{Name: "vim"}})
	if err != nil {
		t.Fatalf("SelectDependencies (name): %v", err)
	}
	if len(byName) != 1 || byName[0].ID != realID {
		t.Errorf("expected single match on real name, got %+v", byName)
	}

	byProvision, err := s.SelectDependencies(ctx, repoID, []DependencyAtom{{Name: "editor"}})
	if err != nil {
		t.Fatalf("SelectDependencies (provision): %v", err)
	}
	if len(byProvision) != 1 || byProvision[0].ID != virtID {
		t.Errorf("expected single provision match, got %+v", byProvision)
	}
}

func TestSelectDependenciesHonorsVersionConstraint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, oldID := seedPackage(t, s, "libfoo", "1.0-1")
	_, newID := seedPackage(t, s, "libfoo", "2.0-1")
	repoID, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}

	atLeast2, err := s.SelectDependencies(ctx, repoID, []DependencyAtom{{Name: "libfoo", Op: ">=", Version: "2.0-1"}})
	if err != nil {
		t.Fatalf("SelectDependencies: %v", err)
	}
	if len(atLeast2) != 1 || atLeast2[0].ID != newID {
		t.Errorf("expected only the newer package, got %+v", atLeast2)
	}

	below2, err := s.SelectDependencies(ctx, repoID, []DependencyAtom{{Name: "libfoo", Op: "<<", Version: "2.0-1"}})
	if err != nil {
		t.Fatalf("SelectDependencies: %v", err)
	}
	if len(below2) != 1 || below2[0].ID != oldID {
		t.Errorf("expected only the older package, got %+v", below2)
	}
}

func TestSelectResolvedDependenciesFollowsEdge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, parentID := seedPackage(t, s, "app", "1.0-1")
	_, childID := seedPackage(t, s, "libapp", "1.0-1")
	if err := s.InsertDependency(ctx, childID, parentID); err != nil {
		t.Fatalf("InsertDependency: %v", err)
	}
	repoID, err := s.InsertRepo(ctx, "debian", "https://deb.debian.org/debian")
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}

	resolved, err := s.SelectResolvedDependencies(ctx, repoID, parentID)
	if err != nil {
		t.Fatalf("SelectResolvedDependencies: %v", err)
	}
	if len(resolved) != 1 || resolved[0].ID != childID {
		t.Errorf("expected the linked child, got %+v", resolved)
	}
}

func TestDownloadedFileCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	url := "https://deb.debian.org/debian/dists/stable/Release"

	if _, ok, err := s.SelectDownloadedFile(ctx, url); err != nil {
		t.Fatalf("SelectDownloadedFile: %v", err)
	} else if ok {
		t.Fatalf("expected no cache entry yet")
	}

	entry := DownloadedFile{URL: url, ETag: `"abc123"`, LastModified: "Tue, 01 Jul 2025 00:00:00 GMT", Expires: 1735689600, Size: 4096}
	if err := s.UpsertDownloadedFile(ctx, entry); err != nil {
		t.Fatalf("UpsertDownloadedFile: %v", err)
	}

	got, ok, err := s.SelectDownloadedFile(ctx, url)
	if err != nil {
		t.Fatalf("SelectDownloadedFile: %v", err)
	}
	if !ok {
		t.Fatalf("expected a cache entry")
	}
	if got != entry {
		t.Errorf("got %+v, want %+v", got, entry)
	}

	entry.Size = 8192
	if err := s.UpsertDownloadedFile(ctx, entry); err != nil {
		t.Fatalf("UpsertDownloadedFile (refresh): %v", err)
	}
	got2, _, err := s.SelectDownloadedFile(ctx, url)
	if err != nil {
		t.Fatalf("SelectDownloadedFile: %v", err)
	}
	if got2.Size != 8192 {
		t.Errorf("expected refreshed size 8192, got %d", got2.Size)
	}
}

func TestOptimizeRunsWithoutError(t *testing.T) {
	s := openTestStore(t)
	seedPackage(t, s, "hello", "1.0-1")
	if err := s.Optimize(context.Background()); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
}
