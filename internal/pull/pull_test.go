package pull

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/wolfpack-pm/wolfpack/internal/config"
	"github.com/wolfpack-pm/wolfpack/internal/fetch"
	"github.com/wolfpack-pm/wolfpack/internal/searchindex"
	"github.com/wolfpack-pm/wolfpack/internal/store"
	"github.com/wolfpack-pm/wolfpack/internal/wplog"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// newFixtureServer serves a tiny single-suite, single-component repository:
// one Packages.gz naming two packages (one depending on the other by name,
// one via a virtual Provides) and one Contents.gz naming a binary each ships.
func newFixtureServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	packagesText := `Package: curl
Version: 7.88.1-1
Architecture: amd64
Installed-Size: 400
Depends: libcurl4 (>= 7.88.1)
Filename: pool/c/curl/curl_7.88.1-1_amd64.deb
SHA256: ` + sha256Hex([]byte("curl-deb-body")) + `
Homepage: https://curl.se

Package: libcurl4
Version: 7.88.1-1
Architecture: amd64
Installed-Size: 900
Provides: libcurl4-abi
Filename: pool/libc/libcurl4/libcurl4_7.88.1-1_amd64.deb
SHA256: ` + sha256Hex([]byte("libcurl4-deb-body")) + `
`
	packagesGz := gzipBytes(t, []byte(packagesText))

	contentsText := `usr/bin/curl    net/curl
usr/lib/x86_64-linux-gnu/libcurl.so.4    libs/libcurl4
`
	contentsGz := gzipBytes(t, []byte(contentsText))

	mux := http.NewServeMux()
	mux.HandleFunc("/dists/stable/main/binary-amd64/Packages.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(packagesGz)
	})
	mux.HandleFunc("/dists/stable/Contents-amd64.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(contentsGz)
	})

	srv := httptest.NewServer(mux)

	release := fmt.Sprintf(`Suite: stable
Components: main
Architectures: amd64
SHA256:
 %s %d main/binary-amd64/Packages.gz
 %s %d Contents-amd64.gz
`, sha256Hex(packagesGz), len(packagesGz), sha256Hex(contentsGz), len(contentsGz))

	mux.HandleFunc("/dists/stable/Release", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(release))
	})

	return srv, release
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *searchindex.Indexes) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "wolfpack.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := searchindex.Open(filepath.Join(t.TempDir(), "index"))
	if err != nil {
		t.Fatalf("searchindex.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	fetcher := fetch.New(nil, st, wplog.Nop())
	o := New(st, idx, fetcher, t.TempDir(), time.Hour, wplog.Nop())
	return o, st, idx
}

func TestPullIndexesPackagesAndResolvesDependencies(t *testing.T) {
	srv, _ := newFixtureServer(t)
	defer srv.Close()

	o, st, idx := newTestOrchestrator(t)

	verify := false
	repos := map[string]config.Repo{
		"stable": {
			BaseURLs:   []string{srv.URL},
			Suites:     []string{"stable"},
			Components: []string{"main"},
			Verify:     &verify,
		},
	}

	if err := o.Pull(context.Background(), repos); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	repoID, err := st.InsertRepo(context.Background(), "stable", srv.URL)
	if err != nil {
		t.Fatalf("InsertRepo: %v", err)
	}

	curlPkgs, err := st.FindByName(context.Background(), repoID, "curl")
	if err != nil {
		t.Fatalf("FindByName curl: %v", err)
	}
	if len(curlPkgs) != 1 {
		t.Fatalf("expected curl to be indexed once, got %d", len(curlPkgs))
	}

	libcurlPkgs, err := st.FindByName(context.Background(), repoID, "libcurl4")
	if err != nil {
		t.Fatalf("FindByName libcurl4: %v", err)
	}
	if len(libcurlPkgs) != 1 {
		t.Fatalf("expected libcurl4 to be indexed once, got %d", len(libcurlPkgs))
	}

	deps, err := st.SelectResolvedDependencies(context.Background(), repoID, curlPkgs[0].ID)
	if err != nil {
		t.Fatalf("SelectResolvedDependencies: %v", err)
	}
	if len(deps) != 1 || deps[0].ID != libcurlPkgs[0].ID {
		t.Fatalf("expected curl's depends to resolve to libcurl4, got %+v", deps)
	}

	ids, err := idx.SearchPackages("curl", 10)
	if err != nil {
		t.Fatalf("SearchPackages: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == curlPkgs[0].ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected package search for %q to find curl, got ids %v", "curl", ids)
	}

	fileIDs, err := idx.SearchFilesByCommand("curl", 10)
	if err != nil {
		t.Fatalf("SearchFilesByCommand: %v", err)
	}
	if len(fileIDs) == 0 {
		t.Fatalf("expected command search for curl to find /usr/bin/curl")
	}
}

func TestPullSkipsUnknownComponent(t *testing.T) {
	srv, _ := newFixtureServer(t)
	defer srv.Close()

	o, _, _ := newTestOrchestrator(t)

	verify := false
	repos := map[string]config.Repo{
		"stable": {
			BaseURLs:   []string{srv.URL},
			Suites:     []string{"stable"},
			Components: []string{"contrib"}, // not in the Release's Components list
			Verify:     &verify,
		},
	}

	// No overlapping component should simply skip the suite, not error.
	if err := o.Pull(context.Background(), repos); err != nil {
		t.Fatalf("Pull: %v", err)
	}
}
