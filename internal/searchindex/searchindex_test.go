package searchindex

import (
	"testing"
)

func TestIsCommandPath(t *testing.T) {
	cases := map[string]bool{
		"/usr/bin/ls":        true,
		"/usr/sbin/useradd":  true,
		"/usr/lib/libc.so.6": false,
		"/etc/passwd":        false,
	}
	for path, want := range cases {
		if got := IsCommandPath(path); got != want {
			t.Errorf("IsCommandPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestIndexAndSearchPackages(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	docs := []PackageDoc{
		{ID: 1, Name: "vim", Description: "a text editor", Homepage: "https://www.vim.org"},
		{ID: 2, Name: "emacs", Description: "an extensible text editor", Homepage: "https://www.gnu.org/software/emacs"},
		{ID: 3, Name: "curl", Description: "command line tool for transferring data", Homepage: "https://curl.se"},
	}
	if err := idx.IndexPackages(docs); err != nil {
		t.Fatalf("IndexPackages: %v", err)
	}

	ids, err := idx.SearchPackages("editor", 10)
	if err != nil {
		t.Fatalf("SearchPackages: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 hits for 'editor', got %d (%v)", len(ids), ids)
	}

	ids, err = idx.SearchPackages("curl", 10)
	if err != nil {
		t.Fatalf("SearchPackages: %v", err)
	}
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("expected single hit [3], got %v", ids)
	}
}

func TestIndexAndSearchFiles(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	docs := []FileDoc{
		{ID: 10, PackageID: 10, Path: "/usr/bin/curl", Command: "curl"},
		{ID: 11, PackageID: 11, Path: "/usr/bin/curlftpfs", Command: "curlftpfs"},
		{ID: 12, PackageID: 12, Path: "/usr/lib/libcurl.so.4"},
	}
	if err := idx.IndexFiles(docs); err != nil {
		t.Fatalf("IndexFiles: %v", err)
	}

	ids, err := idx.SearchFilesByCommand("curl", 10)
	if err != nil {
		t.Fatalf("SearchFilesByCommand: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 command hits for substring 'curl', got %d (%v)", len(ids), ids)
	}

	ids, err = idx.SearchFilesByPath("/usr/lib/libcurl.so.4", 10)
	if err != nil {
		t.Fatalf("SearchFilesByPath: %v", err)
	}
	if len(ids) != 1 || ids[0].PackageID != 12 {
		t.Fatalf("expected single path hit [12], got %v", ids)
	}
}

func TestResetForPullClearsDocuments(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.IndexPackages([]PackageDoc{{ID: 1, Name: "vim", Description: "editor"}}); err != nil {
		t.Fatalf("IndexPackages: %v", err)
	}
	if ids, err := idx.SearchPackages("editor", 10); err != nil || len(ids) != 1 {
		t.Fatalf("expected a hit before reset, got %v, %v", ids, err)
	}

	if err := idx.ResetForPull(); err != nil {
		t.Fatalf("ResetForPull: %v", err)
	}

	ids, err := idx.SearchPackages("editor", 10)
	if err != nil {
		t.Fatalf("SearchPackages after reset: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no hits after reset, got %v", ids)
	}
}
