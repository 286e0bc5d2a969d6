package deb

import (
	"bytes"
	"strings"
	"testing"

	"github.com/blakesmith/ar"
)

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := &countingWriter{w: &buf}

	data := []byte("hello")
	n, err := cw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes written, got %d", n)
	}
	if cw.n != 5 {
		t.Errorf("expected count 5, got %d", cw.n)
	}
	if buf.String() != "hello" {
		t.Errorf("buffer mismatch")
	}
}

func TestAddBufferToAr(t *testing.T) {
	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	// Write global header first as required by AR format
	if err := arW.WriteGlobalHeader(); err != nil {
		t.Fatalf("WriteGlobalHeader failed: %v", err)
	}

	content := []byte("content")
	if err := addBufferToAr(arW, "test.txt", content); err != nil {
		t.Fatalf("addBufferToAr failed: %v", err)
	}

	// Verify
	arR := ar.NewReader(&buf)
	hdr, err := arR.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if hdr.Name != "test.txt" {
		t.Errorf("expected name test.txt, got %s", hdr.Name)
	}
	if hdr.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), hdr.Size)
	}
}

func TestParseControlFileFull(t *testing.T) {
	content := `Package: my-pkg
Version: 1.2.3
Architecture: amd64
Depends: libc6, git
Description: A test package
 This is the extended description.
Extra: value
`
	var m Metadata
	m.ExtraFields = make(map[string]string)
	if err := parseControlFile(content, &m); err != nil {
		t.Fatalf("parseControlFile failed: %v", err)
	}

	if m.Package != "my-pkg" {
		t.Errorf("expected Package my-pkg, got %s", m.Package)
	}
	if m.Version != "1.2.3" {
		t.Errorf("expected Version 1.2.3, got %s", m.Version)
	}
	if len(m.Depends) != 2 || m.Depends[0] != "libc6" || m.Depends[1] != "git" {
		t.Errorf("expected Depends [libc6 git], got %v", m.Depends)
	}
	if !strings.Contains(m.Description, "A test package") {
		t.Errorf("description mismatch")
	}
	if m.ExtraFields["Extra"] != "value" {
		t.Errorf("expected Extra field value, got %s", m.ExtraFields["Extra"])
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b", []string{"a", "b"}},
		{" a , b , c ", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		got := splitList(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
		}
	}
}

func TestParseReleaseFile(t *testing.T) {
	content := `Origin: TestOrigin
Label: TestLabel
Suite: stable
Codename: bookworm
Architectures: amd64 arm64
Components: main
Description: Test Description
`
	var info ArchiveInfo
	if err := parseReleaseFile(content, &info); err != nil {
		t.Fatalf("parseReleaseFile failed: %v", err)
	}

	if info.Origin != "TestOrigin" {
		t.Errorf("expected Origin TestOrigin, got %s", info.Origin)
	}
	if info.Label != "TestLabel" {
		t.Errorf("expected Label TestLabel, got %s", info.Label)
	}
	if info.Codename != "bookworm" {
		t.Errorf("expected Codename bookworm, got %s", info.Codename)
	}
	if info.Architectures != "amd64 arm64" {
		t.Errorf("expected Architectures amd64 arm64, got %s", info.Architectures)
	}
}

func TestParseReleaseManifestExtractsSHA256Entries(t *testing.T) {
	content := `Origin: TestOrigin
Codename: bookworm
SHA256:
 ` + strings.Repeat("a", 64) + ` 1024 main/binary-amd64/Packages
 ` + strings.Repeat("b", 64) + ` 512 main/binary-amd64/Packages.gz
`
	info, entries, err := ParseReleaseManifest(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ParseReleaseManifest failed: %v", err)
	}
	if info.Codename != "bookworm" {
		t.Errorf("expected Codename bookworm, got %s", info.Codename)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(entries))
	}
	if entries[0].Path != "main/binary-amd64/Packages" || entries[0].Size != 1024 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}
