package deb

import (
	"strings"
	"testing"
)

func TestParseParagraphSimpleAndFolded(t *testing.T) {
	text := "Package: libc6\n" +
		"Version: 2.38-1\n" +
		"Depends: libgcc-s1 (>= 3.0),\n" +
		" libcrypt1\n" +
		"Description: GNU C Library\n" +
		" Contains the standard C library.\n"
	p, err := ParseParagraph(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraph: %v", err)
	}
	if got := p.GetString("package"); got != "libc6" {
		t.Errorf("Package = %q, want libc6", got)
	}
	dep, ok := p.Get("Depends")
	if !ok || dep.Kind != KindFolded {
		t.Fatalf("Depends = %+v, want a folded value", dep)
	}
	if got := dep.String(); got != "libgcc-s1 (>= 3.0), libcrypt1" {
		t.Errorf("Depends.String() = %q", got)
	}
	desc, ok := p.Get("Description")
	if !ok || desc.Kind != KindMultiline {
		t.Fatalf("Description = %+v, want a multiline value", desc)
	}
}

func TestParseParagraphMultilineBlankLineEncoding(t *testing.T) {
	text := "Description: short summary\n" +
		" A longer paragraph of\n" +
		" explanation text.\n" +
		" .\n" +
		" A second paragraph.\n"
	p, err := ParseParagraph(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraph: %v", err)
	}
	desc, _ := p.Get("Description")
	lines := desc.Words()
	want := []string{"short summary", "A longer paragraph of", "explanation text.", "", "A second paragraph."}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestParseParagraphsMultipleStanzas(t *testing.T) {
	text := "Package: a\nVersion: 1.0\n\nPackage: b\nVersion: 2.0\n"
	paragraphs, err := ParseParagraphs(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraphs: %v", err)
	}
	if len(paragraphs) != 2 {
		t.Fatalf("got %d paragraphs, want 2", len(paragraphs))
	}
	if paragraphs[0].GetString("package") != "a" || paragraphs[1].GetString("package") != "b" {
		t.Errorf("unexpected package names: %q, %q", paragraphs[0].GetString("package"), paragraphs[1].GetString("package"))
	}
}

func TestParseParagraphSkipsCommentLines(t *testing.T) {
	text := "# this is a comment\nPackage: a\n# another comment\nVersion: 1.0\n"
	p, err := ParseParagraph(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraph: %v", err)
	}
	if p.GetString("package") != "a" || p.GetString("version") != "1.0" {
		t.Errorf("comment lines were not skipped correctly: %+v", p.Fields())
	}
}

func TestParseParagraphDuplicateFieldError(t *testing.T) {
	text := "Package: a\nPackage: b\n"
	if _, err := ParseParagraph(strings.NewReader(text)); err == nil {
		t.Fatalf("expected ErrDuplicateField, got nil")
	} else if !strings.Contains(err.Error(), "duplicate field") {
		t.Errorf("error = %v, want duplicate field", err)
	}
}

func TestRenderParagraphRoundTrip(t *testing.T) {
	p, err := NewParagraph(
		Field{Name: "Package", Value: mustSimple(t, "nginx")},
		Field{Name: "Depends", Value: NewFoldedValue("libc6", "libssl3")},
		Field{Name: "Description", Value: NewMultilineValue("short summary", "", "second paragraph")},
	)
	if err != nil {
		t.Fatalf("NewParagraph: %v", err)
	}
	rendered := RenderParagraph(p)
	reparsed, err := ParseParagraph(strings.NewReader(rendered))
	if err != nil {
		t.Fatalf("ParseParagraph(RenderParagraph(p)): %v\nrendered:\n%s", err, rendered)
	}
	if !p.Equal(reparsed) {
		t.Errorf("round trip mismatch:\noriginal: %+v\nreparsed: %+v\nrendered:\n%s", p.Fields(), reparsed.Fields(), rendered)
	}
}

func mustSimple(t *testing.T, s string) Value {
	t.Helper()
	v, err := NewSimpleValue(s)
	if err != nil {
		t.Fatalf("NewSimpleValue(%q): %v", s, err)
	}
	return v
}
