package deb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseParagraphs reads a stream of control paragraphs (blank-line
// separated) from r.
func ParseParagraphs(r io.Reader) ([]*Paragraph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var paragraphs []*Paragraph
	var lines []string

	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		p, err := parseOneParagraph(lines)
		lines = nil
		if err != nil {
			return err
		}
		paragraphs = append(paragraphs, p)
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return paragraphs, nil
}

// ParseParagraph reads exactly one control paragraph from r (no blank-line
// separator expected; the stream ends at EOF).
func ParseParagraph(r io.Reader) (*Paragraph, error) {
	paragraphs, err := ParseParagraphs(r)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return NewParagraph()
	}
	return paragraphs[0], nil
}

func isContinuation(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// parseOneParagraph runs the field/value state machine over the
// (comment-free, blank-line-free) lines of a single paragraph.
func parseOneParagraph(lines []string) (*Paragraph, error) {
	p := &Paragraph{index: make(map[string]int)}

	i := 0
	for i < len(lines) {
		line := lines[i]
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, fmt.Errorf("%w: missing ':' in %q", ErrInvalidFieldValue, line)
		}
		name, err := ParseFieldName(line[:colon])
		if err != nil {
			return nil, err
		}
		firstValue := strings.TrimLeft(line[colon+1:], " \t")

		// Gather continuation lines.
		var cont []string
		j := i + 1
		for j < len(lines) && isContinuation(lines[j]) {
			cont = append(cont, lines[j])
			j++
		}

		var value Value
		if len(cont) == 0 {
			if isMultilineField(string(name)) && strings.TrimSpace(firstValue) != "" {
				value = NewMultilineValue(firstValue)
			} else {
				value, err = NewSimpleValue(firstValue)
				if err != nil {
					return nil, err
				}
			}
		} else {
			multiline := isMultilineField(string(name))
			decoded := make([]string, 0, len(cont)+1)
			decoded = append(decoded, firstValue)
			for _, c := range cont {
				stripped := c[1:] // drop the single leading space/tab
				if stripped == "." || c == " ." || c == "\t." {
					multiline = true
					decoded = append(decoded, "")
				} else {
					decoded = append(decoded, stripped)
				}
			}
			if multiline {
				value = NewMultilineValue(decoded...)
			} else {
				var words []string
				for _, l := range decoded {
					words = append(words, strings.Fields(l)...)
				}
				value = NewFoldedValue(words...)
			}
		}

		if err := p.set(Field{Name: name, Value: value}); err != nil {
			return nil, err
		}
		i = j
	}
	return p, nil
}

// RenderParagraph is the inverse of parseOneParagraph: simple values emit
// verbatim; folded values emit their first word on the field line and one
// word per subsequent line, each with a single leading space; multiline
// values emit their first line verbatim and each subsequent line with a
// leading space (empty lines encoded as " .").
func RenderParagraph(p *Paragraph) string {
	var b strings.Builder
	for _, f := range p.Fields() {
		switch f.Value.Kind {
		case KindSimple:
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value.String())
		case KindFolded:
			words := f.Value.Words()
			if len(words) == 0 {
				fmt.Fprintf(&b, "%s:\n", f.Name)
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", f.Name, words[0])
			for _, w := range words[1:] {
				fmt.Fprintf(&b, " %s\n", w)
			}
		case KindMultiline:
			lines := f.Value.Words()
			if len(lines) == 0 {
				fmt.Fprintf(&b, "%s:\n", f.Name)
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", f.Name, lines[0])
			for _, l := range lines[1:] {
				if l == "" {
					b.WriteString(" .\n")
				} else {
					fmt.Fprintf(&b, " %s\n", l)
				}
			}
		}
	}
	return b.String()
}
