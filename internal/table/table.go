// Package table prints the fixed-width, gap-separated rows the resolver,
// installer, and search commands all use for their tabular output.
package table

import (
	"fmt"
	"io"
	"strings"
)

// columnGap is the number of spaces padded onto every column but the last.
const columnGap = 2

// Print writes rows to w, one line each, with every column but the last
// padded to the widest value in that column plus columnGap. The last column
// is never padded, so long descriptions don't wrap or get truncated.
func Print(w io.Writer, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows[0])
	widths := make([]int, n)
	for _, row := range rows {
		for i := 0; i < n-1; i++ {
			if l := len([]rune(row[i])); l > widths[i] {
				widths[i] = l
			}
		}
	}
	for i := range widths {
		widths[i] += columnGap
	}
	for _, row := range rows {
		for i := 0; i < n-1; i++ {
			if _, err := fmt.Fprintf(w, "%-*s", widths[i], row[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, row[n-1]); err != nil {
			return err
		}
	}
	return nil
}

// FirstLine returns the first line of a (possibly multi-line) description
// field, trimmed, matching the convention every table row uses so a long
// Description field doesn't blow up the table into multiple lines.
func FirstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
