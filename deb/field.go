package deb

import (
	"fmt"
	"strings"
)

// ErrInvalidFieldName is returned for a field name that does not conform to
// the control-file grammar.
var ErrInvalidFieldName = fmt.Errorf("deb: invalid field name")

// ErrInvalidFieldValue is returned for a value that is invalid for the
// variant it was parsed as (e.g. an empty Simple value).
var ErrInvalidFieldValue = fmt.Errorf("deb: invalid field value")

// ErrDuplicateField is returned when a control paragraph repeats a field
// name.
var ErrDuplicateField = fmt.Errorf("deb: duplicate field")

// ErrMissingField is returned when a required field is absent from a
// paragraph.
var ErrMissingField = fmt.Errorf("deb: missing field")

// FieldName is a control-file field name. Two field names are equal
// (case-insensitively) when their lowercased forms match.
//
// Grammar: two or more ASCII printables from '!'..'9' or ';'..'~', the first
// character not '#' or '-'.
type FieldName string

func validFieldNameChar(b byte) bool {
	return (b >= '!' && b <= '9') || (b >= ';' && b <= '~')
}

// ParseFieldName validates s as a control-file field name.
func ParseFieldName(s string) (FieldName, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("%w: %q: must be at least two characters", ErrInvalidFieldName, s)
	}
	if s[0] == '#' || s[0] == '-' {
		return "", fmt.Errorf("%w: %q: must not start with '#' or '-'", ErrInvalidFieldName, s)
	}
	for i := 0; i < len(s); i++ {
		if !validFieldNameChar(s[i]) {
			return "", fmt.Errorf("%w: %q: invalid character %q", ErrInvalidFieldName, s, s[i])
		}
	}
	return FieldName(s), nil
}

// normalized returns the lowercased form used for case-insensitive comparison
// and hashing.
func (n FieldName) normalized() string { return strings.ToLower(string(n)) }

// Equal compares two field names case-insensitively.
func (n FieldName) Equal(o FieldName) bool { return n.normalized() == o.normalized() }

// ValueKind distinguishes the three control-value grammars.
type ValueKind int

const (
	KindSimple ValueKind = iota
	KindFolded
	KindMultiline
)

// Value is a parsed control-field value: one of Simple, Folded, or Multiline.
type Value struct {
	Kind ValueKind
	// raw holds the canonically-decoded form: for Simple, the single line;
	// for Folded, the individual words; for Multiline, the individual lines
	// with each line's leading continuation space stripped and " ." decoded
	// to an empty line. String joins them.
	raw []string
}

// NewSimpleValue constructs a Simple value. s must be non-empty and contain
// no newline.
func NewSimpleValue(s string) (Value, error) {
	if strings.TrimSpace(s) == "" {
		return Value{}, fmt.Errorf("%w: simple value must not be empty", ErrInvalidFieldValue)
	}
	if strings.ContainsAny(s, "\n\r") {
		return Value{}, fmt.Errorf("%w: simple value must not contain newlines", ErrInvalidFieldValue)
	}
	return Value{Kind: KindSimple, raw: []string{s}}, nil
}

// NewFoldedValue constructs a Folded value from its whitespace-separated
// words.
func NewFoldedValue(words ...string) Value {
	return Value{Kind: KindFolded, raw: words}
}

// NewMultilineValue constructs a Multiline value from its decoded lines (an
// empty string represents a blank continuation line).
func NewMultilineValue(lines ...string) Value {
	return Value{Kind: KindMultiline, raw: lines}
}

// String renders the value's canonical decoded text: Simple is the line
// itself; Folded is its words joined by a single space; Multiline is its
// lines joined by newline.
func (v Value) String() string {
	switch v.Kind {
	case KindSimple:
		if len(v.raw) == 0 {
			return ""
		}
		return v.raw[0]
	case KindFolded:
		return strings.Join(v.raw, " ")
	case KindMultiline:
		return strings.Join(v.raw, "\n")
	default:
		return ""
	}
}

// Words returns a Folded value's words, or a Multiline/Simple value's lines.
func (v Value) Words() []string { return v.raw }

// Equal compares two values. Folded equality collapses whitespace runs (it
// compares word lists, which are already whitespace-split); Simple and
// Multiline equality is byte-exact on the decoded form.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindFolded:
		if len(v.raw) != len(o.raw) {
			return false
		}
		for i := range v.raw {
			if v.raw[i] != o.raw[i] {
				return false
			}
		}
		return true
	default:
		return v.String() == o.String()
	}
}

// hashKey returns a string suitable for use as a map key consistent with
// Equal: for Folded values, whitespace runs are collapsed exactly like
// Equal, so two values with differently-spaced identical words hash the
// same.
func (v Value) hashKey() string {
	switch v.Kind {
	case KindFolded:
		return "folded:" + strings.Join(v.raw, " ")
	case KindMultiline:
		return "multiline:" + strings.Join(v.raw, "\n")
	default:
		return "simple:" + v.String()
	}
}

// Field is a single name/value pair within a Paragraph.
type Field struct {
	Name  FieldName
	Value Value
}

// Paragraph is an ordered sequence of fields, as found between two blank
// lines in a control-file stream. Field order is preserved for rendering.
type Paragraph struct {
	fields []Field
	index  map[string]int // normalized name -> index into fields
}

// NewParagraph builds a Paragraph from an ordered field list, rejecting
// duplicate names.
func NewParagraph(fields ...Field) (*Paragraph, error) {
	p := &Paragraph{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if err := p.set(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Paragraph) set(f Field) error {
	key := f.Name.normalized()
	if _, ok := p.index[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateField, string(f.Name))
	}
	p.index[key] = len(p.fields)
	p.fields = append(p.fields, f)
	return nil
}

// Get returns the value of the named field (case-insensitive) and whether it
// was present.
func (p *Paragraph) Get(name string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	i, ok := p.index[strings.ToLower(name)]
	if !ok {
		return Value{}, false
	}
	return p.fields[i].Value, true
}

// GetString is a convenience wrapper around Get that returns the value's
// decoded string form, or "" if absent.
func (p *Paragraph) GetString(name string) string {
	v, ok := p.Get(name)
	if !ok {
		return ""
	}
	return v.String()
}

// Require returns the named field's value, or ErrMissingField.
func (p *Paragraph) Require(name string) (Value, error) {
	v, ok := p.Get(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrMissingField, name)
	}
	return v, nil
}

// Fields returns the paragraph's fields in their original order.
func (p *Paragraph) Fields() []Field {
	if p == nil {
		return nil
	}
	return p.fields
}

// Equal compares two paragraphs field-by-field, order-insensitively, using
// Value.Equal for each shared field name.
func (p *Paragraph) Equal(o *Paragraph) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.fields) != len(o.fields) {
		return false
	}
	for k, i := range p.index {
		j, ok := o.index[k]
		if !ok {
			return false
		}
		if !p.fields[i].Value.Equal(o.fields[j].Value) {
			return false
		}
	}
	return true
}

// isMultilineField reports whether name always parses as a Multiline value
// regardless of its apparent shape: the free-text description, plus the
// per-file checksum lists carried by Release-style paragraphs.
func isMultilineField(name string) bool {
	switch strings.ToLower(name) {
	case "description", "md5sum", "sha1", "sha256":
		return true
	default:
		return false
	}
}
