package formats

import (
	"strings"
)

// Segment is one piece of a line-oriented document: a unit definition, a
// comment, or anything else (blank lines, directives). Concatenating the
// Text of every segment reproduces the file.
type Segment struct {
	// Text is the raw text, including the trailing line break.
	Text string

	// Key is set for unit definitions.
	Key string

	// Owner is set for comment lines directly above a unit definition;
	// they are dropped together with that unit.
	Owner string

	// ValueStart and ValueEnd delimit the raw value inside Text.
	ValueStart, ValueEnd int

	// Quote records the quoting character of the value, if any.
	Quote byte
}

// RawValue returns the raw (escaped) value of a unit segment.
func (s Segment) RawValue() string {
	return s.Text[s.ValueStart:s.ValueEnd]
}

// IsBlank reports whether the segment holds only whitespace.
func (s Segment) IsBlank() bool {
	return strings.TrimSpace(s.Text) == ""
}

// LineDocument is the Data of documents produced by line-oriented codecs.
type LineDocument struct {
	Segments []Segment
}

// Lookup returns the unit segment for key.
func (d *LineDocument) Lookup(key string) (Segment, bool) {
	for _, s := range d.Segments {
		if s.Key == key {
			return s, true
		}
	}
	return Segment{}, false
}

// AttachComments assigns comment segments that sit directly above a unit
// (no blank line in between) to that unit. isComment identifies comments.
func (d *LineDocument) AttachComments(isComment func(Segment) bool) {
	var pending []int
	for i, s := range d.Segments {
		switch {
		case s.Key != "":
			for _, j := range pending {
				d.Segments[j].Owner = s.Key
			}
			pending = pending[:0]
		case isComment(s):
			pending = append(pending, i)
		default:
			pending = pending[:0]
		}
	}
}

// ValueCodec escapes and unescapes raw values of a line-oriented format.
type ValueCodec interface {
	Escape(seg Segment, s string) string
	Unescape(seg Segment, raw string) string
}

// EncodeLines rewrites the source document with translated values. Units
// without a translation are dropped together with their comments. Raw
// values of the existing locale file are reused when they decode to the
// current translation.
func EncodeLines(in EncodeInput, vc ValueCodec) []byte {
	src := in.Source.Data.(*LineDocument)

	var existing *LineDocument
	if in.Existing != nil {
		existing, _ = in.Existing.Data.(*LineDocument)
	}

	var b strings.Builder
	for _, seg := range src.Segments {
		if seg.Owner != "" {
			if _, ok := in.Translated(seg.Owner); !ok {
				continue
			}
			b.WriteString(seg.Text)
			continue
		}
		if seg.Key == "" {
			b.WriteString(seg.Text)
			continue
		}

		text, ok := in.Translated(seg.Key)
		if !ok {
			continue
		}

		raw := vc.Escape(seg, text)
		if existing != nil {
			if old, found := existing.Lookup(seg.Key); found && vc.Unescape(old, old.RawValue()) == text && old.Quote == seg.Quote {
				raw = old.RawValue()
			}
		}

		b.WriteString(seg.Text[:seg.ValueStart])
		b.WriteString(raw)
		b.WriteString(seg.Text[seg.ValueEnd:])
	}
	return []byte(b.String())
}

// SplitLines splits text into lines, each keeping its line break.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
