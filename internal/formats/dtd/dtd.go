// Package dtd implements DTD entity files as used by Mozilla products:
//
//	<!-- LOCALIZATION NOTE (title): Window title. -->
//	<!ENTITY title "My App">
//
// Only the quote characters are escaped in values; entity references such
// as &brandShortName; pass through untouched.
package dtd

import (
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

func init() {
	formats.Register(Codec{})
}

// Codec is the DTD codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatDTD }

func (Codec) Extensions() []string { return []string{".dtd"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, BOM: true}
}

// Decode implements formats.Codec.
func (c Codec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	text := string(data)
	ld := &formats.LineDocument{}

	for pos := 0; pos < len(text); {
		seg, next, err := scan(text, pos)
		if err != nil {
			return nil, err
		}
		ld.Segments = append(ld.Segments, seg)
		pos = next
	}
	ld.AttachComments(isComment)

	doc := &formats.Document{Data: ld}
	var comments []string
	for _, seg := range ld.Segments {
		switch {
		case seg.Owner != "":
			comments = append(comments, commentText(seg.Text))
		case seg.Key != "":
			u := l10n.NewTranslation(seg.Key)
			u.SetText(l10n.NoPlural, c.Unescape(seg, seg.RawValue()))
			u.Comments = comments
			doc.Units = append(doc.Units, u)
			comments = nil
		}
	}
	return doc, nil
}

// Encode implements formats.Codec.
func (c Codec) Encode(in formats.EncodeInput) ([]byte, error) {
	return formats.EncodeLines(in, c), nil
}

// scan reads the segment starting at pos.
func scan(text string, pos int) (formats.Segment, int, error) {
	lineEnd := strings.IndexByte(text[pos:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text)
	} else {
		lineEnd += pos + 1
	}

	start := pos
	for start < lineEnd && (text[start] == ' ' || text[start] == '\t') {
		start++
	}
	rest := text[start:]

	switch {
	case strings.HasPrefix(rest, "<!--"):
		end := strings.Index(rest, "-->")
		if end < 0 {
			return formats.Segment{}, 0, formats.DecodeErrorf("unterminated comment at offset %d", start)
		}
		next := restOfLine(text, start+end+3)
		return formats.Segment{Text: text[pos:next]}, next, nil

	case strings.HasPrefix(rest, "<!ENTITY"):
		return scanEntity(text, pos, start)

	default:
		return formats.Segment{Text: text[pos:lineEnd]}, lineEnd, nil
	}
}

func scanEntity(text string, pos, start int) (formats.Segment, int, error) {
	i := start + len("<!ENTITY")
	skipSpace := func() {
		for i < len(text) && strings.IndexByte(" \t\r\n", text[i]) >= 0 {
			i++
		}
	}

	skipSpace()
	nameStart := i
	for i < len(text) && strings.IndexByte(" \t\r\n\"'>", text[i]) < 0 {
		i++
	}
	name := text[nameStart:i]
	if name == "" {
		return formats.Segment{}, 0, formats.DecodeErrorf("entity without name at offset %d", start)
	}

	skipSpace()
	if i >= len(text) || (text[i] != '"' && text[i] != '\'') {
		return formats.Segment{}, 0, formats.DecodeErrorf("entity %s: missing quoted value", name)
	}
	quote := text[i]
	valueStart := i + 1
	closing := strings.IndexByte(text[valueStart:], quote)
	if closing < 0 {
		return formats.Segment{}, 0, formats.DecodeErrorf("entity %s: unterminated value", name)
	}
	valueEnd := valueStart + closing
	i = valueEnd + 1

	skipSpace()
	if i >= len(text) || text[i] != '>' {
		return formats.Segment{}, 0, formats.DecodeErrorf("entity %s: missing '>'", name)
	}
	next := restOfLine(text, i+1)

	return formats.Segment{
		Text:       text[pos:next],
		Key:        name,
		ValueStart: valueStart - pos,
		ValueEnd:   valueEnd - pos,
		Quote:      quote,
	}, next, nil
}

// restOfLine extends off past trailing blanks and one line break.
func restOfLine(text string, off int) int {
	i := off
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\r') {
		i++
	}
	if i < len(text) && text[i] == '\n' {
		return i + 1
	}
	if i == len(text) {
		return i
	}
	return off
}

func isComment(s formats.Segment) bool {
	return strings.HasPrefix(strings.TrimSpace(s.Text), "<!--")
}

func commentText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<!--")
	s = strings.TrimSuffix(s, "-->")
	return strings.TrimSpace(s)
}

// Escape implements formats.ValueCodec.
func (Codec) Escape(seg formats.Segment, s string) string {
	if seg.Quote == '\'' {
		return strings.ReplaceAll(s, "'", "&apos;")
	}
	return strings.ReplaceAll(s, `"`, "&quot;")
}

var unescaper = strings.NewReplacer("&quot;", `"`, "&#34;", `"`, "&apos;", "'", "&#39;", "'")

// Unescape implements formats.ValueCodec.
func (Codec) Unescape(_ formats.Segment, raw string) string {
	return unescaper.Replace(raw)
}
