// Package properties implements Java .properties files.
package properties

import (
	"strconv"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

func init() {
	formats.Register(Codec{})
}

// Codec is the .properties codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatProperties }

func (Codec) Extensions() []string { return []string{".properties"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, BOM: true}
}

// Decode implements formats.Codec.
func (c Codec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	lines := formats.SplitLines(string(data))
	ld := &formats.LineDocument{}

	for i := 0; i < len(lines); {
		first := lines[i]
		trimmed := strings.TrimLeft(first, " \t\f")

		if trimmed == "" || strings.TrimSpace(trimmed) == "" || trimmed[0] == '#' || trimmed[0] == '!' {
			ld.Segments = append(ld.Segments, formats.Segment{Text: first})
			i++
			continue
		}

		// A logical line continues while the physical line ends in an odd
		// number of backslashes.
		end := i + 1
		for continues(lines[end-1]) && end < len(lines) {
			end++
		}
		text := strings.Join(lines[i:end], "")
		i = end

		seg, err := splitEntry(text)
		if err != nil {
			return nil, err
		}
		ld.Segments = append(ld.Segments, seg)
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

func isComment(s formats.Segment) bool {
	t := strings.TrimLeft(s.Text, " \t\f")
	return t != "" && (t[0] == '#' || t[0] == '!')
}

func commentText(line string) string {
	t := strings.TrimSpace(line)
	return strings.TrimSpace(t[1:])
}

func continues(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// splitEntry locates key and value of a logical line.
func splitEntry(text string) (formats.Segment, error) {
	seg := formats.Segment{Text: text}

	body := strings.TrimRight(text, "\r\n")
	i := len(text) - len(strings.TrimLeft(text, " \t\f"))

	var key strings.Builder
	for i < len(body) {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			key.WriteString(body[i : i+2])
			i += 2
			continue
		}
		if c == '=' || c == ':' || c == ' ' || c == '\t' || c == '\f' {
			break
		}
		key.WriteByte(c)
		i++
	}
	seg.Key = unescape(key.String())
	if seg.Key == "" {
		return seg, formats.DecodeErrorf("empty key in line %q", body)
	}

	// Separator: optional whitespace, at most one '=' or ':', optional
	// whitespace.
	for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\f') {
		i++
	}
	if i < len(body) && (body[i] == '=' || body[i] == ':') {
		i++
	}
	for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\f') {
		i++
	}

	seg.ValueStart = i
	seg.ValueEnd = len(body)
	return seg, nil
}

// Escape implements formats.ValueCodec.
func (Codec) Escape(_ formats.Segment, s string) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\f':
			b.WriteString(`\f`)
		case ' ':
			if i == 0 {
				b.WriteString(`\ `)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape implements formats.ValueCodec.
func (Codec) Unescape(_ formats.Segment, raw string) string {
	return unescape(raw)
}

func unescape(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			break
		}
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 < len(raw) {
				if r, err := strconv.ParseUint(raw[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i += 4
					continue
				}
			}
			b.WriteByte('u')
		case '\r', '\n':
			// Line continuation: skip the break and the next line's
			// leading whitespace.
			if raw[i] == '\r' && i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			for i+1 < len(raw) && (raw[i+1] == ' ' || raw[i+1] == '\t' || raw[i+1] == '\f') {
				i++
			}
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}
