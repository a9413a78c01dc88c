// Package ini implements INI resource files.
//
// Keys of the default section are used as they are; keys of other
// sections are prefixed with the section name and a dot. Units are read by
// the ini library. Files are written back line by line from the source, so
// untouched lines keep their spelling; sections left without translated
// keys are dropped. Files with multi-line or continued values are written
// by the ini library instead.
package ini

import (
	"bytes"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"gopkg.in/ini.v1"
)

func init() {
	formats.Register(Codec{})
}

var loadOptions = ini.LoadOptions{
	IgnoreInlineComment:         true,
	UnescapeValueCommentSymbols: true,
}

// Codec is the INI codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatINI }

func (Codec) Extensions() []string { return []string{".ini"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, BOM: true}
}

func unitKey(section, key string) string {
	if section == ini.DefaultSection {
		return key
	}
	return section + "." + key
}

// Decode implements formats.Codec.
func (Codec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, formats.DecodeErrorf("%v", err)
	}

	doc := &formats.Document{}
	if lines, ok := scan(data); ok {
		doc.Data = lines
	}
	for _, section := range f.Sections() {
		for _, key := range section.Keys() {
			u := l10n.NewTranslation(unitKey(section.Name(), key.Name()))
			u.SetText(l10n.NoPlural, key.Value())
			if c := strings.TrimSpace(strings.TrimLeft(key.Comment, "#;")); c != "" {
				u.Comments = []string{c}
			}
			if c := strings.TrimSpace(strings.TrimLeft(section.Comment, "#;")); c != "" {
				u.GroupComments = []string{c}
			}
			doc.Units = append(doc.Units, u)
		}
	}
	return doc, nil
}

// Encode implements formats.Codec.
func (c Codec) Encode(in formats.EncodeInput) ([]byte, error) {
	src, ok := in.Source.Data.(*lines)
	if !ok {
		return rewrite(in)
	}

	out := formats.EncodeInput{
		Source:       &formats.Document{Data: src.withoutEmptySections(in)},
		Translations: in.Translations,
		Locale:       in.Locale,
	}
	if in.Existing != nil {
		if old, ok := in.Existing.Data.(*lines); ok {
			out.Existing = &formats.Document{Data: old.doc}
		}
	}
	return formats.EncodeLines(out, c), nil
}

// rewrite writes the file through the ini library.
func rewrite(in formats.EncodeInput) ([]byte, error) {
	// Work on a fresh copy: the source document may be shared.
	f, err := ini.LoadSources(loadOptions, in.Source.Raw)
	if err != nil {
		return nil, formats.DecodeErrorf("%v", err)
	}

	for _, section := range f.Sections() {
		for _, name := range section.KeyStrings() {
			text, ok := in.Translated(unitKey(section.Name(), name))
			if !ok {
				section.DeleteKey(name)
				continue
			}
			section.Key(name).SetValue(text)
		}
		if section.Name() != ini.DefaultSection && len(section.Keys()) == 0 {
			f.DeleteSection(section.Name())
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lines is the line-by-line view of a file. headers maps the index of
// each section header segment to its section name.
type lines struct {
	doc     *formats.LineDocument
	headers map[int]string
}

// withoutEmptySections drops the sections without a translated key,
// with the blank lines and comments directly above their headers.
func (l *lines) withoutEmptySections(in formats.EncodeInput) *formats.LineDocument {
	keep := map[string]bool{}
	section := ini.DefaultSection
	for i, seg := range l.doc.Segments {
		if name, ok := l.headers[i]; ok {
			section = name
			continue
		}
		if seg.Key != "" {
			if _, ok := in.Translated(seg.Key); ok {
				keep[section] = true
			}
		}
	}

	out := &formats.LineDocument{}
	dropping := false
	for i, seg := range l.doc.Segments {
		if name, ok := l.headers[i]; ok {
			dropping = !keep[name]
			if dropping {
				for n := len(out.Segments); n > 0; n-- {
					last := out.Segments[n-1]
					if !last.IsBlank() && (!isComment(last) || last.Owner != "") {
						break
					}
					out.Segments = out.Segments[:n-1]
				}
				continue
			}
		}
		if !dropping {
			out.Segments = append(out.Segments, seg)
		}
	}
	return out
}

func isComment(s formats.Segment) bool {
	t := strings.TrimSpace(s.Text)
	return t != "" && (t[0] == '#' || t[0] == ';')
}

// scan splits data into segments keyed like the units. It reports false
// for layouts that cannot be followed line by line.
func scan(data []byte) (*lines, bool) {
	l := &lines{doc: &formats.LineDocument{}, headers: map[int]string{}}
	section := ini.DefaultSection

	for _, text := range formats.SplitLines(string(data)) {
		seg := formats.Segment{Text: text}
		body := strings.TrimRight(text, "\r\n")
		trimmed := strings.TrimSpace(body)

		switch {
		case trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';':
		case trimmed[0] == '[':
			end := strings.LastIndexByte(trimmed, ']')
			if end < 0 {
				return nil, false
			}
			section = strings.TrimSpace(trimmed[1:end])
			if section == "" {
				return nil, false
			}
			l.headers[len(l.doc.Segments)] = section
		default:
			key, ok := splitKey(body, &seg)
			if !ok {
				return nil, false
			}
			seg.Key = unitKey(section, key)
		}
		l.doc.Segments = append(l.doc.Segments, seg)
	}
	l.doc.AttachComments(isComment)
	return l, true
}

// splitKey locates the key and the value of a key line.
func splitKey(body string, seg *formats.Segment) (string, bool) {
	start := len(body) - len(strings.TrimLeft(body, " \t"))

	var key string
	i := start
	if q := body[i]; q == '"' || q == '`' {
		end := strings.IndexByte(body[i+1:], q)
		if end < 0 {
			return "", false
		}
		key = body[i+1 : i+1+end]
		i += end + 2
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || (body[i] != '=' && body[i] != ':') {
			return "", false
		}
	} else {
		d := strings.IndexAny(body, "=:")
		if d < 0 {
			return "", false
		}
		key = strings.TrimSpace(body[start:d])
		i = d
	}
	if key == "" {
		return "", false
	}
	i++
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}

	value := strings.TrimRight(body[i:], " \t")
	if strings.HasPrefix(value, `"""`) || strings.HasSuffix(value, `\`) {
		return "", false
	}
	if strings.HasPrefix(value, "`") && !surrounded(value, '`') {
		return "", false
	}
	seg.ValueStart, seg.ValueEnd = i, i+len(value)
	for _, q := range []byte{'`', '"', '\''} {
		if surrounded(value, q) {
			seg.Quote = q
			seg.ValueStart++
			seg.ValueEnd--
			break
		}
	}
	return key, true
}

// surrounded reports whether s is quoted with q and has no other q
// inside, which is when the ini library strips the quotes.
func surrounded(s string, q byte) bool {
	return len(s) >= 2 && s[0] == q && s[len(s)-1] == q && strings.IndexByte(s[1:], q) == len(s)-2
}

// Escape implements formats.ValueCodec.
func (Codec) Escape(seg formats.Segment, s string) string {
	if seg.Quote != 0 {
		return s
	}
	if strings.Contains(s, "\n") {
		return `"""` + s + `"""`
	}
	if s != strings.TrimSpace(s) || strings.HasPrefix(s, "`") || strings.HasSuffix(s, `\`) ||
		surrounded(s, '"') || surrounded(s, '\'') {
		if strings.Contains(s, `"`) {
			return `"""` + s + `"""`
		}
		return `"` + s + `"`
	}
	return s
}

// Unescape implements formats.ValueCodec.
func (Codec) Unescape(seg formats.Segment, raw string) string {
	if seg.Quote != 0 {
		return raw
	}
	return strings.NewReplacer(`\#`, "#", `\;`, ";").Replace(raw)
}
