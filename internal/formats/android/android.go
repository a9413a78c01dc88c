// Package android implements Android string resources (res/values*/*.xml).
//
// <string> elements are singular units keyed by name. <plurals> elements
// are plural units whose <item quantity="..."> children map to plural
// forms through the locale's CLDR categories. Elements marked
// translatable="false" and unsupported elements such as <string-array>
// are not written to locale files.
//
// Locale files are produced by splicing new values into the source file,
// so everything outside the edited elements keeps its bytes.
package android

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

func init() {
	formats.Register(Codec{})
}

// Codec is the Android strings.xml codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatAndroid }

func (Codec) Extensions() []string { return []string{".xml"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, Plurals: true}
}

// MatchPath accepts XML files inside values or values-* directories.
func (Codec) MatchPath(path string) bool {
	dir := filepath.Base(filepath.Dir(path))
	return dir == "values" || strings.HasPrefix(dir, "values-")
}

// document is the Data of a decoded resources file.
type document struct {
	resources *formats.Node

	// comments maps elements to the comments directly above them.
	comments map[*formats.Node][]*formats.Node
}

func scan(data []byte) (*document, error) {
	root, err := formats.ScanXML(data)
	if err != nil {
		return nil, err
	}
	res := root.Elements("resources")
	if len(res) != 1 {
		return nil, formats.DecodeErrorf("expected one <resources> element")
	}

	d := &document{resources: res[0], comments: make(map[*formats.Node][]*formats.Node)}
	var pending []*formats.Node
	last := 0
	for _, n := range d.resources.Children {
		gapBreaks := len(pending) > 0 && strings.Count(string(data[last:n.Start]), "\n") > 1
		if gapBreaks {
			pending = nil
		}
		if n.Name == "#comment" {
			pending = append(pending, n)
		} else {
			if len(pending) > 0 {
				d.comments[n] = pending
			}
			pending = nil
		}
		last = n.End
	}
	return d, nil
}

func translatable(n *formats.Node) bool {
	v, ok := n.Attr("translatable")
	return !ok || v != "false"
}

// Decode implements formats.Codec.
func (Codec) Decode(data []byte, locale *l10n.Locale) (*formats.Document, error) {
	d, err := scan(data)
	if err != nil {
		return nil, err
	}

	doc := &formats.Document{Data: d}
	for _, n := range d.resources.Children {
		name, _ := n.Attr("name")
		if name == "" || !translatable(n) {
			continue
		}

		var u *l10n.VCSTranslation
		switch n.Name {
		case "string":
			u = l10n.NewTranslation(name)
			u.SetText(l10n.NoPlural, elementText(data, n))
		case "plurals":
			u, err = decodePlurals(data, n, name, locale)
			if err != nil {
				return nil, err
			}
		default:
			continue
		}

		for _, c := range d.comments[n] {
			u.Comments = append(u.Comments, strings.TrimSpace(c.Text))
		}
		doc.Units = append(doc.Units, u)
	}
	return doc, nil
}

func decodePlurals(data []byte, n *formats.Node, name string, locale *l10n.Locale) (*l10n.VCSTranslation, error) {
	u := l10n.NewTranslation(name)
	items := n.Elements("item")
	for i, item := range items {
		q, ok := item.Attr("quantity")
		if !ok {
			return nil, formats.DecodeErrorf("plurals %s: item without quantity", name)
		}
		text := elementText(data, item)

		idx := i
		if locale != nil {
			if idx, ok = locale.PluralIndex(q); !ok {
				continue
			}
		}
		u.SetText(idx, text)

		switch q {
		case "one":
			u.SourceString = text
		case "other":
			u.SourceStringPlural = text
		}
	}
	if len(items) > 0 {
		if u.SourceString == "" {
			u.SourceString = elementText(data, items[0])
		}
		if u.SourceStringPlural == "" {
			u.SourceStringPlural = elementText(data, items[len(items)-1])
		}
	}
	return u, nil
}

// elementText returns the unescaped text of n. Content with markup is
// returned raw.
func elementText(data []byte, n *formats.Node) string {
	if n.HasMarkup {
		return n.Inner(data)
	}
	return unescape(n.Text)
}

// Encode implements formats.Codec.
func (Codec) Encode(in formats.EncodeInput) ([]byte, error) {
	data := in.Source.Raw
	src := in.Source.Data.(*document)

	var existing *document
	if in.Existing != nil {
		existing, _ = in.Existing.Data.(*document)
	}
	existingRaw := func(name, kind string) (*formats.Node, bool) {
		if existing == nil {
			return nil, false
		}
		for _, n := range existing.resources.Children {
			if v, _ := n.Attr("name"); v == name && n.Name == kind {
				return n, true
			}
		}
		return nil, false
	}

	var edits []formats.Edit
	remove := func(n *formats.Node) {
		for _, c := range src.comments[n] {
			edits = append(edits, formats.Edit{Start: formats.LineStart(data, c.Start), End: formats.LineEnd(data, c.End)})
		}
		edits = append(edits, formats.Edit{Start: formats.LineStart(data, n.Start), End: formats.LineEnd(data, n.End)})
	}

	for _, n := range src.resources.Children {
		if n.Name == "#comment" {
			continue
		}
		name, _ := n.Attr("name")
		if name == "" || !translatable(n) {
			remove(n)
			continue
		}

		switch n.Name {
		case "string":
			text, ok := in.Translated(name)
			if !ok {
				remove(n)
				continue
			}
			raw := text
			if !n.HasMarkup {
				raw = escape(text)
			}
			if old, found := existingRaw(name, "string"); found && elementText(in.Existing.Raw, old) == text {
				raw = old.Inner(in.Existing.Raw)
			}
			edits = append(edits, setInner(data, n, raw))

		case "plurals":
			t := in.Translation(name)
			if t == nil || !t.HasTranslation() {
				remove(n)
				continue
			}
			var raw string
			if old, found := existingRaw(name, "plurals"); found && t.Equal(in.Existing.Unit(name)) {
				raw = old.Inner(in.Existing.Raw)
			} else {
				raw = renderItems(data, n, t, in.Locale)
			}
			edits = append(edits, setInner(data, n, raw))

		default:
			remove(n)
		}
	}

	return formats.ApplyEdits(data, edits), nil
}

// setInner replaces the content of n, expanding self-closing elements.
func setInner(data []byte, n *formats.Node, inner string) formats.Edit {
	if n.InnerStart == n.End {
		tag := strings.TrimSpace(strings.TrimSuffix(string(data[n.Start:n.End]), "/>"))
		return formats.Edit{Start: n.Start, End: n.End, Text: fmt.Sprintf("%s>%s</%s>", tag, inner, n.Name)}
	}
	return formats.Edit{Start: n.InnerStart, End: n.InnerEnd, Text: inner}
}

// renderItems renders the <item> children of a plurals element for the
// locale's plural categories.
func renderItems(data []byte, n *formats.Node, t *l10n.VCSTranslation, locale *l10n.Locale) string {
	indent := formats.Indent(data, n.Start)
	itemIndent := indent + "    "
	items := n.Elements("item")
	if len(items) > 0 {
		itemIndent = formats.Indent(data, items[0].Start)
	}

	var categories []string
	if locale != nil {
		categories = locale.Categories()
	} else {
		for _, item := range items {
			q, _ := item.Attr("quantity")
			categories = append(categories, q)
		}
	}

	var b strings.Builder
	for i, cat := range categories {
		s := t.Text(i)
		if s == "" {
			continue
		}
		fmt.Fprintf(&b, "\n%s<item quantity=\"%s\">%s</item>", itemIndent, cat, escape(s))
	}
	b.WriteString("\n" + indent)
	return b.String()
}

// escape encodes s for an Android string value.
func escape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '@', '?':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescape decodes Android backslash escapes and surrounding quotes.
func unescape(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'u':
			if i+4 < len(s) {
				if r, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i += 4
					continue
				}
			}
			b.WriteByte('u')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
