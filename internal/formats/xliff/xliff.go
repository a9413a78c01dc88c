// Package xliff implements XLIFF 1.2 files.
//
// Every <trans-unit> is a unit keyed by its id. When a document holds more
// than one <file>, keys are prefixed with the file's original attribute
// and "\x04". Locale files are the source file with <target> elements
// spliced in and the target-language attribute set; untranslated units
// carry no <target>.
package xliff

import (
	"fmt"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

func init() {
	formats.Register(Codec{})
}

const fileSeparator = "\x04"

// Codec is the XLIFF codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatXLIFF }

func (Codec) Extensions() []string { return []string{".xlf", ".xliff"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true}
}

type unit struct {
	key    string
	node   *formats.Node
	source *formats.Node
	target *formats.Node
}

// document is the Data of a decoded XLIFF file.
type document struct {
	files []*formats.Node
	units []unit
}

func (d *document) lookup(key string) *unit {
	for i := range d.units {
		if d.units[i].key == key {
			return &d.units[i]
		}
	}
	return nil
}

func first(n *formats.Node, name string) *formats.Node {
	if els := n.Elements(name); len(els) > 0 {
		return els[0]
	}
	return nil
}

func scan(data []byte) (*document, error) {
	root, err := formats.ScanXML(data)
	if err != nil {
		return nil, err
	}
	xliff := first(root, "xliff")
	if xliff == nil {
		return nil, formats.DecodeErrorf("missing <xliff> root element")
	}

	d := &document{files: xliff.Elements("file")}
	multi := len(d.files) > 1
	seen := make(map[string]bool)
	for _, f := range d.files {
		original, _ := f.Attr("original")
		var walkErr error
		f.Walk(func(n *formats.Node) {
			if n.Name != "trans-unit" || walkErr != nil {
				return
			}
			id, _ := n.Attr("id")
			if id == "" {
				walkErr = formats.DecodeErrorf("trans-unit without id")
				return
			}
			key := id
			if multi {
				key = original + fileSeparator + id
			}
			if seen[key] {
				walkErr = formats.DecodeErrorf("duplicate trans-unit %q", key)
				return
			}
			seen[key] = true

			u := unit{key: key, node: n, source: first(n, "source"), target: first(n, "target")}
			if u.source == nil {
				walkErr = formats.DecodeErrorf("trans-unit %q without <source>", key)
				return
			}
			d.units = append(d.units, u)
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return d, nil
}

// text returns the character data of n, or its raw content when it holds
// inline markup.
func text(data []byte, n *formats.Node) string {
	if n == nil {
		return ""
	}
	if n.HasMarkup {
		return n.Inner(data)
	}
	return n.Text
}

// Decode implements formats.Codec.
func (Codec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	d, err := scan(data)
	if err != nil {
		return nil, err
	}

	doc := &formats.Document{Data: d}
	for _, u := range d.units {
		t := l10n.NewTranslation(u.key)
		t.SourceString = text(data, u.source)
		t.SetText(l10n.NoPlural, text(data, u.target))
		for _, note := range u.node.Elements("note") {
			if s := strings.TrimSpace(note.Text); s != "" {
				t.Comments = append(t.Comments, s)
			}
		}
		doc.Units = append(doc.Units, t)
	}
	return doc, nil
}

// Encode implements formats.Codec.
func (Codec) Encode(in formats.EncodeInput) ([]byte, error) {
	data := in.Source.Raw
	src := in.Source.Data.(*document)

	var existing *document
	if in.Existing != nil {
		existing, _ = in.Existing.Data.(*document)
	}

	var edits []formats.Edit
	if in.Locale != nil {
		for _, f := range src.files {
			edits = append(edits, setAttr(data, f, "target-language", in.Locale.Code))
		}
	}

	for _, u := range src.units {
		s, ok := in.Translated(u.key)
		if !ok {
			if u.target != nil {
				edits = append(edits, formats.Edit{
					Start: formats.LineStart(data, u.target.Start),
					End:   formats.LineEnd(data, u.target.End),
				})
			}
			continue
		}

		raw := s
		if !u.source.HasMarkup {
			raw = formats.EscapeXMLText(s)
		}
		if existing != nil {
			if old := existing.lookup(u.key); old != nil && old.target != nil && text(in.Existing.Raw, old.target) == s {
				raw = old.target.Inner(in.Existing.Raw)
			}
		}

		switch {
		case u.target != nil && u.target.InnerStart != u.target.End:
			edits = append(edits, formats.Edit{Start: u.target.InnerStart, End: u.target.InnerEnd, Text: raw})
		case u.target != nil:
			edits = append(edits, formats.Edit{Start: u.target.Start, End: u.target.End, Text: "<target>" + raw + "</target>"})
		default:
			indent := formats.Indent(data, u.source.Start)
			sep := "\n" + indent
			if indent == "" {
				sep = ""
			}
			edits = append(edits, formats.Edit{
				Start: u.source.End,
				End:   u.source.End,
				Text:  sep + "<target>" + raw + "</target>",
			})
		}
	}

	return formats.ApplyEdits(data, edits), nil
}

// setAttr sets attribute name of element n, inserting it when missing.
func setAttr(data []byte, n *formats.Node, name, value string) formats.Edit {
	tag := string(data[n.Start:n.InnerStart])
	escaped := strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;").Replace(value)

	for _, q := range []string{`"`, `'`} {
		marker := " " + name + "=" + q
		if i := strings.Index(tag, marker); i >= 0 {
			start := i + len(marker)
			end := strings.Index(tag[start:], q)
			if end >= 0 {
				return formats.Edit{Start: n.Start + start, End: n.Start + start + end, Text: escaped}
			}
		}
	}

	// Insert before ">" (or "/>") of the start tag.
	insert := len(strings.TrimRight(tag, " \t\r\n/>"))
	return formats.Edit{
		Start: n.Start + insert,
		End:   n.Start + insert,
		Text:  fmt.Sprintf(` %s="%s"`, name, escaped),
	}
}
