// Package yaml implements YAML resource files.
//
// Units are the string leaves of nested mappings, keyed by their dotted
// path. Files with a single top-level key naming a locale (Rails style,
// "en:") have that key stripped from unit keys; it is replaced by the
// target locale code on save. Output is re-emitted by the yaml.v3 encoder
// with 2-space indentation.
package yaml

import (
	"bytes"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

func init() {
	formats.Register(Codec{})
}

// Codec is the YAML codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatYAML }

func (Codec) Extensions() []string { return []string{".yml", ".yaml"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, BOM: true}
}

// document is the Data of a decoded YAML file.
type document struct {
	node *yaml.Node

	// localeKey is the stripped top-level locale key, if any.
	localeKey *yaml.Node
}

// body returns the mapping holding the units.
func (d *document) body() *yaml.Node {
	root := d.node.Content[0]
	if d.localeKey != nil {
		return root.Content[1]
	}
	return root
}

func load(data []byte) (*document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, formats.DecodeErrorf("%v", err)
	}
	if node.Kind == 0 {
		// Empty file.
		node = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, formats.DecodeErrorf("top-level value is not a mapping")
	}

	doc := &document{node: &node}
	root := node.Content[0]
	if len(root.Content) == 2 && root.Content[1].Kind == yaml.MappingNode {
		if _, err := language.Parse(root.Content[0].Value); err == nil {
			doc.localeKey = root.Content[0]
		}
	}
	return doc, nil
}

// walk calls fn for every string leaf of m with its dotted key. fn returns
// false to remove the pair.
func walk(m *yaml.Node, prefix string, fn func(key string, k, v *yaml.Node) bool) {
	kept := m.Content[:0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		key := k.Value
		if prefix != "" {
			key = prefix + "." + k.Value
		}

		keep := true
		switch {
		case v.Kind == yaml.MappingNode:
			walk(v, key, fn)
		case v.Kind == yaml.ScalarNode && (v.Tag == "!!str" || v.Tag == ""):
			keep = fn(key, k, v)
		}
		if keep {
			kept = append(kept, k, v)
		}
	}
	m.Content = kept
}

// Decode implements formats.Codec.
func (Codec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	d, err := load(data)
	if err != nil {
		return nil, err
	}

	doc := &formats.Document{Data: d}
	walk(d.body(), "", func(key string, k, v *yaml.Node) bool {
		u := l10n.NewTranslation(key)
		u.SetText(l10n.NoPlural, v.Value)
		if c := commentText(k.HeadComment); c != "" {
			u.Comments = []string{c}
		}
		doc.Units = append(doc.Units, u)
		return true
	})
	return doc, nil
}

func commentText(c string) string {
	var lines []string
	for _, line := range strings.Split(c, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Encode implements formats.Codec.
func (Codec) Encode(in formats.EncodeInput) ([]byte, error) {
	// Re-load the source: the tree is edited in place.
	d, err := load(in.Source.Raw)
	if err != nil {
		return nil, err
	}

	var existing map[string]*yaml.Node
	if in.Existing != nil {
		if ed, ok := in.Existing.Data.(*document); ok {
			existing = make(map[string]*yaml.Node)
			walk(ed.body(), "", func(key string, _, v *yaml.Node) bool {
				existing[key] = v
				return true
			})
		}
	}

	walk(d.body(), "", func(key string, _, v *yaml.Node) bool {
		text, ok := in.Translated(key)
		if !ok {
			return false
		}
		v.Value = text
		v.Tag = "!!str"
		if old := existing[key]; old != nil && old.Value == text {
			v.Style = old.Style
		}
		return true
	})
	prune(d.body())

	if d.localeKey != nil && in.Locale != nil {
		d.localeKey.Value = in.Locale.Code
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// prune removes mappings left without pairs.
func prune(m *yaml.Node) {
	kept := m.Content[:0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if v.Kind == yaml.MappingNode {
			prune(v)
			if len(v.Content) == 0 {
				continue
			}
		}
		kept = append(kept, k, v)
	}
	m.Content = kept
}
