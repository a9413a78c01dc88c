// Package json implements the two JSON resource variants:
//
//   - WebExtension messages.json, where every top-level key maps to an
//     object with a "message" and an optional "description".
//   - Nested key/value JSON, where every string leaf is a unit keyed by its
//     dotted path.
//
// Files are edited in place with sjson, so bytes outside the touched values
// keep their original formatting.
package json

import (
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	formats.Register(WebExtCodec{})
	formats.Register(KeyValueCodec{})
}

var extensions = []string{".json"}

const pathSpecial = `\.*?|#@!=<>%:"`

// escapeComponent escapes one path component for gjson and sjson.
func escapeComponent(s string) string {
	if !strings.ContainsAny(s, pathSpecial) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(pathSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func joinPath(components []string) string {
	escaped := make([]string, len(components))
	for i, c := range components {
		escaped[i] = escapeComponent(c)
	}
	return strings.Join(escaped, ".")
}

// setValue sets path to text in out, reusing the raw JSON of the existing
// locale file when it decodes to the same text.
func setValue(out []byte, path, text string, existing *formats.Document) ([]byte, error) {
	if existing != nil {
		if old := gjson.GetBytes(existing.Raw, path); old.Type == gjson.String && old.String() == text {
			return sjson.SetRawBytes(out, path, []byte(old.Raw))
		}
	}
	return sjson.SetBytes(out, path, text)
}

func parseObject(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, formats.DecodeErrorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, formats.DecodeErrorf("top-level value is not an object")
	}
	return root, nil
}

// WebExtCodec is the WebExtension messages.json codec.
type WebExtCodec struct{}

func (WebExtCodec) Format() formats.Format { return formats.FormatWebExtJSON }

func (WebExtCodec) Extensions() []string { return extensions }

func (WebExtCodec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, BOM: true}
}

// Sniff reports whether data looks like a messages.json file.
func (WebExtCodec) Sniff(data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return false
	}
	n := 0
	ok := true
	root.ForEach(func(_, value gjson.Result) bool {
		n++
		if !value.IsObject() || value.Get("message").Type != gjson.String {
			ok = false
			return false
		}
		return true
	})
	return ok && n > 0
}

// Decode implements formats.Codec.
func (WebExtCodec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	root, err := parseObject(data)
	if err != nil {
		return nil, err
	}

	doc := &formats.Document{Data: root}
	var decodeErr error
	root.ForEach(func(key, value gjson.Result) bool {
		msg := value.Get("message")
		if !value.IsObject() || msg.Type != gjson.String {
			decodeErr = formats.DecodeErrorf("%s: missing message", key.String())
			return false
		}
		u := l10n.NewTranslation(key.String())
		u.SetText(l10n.NoPlural, msg.String())
		if d := value.Get("description").String(); d != "" {
			u.Comments = []string{d}
		}
		doc.Units = append(doc.Units, u)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return doc, nil
}

// Encode implements formats.Codec.
func (WebExtCodec) Encode(in formats.EncodeInput) ([]byte, error) {
	out := append([]byte(nil), in.Source.Raw...)

	var err error
	for _, u := range in.Source.Units {
		key := escapeComponent(u.Key)
		text, ok := in.Translated(u.Key)
		if !ok {
			out, err = sjson.DeleteBytes(out, key)
		} else {
			out, err = setValue(out, key+".message", text, in.Existing)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// KeyValueCodec is the nested key/value JSON codec.
type KeyValueCodec struct{}

func (KeyValueCodec) Format() formats.Format { return formats.FormatKeyValueJSON }

func (KeyValueCodec) Extensions() []string { return extensions }

func (KeyValueCodec) Semantics() formats.Semantics {
	return formats.Semantics{SeparateKey: true, BOM: true}
}

type leaf struct {
	key  string
	path string
	text string
}

// leaves lists the string leaves of root in document order.
func leaves(root gjson.Result) []leaf {
	var out []leaf
	var walk func(v gjson.Result, components []string)
	walk = func(v gjson.Result, components []string) {
		v.ForEach(func(k, child gjson.Result) bool {
			next := append(append([]string(nil), components...), k.String())
			switch {
			case child.IsObject():
				walk(child, next)
			case child.Type == gjson.String:
				out = append(out, leaf{
					key:  strings.Join(next, "."),
					path: joinPath(next),
					text: child.String(),
				})
			}
			return true
		})
	}
	walk(root, nil)
	return out
}

// Decode implements formats.Codec.
func (KeyValueCodec) Decode(data []byte, _ *l10n.Locale) (*formats.Document, error) {
	root, err := parseObject(data)
	if err != nil {
		return nil, err
	}

	doc := &formats.Document{Data: root}
	for _, l := range leaves(root) {
		u := l10n.NewTranslation(l.key)
		u.SetText(l10n.NoPlural, l.text)
		doc.Units = append(doc.Units, u)
	}
	return doc, nil
}

// Encode implements formats.Codec.
func (KeyValueCodec) Encode(in formats.EncodeInput) ([]byte, error) {
	out := append([]byte(nil), in.Source.Raw...)

	var err error
	for _, l := range leaves(gjson.ParseBytes(out)) {
		text, ok := in.Translated(l.key)
		if !ok {
			out, err = sjson.DeleteBytes(out, l.path)
		} else {
			out, err = setValue(out, l.path, text, in.Existing)
		}
		if err != nil {
			return nil, err
		}
	}
	return pruneEmpty(out)
}

// pruneEmpty deletes objects left without members, innermost first.
func pruneEmpty(out []byte) ([]byte, error) {
	for {
		path := firstEmpty(gjson.ParseBytes(out), nil)
		if path == "" {
			return out, nil
		}
		var err error
		if out, err = sjson.DeleteBytes(out, path); err != nil {
			return nil, err
		}
	}
}

func firstEmpty(v gjson.Result, components []string) string {
	var found string
	v.ForEach(func(k, child gjson.Result) bool {
		if !child.IsObject() {
			return true
		}
		next := append(append([]string(nil), components...), k.String())
		if len(child.Map()) == 0 {
			found = joinPath(next)
			return false
		}
		if p := firstEmpty(child, next); p != "" {
			found = p
			return false
		}
		return true
	})
	return found
}
