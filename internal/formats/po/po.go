// Package po implements gettext PO and POT files.
//
// Unit keys are the msgid, prefixed by msgctxt and "\x04" when a context
// is present. Plural translations use the msgstr[n] index as plural form.
// Untranslated entries stay in the file with an empty msgstr, as gettext
// tools expect.
//
// Entries whose ids and translations did not change are written back from
// their raw lines, and the line endings and blank lines of the existing
// file are kept. When anything changed, the header fields
// PO-Revision-Date, Last-Translator, Language and Plural-Forms are
// updated.
package po

import (
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

func init() {
	formats.Register(Codec{})
}

// Codec is the PO/POT codec.
type Codec struct{}

func (Codec) Format() formats.Format { return formats.FormatPO }

func (Codec) Extensions() []string { return []string{".po", ".pot"} }

func (Codec) Semantics() formats.Semantics {
	return formats.Semantics{
		Plurals:           true,
		Context:           true,
		Fuzzy:             true,
		KeepsEmpty:        true,
		TemplateExtension: ".pot",
		LocaleExtension:   ".po",
	}
}

// Decode implements formats.Codec.
func (Codec) Decode(data []byte, locale *l10n.Locale) (*formats.Document, error) {
	f, err := parse(data)
	if err != nil {
		return nil, err
	}

	doc := &formats.Document{Data: f}
	for _, e := range f.entries {
		u := &l10n.VCSTranslation{
			Key:                e.key(),
			Context:            e.context,
			SourceString:       e.id,
			SourceStringPlural: e.idPlural,
			Strings:            e.forms(),
			Fuzzy:              e.fuzzy(),
			Source:             e.references,
		}
		u.Comments = append(u.Comments, e.extracted...)
		u.Comments = append(u.Comments, e.translator...)
		doc.Units = append(doc.Units, u)
	}
	return doc, nil
}

// Encode implements formats.Codec.
func (Codec) Encode(in formats.EncodeInput) ([]byte, error) {
	src := in.Source.Data.(*file)

	var old *file
	if in.Existing != nil {
		old = in.Existing.Data.(*file)
	}

	oldByKey := map[string]*entry{}
	if old != nil {
		oldByKey = old.lookup()
	}

	dirty := old == nil || !sameKeys(src, old)
	var (
		blocks  []block
		changed []*l10n.VCSTranslation
	)
	for _, se := range src.entries {
		t := in.Translation(se.key())
		oe := oldByKey[se.key()]
		sep := se.sep
		if oe != nil {
			sep = oe.sep
		}
		if oe != nil && sameIDs(se, oe) && unchanged(oe, t) {
			blocks = append(blocks, block{lines: oe.lines, sep: sep})
			continue
		}
		dirty = true
		if t != nil && t.HasTranslation() {
			changed = append(changed, t)
		}
		blocks = append(blocks, block{lines: render(se, oe, t, in.Locale), sep: sep})
	}

	layout, preamble := src.spacing, src.preamble
	if old != nil {
		layout, preamble = old.spacing, old.preamble
	}
	out := append([]block(nil), preamble...)

	switch {
	case old != nil && old.header != nil && !dirty:
		out = append(out, block{lines: old.header.lines, sep: old.header.sep})
	case old != nil && old.header != nil:
		out = append(out, block{lines: renderHeader(old.header, in.Locale, changed, false), sep: old.header.sep})
	case src.header != nil:
		out = append(out, block{lines: renderHeader(src.header, in.Locale, changed, true), sep: src.header.sep})
	}

	out = append(out, blocks...)
	if old != nil {
		for _, e := range old.obsolete {
			out = append(out, block{lines: e.lines, sep: e.sep})
		}
	}

	if len(out) == 0 {
		return nil, nil
	}
	return layout.join(out), nil
}

// join writes blocks with the separators they were read with. Blocks
// that were first in their file get a single blank line.
func (sp spacing) join(blocks []block) []byte {
	var b strings.Builder
	b.WriteString(sp.lead)
	for i, blk := range blocks {
		if i > 0 {
			sep := blk.sep
			if sep == "" {
				sep = "\n\n"
			}
			b.WriteString(sep)
		}
		b.WriteString(blk.raw())
	}
	b.WriteString(sp.trail)

	text := b.String()
	if sp.eol != "\n" {
		text = strings.ReplaceAll(text, "\n", sp.eol)
	}
	return []byte(text)
}

func sameKeys(a, b *file) bool {
	if len(a.entries) != len(b.entries) {
		return false
	}
	for i := range a.entries {
		if a.entries[i].key() != b.entries[i].key() {
			return false
		}
	}
	return true
}

func sameIDs(a, b *entry) bool {
	return a.id == b.id && a.idPlural == b.idPlural && a.hasPlural == b.hasPlural &&
		a.hasContext == b.hasContext && a.context == b.context
}

func unchanged(e *entry, t *l10n.VCSTranslation) bool {
	if t == nil {
		return len(e.forms()) == 0 && !e.fuzzy()
	}
	want := make(map[int]string)
	for form, s := range t.Strings {
		if s != "" {
			want[form] = s
		}
	}
	return maps.Equal(e.forms(), want) && e.fuzzy() == t.Fuzzy
}

// render writes an entry from the source entry se and translation t.
// Translator comments come from the previous locale entry when there is
// one.
func render(se, oe *entry, t *l10n.VCSTranslation, locale *l10n.Locale) []string {
	var lines []string

	translator := se.translator
	if oe != nil {
		translator = oe.translator
	}
	for _, c := range translator {
		if c == "" {
			lines = append(lines, "#")
		} else {
			lines = append(lines, "# "+c)
		}
	}
	for _, c := range se.extracted {
		lines = append(lines, "#. "+c)
	}
	if len(se.references) > 0 {
		lines = append(lines, "#: "+strings.Join(se.references, " "))
	}

	var flags []string
	if t != nil && t.Fuzzy {
		flags = append(flags, "fuzzy")
	}
	for _, f := range se.flags {
		if f != "fuzzy" {
			flags = append(flags, f)
		}
	}
	if len(flags) > 0 {
		lines = append(lines, "#, "+strings.Join(flags, ", "))
	}

	if se.hasContext {
		lines = append(lines, field("msgctxt", se.context)...)
	}
	lines = append(lines, field("msgid", se.id)...)

	if !se.hasPlural {
		var s string
		if t != nil {
			s = t.Text(l10n.NoPlural)
		}
		lines = append(lines, field("msgstr", s)...)
		return lines
	}

	lines = append(lines, field("msgid_plural", se.idPlural)...)
	n := 2
	if locale != nil {
		n = locale.NPlurals()
	}
	if t != nil {
		for form := range t.Strings {
			if form >= n {
				n = form + 1
			}
		}
	}
	for i := 0; i < n; i++ {
		var s string
		if t != nil {
			s = t.Text(i)
		}
		lines = append(lines, field("msgstr["+strconv.Itoa(i)+"]", s)...)
	}
	return lines
}

// field renders keyword and value. Values with inner line breaks are split
// after each "\n", starting with an empty string, like msgcat does.
func field(keyword, value string) []string {
	idx := strings.Index(value, "\n")
	if idx < 0 || idx == len(value)-1 {
		return []string{keyword + " " + quote(value)}
	}
	lines := []string{keyword + ` ""`}
	for _, part := range strings.SplitAfter(value, "\n") {
		if part != "" {
			lines = append(lines, quote(part))
		}
	}
	return lines
}

const revisionDateLayout = "2006-01-02 15:04-0700"

// renderHeader rewrites the header entry with updated metadata fields.
// fromTemplate drops the "fuzzy" flag POT headers carry.
func renderHeader(h *entry, locale *l10n.Locale, changed []*l10n.VCSTranslation, fromTemplate bool) []string {
	fields := h.headerFields()

	set := func(key, value string) {
		for i := range fields {
			if strings.EqualFold(fields[i][0], key) {
				fields[i][1] = value
				return
			}
		}
		fields = append(fields, [2]string{key, value})
	}

	var latest *l10n.VCSTranslation
	for _, t := range changed {
		if latest == nil || t.LastUpdated.After(latest.LastUpdated) {
			latest = t
		}
	}
	if latest != nil && !latest.LastUpdated.IsZero() {
		set("PO-Revision-Date", latest.LastUpdated.In(time.UTC).Format(revisionDateLayout))
	}
	if latest != nil && latest.LastTranslator != "" {
		set("Last-Translator", latest.LastTranslator)
	}
	if locale != nil {
		set("Language", locale.Code)
		if locale.PluralRule != "" {
			set("Plural-Forms", locale.GettextPluralForms())
		}
	}

	var lines []string
	for _, c := range h.comments {
		if fromTemplate && strings.TrimSpace(c) == "#, fuzzy" {
			continue
		}
		lines = append(lines, c)
	}
	lines = append(lines, `msgid ""`, `msgstr ""`)
	for _, kv := range fields {
		lines = append(lines, quote(kv[0]+": "+kv[1]+"\n"))
	}
	return lines
}
