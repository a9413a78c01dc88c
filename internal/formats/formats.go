// Package formats reads and writes localization files.
//
// Every supported file format is a Codec registered from its own package
// (internal/formats/po, internal/formats/xliff, ...). The set is closed:
// Format enumerates every variant and dispatch happens by file extension,
// with content sniffing where one extension covers several variants.
//
// # Usage
//
//	import _ "github.com/steveyegge/locsync/internal/formats/all"
//
//	res, err := formats.Parse("de/app.properties", "en-US/app.properties", locale)
//	if err != nil {
//	    return err
//	}
//	res.Translation("title").SetText(l10n.NoPlural, "Titel")
//	if err := res.Save(locale); err != nil {
//	    return err
//	}
//
// A Resource parsed against a source file carries every source unit, in
// source order; units missing from the locale file are empty placeholders.
// Save re-reads the source file and rewrites the locale file from it,
// omitting untranslated units.
package formats

import (
	"github.com/steveyegge/locsync/internal/l10n"
)

// Format identifies a file format variant.
type Format string

const (
	FormatPO           Format = "po"
	FormatXLIFF        Format = "xliff"
	FormatProperties   Format = "properties"
	FormatDTD          Format = "dtd"
	FormatINI          Format = "ini"
	FormatWebExtJSON   Format = "webext-json"
	FormatKeyValueJSON Format = "json"
	FormatYAML         Format = "yaml"
	FormatAndroid      Format = "android"
)

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// Semantics describes how a format maps onto translatable units.
type Semantics struct {
	// SeparateKey is true when unit keys are independent of source text.
	SeparateKey bool

	// Plurals is true when units may carry several plural forms.
	Plurals bool

	// Context is true when units carry a disambiguating context.
	Context bool

	// Fuzzy is true when the format can flag a translation as fuzzy.
	Fuzzy bool

	// KeepsEmpty is true when untranslated units stay in the file with an
	// empty value instead of being omitted.
	KeepsEmpty bool

	// BOM is true when a byte-order mark is tolerated and preserved.
	BOM bool

	// TemplateExtension is the source-only extension (".pot"), if any.
	TemplateExtension string

	// LocaleExtension replaces TemplateExtension in locale paths (".po").
	LocaleExtension string
}

// Document is one decoded file.
type Document struct {
	// Units lists the translatable units in document order.
	Units []*l10n.VCSTranslation

	// Data holds the codec-specific structure needed to re-encode the file.
	Data any

	// Raw is the decoded file content (without byte-order mark).
	Raw []byte

	// BOM records whether the file started with a UTF-8 byte-order mark.
	BOM bool

	index map[string]*l10n.VCSTranslation
}

// Unit returns the unit with the given key, or nil.
func (d *Document) Unit(key string) *l10n.VCSTranslation {
	if d == nil {
		return nil
	}
	if d.index == nil {
		d.index = make(map[string]*l10n.VCSTranslation, len(d.Units))
		for _, u := range d.Units {
			d.index[u.Key] = u
		}
	}
	return d.index[key]
}

// EncodeInput carries everything a codec needs to write a locale file.
type EncodeInput struct {
	// Source is the freshly decoded source file. Encoders walk it to
	// decide order, comments and structure of the output.
	Source *Document

	// Existing is the locale file as it was parsed, or nil when the file
	// did not exist. Encoders reuse its raw spellings for unchanged units.
	Existing *Document

	// Translations maps unit keys to their current translations.
	Translations map[string]*l10n.VCSTranslation

	Locale *l10n.Locale
}

// Translation returns the translation for key, or nil.
func (in EncodeInput) Translation(key string) *l10n.VCSTranslation {
	return in.Translations[key]
}

// Translated returns the singular text for key and whether it is set.
func (in EncodeInput) Translated(key string) (string, bool) {
	t := in.Translations[key]
	if t == nil {
		return "", false
	}
	s := t.Text(l10n.NoPlural)
	return s, s != ""
}

// Codec decodes and encodes one file format.
type Codec interface {
	// Format returns the variant this codec implements.
	Format() Format

	// Extensions lists the file extensions handled, with leading dot.
	Extensions() []string

	// Semantics describes the format's unit model.
	Semantics() Semantics

	// Decode parses data into a Document. The locale supplies the plural
	// mapping and is nil when decoding a source file.
	Decode(data []byte, locale *l10n.Locale) (*Document, error)

	// Encode renders a locale file from in.
	Encode(in EncodeInput) ([]byte, error)
}

// Sniffer is implemented by codecs that share an extension with another
// codec and can recognize their own content.
type Sniffer interface {
	Sniff(data []byte) bool
}

// PathMatcher is implemented by codecs that handle only some of the files
// carrying their extensions.
type PathMatcher interface {
	MatchPath(path string) bool
}
