package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/steveyegge/locsync/internal/l10n"
)

// Cache holds decoded source documents for the duration of one sync pass,
// keyed by absolute path. A nil *Cache disables caching.
type Cache struct {
	mu    sync.Mutex
	items map[string]cacheEntry
}

type cacheEntry struct {
	codec Codec
	doc   *Document
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheEntry)}
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) load(path string) (Codec, *Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	if c != nil {
		c.mu.Lock()
		e, ok := c.items[abs]
		c.mu.Unlock()
		if ok {
			return e.codec, e.doc, nil
		}
	}

	codec, doc, err := decodeFile(abs, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	if c != nil {
		c.mu.Lock()
		c.items[abs] = cacheEntry{codec: codec, doc: doc}
		c.mu.Unlock()
	}
	return codec, doc, nil
}

// decodeFile reads and decodes path. If codec is nil it is detected from
// the path and content.
func decodeFile(path string, codec Codec, locale *l10n.Locale) (Codec, *Document, error) {
	if codec == nil {
		cands := candidates(path)
		if len(cands) == 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
		}
		bom := false
		for _, c := range cands {
			bom = bom || c.Semantics().BOM
		}
		data, _, err := ReadFile(path, bom)
		if err != nil {
			return nil, nil, err
		}
		if codec, err = Detect(path, data); err != nil {
			return nil, nil, err
		}
	}

	data, hadBOM, err := ReadFile(path, codec.Semantics().BOM)
	if err != nil {
		return codec, nil, err
	}
	doc, err := codec.Decode(data, locale)
	if err != nil {
		return codec, nil, err
	}
	doc.Raw = data
	doc.BOM = hadBOM
	l10n.Renumber(doc.Units)
	return codec, doc, nil
}

// Resource is one parsed localization file.
type Resource struct {
	// Path is the file path; it may not exist yet.
	Path string

	// SourcePath is the source file the resource was parsed against, or
	// empty for source and bilingual files parsed on their own.
	SourcePath string

	Format Format

	// Translations lists units in source order.
	Translations []*l10n.VCSTranslation

	codec    Codec
	existing *Document
	index    map[string]*l10n.VCSTranslation
}

// Parse parses the file at path. When sourcePath is set, units come from
// the source file and are filled from path; a missing path then yields a
// resource of untranslated placeholders instead of an error.
func Parse(path, sourcePath string, locale *l10n.Locale) (*Resource, error) {
	return ParseWithCache(nil, path, sourcePath, locale)
}

// ParseWithCache is Parse with source documents served from cache.
func ParseWithCache(cache *Cache, path, sourcePath string, locale *l10n.Locale) (*Resource, error) {
	res := &Resource{Path: path, SourcePath: sourcePath}

	var (
		source *Document
		codec  Codec
		err    error
	)
	if sourcePath != "" {
		codec, source, err = cache.load(sourcePath)
		if err != nil {
			return nil, &ParseError{Path: sourcePath, Err: err}
		}
	}

	codec, existing, err := decodeFile(path, codec, locale)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound) && source != nil:
		existing = nil
	default:
		return nil, &ParseError{Path: path, Err: err}
	}

	res.codec = codec
	res.Format = codec.Format()
	res.existing = existing

	if source == nil {
		for _, u := range existing.Units {
			res.Translations = append(res.Translations, u.Clone())
		}
		return res, nil
	}

	for _, su := range source.Units {
		t := su.Clone()
		if t.SourceString == "" {
			t.SourceString = su.Text(l10n.NoPlural)
		}
		t.Strings = make(map[int]string)
		t.Fuzzy = false
		if lu := existing.Unit(su.Key); lu != nil {
			for form, s := range lu.Strings {
				t.SetText(form, s)
			}
			t.Fuzzy = lu.Fuzzy
			t.LastTranslator = lu.LastTranslator
			t.LastUpdated = lu.LastUpdated
		}
		res.Translations = append(res.Translations, t)
	}
	l10n.Renumber(res.Translations)
	return res, nil
}

// Translation returns the unit with the given key, or nil.
func (r *Resource) Translation(key string) *l10n.VCSTranslation {
	if r.index == nil {
		r.index = make(map[string]*l10n.VCSTranslation, len(r.Translations))
		for _, t := range r.Translations {
			r.index[t.Key] = t
		}
	}
	return r.index[key]
}

// Exists reports whether the locale file existed when parsed or saved.
func (r *Resource) Exists() bool {
	return r.existing != nil
}

// Save writes the resource to Path. The source file is re-read and
// walked; units without a translation are omitted unless the format keeps
// empty values.
func (r *Resource) Save(locale *l10n.Locale) error {
	if r.SourcePath == "" {
		return &SaveError{Path: r.Path, Err: ErrNoSource}
	}

	_, source, err := decodeFile(r.SourcePath, r.codec, nil)
	if err != nil {
		return &SaveError{Path: r.Path, Err: err}
	}

	byKey := make(map[string]*l10n.VCSTranslation, len(r.Translations))
	for _, t := range r.Translations {
		byKey[t.Key] = t
	}

	out, err := r.codec.Encode(EncodeInput{
		Source:       source,
		Existing:     r.existing,
		Translations: byKey,
		Locale:       locale,
	})
	if err != nil {
		return &SaveError{Path: r.Path, Err: err}
	}

	bom := source.BOM
	if r.existing != nil {
		bom = r.existing.BOM
	}
	if bom && r.codec.Semantics().BOM {
		out = append(append([]byte{}, utf8BOM...), out...)
	}

	if err := WriteFile(r.Path, out); err != nil {
		return &SaveError{Path: r.Path, Err: err}
	}

	// Later saves compare against what is now on disk.
	_, written, err := decodeFile(r.Path, r.codec, locale)
	if err != nil {
		return &SaveError{Path: r.Path, Err: err}
	}
	r.existing = written
	return nil
}
