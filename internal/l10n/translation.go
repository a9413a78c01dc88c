// Package l10n holds the data shared by every layer of the sync engine:
// the translatable unit read from and written to localization files, and
// the locale description that carries plural rules.
//
// Nothing in this package touches the filesystem or the store.
package l10n

import (
	"maps"
	"slices"
	"time"
)

// NoPlural is the plural-form key used for units that have no plural
// variants. Plural units use keys 0..NPlurals-1.
const NoPlural = -1

// VCSTranslation is one translatable unit as found in a localization file.
//
// Strings maps a plural-form index to the translated text. A missing key
// means "not translated"; an empty map means the unit is an untranslated
// placeholder.
type VCSTranslation struct {
	// Key uniquely identifies the unit within its resource.
	Key string

	// Context disambiguates identical source strings (gettext msgctxt).
	Context string

	SourceString       string
	SourceStringPlural string

	Strings map[int]string

	// Comments are attached to this unit; GroupComments and
	// ResourceComments come from enclosing sections and file headers.
	Comments         []string
	GroupComments    []string
	ResourceComments []string

	Fuzzy bool

	// Order is the position of the unit in its source document. Adapters
	// assign 0..n-1 without gaps.
	Order int

	// Source lists origin references (e.g. "src/main.c:12").
	Source []string

	LastUpdated    time.Time
	LastTranslator string
}

// NewTranslation returns an untranslated placeholder for key.
func NewTranslation(key string) *VCSTranslation {
	return &VCSTranslation{Key: key, Strings: make(map[int]string)}
}

// Equal reports whether both units have the same key and the same strings.
// Metadata such as comments and order is ignored.
func (t *VCSTranslation) Equal(other *VCSTranslation) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Key != other.Key {
		return false
	}
	return maps.Equal(t.nonEmpty(), other.nonEmpty())
}

func (t *VCSTranslation) nonEmpty() map[int]string {
	out := make(map[int]string, len(t.Strings))
	for form, s := range t.Strings {
		if s != "" {
			out[form] = s
		}
	}
	return out
}

// IsPlural reports whether the source unit has a plural variant.
func (t *VCSTranslation) IsPlural() bool {
	return t.SourceStringPlural != ""
}

// HasTranslation reports whether at least one plural form carries text.
func (t *VCSTranslation) HasTranslation() bool {
	for _, s := range t.Strings {
		if s != "" {
			return true
		}
	}
	return false
}

// SortedForms returns the populated plural-form keys in ascending order.
func (t *VCSTranslation) SortedForms() []int {
	forms := make([]int, 0, len(t.Strings))
	for form, s := range t.Strings {
		if s != "" {
			forms = append(forms, form)
		}
	}
	slices.Sort(forms)
	return forms
}

// Text returns the string stored under form, or "" when absent.
func (t *VCSTranslation) Text(form int) string {
	if t.Strings == nil {
		return ""
	}
	return t.Strings[form]
}

// SetText stores s under form. An empty s removes the form.
func (t *VCSTranslation) SetText(form int, s string) {
	if t.Strings == nil {
		t.Strings = make(map[int]string)
	}
	if s == "" {
		delete(t.Strings, form)
		return
	}
	t.Strings[form] = s
}

// Clone returns a deep copy of t.
func (t *VCSTranslation) Clone() *VCSTranslation {
	c := *t
	c.Strings = maps.Clone(t.Strings)
	if c.Strings == nil {
		c.Strings = make(map[int]string)
	}
	c.Comments = slices.Clone(t.Comments)
	c.GroupComments = slices.Clone(t.GroupComments)
	c.ResourceComments = slices.Clone(t.ResourceComments)
	c.Source = slices.Clone(t.Source)
	return &c
}

// SortByOrder sorts units by their Order field.
func SortByOrder(units []*VCSTranslation) {
	slices.SortStableFunc(units, func(a, b *VCSTranslation) int {
		return a.Order - b.Order
	})
}

// Renumber assigns Order 0..n-1 following slice order.
func Renumber(units []*VCSTranslation) {
	for i, u := range units {
		u.Order = i
	}
}
