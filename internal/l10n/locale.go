package l10n

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
)

// CLDR plural categories, indexed the way Locale.CLDRPlurals refers to them.
const (
	CLDRZero = iota
	CLDROne
	CLDRTwo
	CLDRFew
	CLDRMany
	CLDROther
)

var cldrCategories = [...]string{"zero", "one", "two", "few", "many", "other"}

// Locale describes a target language and its plural rules.
type Locale struct {
	Code string
	Name string

	// CLDRPlurals lists the CLDR categories the locale uses, as indices
	// into zero/one/two/few/many/other, in plural-form order.
	CLDRPlurals []int

	// PluralRule is the gettext plural expression, e.g. "(n != 1)".
	PluralRule string

	// Direction is "ltr" or "rtl".
	Direction string
}

// NPlurals returns the number of plural forms of the locale.
func (l *Locale) NPlurals() int {
	if len(l.CLDRPlurals) == 0 {
		return 1
	}
	return len(l.CLDRPlurals)
}

// Categories returns the CLDR category names used by the locale, in
// plural-form order.
func (l *Locale) Categories() []string {
	if len(l.CLDRPlurals) == 0 {
		return []string{"other"}
	}
	out := make([]string, 0, len(l.CLDRPlurals))
	for _, c := range l.CLDRPlurals {
		if c >= 0 && c < len(cldrCategories) {
			out = append(out, cldrCategories[c])
		}
	}
	return out
}

// PluralIndex maps a CLDR category name ("one", "few", ...) to the
// locale's plural-form index.
func (l *Locale) PluralIndex(category string) (int, bool) {
	idx := slices.Index(l.Categories(), strings.ToLower(category))
	return idx, idx >= 0
}

// PluralCategory maps a plural-form index back to its CLDR category.
func (l *Locale) PluralCategory(index int) (string, bool) {
	cats := l.Categories()
	if index < 0 || index >= len(cats) {
		return "", false
	}
	return cats[index], true
}

// GettextPluralForms renders the value of a PO "Plural-Forms" header.
func (l *Locale) GettextPluralForms() string {
	rule := l.PluralRule
	if rule == "" {
		rule = "0"
	}
	return fmt.Sprintf("nplurals=%d; plural=%s;", l.NPlurals(), rule)
}

func (l *Locale) String() string {
	if l.Name == "" {
		return l.Code
	}
	return fmt.Sprintf("%s (%s)", l.Name, l.Code)
}

// NewLocale builds a Locale, deriving plural categories from CLDR data.
func NewLocale(code, name string) *Locale {
	return &Locale{
		Code:        code,
		Name:        name,
		CLDRPlurals: DefaultCLDRPlurals(code),
		Direction:   "ltr",
	}
}

// pluralOperands holds sample numbers as CLDR operands (i, v, w, f, t).
var pluralOperands = func() [][5]int {
	var ops [][5]int
	for n := 0; n <= 200; n++ {
		ops = append(ops, [5]int{n, 0, 0, 0, 0})
	}
	for _, n := range []int{1000, 10000, 100000, 1000000} {
		ops = append(ops, [5]int{n, 0, 0, 0, 0})
	}
	for _, i := range []int{0, 1, 2, 5, 10} {
		ops = append(ops, [5]int{i, 1, 1, 5, 5})
	}
	return ops
}()

var formToCLDR = map[plural.Form]int{
	plural.Zero:  CLDRZero,
	plural.One:   CLDROne,
	plural.Two:   CLDRTwo,
	plural.Few:   CLDRFew,
	plural.Many:  CLDRMany,
	plural.Other: CLDROther,
}

// DefaultCLDRPlurals probes the CLDR cardinal rules for code and returns
// the categories the language distinguishes, sorted.
func DefaultCLDRPlurals(code string) []int {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return []int{CLDROne, CLDROther}
	}
	seen := make(map[int]bool)
	for _, op := range pluralOperands {
		form := plural.Cardinal.MatchPlural(tag, op[0], op[1], op[2], op[3], op[4])
		seen[formToCLDR[form]] = true
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// NormalizeCode canonicalizes a locale code: "pt_br" and "pt-br" become
// "pt-BR". Unparseable codes are returned unchanged.
func NormalizeCode(code string) string {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	return tag.String()
}

// CodeVariants returns the spellings under which a locale directory may
// appear on disk, most specific first and without duplicates.
func CodeVariants(code string) []string {
	norm := NormalizeCode(code)
	candidates := []string{
		code,
		norm,
		strings.ReplaceAll(code, "-", "_"),
		strings.ReplaceAll(norm, "-", "_"),
		strings.ToLower(code),
		strings.ToLower(strings.ReplaceAll(code, "-", "_")),
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// SameCode reports whether a and b name the same locale.
func SameCode(a, b string) bool {
	return strings.EqualFold(NormalizeCode(a), NormalizeCode(b))
}
