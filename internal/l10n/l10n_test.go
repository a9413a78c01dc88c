package l10n

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTranslationEqual(t *testing.T) {
	a := &VCSTranslation{Key: "k", Strings: map[int]string{NoPlural: "Hallo"}, Comments: []string{"x"}}
	b := &VCSTranslation{Key: "k", Strings: map[int]string{NoPlural: "Hallo"}, Order: 7}

	if !a.Equal(b) {
		t.Error("Equal() = false, want true when only metadata differs")
	}

	b.Strings[NoPlural] = "Servus"
	if a.Equal(b) {
		t.Error("Equal() = true, want false for different strings")
	}

	c := &VCSTranslation{Key: "other", Strings: map[int]string{NoPlural: "Hallo"}}
	if a.Equal(c) {
		t.Error("Equal() = true, want false for different keys")
	}

	// An empty form is the same as an absent one.
	d := &VCSTranslation{Key: "k", Strings: map[int]string{NoPlural: "Hallo", 1: ""}}
	if !a.Equal(d) {
		t.Error("Equal() = false, want true when extra form is empty")
	}
}

func TestSortedForms(t *testing.T) {
	tr := &VCSTranslation{Key: "k", Strings: map[int]string{2: "c", 0: "a", 1: "", 5: "f"}}

	got := tr.SortedForms()
	if diff := cmp.Diff([]int{0, 2, 5}, got); diff != "" {
		t.Errorf("SortedForms() mismatch (-want +got):\n%s", diff)
	}
}

func TestSetText(t *testing.T) {
	tr := NewTranslation("k")
	if tr.HasTranslation() {
		t.Fatal("placeholder should not have a translation")
	}

	tr.SetText(0, "one")
	if !tr.HasTranslation() {
		t.Fatal("HasTranslation() = false after SetText")
	}

	tr.SetText(0, "")
	if _, ok := tr.Strings[0]; ok {
		t.Error("SetText with empty string should remove the form")
	}
}

func TestCloneIsDeep(t *testing.T) {
	tr := &VCSTranslation{Key: "k", Strings: map[int]string{NoPlural: "a"}, Comments: []string{"c"}}
	c := tr.Clone()
	c.Strings[NoPlural] = "b"
	c.Comments[0] = "changed"

	if tr.Strings[NoPlural] != "a" || tr.Comments[0] != "c" {
		t.Error("Clone() shares state with the original")
	}
}

func TestRenumber(t *testing.T) {
	units := []*VCSTranslation{{Key: "b", Order: 9}, {Key: "a", Order: 3}}
	SortByOrder(units)
	Renumber(units)

	if units[0].Key != "a" || units[0].Order != 0 || units[1].Order != 1 {
		t.Errorf("unexpected order: %s=%d %s=%d", units[0].Key, units[0].Order, units[1].Key, units[1].Order)
	}
}

func TestDefaultCLDRPlurals(t *testing.T) {
	tests := []struct {
		code string
		want []int
	}{
		{"en", []int{CLDROne, CLDROther}},
		{"ja", []int{CLDROther}},
		{"pl", []int{CLDROne, CLDRFew, CLDRMany, CLDROther}},
		{"ar", []int{CLDRZero, CLDROne, CLDRTwo, CLDRFew, CLDRMany, CLDROther}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := DefaultCLDRPlurals(tt.code)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DefaultCLDRPlurals(%q) mismatch (-want +got):\n%s", tt.code, diff)
			}
		})
	}
}

func TestPluralIndex(t *testing.T) {
	sl := &Locale{Code: "sl", CLDRPlurals: []int{CLDROne, CLDRTwo, CLDRFew, CLDROther}}

	if sl.NPlurals() != 4 {
		t.Errorf("NPlurals() = %d, want 4", sl.NPlurals())
	}

	idx, ok := sl.PluralIndex("few")
	if !ok || idx != 2 {
		t.Errorf("PluralIndex(few) = %d, %v; want 2, true", idx, ok)
	}

	if _, ok := sl.PluralIndex("many"); ok {
		t.Error("PluralIndex(many) should not resolve for sl")
	}

	cat, ok := sl.PluralCategory(3)
	if !ok || cat != "other" {
		t.Errorf("PluralCategory(3) = %q, %v; want other, true", cat, ok)
	}

	bare := &Locale{Code: "xx"}
	if bare.NPlurals() != 1 {
		t.Errorf("NPlurals() without CLDR data = %d, want 1", bare.NPlurals())
	}
}

func TestGettextPluralForms(t *testing.T) {
	de := &Locale{Code: "de", CLDRPlurals: []int{CLDROne, CLDROther}, PluralRule: "(n != 1)"}
	want := "nplurals=2; plural=(n != 1);"
	if got := de.GettextPluralForms(); got != want {
		t.Errorf("GettextPluralForms() = %q, want %q", got, want)
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pt_br", "pt-BR"},
		{"pt-BR", "pt-BR"},
		{"en-us", "en-US"},
		{"de", "de"},
		{"!!", "!!"},
	}

	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if !SameCode("pt_BR", "pt-br") {
		t.Error("SameCode(pt_BR, pt-br) = false, want true")
	}
}

func TestCodeVariants(t *testing.T) {
	got := CodeVariants("pt-BR")
	for _, want := range []string{"pt-BR", "pt_BR", "pt-br", "pt_br"} {
		found := false
		for _, v := range got {
			if v == want {
				found = true
			}
		}
		if !found {
			t.Errorf("CodeVariants(pt-BR) = %v, missing %q", got, want)
		}
	}
}
