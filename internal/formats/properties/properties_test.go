package properties

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

const source = `# Application strings

# Window title
title = My App
greeting=Hello\, world
multi = first \
        second
path:C:\\temp
# Shown in the footer
footer = Bye
`

func setup(t *testing.T, localeContent string) (srcPath, locPath string) {
	t.Helper()
	dir := t.TempDir()
	srcPath = filepath.Join(dir, "en-US", "app.properties")
	locPath = filepath.Join(dir, "de", "app.properties")
	if err := formats.WriteFile(srcPath, []byte(source)); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	if localeContent != "" {
		if err := formats.WriteFile(locPath, []byte(localeContent)); err != nil {
			t.Fatalf("failed to write locale file: %v", err)
		}
	}
	return srcPath, locPath
}

func TestDecode(t *testing.T) {
	doc, err := Codec{}.Decode([]byte(source), nil)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	got := map[string]string{}
	var keys []string
	for _, u := range doc.Units {
		keys = append(keys, u.Key)
		got[u.Key] = u.Text(l10n.NoPlural)
	}

	want := map[string]string{
		"title":    "My App",
		"greeting": "Hello, world",
		"multi":    "first second",
		"path":     `C:\temp`,
		"footer":   "Bye",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"title", "greeting", "multi", "path", "footer"}, keys); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Window title"}, doc.Units[0].Comments); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOmitsUntranslated(t *testing.T) {
	srcPath, locPath := setup(t, "")

	res, err := formats.Parse(locPath, srcPath, nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	res.Translation("title").SetText(l10n.NoPlural, "Meine App")
	res.Translation("path").SetText(l10n.NoPlural, `D:\tmp`)

	if err := res.Save(nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(locPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "# Application strings\n\n# Window title\ntitle = Meine App\npath:D:\\\\tmp\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveKeepsRawSpelling(t *testing.T) {
	locale := "# Application strings\n\n# Window title\ntitle = Meine\\u0020App\ngreeting=Hallo\\, Welt\n"
	srcPath, locPath := setup(t, locale)

	res, err := formats.Parse(locPath, srcPath, nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if got := res.Translation("title").Text(l10n.NoPlural); got != "Meine App" {
		t.Errorf("title = %q", got)
	}

	if err := res.Save(nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, err := os.ReadFile(locPath)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(locale, string(data)); diff != "" {
		t.Errorf("no-op save changed the file (-want +got):\n%s", diff)
	}
}

func TestBOMPreserved(t *testing.T) {
	srcPath, locPath := setup(t, "\uFEFFtitle = Titel\n")

	res, err := formats.Parse(locPath, srcPath, nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if got := res.Translation("title").Text(l10n.NoPlural); got != "Titel" {
		t.Errorf("title = %q, want Titel", got)
	}
	if err := res.Save(nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, err := os.ReadFile(locPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:3]) != "\xef\xbb\xbf" {
		t.Errorf("byte-order mark lost: %q", data)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	c := Codec{}
	for _, s := range []string{"plain", " leading space", "tab\there", "line\nbreak", `back\slash`} {
		if got := c.Unescape(formats.Segment{}, c.Escape(formats.Segment{}, s)); got != s {
			t.Errorf("round trip of %q gave %q", s, got)
		}
	}
}
