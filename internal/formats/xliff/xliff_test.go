package xliff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

const source = `<?xml version="1.0" encoding="UTF-8"?>
<xliff version="1.2" xmlns="urn:oasis:names:tc:xliff:document:1.2">
  <file original="Localizable.strings" source-language="en" datatype="plaintext">
    <body>
      <trans-unit id="greeting">
        <source>Hello</source>
        <note>Shown on launch</note>
      </trans-unit>
      <trans-unit id="farewell">
        <source>Bye &amp; thanks</source>
      </trans-unit>
    </body>
  </file>
</xliff>
`

func TestDecode(t *testing.T) {
	doc, err := Codec{}.Decode([]byte(source), nil)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(doc.Units) != 2 {
		t.Fatalf("got %d units, want 2", len(doc.Units))
	}
	if got := doc.Unit("farewell").SourceString; got != "Bye & thanks" {
		t.Errorf("farewell source = %q", got)
	}
	if doc.Unit("greeting").HasTranslation() {
		t.Error("source unit without target carries a translation")
	}
	if diff := cmp.Diff([]string{"Shown on launch"}, doc.Unit("greeting").Comments); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "en-US", "app.xliff")
	locPath := filepath.Join(dir, "de", "app.xliff")
	if err := formats.WriteFile(srcPath, []byte(source)); err != nil {
		t.Fatal(err)
	}
	de := &l10n.Locale{Code: "de", Name: "German"}

	res, err := formats.Parse(locPath, srcPath, de)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	res.Translation("greeting").SetText(l10n.NoPlural, "Hallo <Welt>")
	if err := res.Save(de); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(locPath)
	if err != nil {
		t.Fatal(err)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?>
<xliff version="1.2" xmlns="urn:oasis:names:tc:xliff:document:1.2">
  <file original="Localizable.strings" source-language="en" datatype="plaintext" target-language="de">
    <body>
      <trans-unit id="greeting">
        <source>Hello</source>
        <target>Hallo &lt;Welt&gt;</target>
        <note>Shown on launch</note>
      </trans-unit>
      <trans-unit id="farewell">
        <source>Bye &amp; thanks</source>
      </trans-unit>
    </body>
  </file>
</xliff>
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	// Second pass: the target is read back and a no-op save is stable.
	again, err := formats.Parse(locPath, srcPath, de)
	if err != nil {
		t.Fatalf("re-Parse() failed: %v", err)
	}
	if got := again.Translation("greeting").Text(l10n.NoPlural); got != "Hallo <Welt>" {
		t.Errorf("greeting = %q", got)
	}
	if err := again.Save(de); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}
	second, _ := os.ReadFile(locPath)
	if string(second) != want {
		t.Errorf("no-op save changed the file:\n%s", second)
	}
}

func TestMultipleFilesPrefixKeys(t *testing.T) {
	data := `<xliff version="1.2">
  <file original="a.strings"><body><trans-unit id="x"><source>A</source></trans-unit></body></file>
  <file original="b.strings"><body><trans-unit id="x"><source>B</source></trans-unit></body></file>
</xliff>`
	doc, err := Codec{}.Decode([]byte(data), nil)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	var keys []string
	for _, u := range doc.Units {
		keys = append(keys, u.Key)
	}
	if diff := cmp.Diff([]string{"a.strings\x04x", "b.strings\x04x"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSetAttrReplacesExisting(t *testing.T) {
	data := []byte(`<xliff><file original="a" target-language="fr"></file></xliff>`)
	d, err := scan(data)
	if err != nil {
		t.Fatalf("scan() failed: %v", err)
	}
	out := formats.ApplyEdits(data, []formats.Edit{setAttr(data, d.files[0], "target-language", "de")})
	want := `<xliff><file original="a" target-language="de"></file></xliff>`
	if string(out) != want {
		t.Errorf("setAttr() = %s, want %s", out, want)
	}
}
