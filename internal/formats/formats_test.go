package formats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/locsync/internal/l10n"
)

var testFormatCounter atomic.Int64

// uniqueTestFormat returns a fresh format name and extension so tests can
// register codecs without colliding with each other.
func uniqueTestFormat() (Format, string) {
	n := testFormatCounter.Add(1)
	return Format(fmt.Sprintf("test-%d", n)), fmt.Sprintf(".t%d", n)
}

// kvCodec is a minimal "key=value" codec built on the line helpers.
type kvCodec struct {
	format Format
	ext    string
	sniff  func([]byte) bool
}

func (c kvCodec) Format() Format       { return c.format }
func (c kvCodec) Extensions() []string { return []string{c.ext} }
func (c kvCodec) Semantics() Semantics { return Semantics{SeparateKey: true, BOM: true} }

func (c kvCodec) Decode(data []byte, _ *l10n.Locale) (*Document, error) {
	ld := &LineDocument{}
	for _, line := range SplitLines(string(data)) {
		body := strings.TrimRight(line, "\n")
		if strings.HasPrefix(body, "#") || body == "" {
			ld.Segments = append(ld.Segments, Segment{Text: line})
			continue
		}
		k, _, ok := strings.Cut(body, "=")
		if !ok {
			return nil, DecodeErrorf("bad line %q", body)
		}
		ld.Segments = append(ld.Segments, Segment{Text: line, Key: k, ValueStart: len(k) + 1, ValueEnd: len(body)})
	}
	ld.AttachComments(func(s Segment) bool { return strings.HasPrefix(s.Text, "#") })

	doc := &Document{Data: ld}
	for _, s := range ld.Segments {
		if s.Key != "" {
			u := l10n.NewTranslation(s.Key)
			u.SetText(l10n.NoPlural, c.Unescape(s, s.RawValue()))
			doc.Units = append(doc.Units, u)
		}
	}
	return doc, nil
}

func (c kvCodec) Encode(in EncodeInput) ([]byte, error) { return EncodeLines(in, c), nil }

func (kvCodec) Escape(_ Segment, s string) string     { return strings.ReplaceAll(s, "\n", `\n`) }
func (kvCodec) Unescape(_ Segment, raw string) string { return strings.ReplaceAll(raw, `\n`, "\n") }

type sniffingCodec struct{ kvCodec }

func (c sniffingCodec) Sniff(data []byte) bool { return c.sniff(data) }

func registerKV(t *testing.T) kvCodec {
	t.Helper()
	f, ext := uniqueTestFormat()
	c := kvCodec{format: f, ext: ext}
	Register(c)
	return c
}

func TestRegisterPanics(t *testing.T) {
	c := registerKV(t)

	t.Run("duplicate", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Register() of a duplicate format did not panic")
			}
		}()
		Register(c)
	})

	t.Run("nil", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Register(nil) did not panic")
			}
		}()
		Register(nil)
	})
}

func TestDetectSniffing(t *testing.T) {
	f1, ext := uniqueTestFormat()
	f2, _ := uniqueTestFormat()
	fallback := kvCodec{format: f1, ext: ext}
	sniffer := sniffingCodec{kvCodec{format: f2, ext: ext, sniff: func(b []byte) bool {
		return strings.HasPrefix(string(b), "#!sniffed")
	}}}
	Register(sniffer)
	Register(fallback)

	c, err := Detect("file"+ext, []byte("#!sniffed\na=b\n"))
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if c.Format() != f2 {
		t.Errorf("Detect() = %s, want sniffing codec %s", c.Format(), f2)
	}

	c, err = Detect("file"+ext, []byte("a=b\n"))
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if c.Format() != f1 {
		t.Errorf("Detect() = %s, want fallback %s", c.Format(), f1)
	}

	if _, err := Detect("file.unknown-ext", nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Detect() of unknown extension: err = %v, want ErrUnsupported", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("not found", func(t *testing.T) {
		_, _, err := ReadFile(filepath.Join(dir, "missing"), true)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("utf-8 bom", func(t *testing.T) {
		path := filepath.Join(dir, "bom")
		if err := os.WriteFile(path, []byte("\xef\xbb\xbfa=b"), 0644); err != nil {
			t.Fatal(err)
		}
		data, hadBOM, err := ReadFile(path, true)
		if err != nil {
			t.Fatalf("ReadFile() failed: %v", err)
		}
		if string(data) != "a=b" || !hadBOM {
			t.Errorf("ReadFile() = %q, %v", data, hadBOM)
		}
	})

	t.Run("utf-16 bom", func(t *testing.T) {
		path := filepath.Join(dir, "utf16")
		if err := os.WriteFile(path, []byte{0xff, 0xfe, 'a', 0, '=', 0, 'b', 0}, 0644); err != nil {
			t.Fatal(err)
		}
		data, hadBOM, err := ReadFile(path, true)
		if err != nil {
			t.Fatalf("ReadFile() failed: %v", err)
		}
		if string(data) != "a=b" || hadBOM {
			t.Errorf("ReadFile() = %q, %v", data, hadBOM)
		}
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		path := filepath.Join(dir, "latin1")
		if err := os.WriteFile(path, []byte("caf\xe9"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := ReadFile(path, false); !errors.Is(err, ErrDecode) {
			t.Errorf("err = %v, want ErrDecode", err)
		}
	})
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	if err := WriteFile(path, []byte("x")); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "x" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
}

func TestParseAndSave(t *testing.T) {
	c := registerKV(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "en-US", "app"+c.ext)
	loc := filepath.Join(dir, "de", "app"+c.ext)
	if err := WriteFile(src, []byte("# header\n\n# about a\na=Apple\nb=Banana\nc=Cherry\n")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(loc, []byte("b=Banane\nstale=Alt\n")); err != nil {
		t.Fatal(err)
	}

	cache := NewCache()
	res, err := ParseWithCache(cache, loc, src, nil)
	if err != nil {
		t.Fatalf("ParseWithCache() failed: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, want 1", cache.Len())
	}

	var keys []string
	for _, tr := range res.Translations {
		keys = append(keys, fmt.Sprintf("%d:%s=%s", tr.Order, tr.Key, tr.Text(l10n.NoPlural)))
	}
	want := []string{"0:a=", "1:b=Banane", "2:c="}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("translations mismatch (-want +got):\n%s", diff)
	}
	if got := res.Translation("a").SourceString; got != "Apple" {
		t.Errorf("SourceString = %q, want Apple", got)
	}

	// Untranslated units and their comments are omitted; translating one
	// puts it back at its source position.
	res.Translation("a").SetText(l10n.NoPlural, "Apfel")
	if err := res.Save(nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, _ := os.ReadFile(loc)
	if diff := cmp.Diff("# header\n\n# about a\na=Apfel\nb=Banane\n", string(data)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	res.Translation("a").SetText(l10n.NoPlural, "")
	if err := res.Save(nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, _ = os.ReadFile(loc)
	if diff := cmp.Diff("# header\n\nb=Banane\n", string(data)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	c := registerKV(t)
	dir := t.TempDir()

	_, err := Parse(filepath.Join(dir, "missing"+c.ext), "", nil)
	var perr *ParseError
	if !errors.As(err, &perr) || !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: err = %v, want ParseError(ErrNotFound)", err)
	}

	bad := filepath.Join(dir, "bad"+c.ext)
	if err := WriteFile(bad, []byte("no separator\n")); err != nil {
		t.Fatal(err)
	}
	_, err = Parse(bad, "", nil)
	if !errors.As(err, &perr) || !errors.Is(err, ErrDecode) {
		t.Errorf("corrupt file: err = %v, want ParseError(ErrDecode)", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("decode error must not match ErrNotFound")
	}

	// A corrupt source makes the locale file unparseable too.
	_, err = Parse(filepath.Join(dir, "de"+c.ext), bad, nil)
	if !errors.As(err, &perr) || perr.Path != bad {
		t.Errorf("corrupt source: err = %v, want ParseError on %s", err, bad)
	}
}

func TestApplyEdits(t *testing.T) {
	data := []byte("0123456789")
	out := ApplyEdits(data, []Edit{
		{Start: 8, End: 9, Text: "X"},
		{Start: 2, End: 4, Text: ""},
		{Start: 5, End: 5, Text: "+"},
	})
	if string(out) != "014+567X9" {
		t.Errorf("ApplyEdits() = %q", out)
	}
}

func TestLineBounds(t *testing.T) {
	data := []byte("a\n    <x/>\nb <y/> c\n")
	x := strings.Index(string(data), "<x/>")
	if got := LineStart(data, x); got != 2 {
		t.Errorf("LineStart() = %d, want 2", got)
	}
	if got := LineEnd(data, x+4); got != x+5 {
		t.Errorf("LineEnd() = %d, want %d", got, x+5)
	}
	y := strings.Index(string(data), "<y/>")
	if got := LineStart(data, y); got != y {
		t.Errorf("LineStart() inside text = %d, want %d", got, y)
	}
	if got := Indent(data, x); got != "    " {
		t.Errorf("Indent() = %q", got)
	}
}

func TestScanXML(t *testing.T) {
	data := []byte(`<root><!-- note --><a k="v">text &amp; more</a><b><c/></b></root>`)
	root, err := ScanXML(data)
	if err != nil {
		t.Fatalf("ScanXML() failed: %v", err)
	}
	r := root.Elements("root")[0]
	if len(r.Children) != 3 || r.Children[0].Name != "#comment" {
		t.Fatalf("unexpected children: %d", len(r.Children))
	}
	a := r.Elements("a")[0]
	if a.Text != "text & more" || a.Inner(data) != "text &amp; more" {
		t.Errorf("a: Text=%q Inner=%q", a.Text, a.Inner(data))
	}
	if v, _ := a.Attr("k"); v != "v" {
		t.Errorf("a@k = %q", v)
	}
	if !r.Elements("b")[0].HasMarkup {
		t.Error("b should have markup")
	}

	if _, err := ScanXML([]byte("<root><a></root>")); !errors.Is(err, ErrDecode) {
		t.Errorf("malformed XML: err = %v, want ErrDecode", err)
	}
}
