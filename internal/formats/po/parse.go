package po

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

// contextSeparator joins msgctxt and msgid into a unit key, as gettext
// does in compiled catalogs.
const contextSeparator = "\x04"

// entry is one PO entry. lines keeps the raw text so unchanged entries
// can be written back byte for byte.
type entry struct {
	lines []string
	// sep is the text between the previous block and this one; empty for
	// the first block of a file.
	sep string

	comments   []string
	translator []string
	extracted  []string
	references []string
	flags      []string

	hasContext bool
	context    string
	id         string
	idPlural   string
	hasPlural  bool
	str        map[int]string
	obsolete   bool
}

func (e *entry) key() string {
	if e.hasContext {
		return e.context + contextSeparator + e.id
	}
	return e.id
}

func (e *entry) isHeader() bool {
	return e.id == "" && !e.hasContext && !e.obsolete
}

func (e *entry) fuzzy() bool {
	for _, f := range e.flags {
		if f == "fuzzy" {
			return true
		}
	}
	return false
}

// forms returns the populated msgstr forms keyed like VCSTranslation.
func (e *entry) forms() map[int]string {
	out := make(map[int]string)
	for form, s := range e.str {
		if s == "" {
			continue
		}
		if e.hasPlural && form == l10n.NoPlural {
			continue
		}
		if !e.hasPlural && form != l10n.NoPlural {
			continue
		}
		out[form] = s
	}
	return out
}

// file is the Data of a decoded PO document.
type file struct {
	// preamble holds comment-only blocks found before the first entry.
	preamble []block
	header   *entry
	entries  []*entry
	obsolete []*entry
	spacing  spacing
}

// block is a run of non-blank lines.
type block struct {
	lines []string
	sep   string
}

func (b block) raw() string {
	return strings.Join(b.lines, "\n")
}

// spacing is the whitespace of a file outside its blocks. Lines are held
// with "\n" terminators; eol is the terminator the file used.
type spacing struct {
	eol   string
	lead  string
	trail string
}

func (f *file) lookup() map[string]*entry {
	m := make(map[string]*entry, len(f.entries))
	for _, e := range f.entries {
		m[e.key()] = e
	}
	return m
}

// headerFields parses the header msgstr into ordered key/value pairs.
func (e *entry) headerFields() [][2]string {
	var out [][2]string
	for _, line := range strings.Split(e.str[l10n.NoPlural], "\n") {
		if line == "" {
			continue
		}
		k, v, _ := strings.Cut(line, ":")
		out = append(out, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
	}
	return out
}

// splitBlocks groups lines into blank-line separated blocks and records
// the blank text around them, so the file can be written back unchanged.
func splitBlocks(data []byte) ([]block, spacing) {
	text := string(data)
	sp := spacing{eol: "\n"}
	if strings.Contains(text, "\r\n") {
		sp.eol = "\r\n"
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}

	var (
		blocks []block
		cur    *block
		blank  []string
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if cur != nil {
				blocks = append(blocks, *cur)
				cur = nil
			}
			blank = append(blank, line)
			continue
		}
		if cur == nil {
			cur = &block{}
			switch {
			case len(blocks) > 0:
				cur.sep = "\n" + strings.Join(blank, "\n") + "\n"
			case len(blank) > 0:
				sp.lead = strings.Join(blank, "\n") + "\n"
			}
			blank = nil
		}
		cur.lines = append(cur.lines, line)
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}

	switch {
	case len(blocks) == 0:
		sp.trail = text
	case len(blank) > 0:
		sp.trail = "\n" + strings.Join(blank, "\n")
	}
	return blocks, sp
}

func parse(data []byte) (*file, error) {
	blocks, sp := splitBlocks(data)
	f := &file{spacing: sp}
	for bi, b := range blocks {
		e, err := parseEntry(b.lines)
		if err != nil {
			return nil, formats.DecodeErrorf("entry %d: %v", bi+1, err)
		}
		if e == nil {
			if f.header == nil && len(f.entries) == 0 {
				f.preamble = append(f.preamble, b)
			}
			continue
		}
		e.sep = b.sep
		switch {
		case e.obsolete:
			f.obsolete = append(f.obsolete, e)
		case e.isHeader() && f.header == nil && len(f.entries) == 0:
			f.header = e
		default:
			f.entries = append(f.entries, e)
		}
	}
	return f, nil
}

// parseEntry parses one block. Blocks made only of comments return nil;
// blocks whose keywords are all commented out with "#~" are obsolete.
func parseEntry(lines []string) (*entry, error) {
	e := &entry{lines: lines, str: make(map[int]string)}

	var (
		appendTo func(string)
		sawID    bool
		sawObso  bool
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#~") {
			sawObso = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#,"):
			for _, fl := range strings.Split(line[2:], ",") {
				if fl = strings.TrimSpace(fl); fl != "" {
					e.flags = append(e.flags, fl)
				}
			}
			e.comments = append(e.comments, raw)
		case strings.HasPrefix(line, "#."):
			e.extracted = append(e.extracted, strings.TrimSpace(line[2:]))
			e.comments = append(e.comments, raw)
		case strings.HasPrefix(line, "#:"):
			e.references = append(e.references, strings.Fields(line[2:])...)
			e.comments = append(e.comments, raw)
		case strings.HasPrefix(line, "#|"):
			e.comments = append(e.comments, raw)
		case strings.HasPrefix(line, "#"):
			e.translator = append(e.translator, strings.TrimPrefix(strings.TrimPrefix(line, "#"), " "))
			e.comments = append(e.comments, raw)
		case strings.HasPrefix(line, `"`):
			if appendTo == nil {
				return nil, fmt.Errorf("continuation line without keyword: %s", line)
			}
			s, err := unquote(line)
			if err != nil {
				return nil, err
			}
			appendTo(s)
		default:
			kw, rest, _ := strings.Cut(line, " ")
			s, err := unquote(strings.TrimSpace(rest))
			if err != nil {
				return nil, err
			}
			switch {
			case kw == "msgctxt":
				e.hasContext = true
				e.context = s
				appendTo = func(more string) { e.context += more }
			case kw == "msgid":
				e.id = s
				sawID = true
				appendTo = func(more string) { e.id += more }
			case kw == "msgid_plural":
				e.hasPlural = true
				e.idPlural = s
				appendTo = func(more string) { e.idPlural += more }
			case kw == "msgstr":
				e.str[l10n.NoPlural] = s
				appendTo = func(more string) { e.str[l10n.NoPlural] += more }
			case strings.HasPrefix(kw, "msgstr[") && strings.HasSuffix(kw, "]"):
				n, err := strconv.Atoi(kw[len("msgstr[") : len(kw)-1])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("bad plural index: %s", kw)
				}
				e.str[n] = s
				appendTo = func(more string) { e.str[n] += more }
			default:
				return nil, fmt.Errorf("unknown keyword %q", kw)
			}
		}
	}

	if !sawID {
		if sawObso {
			e.obsolete = true
			return e, nil
		}
		return nil, nil
	}
	return e, nil
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("unterminated string: %s", s)
	}
	body := s[1 : len(s)-1]

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			if c == '"' {
				return "", fmt.Errorf("unescaped quote in %s", s)
			}
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape in %s", s)
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}
