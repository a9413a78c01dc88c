package formats

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"slices"
	"strings"
)

// Node is an XML element or comment with its byte offsets in the scanned
// document. Offsets allow codecs to splice new content into the original
// bytes instead of re-serializing the whole tree.
type Node struct {
	// Name is the local element name, or "#comment".
	Name  string
	Attrs []xml.Attr

	// Start and End delimit the whole element, tags included.
	Start, End int

	// InnerStart and InnerEnd delimit the element content.
	InnerStart, InnerEnd int

	// Text is the character data of the element. It is only meaningful
	// when HasMarkup is false.
	Text string

	// HasMarkup is true when the element contains child elements.
	HasMarkup bool

	Children []*Node
	Parent   *Node
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Elements returns child elements named name.
func (n *Node) Elements(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Walk calls fn for n and every descendant in document order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Inner returns the raw content of the element.
func (n *Node) Inner(data []byte) string {
	return string(data[n.InnerStart:n.InnerEnd])
}

// ScanXML parses data into a tree rooted at a synthetic "#document" node.
func ScanXML(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	root := &Node{Name: "#document", End: len(data), InnerEnd: len(data)}
	cur := root
	var text strings.Builder

	for {
		start := int(dec.InputOffset())
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, DecodeErrorf("%v", err)
		}
		end := int(dec.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{
				Name:       t.Name.Local,
				Attrs:      slices.Clone(t.Attr),
				Start:      start,
				InnerStart: end,
				Parent:     cur,
			}
			cur.HasMarkup = true
			cur.Children = append(cur.Children, n)
			cur = n
			text.Reset()
		case xml.EndElement:
			cur.InnerEnd = start
			cur.End = end
			if start == end {
				// Self-closing element: content is empty.
				cur.InnerStart = end
				cur.InnerEnd = end
			}
			if !cur.HasMarkup {
				cur.Text = text.String()
			}
			text.Reset()
			cur = cur.Parent
		case xml.CharData:
			text.Write(t)
		case xml.Comment:
			cur.Children = append(cur.Children, &Node{
				Name:       "#comment",
				Start:      start,
				End:        end,
				InnerStart: start + 4,
				InnerEnd:   end - 3,
				Text:       string(t),
				Parent:     cur,
			})
		}
	}

	if cur != root {
		return nil, DecodeErrorf("unclosed element <%s>", cur.Name)
	}
	return root, nil
}

// Edit replaces data[Start:End] with Text.
type Edit struct {
	Start, End int
	Text       string
}

// ApplyEdits applies non-overlapping edits to data.
func ApplyEdits(data []byte, edits []Edit) []byte {
	slices.SortFunc(edits, func(a, b Edit) int { return a.Start - b.Start })

	var out bytes.Buffer
	pos := 0
	for _, e := range edits {
		if e.Start < pos {
			continue
		}
		out.Write(data[pos:e.Start])
		out.WriteString(e.Text)
		pos = e.End
	}
	out.Write(data[pos:])
	return out.Bytes()
}

// LineStart returns the offset of the start of the line containing off
// when only spaces or tabs precede off on that line; otherwise off.
func LineStart(data []byte, off int) int {
	i := off
	for i > 0 && (data[i-1] == ' ' || data[i-1] == '\t') {
		i--
	}
	if i == 0 || data[i-1] == '\n' {
		return i
	}
	return off
}

// LineEnd returns the offset just past the line break following off when
// only spaces or tabs follow off on that line; otherwise off.
func LineEnd(data []byte, off int) int {
	i := off
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\r') {
		i++
	}
	if i < len(data) && data[i] == '\n' {
		return i + 1
	}
	if i == len(data) {
		return i
	}
	return off
}

// Indent returns the whitespace preceding off on its line.
func Indent(data []byte, off int) string {
	return string(data[LineStart(data, off):off])
}

var xmlTextEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeXMLText escapes the characters that cannot appear literally in
// XML character data.
func EscapeXMLText(s string) string {
	return xmlTextEscaper.Replace(s)
}
