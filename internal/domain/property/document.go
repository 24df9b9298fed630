package property

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"
)

// RootElement is the container created when a document is absent or broken.
const RootElement = "configuration"

const (
	recordElement = "property"
	nameElement   = "name"
	valueElement  = "value"
)

// element is one node of a parsed document. Comments, processing
// instructions and directives are not retained.
type element struct {
	name  xml.Name
	attrs []xml.Attr
	// text is all character data of the element, concatenated.
	text     string
	children []*element
	// content interleaves text runs and children in document order, so
	// mixed content renders in the order it was read.
	content []node
}

// node is either a text run or a child element.
type node struct {
	text string
	el   *element
}

func newElement(local string) *element {
	return &element{name: xml.Name{Local: local}}
}

func (e *element) child(local string) *element {
	for _, c := range e.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

func (e *element) appendChild(c *element) {
	e.children = append(e.children, c)
	e.content = append(e.content, node{el: c})
}

func (e *element) appendText(s string) {
	e.text += s
	if n := len(e.content); n > 0 && e.content[n-1].el == nil {
		e.content[n-1].text += s
		return
	}
	e.content = append(e.content, node{text: s})
}

// setText replaces everything inside e with s.
func (e *element) setText(s string) {
	e.text = s
	e.children = nil
	e.content = []node{{text: s}}
}

// walk visits e and its descendants in document order.
func (e *element) walk(fn func(*element)) {
	fn(e)
	for _, c := range e.children {
		c.walk(fn)
	}
}

var errNoRoot = errors.New("document has no root element")

// parse builds an element tree. Documents declaring a non UTF-8 encoding are
// decoded with the matching charset.
func parse(document string) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(document))
	dec.CharsetReader = charsetReader

	var (
		root  *element
		stack []*element
	)

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			t = t.Copy()
			el := &element{name: t.Name, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("second root element <%s>", qualified(t.Name))
				}
				root = el
			} else {
				stack[len(stack)-1].appendChild(el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected </%s>", qualified(t.Name))
			}
			top := stack[len(stack)-1]
			if top.name != t.Name {
				return nil, fmt.Errorf("element <%s> closed by </%s>", qualified(top.name), qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].appendText(string(t))
			}
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("element <%s> is not closed", qualified(stack[len(stack)-1].name))
	}
	if root == nil {
		return nil, errNoRoot
	}
	return root, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// render serializes the tree with tab indentation. Elements holding only
// text are written on one line. In elements with children every text run
// is trimmed and written on its own line, in document order. Blank lines
// are dropped.
func render(root *element) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" ?>`)
	b.WriteByte('\n')
	writeElement(&b, root, 0)

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n") + "\n"
}

func writeElement(b *bytes.Buffer, e *element, depth int) {
	indent := strings.Repeat("\t", depth)
	b.WriteString(indent)
	b.WriteByte('<')
	b.WriteString(qualified(e.name))
	for _, a := range e.attrs {
		b.WriteByte(' ')
		b.WriteString(qualified(a.Name))
		b.WriteString(`="`)
		b.WriteString(attrEscaper.Replace(normalize(a.Value)))
		b.WriteByte('"')
	}

	text := normalize(e.text)

	if len(e.children) == 0 {
		if text == "" {
			b.WriteString("/>\n")
			return
		}
		b.WriteByte('>')
		b.WriteString(textEscaper.Replace(text))
		b.WriteString("</")
		b.WriteString(qualified(e.name))
		b.WriteString(">\n")
		return
	}

	b.WriteString(">\n")
	for _, n := range e.content {
		if n.el != nil {
			writeElement(b, n.el, depth+1)
			continue
		}
		if trimmed := strings.TrimSpace(normalize(n.text)); trimmed != "" {
			b.WriteString(indent)
			b.WriteByte('\t')
			b.WriteString(textEscaper.Replace(trimmed))
			b.WriteByte('\n')
		}
	}
	b.WriteString(indent)
	b.WriteString("</")
	b.WriteString(qualified(e.name))
	b.WriteString(">\n")
}

// normalize composes s to NFC, folds CRLF to LF and drops characters that
// XML 1.0 cannot carry.
func normalize(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if validXMLChar(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r < 0x20:
		return false
	case r == utf8.RuneError:
		return false
	case r >= 0xD800 && r <= 0xDFFF:
		return false
	case r == 0xFFFE || r == 0xFFFF:
		return false
	default:
		return true
	}
}
