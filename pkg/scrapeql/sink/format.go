package sink

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"path"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/sambeau/scrapeql/pkg/scrapeql/dom"
)

// Format is the serialization used for a destination.
type Format int

const (
	HTML Format = iota
	XML
	Text
	JSON
)

func (f Format) String() string {
	switch f {
	case XML:
		return "xml"
	case Text:
		return "text"
	case JSON:
		return "json"
	}
	return "html"
}

func (f Format) contentType() string {
	switch f {
	case XML:
		return "application/xml"
	case Text:
		return "text/plain; charset=utf-8"
	case JSON:
		return "application/json"
	}
	return "text/html; charset=utf-8"
}

// Classify returns the format and compression for dest. The compression
// suffix is removed before the format extension is read, so "out.json.gz"
// is gzipped JSON. Unknown extensions are HTML.
func Classify(dest string) (Format, Compression) {
	base, c := splitCompression(dest)
	switch strings.ToLower(path.Ext(base)) {
	case ".xml":
		return XML, c
	case ".txt":
		return Text, c
	case ".json":
		return JSON, c
	}
	return HTML, c
}

// Encode serializes n in format f.
func Encode(n *html.Node, f Format) ([]byte, error) {
	switch f {
	case XML:
		return encodeXML(n)
	case Text:
		return []byte(dom.Text(n) + "\n"), nil
	case JSON:
		return encodeJSON(n)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// jsonNode is the JSON form of an element or text node.
type jsonNode struct {
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*jsonNode       `json:"children,omitempty"`
}

func encodeJSON(n *html.Node) ([]byte, error) {
	tree := toJSON(n)
	if tree == nil {
		tree = &jsonNode{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toJSON converts n, dropping comments, doctypes and whitespace-only text.
func toJSON(n *html.Node) *jsonNode {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return &jsonNode{Text: n.Data}
	case html.ElementNode, html.DocumentNode:
	default:
		return nil
	}

	node := &jsonNode{Tag: n.Data}
	if n.Type == html.DocumentNode {
		node.Tag = "#document"
	}
	if len(n.Attr) > 0 {
		node.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			node.Attrs[a.Key] = a.Val
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := toJSON(c); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

func encodeXML(n *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := writeXML(&buf, n); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// xmlName reports whether s can be written as an XML element or attribute
// name. Framework attributes like @click or :href cannot.
func xmlName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || r == ':' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

// writeXML writes n as well-formed XML. Empty elements are self-closed.
func writeXML(buf *bytes.Buffer, n *html.Node) error {
	switch n.Type {
	case html.TextNode:
		return xml.EscapeText(buf, []byte(n.Data))
	case html.CommentNode:
		// "--" is not allowed inside an XML comment
		buf.WriteString("<!--")
		buf.WriteString(strings.ReplaceAll(n.Data, "--", "- -"))
		buf.WriteString("-->")
		return nil
	case html.DoctypeNode:
		return nil
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := writeXML(buf, c); err != nil {
				return err
			}
		}
		return nil
	}

	// Tags such as <a@b> survive HTML parsing but have no XML spelling
	if !xmlName(n.Data) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := writeXML(buf, c); err != nil {
				return err
			}
		}
		return nil
	}

	buf.WriteByte('<')
	buf.WriteString(n.Data)
	for _, a := range n.Attr {
		if !xmlName(a.Key) {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		if err := xml.EscapeText(buf, []byte(a.Val)); err != nil {
			return err
		}
		buf.WriteByte('"')
	}
	if n.FirstChild == nil {
		buf.WriteString("/>")
		return nil
	}
	buf.WriteByte('>')
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := writeXML(buf, c); err != nil {
			return err
		}
	}
	buf.WriteString("</")
	buf.WriteString(n.Data)
	buf.WriteByte('>')
	return nil
}
