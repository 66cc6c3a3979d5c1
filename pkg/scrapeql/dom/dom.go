// Package dom provides the document capabilities the runner consumes:
// selecting nodes with XPath or CSS selectors and rendering nodes as text.
// Documents are golang.org/x/net/html trees.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
)

// describeLimit is the longest HTML excerpt Describe shows.
const describeLimit = 60

// blockElements are separated by a space when their text is collected.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "title": true,
	"tr": true, "ul": true,
}

// ParseHTML parses an HTML document. The reader must already yield UTF-8.
func ParseHTML(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

// ParseHTMLString parses an HTML document held in a string.
func ParseHTMLString(s string) (*html.Node, error) {
	return ParseHTML(strings.NewReader(s))
}

// AsNode returns the html node behind a runner value.
func AsNode(v runner.Value) (*html.Node, error) {
	n, ok := v.(*html.Node)
	if !ok || n == nil {
		return nil, fmt.Errorf("value is %T, not an html node", v)
	}
	return n, nil
}

// Renderer implements runner.Renderer for html nodes.
type Renderer struct{}

// RenderText returns the text content of v: all descendant text nodes,
// NFC-normalized, with runs of whitespace collapsed to a single space.
func (Renderer) RenderText(v runner.Value) string {
	n, err := AsNode(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return Text(n)
}

// Describe returns a one-line summary of v for :printvar and :scope.
func (Renderer) Describe(v runner.Value) string {
	n, err := AsNode(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}

	switch n.Type {
	case html.DocumentNode:
		title := ""
		if t := findElement(n, "title"); t != nil {
			title = " " + quoteExcerpt(Text(t))
		}
		return fmt.Sprintf("document%s, %d children", title, countChildren(n))
	case html.TextNode:
		return "text " + quoteExcerpt(Text(n))
	case html.CommentNode:
		return "comment " + quoteExcerpt(n.Data)
	case html.ElementNode:
		return fmt.Sprintf("<%s> element, %d children: %s", n.Data, countChildren(n), excerpt(OuterHTML(n)))
	}
	return "node"
}

// Text returns the normalized text content of n.
func Text(n *html.Node) string {
	var sb strings.Builder
	collectText(n, &sb)
	return strings.Join(strings.Fields(norm.NFC.String(sb.String())), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
		// Adjacent blocks such as <p>a</p><p>b</p> must not run together.
		if c.Type == html.ElementNode && blockElements[c.Data] {
			sb.WriteString(" ")
		}
	}
}

// OuterHTML renders n and its descendants as HTML.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func countChildren(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	return count
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > describeLimit {
		return string(runes[:describeLimit]) + "..."
	}
	return s
}

func quoteExcerpt(s string) string {
	return fmt.Sprintf("%q", excerpt(s))
}
