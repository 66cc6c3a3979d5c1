package dom

import (
	"fmt"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/sambeau/scrapeql/pkg/scrapeql/ast"
	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
)

// Selector implements runner.Selector with XPath (htmlquery) and CSS
// (cascadia) selectors. Compiled selectors are cached by their text.
type Selector struct {
	mu    sync.Mutex
	xpath map[string]*xpath.Expr
	css   map[string]cascadia.Selector
}

// NewSelector creates a selector with empty caches.
func NewSelector() *Selector {
	return &Selector{
		xpath: make(map[string]*xpath.Expr),
		css:   make(map[string]cascadia.Selector),
	}
}

// Select evaluates sel against v. In Single mode at most one node is
// returned. XPath attribute steps such as //a/@href yield an element named
// after the attribute whose only child is the attribute value.
func (s *Selector) Select(v runner.Value, sel *ast.Selector, mode runner.Mode) ([]runner.Value, error) {
	n, err := AsNode(v)
	if err != nil {
		return nil, err
	}

	var nodes []*html.Node
	switch sel.Kind {
	case ast.XPath:
		expr, err := s.compileXPath(sel.Value)
		if err != nil {
			return nil, err
		}
		if mode == runner.Single {
			if found := htmlquery.QuerySelector(n, expr); found != nil {
				nodes = append(nodes, found)
			}
		} else {
			nodes = htmlquery.QuerySelectorAll(n, expr)
		}
	case ast.CSS:
		css, err := s.compileCSS(sel.Value)
		if err != nil {
			return nil, err
		}
		if mode == runner.Single {
			if found := css.MatchFirst(n); found != nil {
				nodes = append(nodes, found)
			}
		} else {
			nodes = css.MatchAll(n)
		}
	default:
		return nil, fmt.Errorf("%s selectors are not supported", sel.Kind)
	}

	values := make([]runner.Value, len(nodes))
	for i, node := range nodes {
		values[i] = node
	}
	return values, nil
}

func (s *Selector) compileXPath(expr string) (*xpath.Expr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if compiled, ok := s.xpath[expr]; ok {
		return compiled, nil
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	s.xpath[expr] = compiled
	return compiled, nil
}

func (s *Selector) compileCSS(expr string) (cascadia.Selector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if compiled, ok := s.css[expr]; ok {
		return compiled, nil
	}
	compiled, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector: %w", err)
	}
	s.css[expr] = compiled
	return compiled, nil
}
