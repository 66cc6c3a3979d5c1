package ast

import (
	"bytes"
	"strings"

	"github.com/sambeau/scrapeql/pkg/scrapeql/lexer"
)

// Node represents any node in the AST
type Node interface {
	TokenLiteral() string
	String() string
	Pos() lexer.Location
}

// Query is a top-level statement. The set of implementations is closed:
// *LoadQuery, *SelectQuery and *WriteQuery.
type Query interface {
	Node
	queryNode()
}

// Conditional is a WHERE-clause predicate. The only implementation is
// *ContainsCondition.
type Conditional interface {
	Node
	conditionalNode()
}

// Program represents the root node of every AST
type Program struct {
	Queries []Query
}

func (p *Program) TokenLiteral() string {
	if len(p.Queries) > 0 {
		return p.Queries[0].TokenLiteral()
	}
	return ""
}

func (p *Program) Pos() lexer.Location {
	if len(p.Queries) > 0 {
		return p.Queries[0].Pos()
	}
	return lexer.Location{Line: 1, Column: 1}
}

// String renders one statement per line.
func (p *Program) String() string {
	var out bytes.Buffer

	for i, q := range p.Queries {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(q.String())
	}

	return out.String()
}

// Identifier is an alias name
type Identifier struct {
	Token lexer.Token // the lexer.IDENT token
	Value string
}

func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) String() string       { return i.Value }
func (i *Identifier) Pos() lexer.Location  { return i.Token.Pos() }

// StringLiteral holds the decoded contents of a double-quoted string
type StringLiteral struct {
	Token lexer.Token // the lexer.STRING token
	Value string
}

func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string       { return Quote(sl.Value) }
func (sl *StringLiteral) Pos() lexer.Location  { return sl.Token.Pos() }

// SelectorKind tags how a selector string is interpreted.
type SelectorKind int

const (
	XPath SelectorKind = iota
	CSS
	// Attribute, Text and Type have no surface syntax yet.
	Attribute
	Text
	Type
)

var selectorKindNames = map[SelectorKind]string{
	XPath:     "xpath",
	CSS:       "css",
	Attribute: "attribute",
	Text:      "text",
	Type:      "type",
}

func (k SelectorKind) String() string {
	if name, ok := selectorKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Selector is a tagged selector string. Plain strings are XPath, c"..." is CSS.
type Selector struct {
	Token lexer.Token // the lexer.STRING or lexer.CSS token
	Kind  SelectorKind
	Value string
}

func (s *Selector) TokenLiteral() string { return s.Token.Literal }
func (s *Selector) Pos() lexer.Location  { return s.Token.Pos() }
func (s *Selector) String() string {
	switch s.Kind {
	case CSS:
		return "c" + Quote(s.Value)
	case XPath:
		return Quote(s.Value)
	}
	return s.Kind.String() + "(" + Quote(s.Value) + ")"
}

// PatternKind tags how a CONTAINS pattern is matched.
type PatternKind int

const (
	Substring PatternKind = iota
	Regex
)

func (k PatternKind) String() string {
	if k == Regex {
		return "regex"
	}
	return "substring"
}

// Pattern is the right-hand side of CONTAINS: r"..." or a plain string.
type Pattern struct {
	Token lexer.Token // the lexer.REGEX or lexer.STRING token
	Kind  PatternKind
	Value string
}

func (p *Pattern) TokenLiteral() string { return p.Token.Literal }
func (p *Pattern) Pos() lexer.Location  { return p.Token.Pos() }
func (p *Pattern) String() string {
	if p.Kind == Regex {
		return "r" + Quote(p.Value)
	}
	return Quote(p.Value)
}

// ContainsCondition is `ident CONTAINS pattern`
type ContainsCondition struct {
	Token   lexer.Token // the lexer.CONTAINS token
	Ident   *Identifier
	Pattern *Pattern
}

func (cc *ContainsCondition) conditionalNode()     {}
func (cc *ContainsCondition) TokenLiteral() string { return cc.Token.Literal }
func (cc *ContainsCondition) Pos() lexer.Location  { return cc.Ident.Pos() }
func (cc *ContainsCondition) String() string {
	return cc.Ident.String() + " CONTAINS " + cc.Pattern.String()
}

// WhereExpression is a non-empty list of conditionals, all of which must hold.
type WhereExpression struct {
	Token      lexer.Token // the lexer.WHERE token
	Conditions []Conditional
}

func (we *WhereExpression) TokenLiteral() string { return we.Token.Literal }
func (we *WhereExpression) Pos() lexer.Location  { return we.Token.Pos() }
func (we *WhereExpression) String() string {
	parts := make([]string, len(we.Conditions))
	for i, c := range we.Conditions {
		parts[i] = c.String()
	}
	return "WHERE " + strings.Join(parts, " ")
}

// LoadQuery represents `LOAD "a", "b" AS x, y`. Sources and aliases pair up
// positionally; equal length is enforced by the checker, not the parser.
type LoadQuery struct {
	Token   lexer.Token // the lexer.LOAD token
	Sources []*StringLiteral
	Aliases []*Identifier
}

func (lq *LoadQuery) queryNode()           {}
func (lq *LoadQuery) TokenLiteral() string { return lq.Token.Literal }
func (lq *LoadQuery) Pos() lexer.Location  { return lq.Token.Pos() }
func (lq *LoadQuery) String() string {
	var out bytes.Buffer

	out.WriteString("LOAD ")
	for i, s := range lq.Sources {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(s.String())
	}
	out.WriteString(" AS ")
	out.WriteString(strings.Join(lq.AliasNames(), ", "))

	return out.String()
}

// AliasNames returns the alias names in source order.
func (lq *LoadQuery) AliasNames() []string {
	names := make([]string, len(lq.Aliases))
	for i, a := range lq.Aliases {
		names[i] = a.Value
	}
	return names
}

// SelectQuery represents `SELECT sel AS alias FROM source [WHERE ...]`.
type SelectQuery struct {
	Token    lexer.Token // the lexer.SELECT token
	Selector *Selector
	Alias    *Identifier
	Source   *Identifier
	Where    *WhereExpression // nil when absent
}

func (sq *SelectQuery) queryNode()           {}
func (sq *SelectQuery) TokenLiteral() string { return sq.Token.Literal }
func (sq *SelectQuery) Pos() lexer.Location  { return sq.Token.Pos() }
func (sq *SelectQuery) String() string {
	var out bytes.Buffer

	out.WriteString("SELECT ")
	out.WriteString(sq.Selector.String())
	out.WriteString(" AS ")
	out.WriteString(sq.Alias.String())
	out.WriteString(" FROM ")
	out.WriteString(sq.Source.String())
	if sq.Where != nil {
		out.WriteString(" ")
		out.WriteString(sq.Where.String())
	}

	return out.String()
}

// WriteQuery represents `WRITE alias TO "destination"`.
type WriteQuery struct {
	Token       lexer.Token // the lexer.WRITE token
	Alias       *Identifier
	Destination *StringLiteral
}

func (wq *WriteQuery) queryNode()           {}
func (wq *WriteQuery) TokenLiteral() string { return wq.Token.Literal }
func (wq *WriteQuery) Pos() lexer.Location  { return wq.Token.Pos() }
func (wq *WriteQuery) String() string {
	return "WRITE " + wq.Alias.String() + " TO " + wq.Destination.String()
}

// Quote renders s as a double-quoted literal the lexer reads back as s.
func Quote(s string) string {
	var out strings.Builder
	out.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			out.WriteString(`\"`)
		case '\\':
			out.WriteString(`\\`)
		case '\n':
			out.WriteString(`\n`)
		case '\t':
			out.WriteString(`\t`)
		case '\r':
			out.WriteString(`\r`)
		default:
			out.WriteRune(r)
		}
	}
	out.WriteByte('"')
	return out.String()
}
