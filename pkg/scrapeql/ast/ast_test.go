package ast

import (
	"testing"

	"github.com/sambeau/scrapeql/pkg/scrapeql/lexer"
)

func ident(name string) *Identifier {
	return &Identifier{Token: lexer.Token{Type: lexer.IDENT, Literal: name}, Value: name}
}

func str(value string) *StringLiteral {
	return &StringLiteral{Token: lexer.Token{Type: lexer.STRING, Literal: value}, Value: value}
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		expected string
	}{
		{
			name: "load",
			node: &LoadQuery{
				Token:   lexer.Token{Type: lexer.LOAD, Literal: "LOAD"},
				Sources: []*StringLiteral{str("http://a"), str("b.html")},
				Aliases: []*Identifier{ident("a"), ident("b")},
			},
			expected: `LOAD "http://a", "b.html" AS a, b`,
		},
		{
			name: "select with css",
			node: &SelectQuery{
				Selector: &Selector{Kind: CSS, Value: "li > a"},
				Alias:    ident("links"),
				Source:   ident("doc"),
			},
			expected: `SELECT c"li > a" AS links FROM doc`,
		},
		{
			name: "select with where",
			node: &SelectQuery{
				Selector: &Selector{Kind: XPath, Value: "//p"},
				Alias:    ident("p"),
				Source:   ident("doc"),
				Where: &WhereExpression{Conditions: []Conditional{
					&ContainsCondition{Ident: ident("p"), Pattern: &Pattern{Kind: Regex, Value: `\d`}},
					&ContainsCondition{Ident: ident("doc"), Pattern: &Pattern{Kind: Substring, Value: "x"}},
				}},
			},
			expected: `SELECT "//p" AS p FROM doc WHERE p CONTAINS r"\\d" doc CONTAINS "x"`,
		},
		{
			name: "write",
			node: &WriteQuery{
				Alias:       ident("p"),
				Destination: str("out.xml"),
			},
			expected: `WRITE p TO "out.xml"`,
		},
		{
			name:     "reserved selector kind",
			node:     &Selector{Kind: Attribute, Value: "href"},
			expected: `attribute("href")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProgramString(t *testing.T) {
	program := &Program{Queries: []Query{
		&WriteQuery{Alias: ident("a"), Destination: str("-")},
		&WriteQuery{Alias: ident("b"), Destination: str("-")},
	}}
	expected := "WRITE a TO \"-\"\nWRITE b TO \"-\""
	if got := program.String(); got != expected {
		t.Errorf("String() = %q, want %q", got, expected)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", `"plain"`},
		{`say "hi"`, `"say \"hi\""`},
		{"a\tb\nc", `"a\tb\nc"`},
		{`\d+`, `"\\d+"`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Quote(tt.input); got != tt.expected {
				t.Errorf("Quote(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPositions(t *testing.T) {
	kw := lexer.Token{Type: lexer.SELECT, Literal: "SELECT", Line: 3, Column: 2}
	a := ident("a")
	a.Token.Line, a.Token.Column = 3, 40

	q := &SelectQuery{Token: kw, Selector: &Selector{}, Alias: ident("x"), Source: ident("y")}
	if pos := q.Pos(); pos.Line != 3 || pos.Column != 2 {
		t.Errorf("query position = %s", pos)
	}

	cond := &ContainsCondition{Ident: a, Pattern: &Pattern{}}
	if pos := cond.Pos(); pos.Line != 3 || pos.Column != 40 {
		t.Errorf("condition position = %s", pos)
	}
}
