package parser

import (
	"fmt"
	"strings"

	"github.com/sambeau/scrapeql/pkg/scrapeql/ast"
	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
	"github.com/sambeau/scrapeql/pkg/scrapeql/lexer"
)

// Parser represents the parser
type Parser struct {
	l *lexer.Lexer

	tokens []lexer.Token // tokens read so far; rules backtrack over this buffer
	pos    int

	// furthest is the position of the deepest failure seen and expected the
	// token kinds that would have been accepted there.
	furthest int
	expected []string

	structuredErrors []*qlerrors.ScrapeError
}

// New creates a new parser instance
func New(l *lexer.Lexer) *Parser {
	return &Parser{
		l:        l,
		furthest: -1,
	}
}

// Parse parses a complete program.
func Parse(input string) (*ast.Program, error) {
	return ParseFile(input, "")
}

// ParseFile parses a complete program, attributing errors to filename.
func ParseFile(input, filename string) (*ast.Program, error) {
	p := New(lexer.NewWithFilename(input, filename))
	program := p.ParseProgram()
	if errs := p.StructuredErrors(); len(errs) > 0 {
		return nil, errs[0]
	}
	return program, nil
}

// Errors returns parser errors as strings (convenience method for tests).
// Prefer StructuredErrors() for production code.
func (p *Parser) Errors() []string {
	result := make([]string, len(p.structuredErrors))
	for i, err := range p.structuredErrors {
		if err.Line > 0 {
			result[i] = fmt.Sprintf("line %d, column %d: %s", err.Line, err.Column, err.Message)
		} else {
			result[i] = err.Message
		}
	}
	return result
}

// StructuredErrors returns parser errors as structured ScrapeError objects.
func (p *Parser) StructuredErrors() []*qlerrors.ScrapeError {
	return p.structuredErrors
}

// ParseProgram parses the whole input. It returns nil, and records exactly
// one error, unless every token up to EOF belongs to a statement.
func (p *Parser) ParseProgram() *ast.Program {
	queries, ok := program(p)
	if ok {
		_, ok = tok(lexer.EOF)(p)
	}
	if !ok {
		p.structuredErrors = append(p.structuredErrors, p.failure())
		return nil
	}
	return &ast.Program{Queries: queries}
}

// peek returns the token under the cursor, reading from the lexer on demand.
// The buffer never grows past EOF or the first ILLEGAL token.
func (p *Parser) peek() lexer.Token {
	for p.pos >= len(p.tokens) {
		if n := len(p.tokens); n > 0 {
			last := p.tokens[n-1]
			if last.Type == lexer.EOF || last.Type == lexer.ILLEGAL {
				return last
			}
		}
		p.tokens = append(p.tokens, p.l.NextToken())
	}
	return p.tokens[p.pos]
}

func (p *Parser) tokenAt(i int) lexer.Token {
	if i >= len(p.tokens) {
		i = len(p.tokens) - 1
	}
	return p.tokens[i]
}

// expect records that one of kinds would have been accepted at the cursor.
// Only the deepest position is kept; kinds at the same position are merged.
func (p *Parser) expect(kinds ...string) {
	if p.pos > p.furthest {
		p.furthest = p.pos
		p.expected = nil
	}
	if p.pos < p.furthest {
		return
	}
	for _, k := range kinds {
		if !contains(p.expected, k) {
			p.expected = append(p.expected, k)
		}
	}
}

// failure builds the diagnostic for the deepest failure.
func (p *Parser) failure() *qlerrors.ScrapeError {
	at := p.tokenAt(p.furthest)

	if at.Type == lexer.ILLEGAL {
		if err := p.l.Err(); err != nil {
			return err
		}
	}

	var err *qlerrors.ScrapeError
	if at.Type.IsKeyword() && len(p.expected) == 1 && p.expected[0] == lexer.IDENT.Describe() {
		err = qlerrors.NewWithPosition("PARSE-0002", at.Line, at.Column, map[string]any{
			"Keyword": at.Literal,
			"Lower":   strings.ToLower(at.Literal),
		})
	} else {
		err = qlerrors.NewWithPosition("PARSE-0001", at.Line, at.Column, map[string]any{
			"Expected": joinAlternatives(p.expected),
			"Got":      describeToken(at),
		})
		if at.Type == lexer.IDENT {
			if hint := keywordHint(at.Literal, p.expected); hint != "" {
				err.Hints = append(err.Hints, hint)
			}
		}
	}
	err.Expected = p.expected
	err.File = p.l.Filename()
	return err
}

// Grammar
//
//	Program      := Statement+ EOF
//	Statement    := LoadStmt | SelectStmt | WriteStmt
//	LoadStmt     := "LOAD" String ("," String)* "AS" Ident ("," Ident)*
//	SelectStmt   := "SELECT" (String | Css) "AS" Ident "FROM" Ident [Where]
//	WriteStmt    := "WRITE" Ident "TO" String
//	Where        := "WHERE" Conditional+
//	Conditional  := Ident "CONTAINS" (Regex | String)
var (
	identifier = mapTo(tok(lexer.IDENT), func(t lexer.Token) *ast.Identifier {
		return &ast.Identifier{Token: t, Value: t.Literal}
	})

	stringLiteral = mapTo(tok(lexer.STRING), func(t lexer.Token) *ast.StringLiteral {
		return &ast.StringLiteral{Token: t, Value: t.Literal}
	})

	selectorLiteral = choice(
		mapTo(tok(lexer.STRING), func(t lexer.Token) *ast.Selector {
			return &ast.Selector{Token: t, Kind: ast.XPath, Value: t.Literal}
		}),
		mapTo(tok(lexer.CSS), func(t lexer.Token) *ast.Selector {
			return &ast.Selector{Token: t, Kind: ast.CSS, Value: t.Literal}
		}),
	)

	pattern = choice(
		mapTo(tok(lexer.REGEX), func(t lexer.Token) *ast.Pattern {
			return &ast.Pattern{Token: t, Kind: ast.Regex, Value: t.Literal}
		}),
		mapTo(tok(lexer.STRING), func(t lexer.Token) *ast.Pattern {
			return &ast.Pattern{Token: t, Kind: ast.Substring, Value: t.Literal}
		}),
	)

	sources      = sepBy1(stringLiteral, lexer.COMMA)
	aliases      = sepBy1(identifier, lexer.COMMA)
	conditionals = many1(rule[ast.Conditional](conditional))
	where        = optional(rule[*ast.WhereExpression](whereClause))

	statement = dispatch(
		branch[ast.Query]{lexer.LOAD, loadStatement},
		branch[ast.Query]{lexer.SELECT, selectStatement},
		branch[ast.Query]{lexer.WRITE, writeStatement},
	)

	program = many1(statement)
)

func loadStatement(p *Parser) (ast.Query, bool) {
	kw, ok := tok(lexer.LOAD)(p)
	if !ok {
		return nil, false
	}
	srcs, ok := sources(p)
	if !ok {
		return nil, false
	}
	if _, ok := tok(lexer.AS)(p); !ok {
		return nil, false
	}
	names, ok := aliases(p)
	if !ok {
		return nil, false
	}
	return &ast.LoadQuery{Token: kw, Sources: srcs, Aliases: names}, true
}

func selectStatement(p *Parser) (ast.Query, bool) {
	kw, ok := tok(lexer.SELECT)(p)
	if !ok {
		return nil, false
	}
	sel, ok := selectorLiteral(p)
	if !ok {
		return nil, false
	}
	if _, ok := tok(lexer.AS)(p); !ok {
		return nil, false
	}
	alias, ok := identifier(p)
	if !ok {
		return nil, false
	}
	if _, ok := tok(lexer.FROM)(p); !ok {
		return nil, false
	}
	source, ok := identifier(p)
	if !ok {
		return nil, false
	}
	w, _ := where(p)
	return &ast.SelectQuery{Token: kw, Selector: sel, Alias: alias, Source: source, Where: w}, true
}

func writeStatement(p *Parser) (ast.Query, bool) {
	kw, ok := tok(lexer.WRITE)(p)
	if !ok {
		return nil, false
	}
	alias, ok := identifier(p)
	if !ok {
		return nil, false
	}
	if _, ok := tok(lexer.TO)(p); !ok {
		return nil, false
	}
	dest, ok := stringLiteral(p)
	if !ok {
		return nil, false
	}
	return &ast.WriteQuery{Token: kw, Alias: alias, Destination: dest}, true
}

func whereClause(p *Parser) (*ast.WhereExpression, bool) {
	kw, ok := tok(lexer.WHERE)(p)
	if !ok {
		return nil, false
	}
	conds, ok := conditionals(p)
	if !ok {
		return nil, false
	}
	return &ast.WhereExpression{Token: kw, Conditions: conds}, true
}

func conditional(p *Parser) (ast.Conditional, bool) {
	ident, ok := identifier(p)
	if !ok {
		return nil, false
	}
	kw, ok := tok(lexer.CONTAINS)(p)
	if !ok {
		return nil, false
	}
	pat, ok := pattern(p)
	if !ok {
		return nil, false
	}
	return &ast.ContainsCondition{Token: kw, Ident: ident, Pattern: pat}, true
}

// describeToken names a token for "got ..." messages.
func describeToken(t lexer.Token) string {
	switch t.Type {
	case lexer.EOF:
		return "end of input"
	case lexer.IDENT:
		return "identifier `" + t.Literal + "`"
	case lexer.STRING:
		return "string " + ast.Quote(t.Literal)
	case lexer.REGEX:
		return "regex literal r" + ast.Quote(t.Literal)
	case lexer.CSS:
		return "css selector c" + ast.Quote(t.Literal)
	case lexer.COMMA:
		return "','"
	}
	return t.Literal
}

// joinAlternatives renders ["AS", "','"] as "AS or ','".
func joinAlternatives(items []string) string {
	switch len(items) {
	case 0:
		return "a statement"
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

// keywordHint suggests a keyword when an identifier stood where one of the
// expected keywords belonged.
func keywordHint(ident string, expected []string) string {
	var candidates []string
	for _, e := range expected {
		if lexer.LookupIdent(e).IsKeyword() {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	upper := strings.ToUpper(ident)
	for _, c := range candidates {
		if c == upper {
			return "keywords are case-sensitive: write `" + c + "`"
		}
	}

	if match := qlerrors.FindClosestMatch(ident, candidates); match != "" {
		return "Did you mean `" + match + "`?"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
