package parser

import (
	"strings"
	"testing"

	"github.com/sambeau/scrapeql/pkg/scrapeql/ast"
	"github.com/sambeau/scrapeql/pkg/scrapeql/lexer"
)

func lexerFor(input string) *lexer.Lexer {
	return lexer.New(input)
}

func parseOK(t *testing.T, input string) *ast.Program {
	t.Helper()
	program, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", input, err)
	}
	return program
}

func TestParseProgram(t *testing.T) {
	input := `LOAD "u" AS d
SELECT "//p" AS para FROM d
WRITE para TO "o.xml"`

	program := parseOK(t, input)
	if len(program.Queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(program.Queries))
	}

	load, ok := program.Queries[0].(*ast.LoadQuery)
	if !ok {
		t.Fatalf("query 0 is %T, want *ast.LoadQuery", program.Queries[0])
	}
	if load.Sources[0].Value != "u" || load.Aliases[0].Value != "d" {
		t.Errorf("load = %s", load)
	}

	sel, ok := program.Queries[1].(*ast.SelectQuery)
	if !ok {
		t.Fatalf("query 1 is %T, want *ast.SelectQuery", program.Queries[1])
	}
	if sel.Selector.Kind != ast.XPath || sel.Selector.Value != "//p" {
		t.Errorf("selector = %s (%s)", sel.Selector, sel.Selector.Kind)
	}
	if sel.Alias.Value != "para" || sel.Source.Value != "d" || sel.Where != nil {
		t.Errorf("select = %s", sel)
	}
	if pos := sel.Pos(); pos.Line != 2 || pos.Column != 1 {
		t.Errorf("select position = %s, want line 2, column 1", pos)
	}

	write, ok := program.Queries[2].(*ast.WriteQuery)
	if !ok {
		t.Fatalf("query 2 is %T, want *ast.WriteQuery", program.Queries[2])
	}
	if write.Alias.Value != "para" || write.Destination.Value != "o.xml" {
		t.Errorf("write = %s", write)
	}
}

func TestParseLoadLists(t *testing.T) {
	tests := []struct {
		input   string
		sources []string
		aliases []string
	}{
		{`LOAD "a" AS x`, []string{"a"}, []string{"x"}},
		{`LOAD "a", "b" AS x, y`, []string{"a", "b"}, []string{"x", "y"}},
		{`LOAD "a","b" AS x`, []string{"a", "b"}, []string{"x"}},
		{`LOAD "a" AS x,y,z`, []string{"a"}, []string{"x", "y", "z"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			program := parseOK(t, tt.input)
			load := program.Queries[0].(*ast.LoadQuery)
			if len(load.Sources) != len(tt.sources) {
				t.Fatalf("got %d sources, want %d", len(load.Sources), len(tt.sources))
			}
			for i, s := range tt.sources {
				if load.Sources[i].Value != s {
					t.Errorf("source %d = %q, want %q", i, load.Sources[i].Value, s)
				}
			}
			if got := strings.Join(load.AliasNames(), ","); got != strings.Join(tt.aliases, ",") {
				t.Errorf("aliases = %s, want %s", got, strings.Join(tt.aliases, ","))
			}
		})
	}
}

func TestParseWhere(t *testing.T) {
	input := `SELECT c"div.item" AS item FROM doc WHERE item CONTAINS r"\d+" title CONTAINS "sale"
WRITE item TO "-"`

	program := parseOK(t, input)
	if len(program.Queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(program.Queries))
	}

	sel := program.Queries[0].(*ast.SelectQuery)
	if sel.Selector.Kind != ast.CSS || sel.Selector.Value != "div.item" {
		t.Errorf("selector = %s", sel.Selector)
	}
	if sel.Where == nil || len(sel.Where.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %v", sel.Where)
	}

	first := sel.Where.Conditions[0].(*ast.ContainsCondition)
	if first.Ident.Value != "item" || first.Pattern.Kind != ast.Regex || first.Pattern.Value != `\d+` {
		t.Errorf("first condition = %s", first)
	}
	second := sel.Where.Conditions[1].(*ast.ContainsCondition)
	if second.Ident.Value != "title" || second.Pattern.Kind != ast.Substring || second.Pattern.Value != "sale" {
		t.Errorf("second condition = %s", second)
	}
}

func TestOptionalWhereConsumesNothing(t *testing.T) {
	program := parseOK(t, `SELECT "//a" AS a FROM d SELECT "//b" AS b FROM d`)
	if len(program.Queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(program.Queries))
	}
	for i, q := range program.Queries {
		if q.(*ast.SelectQuery).Where != nil {
			t.Errorf("query %d has an unexpected WHERE", i)
		}
	}
}

func TestCommentsAndLayout(t *testing.T) {
	input := `
-- load two pages
LOAD "a",   /* second */ "b"
  AS x,
     y
`
	program := parseOK(t, input)
	load := program.Queries[0].(*ast.LoadQuery)
	if len(load.Sources) != 2 || len(load.Aliases) != 2 {
		t.Errorf("got %s", load)
	}
	if pos := load.Aliases[0].Pos(); pos.Line != 4 || pos.Column != 6 {
		t.Errorf("first alias at %s, want line 4, column 6", pos)
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		`LOAD "http://example.com" AS doc`,
		`LOAD "a", "b" AS x, y`,
		`SELECT "//p[@class=\"x\"]" AS para FROM doc`,
		`SELECT c"ul > li" AS items FROM doc WHERE items CONTAINS r"\d+\.\d+"`,
		`SELECT "//h1" AS h FROM doc WHERE h CONTAINS "a\tb" doc CONTAINS "x"`,
		`WRITE para TO "out/para.xml"`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first := parseOK(t, input)
			rendered := first.String()
			second := parseOK(t, rendered)
			if second.String() != rendered {
				t.Errorf("round trip changed program:\n  first:  %s\n  second: %s", rendered, second.String())
			}
			if len(first.Queries) != len(second.Queries) {
				t.Errorf("query count changed: %d vs %d", len(first.Queries), len(second.Queries))
			}
		})
	}
}

func TestRoundTripKeepsSemantics(t *testing.T) {
	first := parseOK(t, `LOAD "a" AS b`+"\n"+`SELECT "//p" AS r FROM c WHERE r CONTAINS r"\w+"`)
	second := parseOK(t, first.String())

	a := first.Queries[1].(*ast.SelectQuery)
	b := second.Queries[1].(*ast.SelectQuery)
	if a.Selector.Value != b.Selector.Value || a.Alias.Value != b.Alias.Value || a.Source.Value != b.Source.Value {
		t.Errorf("semantic content changed: %s vs %s", a, b)
	}
	pa := a.Where.Conditions[0].(*ast.ContainsCondition).Pattern
	pb := b.Where.Conditions[0].(*ast.ContainsCondition).Pattern
	if pa.Value != pb.Value || pa.Kind != pb.Kind {
		t.Errorf("pattern changed: %s vs %s", pa, pb)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		code    string
		line    int
		column  int
		message string
		hint    string
	}{
		{
			name:    "missing AS",
			input:   `LOAD "a" x`,
			code:    "PARSE-0001",
			line:    1,
			column:  10,
			message: "expected ',' or AS, got identifier `x`",
		},
		{
			name:    "keyword as alias",
			input:   `LOAD "a" AS FROM`,
			code:    "PARSE-0002",
			line:    1,
			column:  13,
			message: "keyword `FROM` used where identifier expected",
			hint:    "`from` is a valid alias",
		},
		{
			name:    "missing source alias",
			input:   `SELECT "//p" AS p FROM`,
			code:    "PARSE-0001",
			line:    1,
			column:  23,
			message: "expected identifier, got end of input",
		},
		{
			name:    "unquoted destination",
			input:   `WRITE d TO out`,
			code:    "PARSE-0001",
			line:    1,
			column:  12,
			message: "expected string, got identifier `out`",
		},
		{
			name:    "statement keyword typo",
			input:   `LAOD "a" AS b`,
			code:    "PARSE-0001",
			line:    1,
			column:  1,
			message: "expected LOAD, SELECT or WRITE, got identifier `LAOD`",
			hint:    "Did you mean `LOAD`?",
		},
		{
			name:    "lower-case keyword",
			input:   `select "x" AS a FROM b`,
			code:    "PARSE-0001",
			line:    1,
			column:  1,
			hint:    "keywords are case-sensitive: write `SELECT`",
			message: "expected LOAD, SELECT or WRITE, got identifier `select`",
		},
		{
			name:    "trailing garbage",
			input:   `LOAD "a" AS b "trailing"`,
			code:    "PARSE-0001",
			line:    1,
			column:  15,
			message: `expected ',', LOAD, SELECT, WRITE or end of input, got string "trailing"`,
		},
		{
			name:    "missing pattern",
			input:   `SELECT "x" AS a FROM b WHERE a CONTAINS`,
			code:    "PARSE-0001",
			line:    1,
			column:  40,
			message: "expected regex literal or string, got end of input",
		},
		{
			name:    "keyword in WHERE",
			input:   `SELECT "x" AS a FROM b WHERE FROM`,
			code:    "PARSE-0002",
			line:    1,
			column:  30,
			message: "keyword `FROM` used where identifier expected",
		},
		{
			name:    "css selector in LOAD",
			input:   `LOAD c"div" AS d`,
			code:    "PARSE-0001",
			line:    1,
			column:  6,
			message: `expected string, got css selector c"div"`,
		},
		{
			name:    "empty program",
			input:   "-- nothing here\n",
			code:    "PARSE-0001",
			line:    2,
			column:  1,
			message: "expected LOAD, SELECT or WRITE, got end of input",
		},
		{
			name:   "lexical error",
			input:  `LOAD "a" AS #`,
			code:   "LEX-0001",
			line:   1,
			column: 13,
		},
		{
			name:    "parse error before lexical error",
			input:   `LOAD AS b #`,
			code:    "PARSE-0001",
			line:    1,
			column:  6,
			message: "expected string, got AS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(lexerFor(tt.input))
			program := p.ParseProgram()
			if program != nil {
				t.Fatalf("expected no program, got %s", program)
			}
			errs := p.StructuredErrors()
			if len(errs) != 1 {
				t.Fatalf("expected exactly 1 error, got %d", len(errs))
			}
			err := errs[0]
			if err.Code != tt.code {
				t.Errorf("code = %s, want %s (%s)", err.Code, tt.code, err.Message)
			}
			if err.Line != tt.line || err.Column != tt.column {
				t.Errorf("position = %d:%d, want %d:%d", err.Line, err.Column, tt.line, tt.column)
			}
			if tt.message != "" && err.Message != tt.message {
				t.Errorf("message = %q, want %q", err.Message, tt.message)
			}
			if tt.hint != "" {
				found := false
				for _, h := range err.Hints {
					if strings.Contains(h, tt.hint) {
						found = true
					}
				}
				if !found {
					t.Errorf("hints %v do not contain %q", err.Hints, tt.hint)
				}
			}
		})
	}
}

func TestParseErrorExpectedSet(t *testing.T) {
	_, err := Parse(`LOAD "a" AS b "x"`)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "end of input") {
		t.Errorf("error %q does not list end of input", err.Error())
	}

	p := New(lexerFor(`WRITE x`))
	p.ParseProgram()
	got := p.StructuredErrors()[0].Expected
	if len(got) != 1 || got[0] != "TO" {
		t.Errorf("Expected = %v, want [TO]", got)
	}
}

func TestParseFileSetsFilename(t *testing.T) {
	_, err := ParseFile(`WRITE`, "job.sql")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "job.sql: line 1, column 6") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestErrorsStrings(t *testing.T) {
	p := New(lexerFor(`LOAD`))
	p.ParseProgram()
	errs := p.Errors()
	if len(errs) != 1 || errs[0] != "line 1, column 5: expected string, got end of input" {
		t.Errorf("Errors() = %v", errs)
	}
}

func TestArityIsNotAParseError(t *testing.T) {
	program := parseOK(t, `LOAD "a","b" AS x`)
	if len(program.Queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(program.Queries))
	}
}
