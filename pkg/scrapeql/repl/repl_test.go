package repl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sambeau/scrapeql/pkg/scrapeql/ast"
	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
)

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, uri string) (runner.Value, error) {
	return "<" + uri + ">", nil
}

type fakeSelector struct{}

func (fakeSelector) Select(v runner.Value, sel *ast.Selector, mode runner.Mode) ([]runner.Value, error) {
	return []runner.Value{sel.Value}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) RenderText(v runner.Value) string { return v.(string) }
func (fakeRenderer) Describe(v runner.Value) string   { return "text " + v.(string) }

func newSession() (*Session, *bytes.Buffer) {
	var out bytes.Buffer
	r := runner.New(
		runner.WithFetcher(fakeFetcher{}),
		runner.WithSelector(fakeSelector{}),
		runner.WithRenderer(fakeRenderer{}),
	)
	return NewSession(r, &out, ""), &out
}

func TestEvalStatements(t *testing.T) {
	s, out := newSession()
	ctx := context.Background()

	s.Eval(ctx, `LOAD "a.html" AS doc SELECT "//p" AS p FROM doc`)
	s.Eval(ctx, ":scope")

	expected := "doc: text <a.html>\np: text //p\n"
	if out.String() != expected {
		t.Errorf("output = %q, want %q", out.String(), expected)
	}
}

func TestEvalContinuesIncompleteStatements(t *testing.T) {
	s, out := newSession()
	ctx := context.Background()

	if s.Prompt() != DefaultPrompt {
		t.Errorf("prompt = %q", s.Prompt())
	}

	s.Eval(ctx, `LOAD "a.html"`)
	if !s.Pending() || s.Prompt() != ContinuationPrompt {
		t.Fatal("expected a pending statement")
	}

	// Directives are not recognized while a statement is buffered
	s.Eval(ctx, "AS")
	s.Eval(ctx, "doc")
	if s.Pending() {
		t.Fatal("statement should be complete")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output: %q", out.String())
	}

	s.Eval(ctx, ":printvar doc")
	if out.String() != "doc: text <a.html>\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestEvalUnterminatedBlockComment(t *testing.T) {
	s, out := newSession()
	ctx := context.Background()

	s.Eval(ctx, "/* a comment")
	if !s.Pending() {
		t.Fatal("open block comment should continue")
	}
	s.Eval(ctx, "that ends here */")
	if s.Pending() || out.Len() != 0 {
		t.Errorf("pending=%v output=%q", s.Pending(), out.String())
	}
}

func TestEvalSkipsBlankAndComments(t *testing.T) {
	s, out := newSession()
	ctx := context.Background()

	for _, line := range []string{"", "   ", "-- just a note", "/* block */"} {
		if !s.Eval(ctx, line) {
			t.Errorf("%q ended the session", line)
		}
		if s.Pending() {
			t.Errorf("%q left input pending", line)
		}
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestEvalPrintsErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{
			name:  "parse error with caret",
			input: `SELECT "//p" AS p FORM doc`,
			contains: []string{
				"Syntax error: line 1, column 19",
				"expected FROM, got identifier `FORM`",
				"    SELECT \"//p\" AS p FORM doc\n                      ^\n",
			},
		},
		{
			name:     "not in scope",
			input:    `WRITE doc TO "-"`,
			contains: []string{"Runtime error: line 1, column 7", "`doc` is not in scope"},
		},
		{
			name:     "check error",
			input:    `LOAD "a" AS x, y`,
			contains: []string{"Check error", "too many aliases: 1 sources, 2 aliases"},
		},
		{
			name:     "unterminated string",
			input:    `LOAD "a AS x`,
			contains: []string{"unterminated string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, out := newSession()
			s.Eval(context.Background(), tt.input)
			if s.Pending() {
				t.Error("errors should not leave input pending")
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output should contain %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestDirectives(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{"help", ":help", ":printvar ALIAS..."},
		{"empty scope", ":printscope", "(scope is empty)"},
		{"printvar usage", ":printvar", "usage: :printvar"},
		{"printvar missing", ":printvar nope", "`nope` is not in scope"},
		{"load usage", ":load", "usage: :load FILE"},
		{"load missing file", ":load /does/not/exist.sql", "Error:"},
		{"check ok", `:check LOAD "a" AS b`, "OK"},
		{"check arity", `:check LOAD "a", "b" AS c`, "not enough aliases"},
		{"check syntax", `:check LOAD AS b`, "expected string"},
		{"check usage", ":check", "usage: :check"},
		{"clear", ":clear", "Scope cleared"},
		{"unknown", ":frobnicate", "Unknown command: :frobnicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, out := newSession()
			if !s.Eval(context.Background(), tt.input) {
				t.Fatal("directive ended the session")
			}
			if !strings.Contains(out.String(), tt.contains) {
				t.Errorf("output should contain %q:\n%s", tt.contains, out.String())
			}
		})
	}
}

func TestDirectiveOnlyAtColumnOne(t *testing.T) {
	s, out := newSession()
	s.Eval(context.Background(), "  :scope")
	if strings.Contains(out.String(), "(scope is empty)") {
		t.Error("indented directive should not run")
	}
	if !strings.Contains(out.String(), "Syntax error") {
		t.Errorf("expected a syntax error, got %q", out.String())
	}
}

func TestQuit(t *testing.T) {
	for _, input := range []string{":quit", ":q", ":exit", "exit", "quit"} {
		s, _ := newSession()
		if s.Eval(context.Background(), input) {
			t.Errorf("%q should end the session", input)
		}
	}
}

func TestLoadDirective(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "script.sql")
	content := "-- fixture\nLOAD \"a.html\" AS doc\nSELECT \"//p\" AS p FROM doc\n"
	if err := os.WriteFile(script, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, out := newSession()
	s.Eval(context.Background(), ":load "+script)
	if !strings.Contains(out.String(), "Loaded "+script+" (2 statements)") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	s.Eval(context.Background(), ":scope")
	if out.String() != "doc: text <a.html>\np: text //p\n" {
		t.Errorf("scope = %q", out.String())
	}
}

func TestLoadDirectiveReportsFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "bad.sql")
	if err := os.WriteFile(script, []byte("WRITE nothing TO \"-\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, out := newSession()
	s.Eval(context.Background(), ":load "+script)
	if !strings.Contains(out.String(), "in: "+script) {
		t.Errorf("error should name the file:\n%s", out.String())
	}
}

func TestCompletions(t *testing.T) {
	aliases := []string{"doc", "docs", "links"}

	tests := []struct {
		line     string
		expected []string
	}{
		{"", nil},
		{"SEL", []string{"SELECT"}},
		{`SELECT "//a" AS x FR`, []string{`SELECT "//a" AS x FROM`}},
		{`SELECT "//a" AS x FROM d`, []string{`SELECT "//a" AS x FROM doc`, `SELECT "//a" AS x FROM docs`}},
		{"WRITE ", nil},
		{":pr", []string{":printscope", ":printvar"}},
		{"LOAD :pr", nil},
		{"LOAD", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := completions(tt.line, aliases)
			if strings.Join(got, "|") != strings.Join(tt.expected, "|") {
				t.Errorf("completions(%q) = %q, want %q", tt.line, got, tt.expected)
			}
		})
	}
}

func TestIncomplete(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"open block comment", qlerrors.New("LEX-0003", nil), true},
		{"statement cut short", qlerrors.New("PARSE-0001", map[string]any{"Expected": "AS", "Got": "end of input"}), true},
		{"wrong token", qlerrors.New("PARSE-0001", map[string]any{"Expected": "AS", "Got": "identifier `x`"}), false},
		{"unterminated string", qlerrors.New("LEX-0002", nil), false},
		{"runtime error", qlerrors.New("FETCH-0001", map[string]any{"Got": "end of input"}), false},
		{"plain error", errors.New("end of input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := incomplete(tt.err); got != tt.want {
				t.Errorf("incomplete() = %v, want %v", got, tt.want)
			}
		})
	}
}
