// Package repl implements the interactive ScrapeQL shell.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/sambeau/scrapeql/pkg/scrapeql/checker"
	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
	"github.com/sambeau/scrapeql/pkg/scrapeql/lexer"
	"github.com/sambeau/scrapeql/pkg/scrapeql/parser"
	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
)

const (
	DefaultPrompt      = "scrapeql> "
	ContinuationPrompt = "      ... "
)

// Keywords and directives for tab completion
var completionWords = []string{
	"LOAD", "SELECT", "AS", "FROM", "WHERE", "CONTAINS", "WRITE", "TO",
	":help", ":scope", ":printscope", ":printvar", ":load", ":check", ":clear", ":quit",
}

// Config configures Start.
type Config struct {
	Prompt      string
	HistoryFile string // empty disables history
	Version     string
}

// Session evaluates shell input against a runner. Input that ends in the
// middle of a statement is buffered until a later line completes it.
type Session struct {
	runner *runner.Runner
	out    io.Writer
	prompt string
	buffer strings.Builder
}

// NewSession creates a session writing results and errors to out.
func NewSession(r *runner.Runner, out io.Writer, prompt string) *Session {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Session{runner: r, out: out, prompt: prompt}
}

// Prompt returns the prompt for the next line.
func (s *Session) Prompt() string {
	if s.buffer.Len() > 0 {
		return ContinuationPrompt
	}
	return s.prompt
}

// Pending reports whether an incomplete statement is buffered.
func (s *Session) Pending() bool {
	return s.buffer.Len() > 0
}

// Discard drops any buffered input.
func (s *Session) Discard() {
	s.buffer.Reset()
}

// Eval handles one line of input. It returns false once the user has asked
// to quit. Directives are recognized only when ':' is in column 1 and no
// statement is buffered.
func (s *Session) Eval(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)

	if s.buffer.Len() == 0 {
		if trimmed == "exit" || trimmed == "quit" {
			return false
		}
		if strings.HasPrefix(line, ":") {
			return s.directive(ctx, line)
		}
		if trimmed == "" {
			return true
		}
	}

	if s.buffer.Len() > 0 {
		s.buffer.WriteString("\n")
	}
	s.buffer.WriteString(line)
	input := s.buffer.String()

	if toks, err := lexer.Tokenize(input); err == nil && len(toks) == 1 {
		// Only whitespace and comments
		s.buffer.Reset()
		return true
	}

	program, err := parser.Parse(input)
	if err != nil {
		if incomplete(err) {
			return true
		}
		s.buffer.Reset()
		printError(s.out, err, input)
		return true
	}
	s.buffer.Reset()

	for _, err := range s.runner.RunProgram(ctx, program, false) {
		printError(s.out, err, input)
	}
	return true
}

// incomplete reports whether err means the input stopped mid-statement.
func incomplete(err error) bool {
	se, ok := qlerrors.As(err)
	if !ok || !se.IsSyntaxError() {
		return false
	}
	switch se.Code {
	case "LEX-0003":
		return true
	case "PARSE-0001":
		return se.Data["Got"] == "end of input"
	}
	return false
}

// directive handles shell commands that start with ':'
func (s *Session) directive(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case ":help", ":h", ":?":
		printHelp(s.out)

	case ":scope", ":printscope":
		fmt.Fprintln(s.out, s.runner.DescribeScope())

	case ":printvar":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "usage: :printvar ALIAS...")
			break
		}
		for _, alias := range args {
			desc, err := s.runner.DescribeVariable(alias)
			if err != nil {
				printError(s.out, err, "")
				continue
			}
			fmt.Fprintf(s.out, "%s: %s\n", alias, desc)
		}

	case ":load":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: :load FILE")
			break
		}
		s.load(ctx, args[0])

	case ":check":
		code := strings.TrimSpace(strings.TrimPrefix(line, name))
		if code == "" {
			fmt.Fprintln(s.out, "usage: :check STATEMENTS")
			break
		}
		s.check(code)

	case ":clear":
		s.runner.Reset()
		fmt.Fprintln(s.out, "Scope cleared")

	case ":quit", ":q", ":exit":
		return false

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type :help for commands)\n", name)
	}
	return true
}

// load runs a script into the session's scope.
func (s *Session) load(ctx context.Context, filename string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	source := string(data)

	program, err := parser.ParseFile(source, filename)
	if err != nil {
		printError(s.out, err, source)
		return
	}

	errs := s.runner.RunProgram(ctx, program, false)
	for _, err := range errs {
		if se, ok := qlerrors.As(err); ok {
			err = se.WithFile(filename)
		}
		printError(s.out, err, source)
	}
	if len(errs) == 0 {
		fmt.Fprintf(s.out, "Loaded %s (%d statements)\n", filename, len(program.Queries))
	}
}

// check parses and statically checks code without running it.
func (s *Session) check(code string) {
	program, err := parser.Parse(code)
	if err != nil {
		printError(s.out, err, code)
		return
	}
	errs := checker.CheckProgram(program)
	for _, err := range errs {
		printError(s.out, err, code)
	}
	if len(errs) == 0 {
		fmt.Fprintln(s.out, "OK")
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Statements:")
	fmt.Fprintln(out, `  LOAD "source", ... AS alias, ...`)
	fmt.Fprintln(out, `  SELECT "xpath" AS alias FROM alias [WHERE alias CONTAINS "text" ...]`)
	fmt.Fprintln(out, `  SELECT c"css" AS alias FROM alias [WHERE alias CONTAINS r"regex" ...]`)
	fmt.Fprintln(out, `  WRITE alias TO "destination"`)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands (must start in column 1):")
	fmt.Fprintln(out, "  :help, :h, :?          Show this help")
	fmt.Fprintln(out, "  :scope, :printscope    Show every alias in scope")
	fmt.Fprintln(out, "  :printvar ALIAS...     Describe the values bound to aliases")
	fmt.Fprintln(out, "  :load FILE             Run a script into this session")
	fmt.Fprintln(out, "  :check STATEMENTS      Parse and check without running")
	fmt.Fprintln(out, "  :clear                 Remove every alias from scope")
	fmt.Fprintln(out, "  :quit, :q, exit        Exit the shell")
}

// printError prints err with a source excerpt when source is known
func printError(out io.Writer, err error, source string) {
	se, ok := qlerrors.As(err)
	if !ok {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	io.WriteString(out, se.PrettyString())
	io.WriteString(out, "\n")
	if source != "" {
		io.WriteString(out, se.SourceContext(source))
	}
}

// completions returns whole-line completions for the word under the cursor.
func completions(line string, aliases []string) []string {
	// Don't complete if line is empty or ends with whitespace
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if last := line[len(line)-1]; last == ' ' || last == '\t' {
		return nil
	}

	start := strings.LastIndexAny(line, " \t,") + 1
	head, word := line[:start], line[start:]

	var matches []string
	for _, candidates := range [][]string{completionWords, aliases} {
		for _, c := range candidates {
			if strings.HasPrefix(c, ":") && start != 0 {
				continue
			}
			if strings.HasPrefix(c, word) && c != word {
				matches = append(matches, head+c)
			}
		}
	}
	return matches
}

// Start runs the shell on the terminal until the user quits or input ends.
func Start(ctx context.Context, r *runner.Runner, out io.Writer, cfg Config) error {
	line := liner.NewLiner()
	defer line.Close()

	// Enable Ctrl+C to abort current line
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		return completions(input, r.Aliases())
	})

	if cfg.HistoryFile != "" {
		if f, err := os.Open(cfg.HistoryFile); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(cfg.HistoryFile); err == nil {
				_, _ = line.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	fmt.Fprintf(out, "ScrapeQL %s\n", cfg.Version)
	fmt.Fprintln(out, "Type :help for commands, :quit or Ctrl+D to exit")
	fmt.Fprintln(out, "")

	session := NewSession(r, out, cfg.Prompt)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		input, err := line.Prompt(session.Prompt())
		if err != nil {
			if err == liner.ErrPromptAborted {
				// Ctrl+C - clear any buffered input and return to main prompt
				if session.Pending() {
					fmt.Fprintln(out, "^C (cleared)")
				}
				session.Discard()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out, "")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if !session.Eval(ctx, input) {
			return nil
		}
	}
}
