// Package runner executes parsed ScrapeQL statements against a scope of
// named values.
//
// A Runner exclusively owns its scope. Statements run synchronously in the
// order they are given; the runner has no internal locking, so a host that
// shares one runner between goroutines must serialize calls itself.
// Documents are fetched, selected from, rendered and written through the
// collaborator interfaces below, which keeps this package free of any HTML
// or network code.
package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sambeau/scrapeql/pkg/scrapeql/ast"
	"github.com/sambeau/scrapeql/pkg/scrapeql/checker"
	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
	"github.com/sambeau/scrapeql/pkg/scrapeql/logging"
)

// Value is an opaque queryable handle, typically a document node. The
// runner only passes values between collaborators.
type Value any

// Mode tells a Selector how many matches the caller wants.
type Mode int

const (
	// Single asks for at most one match.
	Single Mode = iota
	// Many asks for every match, in document order.
	Many
)

func (m Mode) String() string {
	if m == Many {
		return "many"
	}
	return "single"
}

// Fetcher resolves a source string to a document.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (Value, error)
}

// Selector evaluates a selector against a value. An empty result is not an
// error.
type Selector interface {
	Select(v Value, sel *ast.Selector, mode Mode) ([]Value, error)
}

// Sink serializes a value to a destination.
type Sink interface {
	Write(ctx context.Context, v Value, dest string) error
}

// Renderer turns values into text for WHERE conditionals and for
// diagnostics.
type Renderer interface {
	RenderText(v Value) string
	Describe(v Value) string
}

// ErrNoCollaborator is the cause reported when a statement needs a
// collaborator the runner was built without.
var ErrNoCollaborator = errors.New("no collaborator configured")

// Runner holds the scope and the collaborators used to run statements.
type Runner struct {
	scope map[string]Value

	fetcher  Fetcher
	selector Selector
	sink     Sink
	renderer Renderer
	logger   logging.Logger

	patterns map[string]*regexp.Regexp // compiled r"..." patterns by source text
}

// Option configures a Runner.
type Option func(*Runner)

// WithFetcher sets the document fetcher used by LOAD.
func WithFetcher(f Fetcher) Option { return func(r *Runner) { r.fetcher = f } }

// WithSelector sets the selection capability used by SELECT.
func WithSelector(s Selector) Option { return func(r *Runner) { r.selector = s } }

// WithSink sets the sink used by WRITE.
func WithSink(s Sink) Option { return func(r *Runner) { r.sink = s } }

// WithRenderer sets the renderer used by WHERE and the Describe methods.
func WithRenderer(rd Renderer) Option { return func(r *Runner) { r.renderer = rd } }

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option { return func(r *Runner) { r.logger = l } }

// New creates a runner with an empty scope.
func New(opts ...Option) *Runner {
	r := &Runner{
		scope:    make(map[string]Value),
		logger:   logging.Null(),
		patterns: make(map[string]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run checks and executes one statement. A statement that fails its check
// is not executed.
func (r *Runner) Run(ctx context.Context, q ast.Query) error {
	if err := checker.Check(q); err != nil {
		return err
	}

	pos := q.Pos()
	r.logger.Debug("running statement", "statement", q.String(), "line", pos.Line)

	switch q := q.(type) {
	case *ast.LoadQuery:
		return r.runLoad(ctx, q)
	case *ast.SelectQuery:
		return r.runSelect(q)
	case *ast.WriteQuery:
		return r.runWrite(ctx, q)
	}
	return fmt.Errorf("unsupported statement %T", q)
}

// RunProgram runs every statement in order. It stops at the first failure
// unless keepGoing is set, in which case failing statements are skipped.
// The context is consulted between statements. All failures are returned
// in program order.
func (r *Runner) RunProgram(ctx context.Context, program *ast.Program, keepGoing bool) []error {
	var errs []error
	for _, q := range program.Queries {
		if err := ctx.Err(); err != nil {
			return append(errs, err)
		}
		if err := r.Run(ctx, q); err != nil {
			r.logger.Warn("statement failed", "statement", q.String(), "error", err.Error())
			errs = append(errs, err)
			if !keepGoing {
				return errs
			}
		}
	}
	return errs
}

// runLoad fetches each source and binds it to the alias in the same
// position. The first failure stops the statement; aliases bound by
// earlier pairs stay bound.
func (r *Runner) runLoad(ctx context.Context, q *ast.LoadQuery) error {
	for i, src := range q.Sources {
		alias := q.Aliases[i]
		pos := src.Pos()

		if r.fetcher == nil {
			return qlerrors.Wrap("FETCH-0001", ErrNoCollaborator, pos.Line, pos.Column,
				map[string]any{"Source": src.Value, "Alias": alias.Value})
		}

		v, err := r.fetcher.Fetch(ctx, src.Value)
		if err != nil {
			return qlerrors.Wrap("FETCH-0001", err, pos.Line, pos.Column,
				map[string]any{"Source": src.Value, "Alias": alias.Value})
		}
		r.bind(alias.Value, v, "source", src.Value)
	}
	return nil
}

// runSelect evaluates the selector against the source value. Without a
// WHERE clause the single match is bound. With one, every match is a
// candidate and the first candidate satisfying all conditionals is bound.
// Inside a conditional the statement's own alias names the candidate.
func (r *Runner) runSelect(q *ast.SelectQuery) error {
	src, ok := r.scope[q.Source.Value]
	if !ok {
		return r.notInScope(q.Source)
	}

	if q.Where != nil {
		if err := r.prepareWhere(q); err != nil {
			return err
		}
	}

	mode := Single
	if q.Where != nil {
		mode = Many
	}

	pos := q.Selector.Pos()
	if r.selector == nil {
		return qlerrors.Wrap("SELECT-0002", ErrNoCollaborator, pos.Line, pos.Column,
			map[string]any{"Selector": q.Selector.Value})
	}

	matches, err := r.selector.Select(src, q.Selector, mode)
	if err != nil {
		return qlerrors.Wrap("SELECT-0002", err, pos.Line, pos.Column,
			map[string]any{"Selector": q.Selector.Value})
	}
	if len(matches) == 0 {
		return qlerrors.NewWithPosition("SELECT-0001", pos.Line, pos.Column,
			map[string]any{"Selector": q.Selector.Value})
	}

	if q.Where == nil {
		r.bind(q.Alias.Value, matches[0], "selector", q.Selector.Value)
		return nil
	}

	for _, candidate := range matches {
		if r.satisfies(q, candidate) {
			r.bind(q.Alias.Value, candidate, "selector", q.Selector.Value)
			return nil
		}
	}

	wpos := q.Where.Pos()
	return qlerrors.NewWithPosition("SELECT-0004", wpos.Line, wpos.Column,
		map[string]any{"Selector": q.Selector.Value, "Candidates": len(matches)})
}

// prepareWhere compiles regex patterns and checks that every identifier
// other than the statement's alias is bound, so that no candidate is
// evaluated against a clause that cannot succeed.
func (r *Runner) prepareWhere(q *ast.SelectQuery) error {
	for _, c := range q.Where.Conditions {
		cc, ok := c.(*ast.ContainsCondition)
		if !ok {
			continue
		}
		if cc.Ident.Value != q.Alias.Value {
			if _, ok := r.scope[cc.Ident.Value]; !ok {
				return r.notInScope(cc.Ident)
			}
		}
		if cc.Pattern.Kind == ast.Regex {
			if _, err := r.compile(cc.Pattern.Value); err != nil {
				pos := cc.Pattern.Pos()
				return qlerrors.Wrap("SELECT-0003", err, pos.Line, pos.Column,
					map[string]any{"Pattern": cc.Pattern.String()})
			}
		}
	}
	return nil
}

// satisfies reports whether every conditional holds for candidate.
func (r *Runner) satisfies(q *ast.SelectQuery, candidate Value) bool {
	for _, c := range q.Where.Conditions {
		cc, ok := c.(*ast.ContainsCondition)
		if !ok {
			return false
		}
		v := candidate
		if cc.Ident.Value != q.Alias.Value {
			v = r.scope[cc.Ident.Value]
		}
		if !r.contains(r.renderText(v), cc.Pattern) {
			return false
		}
	}
	return true
}

func (r *Runner) contains(text string, p *ast.Pattern) bool {
	if p.Kind == ast.Substring {
		return strings.Contains(text, p.Value)
	}
	re, err := r.compile(p.Value)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func (r *Runner) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := r.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	r.patterns[pattern] = re
	return re, nil
}

func (r *Runner) runWrite(ctx context.Context, q *ast.WriteQuery) error {
	v, ok := r.scope[q.Alias.Value]
	if !ok {
		return r.notInScope(q.Alias)
	}

	pos := q.Alias.Pos()
	data := map[string]any{"Alias": q.Alias.Value, "Destination": q.Destination.Value}
	if r.sink == nil {
		return qlerrors.Wrap("WRITE-0001", ErrNoCollaborator, pos.Line, pos.Column, data)
	}
	if err := r.sink.Write(ctx, v, q.Destination.Value); err != nil {
		return qlerrors.Wrap("WRITE-0001", err, pos.Line, pos.Column, data)
	}

	r.logger.Info("wrote alias", "alias", q.Alias.Value, "destination", q.Destination.Value)
	return nil
}

func (r *Runner) bind(alias string, v Value, kv ...any) {
	_, replaced := r.scope[alias]
	r.scope[alias] = v
	r.logger.Info("bound alias", append([]any{"alias", alias, "replaced", replaced}, kv...)...)
}

func (r *Runner) notInScope(ident *ast.Identifier) *qlerrors.ScrapeError {
	pos := ident.Pos()
	return qlerrors.NewNotInScope(ident.Value, pos.Line, pos.Column, r.Aliases())
}

func (r *Runner) renderText(v Value) string {
	if r.renderer != nil {
		return r.renderer.RenderText(v)
	}
	return fmt.Sprint(v)
}

func (r *Runner) describe(v Value) string {
	if r.renderer != nil {
		return r.renderer.Describe(v)
	}
	return fmt.Sprintf("%T", v)
}

// Aliases returns the bound alias names in sorted order.
func (r *Runner) Aliases() []string {
	names := make([]string, 0, len(r.scope))
	for name := range r.scope {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the value bound to alias.
func (r *Runner) Lookup(alias string) (Value, bool) {
	v, ok := r.scope[alias]
	return v, ok
}

// Reset unbinds every alias.
func (r *Runner) Reset() {
	clear(r.scope)
}

// DescribeScope lists every binding, one per line, sorted by alias.
func (r *Runner) DescribeScope() string {
	if len(r.scope) == 0 {
		return "(scope is empty)"
	}
	var sb strings.Builder
	for i, name := range r.Aliases() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(r.describe(r.scope[name]))
	}
	return sb.String()
}

// DescribeVariable describes the value bound to alias.
func (r *Runner) DescribeVariable(alias string) (string, error) {
	v, ok := r.scope[alias]
	if !ok {
		return "", qlerrors.NewNotInScope(alias, 0, 0, r.Aliases())
	}
	return r.describe(v), nil
}
