package parser

import (
	"github.com/sambeau/scrapeql/pkg/scrapeql/lexer"
)

// rule is a grammar rule over the parser's token cursor. A rule that fails
// records what it expected through p.expect and may leave the cursor
// anywhere; combinators that recover from a failure restore it themselves.
type rule[T any] func(p *Parser) (T, bool)

// tok matches a single token of the given type.
func tok(tt lexer.TokenType) rule[lexer.Token] {
	return func(p *Parser) (lexer.Token, bool) {
		t := p.peek()
		if t.Type != tt {
			p.expect(tt.Describe())
			return t, false
		}
		p.pos++
		return t, true
	}
}

// choice tries each alternative from the same position and returns the
// first that succeeds.
func choice[T any](alts ...rule[T]) rule[T] {
	return func(p *Parser) (T, bool) {
		start := p.pos
		for _, alt := range alts {
			if v, ok := alt(p); ok {
				return v, true
			}
			p.pos = start
		}
		var zero T
		return zero, false
	}
}

// branch is one arm of a dispatch.
type branch[T any] struct {
	on   lexer.TokenType
	then rule[T]
}

// dispatch picks a rule by the type of the next token without consuming it.
func dispatch[T any](arms ...branch[T]) rule[T] {
	return func(p *Parser) (T, bool) {
		next := p.peek().Type
		for _, arm := range arms {
			if arm.on == next {
				return arm.then(p)
			}
		}
		for _, arm := range arms {
			p.expect(arm.on.Describe())
		}
		var zero T
		return zero, false
	}
}

// optional succeeds with the zero value, consuming nothing, when r fails.
func optional[T any](r rule[T]) rule[T] {
	return func(p *Parser) (T, bool) {
		start := p.pos
		if v, ok := r(p); ok {
			return v, true
		}
		p.pos = start
		var zero T
		return zero, true
	}
}

// many applies r zero or more times.
func many[T any](r rule[T]) rule[[]T] {
	return func(p *Parser) ([]T, bool) {
		var out []T
		for {
			start := p.pos
			v, ok := r(p)
			if !ok || p.pos == start {
				p.pos = start
				return out, true
			}
			out = append(out, v)
		}
	}
}

// many1 applies r one or more times.
func many1[T any](r rule[T]) rule[[]T] {
	rest := many(r)
	return func(p *Parser) ([]T, bool) {
		first, ok := r(p)
		if !ok {
			return nil, false
		}
		more, _ := rest(p)
		return append([]T{first}, more...), true
	}
}

// sepBy1 matches one or more r separated by sep tokens.
func sepBy1[T any](r rule[T], sep lexer.TokenType) rule[[]T] {
	rest := many(preceded(tok(sep), r))
	return func(p *Parser) ([]T, bool) {
		first, ok := r(p)
		if !ok {
			return nil, false
		}
		more, _ := rest(p)
		return append([]T{first}, more...), true
	}
}

// preceded matches prefix then r, keeping r's result.
func preceded[P, T any](prefix rule[P], r rule[T]) rule[T] {
	return func(p *Parser) (T, bool) {
		if _, ok := prefix(p); !ok {
			var zero T
			return zero, false
		}
		return r(p)
	}
}

// mapTo converts the result of r.
func mapTo[A, B any](r rule[A], f func(A) B) rule[B] {
	return func(p *Parser) (B, bool) {
		v, ok := r(p)
		if !ok {
			var zero B
			return zero, false
		}
		return f(v), true
	}
}
