package lexer

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Identifiers and literals
	IDENT  // doc, para1
	STRING // "http://example.com"
	REGEX  // r"\d+"
	CSS    // c"div.item > a"

	// Delimiters
	COMMA // ,

	// Keywords
	SELECT
	LOAD
	WRITE
	FROM
	WHERE
	AS
	FOR
	IN
	TO
	CONTAINS
)

// Location is a 1-based source position.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
}

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string // decoded contents for STRING, REGEX and CSS
	Line    int
	Column  int
}

// Pos returns the location the token starts at.
func (t Token) Pos() Location {
	return Location{Line: t.Line, Column: t.Column}
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %s, Line: %d, Column: %d}",
		t.Type.String(), t.Literal, t.Line, t.Column)
}

var tokenNames = map[TokenType]string{
	ILLEGAL:  "ILLEGAL",
	EOF:      "EOF",
	IDENT:    "IDENT",
	STRING:   "STRING",
	REGEX:    "REGEX",
	CSS:      "CSS",
	COMMA:    "COMMA",
	SELECT:   "SELECT",
	LOAD:     "LOAD",
	WRITE:    "WRITE",
	FROM:     "FROM",
	WHERE:    "WHERE",
	AS:       "AS",
	FOR:      "FOR",
	IN:       "IN",
	TO:       "TO",
	CONTAINS: "CONTAINS",
}

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return "UNKNOWN"
}

// Describe returns the name used for the token type in "expected ..." messages.
func (tt TokenType) Describe() string {
	switch tt {
	case EOF:
		return "end of input"
	case IDENT:
		return "identifier"
	case STRING:
		return "string"
	case REGEX:
		return "regex literal"
	case CSS:
		return "css selector"
	case COMMA:
		return "','"
	case ILLEGAL:
		return "illegal token"
	}
	return tt.String()
}

// IsKeyword reports whether the token type is a reserved word.
func (tt TokenType) IsKeyword() bool {
	return tt >= SELECT && tt <= CONTAINS
}

var keywords = map[string]TokenType{
	"SELECT":   SELECT,
	"LOAD":     LOAD,
	"WRITE":    WRITE,
	"FROM":     FROM,
	"WHERE":    WHERE,
	"AS":       AS,
	"FOR":      FOR,
	"IN":       IN,
	"TO":       TO,
	"CONTAINS": CONTAINS,
}

// LookupIdent checks if an identifier is a keyword. Matching is case-sensitive.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// startKinds are the token kinds a token may begin with; reported when an
// unrecognized character is met.
var startKinds = []string{"identifier", "keyword", "string", "regex literal", "css selector", "','"}

// Lexer represents the lexical analyzer
type Lexer struct {
	filename     string
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current character, 0 at end of input
	chSize       int
	line         int
	column       int
	err          *qlerrors.ScrapeError // first lexical error
}

// New creates a new lexer instance
func New(input string) *Lexer {
	return NewWithFilename(input, "")
}

// NewWithFilename creates a new lexer instance with a specific filename
func NewWithFilename(input string, filename string) *Lexer {
	l := &Lexer{
		filename: filename,
		input:    input,
	}
	l.Reset()
	return l
}

// Reset rewinds the lexer to the start of its input.
func (l *Lexer) Reset() {
	l.position = 0
	l.readPosition = 0
	l.line = 1
	l.column = 0
	l.ch = 0
	l.err = nil
	l.readChar()
}

// Filename returns the name the lexer was created with.
func (l *Lexer) Filename() string {
	return l.filename
}

// Err returns the first lexical error met so far, or nil.
func (l *Lexer) Err() *qlerrors.ScrapeError {
	return l.err
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		if l.ch == '\n' {
			l.line++
			l.column = 0
		}
		l.ch = 0
		l.chSize = 0
		l.position = len(l.input)
		l.column++
		return
	}

	if l.ch == '\n' && l.readPosition > 0 {
		l.line++
		l.column = 0
	}

	r, size := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.chSize = size
	l.position = l.readPosition
	l.readPosition += size
	l.column++
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

// NextToken returns the next token. After EOF or ILLEGAL every further call
// returns the same kind of token again.
func (l *Lexer) NextToken() Token {
	if l.err != nil {
		return Token{Type: ILLEGAL, Literal: l.err.Message, Line: l.err.Line, Column: l.err.Column}
	}

	if !l.skipTrivia() {
		return l.NextToken()
	}

	line, col := l.line, l.column

	if l.atEnd() {
		return Token{Type: EOF, Line: line, Column: col}
	}

	switch {
	case l.ch == ',':
		l.readChar()
		return Token{Type: COMMA, Literal: ",", Line: line, Column: col}
	case l.ch == '"':
		return l.readStringToken(STRING, line, col)
	case (l.ch == 'r' || l.ch == 'c') && l.peekChar() == '"':
		kind := REGEX
		if l.ch == 'c' {
			kind = CSS
		}
		l.readChar() // consume tag letter
		return l.readStringToken(kind, line, col)
	case unicode.IsLetter(l.ch):
		ident := l.readIdentifier()
		return Token{Type: LookupIdent(ident), Literal: ident, Line: line, Column: col}
	}

	bad := string(l.ch)
	l.fail("LEX-0001", line, col, map[string]any{"Char": bad})
	l.err.Expected = startKinds
	return Token{Type: ILLEGAL, Literal: bad, Line: line, Column: col}
}

// Tokens lexes the remaining input. It stops at the first lexical error and
// returns it; the EOF token is included on success.
func (l *Lexer) Tokens() ([]Token, *qlerrors.ScrapeError) {
	var toks []Token
	for {
		tok := l.NextToken()
		if tok.Type == ILLEGAL {
			return nil, l.err
		}
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks, nil
		}
	}
}

// Tokenize lexes the whole input.
func Tokenize(input string) ([]Token, *qlerrors.ScrapeError) {
	return New(input).Tokens()
}

func (l *Lexer) fail(code string, line, col int, data map[string]any) {
	l.err = qlerrors.NewWithPosition(code, line, col, data)
	l.err.File = l.filename
}

// skipTrivia skips whitespace and comments. It returns false if a comment
// was left unterminated.
func (l *Lexer) skipTrivia() bool {
	for {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && !l.atEnd() {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			line, col := l.line, l.column
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEnd() {
					l.fail("LEX-0003", line, col, nil)
					return false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return true
		}
	}
}

// readIdentifier reads a letter followed by letters and digits.
func (l *Lexer) readIdentifier() string {
	position := l.position
	for unicode.IsLetter(l.ch) || unicode.IsDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readStringToken reads a double-quoted literal starting at the current quote.
// \" \\ \n \t and \r are decoded; any other escape is kept as written so that
// regular expressions like r"\d+" survive. Strings cannot span lines.
func (l *Lexer) readStringToken(kind TokenType, line, col int) Token {
	var result []rune
	l.readChar() // skip opening quote

	for l.ch != '"' {
		if l.atEnd() || l.ch == '\n' {
			l.fail("LEX-0002", line, col, nil)
			return Token{Type: ILLEGAL, Literal: l.err.Message, Line: line, Column: col}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				result = append(result, '\n')
			case 't':
				result = append(result, '\t')
			case 'r':
				result = append(result, '\r')
			case '\\':
				result = append(result, '\\')
			case '"':
				result = append(result, '"')
			default:
				if l.atEnd() || l.ch == '\n' {
					continue
				}
				result = append(result, '\\', l.ch)
			}
		} else {
			result = append(result, l.ch)
		}
		l.readChar()
	}
	l.readChar() // skip closing quote

	return Token{Type: kind, Literal: string(result), Line: line, Column: col}
}
