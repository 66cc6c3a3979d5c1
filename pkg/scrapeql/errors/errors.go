// Package errors provides structured error types for the ScrapeQL language.
//
// This package defines ScrapeError, a unified error type that represents
// lexical, syntax, check and runtime failures. Every ScrapeError carries the
// source position it is attributed to, so the shell can point at the faulty
// statement.
package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for filtering and templating.
type ErrorClass string

const (
	ClassLex    ErrorClass = "lex"    // Unrecognized input
	ClassParse  ErrorClass = "parse"  // No grammar alternative matched
	ClassCheck  ErrorClass = "check"  // Statement-level semantic violation
	ClassScope  ErrorClass = "scope"  // Alias lookup miss
	ClassSelect ErrorClass = "select" // Selector evaluation
	ClassFetch  ErrorClass = "fetch"  // Document loading
	ClassWrite  ErrorClass = "write"  // Serialization to a sink
)

// ScrapeError represents any error from lexing, parsing, checking or running.
type ScrapeError struct {
	Class    ErrorClass     `json:"class"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Hints    []string       `json:"hints,omitempty"`
	Line     int            `json:"line"`   // 1-based line (0 if unknown)
	Column   int            `json:"column"` // 1-based column (0 if unknown)
	File     string         `json:"file,omitempty"`
	Expected []string       `json:"expected,omitempty"` // Token kinds accepted at the failure point
	Data     map[string]any `json:"data,omitempty"`

	// Cause is the collaborator error this one wraps, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ScrapeError) Error() string {
	return e.String()
}

// Unwrap exposes the wrapped collaborator error to errors.Is and errors.As.
func (e *ScrapeError) Unwrap() error {
	return e.Cause
}

// String returns a formatted string representation of the error.
func (e *ScrapeError) String() string {
	var sb strings.Builder

	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d, column %d: ", e.Line, e.Column))
	}

	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// PrettyString returns a multi-line formatted string for display.
func (e *ScrapeError) PrettyString() string {
	var sb strings.Builder

	switch e.Class {
	case ClassLex, ClassParse:
		sb.WriteString("Syntax error")
	case ClassCheck:
		sb.WriteString("Check error")
	default:
		sb.WriteString("Runtime error")
	}

	if e.File != "" {
		sb.WriteString(":\n  in: ")
		sb.WriteString(e.File)
		if e.Line > 0 {
			sb.WriteString(fmt.Sprintf("\n  at: line %d, column %d", e.Line, e.Column))
		}
		sb.WriteString("\n  ")
	} else if e.Line > 0 {
		sb.WriteString(fmt.Sprintf(": line %d, column %d\n  ", e.Line, e.Column))
	} else {
		sb.WriteString(":\n  ")
	}

	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  hint: ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *ScrapeError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithFile returns a copy of the error with the file path set.
func (e *ScrapeError) WithFile(file string) *ScrapeError {
	copy := *e
	copy.File = file
	return &copy
}

// IsSyntaxError returns true for lexer and parser errors.
func (e *ScrapeError) IsSyntaxError() bool {
	return e.Class == ClassLex || e.Class == ClassParse
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass // Error category
	Template string     // Message template with {{.placeholders}}
	Hints    []string   // Hint templates (may use {{.placeholders}})
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// Lexical errors
	"LEX-0001": {
		Class:    ClassLex,
		Template: "unexpected character '{{.Char}}'",
	},
	"LEX-0002": {
		Class:    ClassLex,
		Template: "unterminated string",
		Hints:    []string{"strings end with \" on the same line; write \\\" for a literal quote"},
	},
	"LEX-0003": {
		Class:    ClassLex,
		Template: "unterminated block comment",
		Hints:    []string{"close the comment with */"},
	},

	// Parse errors
	"PARSE-0001": {
		Class:    ClassParse,
		Template: "expected {{.Expected}}, got {{.Got}}",
	},
	"PARSE-0002": {
		Class:    ClassParse,
		Template: "keyword `{{.Keyword}}` used where identifier expected",
		Hints:    []string{"keywords are case-sensitive; `{{.Lower}}` is a valid alias"},
	},

	// Check errors
	"CHECK-0001": {
		Class:    ClassCheck,
		Template: "not enough aliases: {{.Sources}} sources, {{.Aliases}} aliases",
		Hints:    []string{"LOAD binds each source to the alias in the same position"},
	},
	"CHECK-0002": {
		Class:    ClassCheck,
		Template: "too many aliases: {{.Sources}} sources, {{.Aliases}} aliases",
		Hints:    []string{"LOAD binds each source to the alias in the same position"},
	},

	// Runtime errors
	"SCOPE-0001": {
		Class:    ClassScope,
		Template: "`{{.Alias}}` is not in scope",
	},
	"SELECT-0001": {
		Class:    ClassSelect,
		Template: "could not select `{{.Selector}}`",
	},
	"SELECT-0002": {
		Class:    ClassSelect,
		Template: "selecting `{{.Selector}}` failed: {{.Cause}}",
	},
	"SELECT-0003": {
		Class:    ClassSelect,
		Template: "invalid pattern {{.Pattern}}: {{.Cause}}",
	},
	"SELECT-0004": {
		Class:    ClassSelect,
		Template: "no match for `{{.Selector}}` satisfies WHERE",
	},
	"FETCH-0001": {
		Class:    ClassFetch,
		Template: "loading `{{.Source}}` as `{{.Alias}}` failed: {{.Cause}}",
	},
	"WRITE-0001": {
		Class:    ClassWrite,
		Template: "writing `{{.Alias}}` to `{{.Destination}}` failed: {{.Cause}}",
	},
}

// New creates a ScrapeError from the catalog.
// If the code is not found, creates a generic error with the message.
func New(code string, data map[string]any) *ScrapeError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := code
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &ScrapeError{
			Class:   ClassCheck,
			Code:    code,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &ScrapeError{
		Class:   def.Class,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Data:    data,
	}
}

// NewWithPosition creates a ScrapeError with position information.
func NewWithPosition(code string, line, column int, data map[string]any) *ScrapeError {
	err := New(code, data)
	err.Line = line
	err.Column = column
	return err
}

// Wrap creates a positioned ScrapeError around a collaborator failure.
// The cause text is available to the template as {{.Cause}}.
func Wrap(code string, cause error, line, column int, data map[string]any) *ScrapeError {
	if data == nil {
		data = map[string]any{}
	}
	if cause != nil {
		data["Cause"] = cause.Error()
	}
	err := NewWithPosition(code, line, column, data)
	err.Cause = cause
	return err
}

// NewNotInScope creates a scope error with an optional "did you mean" hint.
func NewNotInScope(alias string, line, column int, inScope []string) *ScrapeError {
	err := NewWithPosition("SCOPE-0001", line, column, map[string]any{"Alias": alias})
	if suggestion := FindClosestMatch(alias, inScope); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// HasCode reports whether err is, or wraps, a ScrapeError with the given code.
func HasCode(err error, code string) bool {
	var se *ScrapeError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Code == code
}

// As returns the ScrapeError in err's chain, if there is one.
func As(err error) (*ScrapeError, bool) {
	var se *ScrapeError
	ok := stderrors.As(err, &se)
	return se, ok
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// matchThreshold is the largest edit distance still worth suggesting.
// Short words (1-3) allow 1 edit, medium (4-6) 2, longer 3.
func matchThreshold(input string) int {
	switch {
	case len(input) >= 7:
		return 3
	case len(input) >= 4:
		return 2
	}
	return 1
}

// FindClosestMatch finds the closest match to the given string from candidates.
// Returns the best match if the distance is within the threshold, otherwise empty string.
func FindClosestMatch(input string, candidates []string) string {
	if len(input) == 0 || len(candidates) == 0 {
		return ""
	}

	inputLower := strings.ToLower(input)

	var bestMatch string
	bestDistance := -1

	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	for _, candidate := range sorted {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if bestDistance == -1 || dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	// An exact match is not a suggestion.
	if bestDistance <= 0 || bestDistance > matchThreshold(input) {
		return ""
	}

	return bestMatch
}
