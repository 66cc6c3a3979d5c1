package errors

import "strings"

// tabWidth is the number of columns a tab occupies when drawing the caret.
const tabWidth = 8

// SourceContext renders the source line an error points at, trimmed of
// leading whitespace, with a caret under the error column:
//
//	    SELECT "//p" AS p FORM doc
//	                      ^
//
// It returns "" when the error has no line or the line is out of range.
func (e *ScrapeError) SourceContext(source string) string {
	lines := strings.Split(source, "\n")
	if e.Line <= 0 || e.Line > len(lines) {
		return ""
	}

	sourceLine := []rune(strings.TrimRight(lines[e.Line-1], "\r"))

	// Calculate how many columns to trim from the left
	trimCount, trimRunes := 0, 0
	for _, r := range sourceLine {
		if r == '\t' {
			trimCount += tabWidth
		} else if r == ' ' {
			trimCount++
		} else {
			break
		}
		trimRunes++
	}

	var sb strings.Builder
	sb.WriteString("    ")
	sb.WriteString(string(sourceLine[trimRunes:]))
	sb.WriteString("\n")

	if e.Column > 0 {
		// Visual column accounting for tabs up to the error position
		visualCol := 0
		for i := 0; i < e.Column-1 && i < len(sourceLine); i++ {
			if sourceLine[i] == '\t' {
				visualCol += tabWidth
			} else {
				visualCol++
			}
		}
		if e.Column-1 > len(sourceLine) {
			visualCol += e.Column - 1 - len(sourceLine)
		}

		adjustedCol := max(visualCol-trimCount, 0)
		sb.WriteString("    ")
		sb.WriteString(strings.Repeat(" ", adjustedCol))
		sb.WriteString("^\n")
	}
	return sb.String()
}
