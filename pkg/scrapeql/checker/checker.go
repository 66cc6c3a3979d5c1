// Package checker validates parsed statements before they run.
//
// Checks are pure functions of the AST: they never look at the runner's
// scope and never perform I/O, so a statement can be checked long before
// the documents it names exist.
package checker

import (
	"github.com/sambeau/scrapeql/pkg/scrapeql/ast"
	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
)

// Check validates a single statement. It returns nil when the statement may
// be run.
func Check(q ast.Query) *qlerrors.ScrapeError {
	switch q := q.(type) {
	case *ast.LoadQuery:
		return checkLoad(q)
	case *ast.SelectQuery:
		return checkSelect(q)
	case *ast.WriteQuery:
		return checkWrite(q)
	}
	return nil
}

// CheckProgram validates every statement and returns the failures in
// program order. A failing statement does not stop its siblings from being
// checked.
func CheckProgram(program *ast.Program) []*qlerrors.ScrapeError {
	var errs []*qlerrors.ScrapeError
	for _, q := range program.Queries {
		if err := Check(q); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// checkLoad requires one alias per source. The error is reported at the
// first alias.
func checkLoad(q *ast.LoadQuery) *qlerrors.ScrapeError {
	sources, aliases := len(q.Sources), len(q.Aliases)
	if sources == aliases {
		return nil
	}

	code := "CHECK-0001"
	if aliases > sources {
		code = "CHECK-0002"
	}

	pos := q.Pos()
	if aliases > 0 {
		pos = q.Aliases[0].Pos()
	}

	err := qlerrors.NewWithPosition(code, pos.Line, pos.Column, map[string]any{
		"Sources": sources,
		"Aliases": aliases,
	})
	err.Data["Statement"] = q.String()
	return err
}

func checkSelect(q *ast.SelectQuery) *qlerrors.ScrapeError {
	return nil
}

func checkWrite(q *ast.WriteQuery) *qlerrors.ScrapeError {
	return nil
}
