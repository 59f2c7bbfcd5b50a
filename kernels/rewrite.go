package kernels

import (
	"strings"

	"go.starlark.net/syntax"
)

const (
	resultName = "__result__"
	priorName  = "__prior__"
)

var fileOptions = &syntax.FileOptions{
	Set:               true,
	While:             true,
	TopLevelControl:   true,
	GlobalReassign:    true,
	LoadBindsGlobally: true,
	Recursion:         true,
}

// FunctionSource is the defining text of a top-level function.
type FunctionSource struct {
	Name   string
	Source string
}

type positionKey struct {
	line, col int32
}

func keyOf(pos syntax.Position) positionKey {
	return positionKey{pos.Line, pos.Col}
}

type prepared struct {
	file      *syntax.File
	hasResult bool
	sources   map[positionKey]FunctionSource
}

// prepare rewrites a parsed fragment for execution against the live namespace.
// Names the fragment binds that already exist are seeded from the namespace,
// and a trailing expression statement is captured as the result.
func prepare(file *syntax.File, fragment string, exists func(string) bool) *prepared {
	ret := &prepared{
		file:    file,
		sources: indexSources(file, fragment),
	}
	if len(file.Stmts) == 0 {
		return ret
	}

	last := len(file.Stmts) - 1
	if expr, ok := file.Stmts[last].(*syntax.ExprStmt); ok {
		start := syntax.Start(expr)
		file.Stmts[last] = &syntax.AssignStmt{
			OpPos: start,
			Op:    syntax.EQ,
			LHS: &syntax.Ident{
				NamePos: start,
				Name:    resultName,
			},
			RHS: expr.X,
		}
		ret.hasResult = true
	}

	seen := make(map[string]bool)
	var names []string
	for _, stmt := range file.Stmts {
		boundNames(stmt, func(name string) {
			if seen[name] || name == resultName || !exists(name) {
				return
			}
			seen[name] = true
			names = append(names, name)
		})
	}
	if len(names) > 0 {
		start := syntax.Start(file.Stmts[0])
		seeds := make([]syntax.Stmt, 0, len(names)+len(file.Stmts))
		for _, name := range names {
			seeds = append(seeds, &syntax.AssignStmt{
				OpPos: start,
				Op:    syntax.EQ,
				LHS: &syntax.Ident{
					NamePos: start,
					Name:    name,
				},
				RHS: &syntax.DotExpr{
					X: &syntax.Ident{
						NamePos: start,
						Name:    priorName,
					},
					Dot:     start,
					NamePos: start,
					Name: &syntax.Ident{
						NamePos: start,
						Name:    name,
					},
				},
			})
		}
		file.Stmts = append(seeds, file.Stmts...)
	}

	return ret
}

// boundNames reports the top-level names a statement assigns.
// Function bodies are not entered; names bound by load are skipped.
func boundNames(stmt syntax.Stmt, fn func(string)) {
	switch stmt := stmt.(type) {
	case *syntax.AssignStmt:
		targetNames(stmt.LHS, fn)
	case *syntax.DefStmt:
		fn(stmt.Name.Name)
	case *syntax.ForStmt:
		targetNames(stmt.Vars, fn)
		for _, s := range stmt.Body {
			boundNames(s, fn)
		}
	case *syntax.WhileStmt:
		for _, s := range stmt.Body {
			boundNames(s, fn)
		}
	case *syntax.IfStmt:
		for _, s := range stmt.True {
			boundNames(s, fn)
		}
		for _, s := range stmt.False {
			boundNames(s, fn)
		}
	}
}

func targetNames(expr syntax.Expr, fn func(string)) {
	switch expr := expr.(type) {
	case *syntax.Ident:
		fn(expr.Name)
	case *syntax.TupleExpr:
		for _, e := range expr.List {
			targetNames(e, fn)
		}
	case *syntax.ListExpr:
		for _, e := range expr.List {
			targetNames(e, fn)
		}
	case *syntax.ParenExpr:
		targetNames(expr.X, fn)
	}
}

// indexSources records the text of top-level def statements and lambda assignments,
// keyed by the position the resulting function reports.
func indexSources(file *syntax.File, fragment string) map[positionKey]FunctionSource {
	lines := strings.Split(fragment, "\n")
	extract := func(node syntax.Node) string {
		start, end := node.Span()
		from, to := int(start.Line)-1, int(end.Line)
		if from < 0 || to > len(lines) || from >= to {
			return ""
		}
		return strings.Join(lines[from:to], "\n") + "\n"
	}

	ret := make(map[positionKey]FunctionSource)
	for _, stmt := range file.Stmts {
		switch stmt := stmt.(type) {
		case *syntax.DefStmt:
			if src := extract(stmt); src != "" {
				ret[keyOf(stmt.Def)] = FunctionSource{
					Name:   stmt.Name.Name,
					Source: src,
				}
			}
		case *syntax.AssignStmt:
			ident, ok := stmt.LHS.(*syntax.Ident)
			if !ok || stmt.Op != syntax.EQ {
				continue
			}
			lambda, ok := stmt.RHS.(*syntax.LambdaExpr)
			if !ok {
				continue
			}
			if src := extract(stmt); src != "" {
				ret[keyOf(lambda.Lambda)] = FunctionSource{
					Name:   ident.Name,
					Source: src,
				}
			}
		}
	}
	return ret
}
