package madexpr

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Resolver looks up the current value of a variable or element attribute.
type Resolver interface {
	Lookup(name string) (float64, bool)
}

// MapResolver resolves names from a plain map.
type MapResolver map[string]float64

func (m MapResolver) Lookup(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// Expr is a parsed expression.
type Expr struct {
	Source string
	expr   hclsyntax.Expression
	names  []string
}

// Parse parses src.
func Parse(src string) (*Expr, error) {
	mangled, names, err := mangle(src)
	if err != nil {
		return nil, err
	}
	e, diags := hclsyntax.ParseExpression([]byte(mangled), "expr", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %q: %w", src, diags)
	}
	return &Expr{Source: src, expr: e, names: names}, nil
}

// References returns the sorted names the expression reads, constants
// excluded.
func (e *Expr) References() []string {
	seen := make(map[string]struct{})
	for _, tr := range e.expr.Variables() {
		name := e.name(tr.RootName())
		if _, isConst := Constants[name]; isConst {
			continue
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return sortStrings(out)
}

// Calls returns the sorted names of the functions the expression calls.
func (e *Expr) Calls() []string {
	calls := make(map[string]struct{})
	walkForFunctions(e.expr, calls)
	out := make([]string, 0, len(calls))
	for n := range calls {
		out = append(out, n)
	}
	return sortStrings(out)
}

// Constant reports whether the expression reads no variables.
func (e *Expr) Constant() bool { return len(e.References()) == 0 }

// Eval evaluates the expression. Names r cannot resolve evaluate to zero
// and are returned in undefined, sorted.
func (e *Expr) Eval(r Resolver) (value float64, undefined []string, err error) {
	vars := make(map[string]cty.Value, len(e.names))
	for i, name := range e.names {
		v, ok := Constants[name]
		if !ok && r != nil {
			v, ok = r.Lookup(name)
		}
		if !ok {
			undefined = append(undefined, name)
		}
		vars["v"+strconv.Itoa(i)] = cty.NumberFloatVal(v)
	}

	ctx := &hcl.EvalContext{
		Variables: vars,
		Functions: functions,
	}
	out, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		return 0, nil, fmt.Errorf("evaluate %q: %w", e.Source, diags)
	}
	if out.IsNull() || !out.IsKnown() || !out.Type().Equals(cty.Number) {
		return 0, nil, fmt.Errorf("evaluate %q: result is not a number", e.Source)
	}
	value, _ = out.AsBigFloat().Float64()
	if math.IsInf(value, 0) {
		return 0, nil, fmt.Errorf("evaluate %q: result is infinite", e.Source)
	}
	return value, sortStrings(undefined), nil
}

// Eval parses and evaluates src in one step.
func Eval(src string, r Resolver) (float64, []string, error) {
	e, err := Parse(src)
	if err != nil {
		return 0, nil, err
	}
	return e.Eval(r)
}

func (e *Expr) name(placeholder string) string {
	if len(placeholder) > 1 {
		if i, err := strconv.Atoi(placeholder[1:]); err == nil && i < len(e.names) {
			return e.names[i]
		}
	}
	return placeholder
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(expr hclsyntax.Expression, calls map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		calls[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, calls)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, calls)
		walkForFunctions(e.RHS, calls)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, calls)
		walkForFunctions(e.TrueResult, calls)
		walkForFunctions(e.FalseResult, calls)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, calls)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, calls)
	}
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
