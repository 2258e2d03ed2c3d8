package memengine

import (
	"context"
	"strings"

	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/madexpr"
	"github.com/vk/madxbind/internal/native"
)

// maxEvalDepth bounds chains of deferred expressions; deeper chains are
// treated as cycles.
const maxEvalDepth = 64

type resolver struct {
	e     *Engine
	depth int
}

func (e *Engine) resolver() *resolver { return &resolver{e: e} }

// Lookup resolves a variable or an `element->attribute` reference.
// Deferred expressions are evaluated on the fly.
func (r *resolver) Lookup(name string) (float64, bool) {
	if r.depth > maxEvalDepth {
		return 0, false
	}
	if elName, attr, ok := strings.Cut(name, "->"); ok {
		return r.attribute(elName, attr)
	}
	v, ok := r.e.vars[name]
	if !ok {
		return 0, false
	}
	if v.expr == nil {
		return v.value, true
	}
	return r.eval(v.expr), true
}

func (r *resolver) attribute(elName, attr string) (float64, bool) {
	el := r.e.element(elName)
	if el == nil {
		return 0, false
	}
	p := findParam(el.Def, attr)
	if p == nil {
		if attr == "l" {
			return el.Length, true
		}
		return 0, false
	}
	switch p.Type {
	case native.ParamLogical, native.ParamInteger, native.ParamDouble:
		if p.Expr != nil {
			if x, err := madexpr.Parse(gostr(p.Expr.String)); err == nil {
				return r.eval(x), true
			}
		}
		return p.DoubleValue, true
	}
	return 0, false
}

func (r *resolver) eval(x *madexpr.Expr) float64 {
	child := &resolver{e: r.e, depth: r.depth + 1}
	v, _, err := x.Eval(child)
	if err != nil {
		return 0
	}
	return v
}

// eval evaluates src against the current variables. Undefined names read
// as zero; unless deferred is set they are also reported as a warning.
func (e *Engine) eval(ctx context.Context, src string, deferred bool) (float64, *madexpr.Expr, bool) {
	x, err := madexpr.Parse(src)
	if err != nil {
		e.warn(ctx, "invalid expression %q: %v", src, err)
		return 0, nil, false
	}
	v, undefined, err := x.Eval(e.resolver())
	if err != nil {
		e.warn(ctx, "cannot evaluate %q: %v", src, err)
		return 0, x, false
	}
	if len(undefined) > 0 && !deferred {
		e.warn(ctx, "undefined variables in %q set to zero: %s", src, strings.Join(undefined, ", "))
	}
	return v, x, true
}

// assign handles `name = expr` and `name := expr`.
func (e *Engine) assign(ctx context.Context, st statement) {
	if elName, attr, ok := strings.Cut(st.target, "->"); ok {
		el := e.elements[elName]
		if el == nil {
			e.warn(ctx, "element %q does not exist, assignment to %s ignored", elName, attr)
			return
		}
		e.setElementParams(ctx, el, []arg{{key: attr, op: opFor(st.deferred), value: st.expr}})
		return
	}

	if _, isConst := madexpr.Constants[st.target]; isConst {
		e.warn(ctx, "cannot redefine constant %q", st.target)
		return
	}

	v, x, ok := e.eval(ctx, st.expr, st.deferred)
	if !ok {
		return
	}
	if !st.deferred || x.Constant() {
		e.vars[st.target] = &variable{value: v}
		return
	}
	if refersTo(e, x, st.target, 0) {
		e.warn(ctx, "deferred expression for %q refers to itself, ignored", st.target)
		return
	}
	e.vars[st.target] = &variable{value: v, expr: x}
}

func opFor(deferred bool) string {
	if deferred {
		return ":="
	}
	return "="
}

// refersTo reports whether x reads target directly or through other
// deferred variables.
func refersTo(e *Engine, x *madexpr.Expr, target string, depth int) bool {
	if depth > maxEvalDepth {
		return true
	}
	for _, ref := range x.References() {
		if ref == target {
			return true
		}
		if v, ok := e.vars[ref]; ok && v.expr != nil && refersTo(e, v.expr, target, depth+1) {
			return true
		}
	}
	return false
}

// refresh re-evaluates every deferred expression stored on element
// parameters and updates the cached values and element lengths.
func (e *Engine) refresh(ctx context.Context) {
	r := e.resolver()
	for _, v := range e.vars {
		if v.expr != nil {
			v.value = r.eval(v.expr)
		}
	}
	for _, el := range e.elements {
		if el.Def == nil {
			continue
		}
		for _, p := range el.Def.Params {
			refreshParam(r, p)
		}
		if l := findParam(el.Def, "l"); l != nil {
			el.Length = l.DoubleValue
		}
	}
	ctxlog.FromContext(ctx).Debug("Deferred expressions refreshed.", "variables", len(e.vars), "elements", len(e.elements))
}

func refreshParam(r *resolver, p *native.Parameter) {
	if p.Expr != nil {
		if x, err := madexpr.Parse(gostr(p.Expr.String)); err == nil {
			v := r.eval(x)
			if p.Type == native.ParamInteger {
				v = float64(int(v))
			}
			p.Expr.Value, p.DoubleValue = v, v
		}
	}
	if p.ExprList != nil && p.DoubleArray != nil {
		for i, ex := range p.ExprList.List {
			if ex == nil || i >= len(p.DoubleArray.A) {
				continue
			}
			if x, err := madexpr.Parse(gostr(ex.String)); err == nil {
				v := r.eval(x)
				ex.Value, p.DoubleArray.A[i] = v, v
			}
		}
	}
}
