package memengine

import (
	"context"
	"strconv"
	"strings"

	"github.com/vk/madxbind/internal/madexpr"
	"github.com/vk/madxbind/internal/native"
)

func findParam(cmd *native.Command, name string) *native.Parameter {
	if cmd == nil {
		return nil
	}
	for _, p := range cmd.Params {
		if p != nil && gostr(p.Name) == name {
			return p
		}
	}
	return nil
}

// setParam replaces the parameter of the same name or appends p.
func setParam(cmd *native.Command, p *native.Parameter) {
	name := gostr(p.Name)
	for i, old := range cmd.Params {
		if old != nil && gostr(old.Name) == name {
			cmd.Params[i] = p
			return
		}
	}
	cmd.Params = append(cmd.Params, p)
}

func cloneCommand(c *native.Command, name string) *native.Command {
	out := &native.Command{Name: cstr(name)}
	if c == nil {
		return out
	}
	for _, p := range c.Params {
		out.Params = append(out.Params, cloneParam(p))
	}
	return out
}

func cloneParam(p *native.Parameter) *native.Parameter {
	if p == nil {
		return nil
	}
	c := *p
	if p.Expr != nil {
		ex := *p.Expr
		c.Expr = &ex
	}
	if p.DoubleArray != nil {
		c.DoubleArray = &native.DoubleArray{A: append([]float64(nil), p.DoubleArray.A...)}
	}
	if p.ExprList != nil {
		list := &native.ExprList{List: make([]*native.Expression, len(p.ExprList.List))}
		for i, ex := range p.ExprList.List {
			if ex != nil {
				cp := *ex
				list.List[i] = &cp
			}
		}
		c.ExprList = list
	}
	if p.MString != nil {
		c.MString = &native.CharPArray{P: append([]native.CString(nil), p.MString.P...)}
	}
	return &c
}

// stringParam reads a string parameter, "" when absent.
func stringParam(cmd *native.Command, name string) string {
	if p := findParam(cmd, name); p != nil && p.Type == native.ParamString {
		return gostr(p.String)
	}
	return ""
}

// numberParam reads a numeric or logical parameter, 0 when absent.
func numberParam(cmd *native.Command, name string) float64 {
	if p := findParam(cmd, name); p != nil {
		return p.DoubleValue
	}
	return 0
}

// isSet reports whether an argument named name was given explicitly.
func isSet(args []arg, name string) bool {
	for _, a := range args {
		if a.key == name {
			return true
		}
	}
	return false
}

// buildParam turns an argument into a parameter record of the type spec
// declares. ok is false when the value does not fit; a warning has been
// issued in that case.
func (e *Engine) buildParam(ctx context.Context, spec paramSpec, a arg) (*native.Parameter, bool) {
	p := &native.Parameter{Name: cstr(spec.name), Type: spec.tag}
	deferred := a.op == ":="

	switch spec.tag {
	case native.ParamLogical:
		switch {
		case a.op == "":
			if !a.neg {
				p.DoubleValue = 1
			}
		case a.value == "true":
			p.DoubleValue = 1
		case a.value == "false":
		default:
			v, _, ok := e.eval(ctx, a.value, false)
			if !ok {
				return nil, false
			}
			if v != 0 {
				p.DoubleValue = 1
			}
		}

	case native.ParamInteger, native.ParamDouble:
		if a.op == "" {
			e.warn(ctx, "parameter %q needs a value", spec.name)
			return nil, false
		}
		v, x, ok := e.eval(ctx, a.value, deferred)
		if !ok {
			return nil, false
		}
		if spec.tag == native.ParamInteger {
			v = float64(int(v))
		}
		p.DoubleValue = v
		if deferred && !x.Constant() {
			p.Expr = &native.Expression{String: cstr(a.value), Value: v}
		}

	case native.ParamString:
		s, _ := unquote(a.value)
		p.String = cstr(s)

	case native.ParamDoubleArray, native.ParamIntArray:
		items := braced(a.value)
		p.DoubleArray = &native.DoubleArray{A: make([]float64, len(items))}
		var exprs []*native.Expression
		for i, item := range items {
			v, x, ok := e.eval(ctx, item, deferred)
			if !ok {
				return nil, false
			}
			p.DoubleArray.A[i] = v
			if deferred && !x.Constant() {
				if exprs == nil {
					exprs = make([]*native.Expression, len(items))
				}
				exprs[i] = &native.Expression{String: cstr(item), Value: v}
			}
		}
		if exprs != nil {
			p.ExprList = &native.ExprList{List: exprs}
		}

	case native.ParamStringArray:
		items := braced(a.value)
		p.MString = &native.CharPArray{P: make([]native.CString, len(items))}
		for i, item := range items {
			s, _ := unquote(item)
			p.MString.P[i] = cstr(s)
		}
	}
	return p, true
}

// inferSpec guesses the type of an argument of an unknown command.
func (e *Engine) inferSpec(a arg) paramSpec {
	switch {
	case a.op == "":
		return logical(a.key, false)
	case strings.HasPrefix(a.value, "\"") || strings.HasPrefix(a.value, "'"):
		return str(a.key, "")
	case strings.HasPrefix(a.value, "{"):
		for _, item := range braced(a.value) {
			if !e.numeric(item) {
				return strArray(a.key)
			}
		}
		return dblArray(a.key)
	case a.value == "true" || a.value == "false":
		return logical(a.key, false)
	case e.numeric(a.value):
		if _, err := strconv.Atoi(a.value); err == nil {
			return integer(a.key, 0)
		}
		return dbl(a.key, 0)
	default:
		return str(a.key, "")
	}
}

// numeric reports whether s is an expression over defined names only.
func (e *Engine) numeric(s string) bool {
	x, err := madexpr.Parse(s)
	if err != nil {
		return false
	}
	_, undefined, err := x.Eval(e.resolver())
	return err == nil && len(undefined) == 0
}

// applyArgs builds a command from a template and arguments. String-array
// parameters absorb following bare words, so `column=name,s,betx` works
// without braces. Unknown keys are inferred when infer is set and ignored
// with a warning otherwise.
func (e *Engine) applyArgs(ctx context.Context, cmd *native.Command, specs []paramSpec, args []arg, infer bool) {
	var list *native.Parameter
	for _, a := range args {
		if list != nil && a.op == "" && !a.neg {
			s, _ := unquote(a.key)
			list.MString.P = append(list.MString.P, cstr(s))
			continue
		}
		list = nil

		spec, ok := findSpec(specs, a.key)
		if !ok {
			if !infer {
				e.warn(ctx, "unknown parameter %q of %s ignored", a.key, gostr(cmd.Name))
				continue
			}
			spec = e.inferSpec(a)
		}
		p, ok := e.buildParam(ctx, spec, a)
		if !ok {
			continue
		}
		setParam(cmd, p)
		if spec.tag == native.ParamStringArray {
			list = p
		}
	}
}
