package param

import (
	"math"
	"strconv"

	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

// Decode interprets a tagged parameter record. Every tag the engine defines
// has an arm; anything else is an InvalidParameterTypeError carrying the raw
// tag.
func Decode(p *native.Parameter) (Value, error) {
	if p == nil {
		return nil, errdefs.InvalidState("nil parameter record")
	}

	switch p.Type {
	case native.ParamLogical:
		return Bool{valued(p.DoubleValue != 0, p.Expr)}, nil
	case native.ParamInteger:
		n, err := toInt(p)
		if err != nil {
			return nil, err
		}
		return Int{valued(n, p.Expr)}, nil
	case native.ParamDouble:
		return Float{valued(p.DoubleValue, p.Expr)}, nil
	case native.ParamString:
		return decodeString(p.String), nil
	case native.ParamIntArray, native.ParamDoubleArray:
		return decodeFloatArray(p), nil
	case native.ParamStringArray:
		return decodeStringArray(p.MString), nil
	case native.ParamConstraint:
		return decodeConstraint(p)
	default:
		return nil, &errdefs.InvalidParameterTypeError{Name: marshal.String(p.Name), Tag: p.Type}
	}
}

// intLimit is 2^(bits-1); valid ints lie in [-intLimit, intLimit).
var intLimit = math.Ldexp(1, strconv.IntSize-1)

// toInt truncates the stored double toward zero.
func toInt(p *native.Parameter) (int, error) {
	v := p.DoubleValue
	if math.IsNaN(v) || v < -intLimit || v >= intLimit {
		return 0, &errdefs.IntegerRangeError{Name: marshal.String(p.Name), Value: v}
	}
	return int(v), nil
}

func decodeString(c native.CString) String {
	s, ok := marshal.Decode(c)
	return String{Value: s, Null: !ok}
}

// decodeFloatArray attaches the i-th entry of the parallel expression list
// when there is one. A missing list, a short list or a nil entry all mean
// "no provenance" for that element.
func decodeFloatArray(p *native.Parameter) FloatArray {
	if p.DoubleArray == nil {
		return FloatArray{}
	}
	out := make(FloatArray, len(p.DoubleArray.A))
	for i, v := range p.DoubleArray.A {
		var expr *native.Expression
		if p.ExprList != nil && i < len(p.ExprList.List) {
			expr = p.ExprList.List[i]
		}
		out[i] = valued(v, expr)
	}
	return out
}

func decodeStringArray(a *native.CharPArray) StringArray {
	if a == nil {
		return StringArray{}
	}
	out := make(StringArray, len(a.P))
	for i, c := range a.P {
		out[i] = decodeString(c)
	}
	return out
}

func decodeConstraint(p *native.Parameter) (Constraint, error) {
	switch p.ConstraintKind {
	case native.ConstraintMin:
		return LowerBound{Min: valued(p.CMin, p.MinExpr)}, nil
	case native.ConstraintMax:
		return UpperBound{Max: valued(p.CMax, p.MaxExpr)}, nil
	case native.ConstraintBoth:
		return Bounds{Min: valued(p.CMin, p.MinExpr), Max: valued(p.CMax, p.MaxExpr)}, nil
	case native.ConstraintValue:
		return Exact{Value: valued(p.DoubleValue, p.Expr)}, nil
	default:
		return nil, &errdefs.InvalidParameterTypeError{
			Name:       marshal.String(p.Name),
			Tag:        p.ConstraintKind,
			Constraint: true,
		}
	}
}

// valued wraps v with the expression's text when the expression is present
// and non-empty.
func valued[T any](v T, e *native.Expression) Valued[T] {
	if e == nil {
		return Literal(v)
	}
	s, ok := marshal.Decode(e.String)
	if !ok || s == "" {
		return Literal(v)
	}
	return Derived(v, s)
}
