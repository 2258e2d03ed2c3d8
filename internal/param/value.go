// Package param turns the engine's tagged parameter records into a closed
// set of typed host values and assembles them into commands.
//
// Numeric values keep their symbolic provenance: when the engine computed a
// number from an expression, the expression text travels with the number in
// a Valued wrapper, so callers can tell a literal from a derived value
// without losing either.
package param

import "fmt"

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
	KindFloatArray
	KindStringArray
	KindConstraint
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindFloatArray:
		return "float_array"
	case KindStringArray:
		return "string_array"
	case KindConstraint:
		return "constraint"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one decoded parameter. The set of implementations is closed:
// Bool, Int, Float, String, FloatArray, StringArray and the Constraint
// variants.
type Value interface {
	Kind() Kind
	isValue()
}

// Valued pairs a value with the expression it was computed from, if any.
type Valued[T any] struct {
	Value T
	Expr  *string
}

// Literal wraps v without provenance.
func Literal[T any](v T) Valued[T] {
	return Valued[T]{Value: v}
}

// Derived wraps v together with the expression it came from.
func Derived[T any](v T, expr string) Valued[T] {
	return Valued[T]{Value: v, Expr: &expr}
}

// Expression returns the source expression, if the value has one.
func (v Valued[T]) Expression() (string, bool) {
	if v.Expr == nil {
		return "", false
	}
	return *v.Expr, true
}

// IsLiteral reports whether the value carries no expression.
func (v Valued[T]) IsLiteral() bool { return v.Expr == nil }

// Bool is a logical parameter.
type Bool struct{ Valued[bool] }

// Int is an integer parameter.
type Int struct{ Valued[int] }

// Float is a floating-point parameter.
type Float struct{ Valued[float64] }

// String is a string parameter. Null is set when the engine held a NULL
// string rather than an empty one.
type String struct {
	Value string
	Null  bool
}

// FloatArray is an array of numbers, each with optional provenance.
type FloatArray []Valued[float64]

// StringArray is an array of strings.
type StringArray []String

func (Bool) Kind() Kind        { return KindBool }
func (Int) Kind() Kind         { return KindInt }
func (Float) Kind() Kind       { return KindFloat }
func (String) Kind() Kind      { return KindString }
func (FloatArray) Kind() Kind  { return KindFloatArray }
func (StringArray) Kind() Kind { return KindStringArray }

func (Bool) isValue()        {}
func (Int) isValue()         {}
func (Float) isValue()       {}
func (String) isValue()      {}
func (FloatArray) isValue()  {}
func (StringArray) isValue() {}

// Floats returns the plain numbers of the array.
func (a FloatArray) Floats() []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v.Value
	}
	return out
}

// Strings returns the plain strings of the array; NULL entries become "".
func (a StringArray) Strings() []string {
	out := make([]string, len(a))
	for i, v := range a {
		out[i] = v.Value
	}
	return out
}

// Constraint is a bound or target rather than a plain number. It is one of
// LowerBound, UpperBound, Bounds or Exact.
type Constraint interface {
	Value
	isConstraint()
}

// LowerBound constrains a quantity from below.
type LowerBound struct{ Min Valued[float64] }

// UpperBound constrains a quantity from above.
type UpperBound struct{ Max Valued[float64] }

// Bounds constrains a quantity from both sides.
type Bounds struct{ Min, Max Valued[float64] }

// Exact pins a quantity to a target value.
type Exact struct{ Value Valued[float64] }

func (LowerBound) Kind() Kind { return KindConstraint }
func (UpperBound) Kind() Kind { return KindConstraint }
func (Bounds) Kind() Kind     { return KindConstraint }
func (Exact) Kind() Kind      { return KindConstraint }

func (LowerBound) isValue() {}
func (UpperBound) isValue() {}
func (Bounds) isValue()     {}
func (Exact) isValue()      {}

func (LowerBound) isConstraint() {}
func (UpperBound) isConstraint() {}
func (Bounds) isConstraint()     {}
func (Exact) isConstraint()      {}
