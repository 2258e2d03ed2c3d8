// Package cmdtext renders host values into statements of the engine's
// command language, e.g.
//
//	twiss, chrom=true, sequence="lhcb1", table="twiss";
package cmdtext

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Expr is an expression written verbatim and evaluated once: `key=expr`.
type Expr string

// Deferred is an expression the engine re-evaluates whenever it is used:
// `key:=expr`.
type Deferred string

// Format renders a statement calling name with args. Keys are emitted in
// sorted order; nil values are skipped. Values may be Expr, Deferred,
// cty.Value or any Go value gocty can infer a type for.
func Format(name string, args map[string]any) (string, error) {
	keys := make([]string, 0, len(args))
	for k, v := range args {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteString(", ")
		sb.WriteString(k)

		switch v := args[k].(type) {
		case Deferred:
			sb.WriteString(":=")
			sb.WriteString(string(v))
			continue
		case Expr:
			sb.WriteString("=")
			sb.WriteString(string(v))
			continue
		}

		val, err := toCty(args[k])
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", k, err)
		}
		text, err := Value(val)
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", k, err)
		}
		sb.WriteString("=")
		sb.WriteString(text)
	}
	sb.WriteString(";")
	return sb.String(), nil
}

// Assign renders `name = value;` or, for Deferred values, `name := value;`.
func Assign(name string, value any) (string, error) {
	switch v := value.(type) {
	case Deferred:
		return name + " := " + string(v) + ";", nil
	case Expr:
		return name + " = " + string(v) + ";", nil
	}
	val, err := toCty(value)
	if err != nil {
		return "", fmt.Errorf("variable %q: %w", name, err)
	}
	text, err := Value(val)
	if err != nil {
		return "", fmt.Errorf("variable %q: %w", name, err)
	}
	return name + " = " + text + ";", nil
}

func toCty(v any) (cty.Value, error) {
	if cv, ok := v.(cty.Value); ok {
		return cv, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return gocty.ToCtyValue(v, ty)
}

// Value renders a single cty value: numbers in shortest form, quoted
// strings, true/false, and `{a, b}` for sequences.
func Value(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("cannot render a null or unknown value")
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return strconv.FormatBool(v.True()), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case ty == cty.String:
		return strconv.Quote(v.AsString()), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		parts := make([]string, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			s, err := Value(ev)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
