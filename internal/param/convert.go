package param

import (
	"github.com/zclconf/go-cty/cty"
)

// Native returns v as a plain Go value, dropping provenance: bool, int,
// float64, string (nil for a NULL string), []float64, []string, or a
// map[string]float64 with "min", "max" or "value" keys for constraints.
func Native(v Value) any {
	switch v := v.(type) {
	case Bool:
		return v.Value
	case Int:
		return v.Value
	case Float:
		return v.Value
	case String:
		if v.Null {
			return nil
		}
		return v.Value
	case FloatArray:
		return v.Floats()
	case StringArray:
		return v.Strings()
	case LowerBound:
		return map[string]float64{"min": v.Min.Value}
	case UpperBound:
		return map[string]float64{"max": v.Max.Value}
	case Bounds:
		return map[string]float64{"min": v.Min.Value, "max": v.Max.Value}
	case Exact:
		return map[string]float64{"value": v.Value.Value}
	default:
		return nil
	}
}

// ToCty converts v into a cty.Value for hosts that work with HCL-style
// dynamic values. Constraints become objects with the bounds they carry.
func ToCty(v Value) cty.Value {
	switch v := v.(type) {
	case Bool:
		return cty.BoolVal(v.Value)
	case Int:
		return cty.NumberIntVal(int64(v.Value))
	case Float:
		return cty.NumberFloatVal(v.Value)
	case String:
		if v.Null {
			return cty.NullVal(cty.String)
		}
		return cty.StringVal(v.Value)
	case FloatArray:
		if len(v) == 0 {
			return cty.ListValEmpty(cty.Number)
		}
		vals := make([]cty.Value, len(v))
		for i, f := range v {
			vals[i] = cty.NumberFloatVal(f.Value)
		}
		return cty.ListVal(vals)
	case StringArray:
		if len(v) == 0 {
			return cty.ListValEmpty(cty.String)
		}
		vals := make([]cty.Value, len(v))
		for i, s := range v {
			if s.Null {
				vals[i] = cty.NullVal(cty.String)
				continue
			}
			vals[i] = cty.StringVal(s.Value)
		}
		return cty.ListVal(vals)
	case LowerBound:
		return cty.ObjectVal(map[string]cty.Value{"min": cty.NumberFloatVal(v.Min.Value)})
	case UpperBound:
		return cty.ObjectVal(map[string]cty.Value{"max": cty.NumberFloatVal(v.Max.Value)})
	case Bounds:
		return cty.ObjectVal(map[string]cty.Value{
			"min": cty.NumberFloatVal(v.Min.Value),
			"max": cty.NumberFloatVal(v.Max.Value),
		})
	case Exact:
		return cty.ObjectVal(map[string]cty.Value{"value": cty.NumberFloatVal(v.Value.Value)})
	default:
		return cty.DynamicVal
	}
}

// CommandToCty converts a whole command into a cty object.
func CommandToCty(c *Command) cty.Value {
	if c == nil || c.Len() == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, c.Len())
	for _, name := range c.order {
		attrs[name] = ToCty(c.values[name])
	}
	return cty.ObjectVal(attrs)
}
