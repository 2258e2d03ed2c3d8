package madexpr

import (
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Constants are predefined and cannot be shadowed by variables.
var Constants = map[string]float64{
	"pi":     math.Pi,
	"twopi":  2 * math.Pi,
	"degrad": 180 / math.Pi,
	"raddeg": math.Pi / 180,
	"e":      math.E,
	"clight": 299792458,
	"qelect": 1.602176634e-19,
	"emass":  0.51099895000e-3,
	"pmass":  0.93827208816,
	"nmass":  0.93956542052,
	"mumass": 0.1056583755,
	"hbar":   6.582119569e-25,
	"erad":   2.8179403262e-15,
	"prad":   1.53469825e-18,
}

var functions = map[string]function.Function{
	"sqrt":  unary(math.Sqrt),
	"exp":   unary(math.Exp),
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"asin":  unary(math.Asin),
	"acos":  unary(math.Acos),
	"atan":  unary(math.Atan),
	"sinh":  unary(math.Sinh),
	"cosh":  unary(math.Cosh),
	"tanh":  unary(math.Tanh),
	"round": unary(math.Round),
	"abs":   stdlib.AbsoluteFunc,
	"floor": stdlib.FloorFunc,
	"ceil":  stdlib.CeilFunc,
	"min":   stdlib.MinFunc,
	"max":   stdlib.MaxFunc,
	"pow":   stdlib.PowFunc,
	"sign":  stdlib.SignumFunc,
}

// Functions returns the names of the supported functions.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for n := range functions {
		names = append(names, n)
	}
	return sortStrings(names)
}

func unary(f func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "x", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			x, _ := args[0].AsBigFloat().Float64()
			y := f(x)
			if math.IsNaN(y) {
				return cty.UnknownVal(cty.Number), fmt.Errorf("argument %g is out of range", x)
			}
			return cty.NumberFloatVal(y), nil
		},
	})
}
