package memengine

import (
	"math"

	"github.com/vk/madxbind/internal/native"
)

// paramSpec declares one parameter of a command or element class.
type paramSpec struct {
	name string
	tag  int
	num  float64
	str  string
}

func dbl(name string, def float64) paramSpec {
	return paramSpec{name: name, tag: native.ParamDouble, num: def}
}
func integer(name string, def int) paramSpec {
	return paramSpec{name: name, tag: native.ParamInteger, num: float64(def)}
}
func logical(name string, def bool) paramSpec {
	p := paramSpec{name: name, tag: native.ParamLogical}
	if def {
		p.num = 1
	}
	return p
}
func str(name, def string) paramSpec { return paramSpec{name: name, tag: native.ParamString, str: def} }
func dblArray(name string) paramSpec { return paramSpec{name: name, tag: native.ParamDoubleArray} }
func strArray(name string) paramSpec { return paramSpec{name: name, tag: native.ParamStringArray} }

// common parameters of every element class.
var elementCommon = []paramSpec{
	dbl("l", 0),
	str("apertype", "circle"),
	dblArray("aperture"),
	integer("slot_id", 0),
}

// elementClasses lists the base classes and their own parameters.
var elementClasses = map[string][]paramSpec{
	"drift":       nil,
	"marker":      nil,
	"monitor":     nil,
	"instrument":  nil,
	"placeholder": nil,
	"collimator":  nil,
	"quadrupole":  {dbl("k1", 0), dbl("k1s", 0), dbl("tilt", 0), logical("thick", false)},
	"sextupole":   {dbl("k2", 0), dbl("k2s", 0), dbl("tilt", 0)},
	"octupole":    {dbl("k3", 0), dbl("k3s", 0), dbl("tilt", 0)},
	"sbend":       bendParams,
	"rbend":       bendParams,
	"multipole":   {dblArray("knl"), dblArray("ksl"), dbl("lrad", 0), dbl("tilt", 0)},
	"rfcavity":    {dbl("volt", 0), dbl("lag", 0), dbl("freq", 0), integer("harmon", 0)},
	"kicker":      {dbl("hkick", 0), dbl("vkick", 0), dbl("tilt", 0)},
	"hkicker":     {dbl("kick", 0), dbl("tilt", 0)},
	"vkicker":     {dbl("kick", 0), dbl("tilt", 0)},
	"solenoid":    {dbl("ks", 0), dbl("ksi", 0)},
}

var bendParams = []paramSpec{
	dbl("angle", 0), dbl("k0", 0), dbl("k1", 0), dbl("e1", 0), dbl("e2", 0),
	dbl("tilt", 0), dbl("fint", 0), dbl("hgap", 0),
}

// placementKeys are consumed by the sequence builder and never stored on
// the element.
var placementKeys = map[string]bool{"at": true, "from": true}

// commandDefs lists the commands the engine knows and their parameters.
// Commands not listed here are accepted and stored with inferred types.
var commandDefs = map[string][]paramSpec{
	"beam": {
		str("particle", "positron"), dbl("mass", emass), dbl("charge", 1),
		dbl("energy", 1), dbl("pc", 0), dbl("gamma", 0), dbl("beta", 0), dbl("brho", 0),
		dbl("ex", 1), dbl("ey", 1), dbl("npart", 0), integer("bv", 1),
		str("sequence", ""), logical("radiate", false),
	},
	"twiss": {
		str("sequence", ""), str("table", "twiss"), str("range", "#s/#e"),
		dbl("betx", 0), dbl("alfx", 0), dbl("mux", 0),
		dbl("bety", 0), dbl("alfy", 0), dbl("muy", 0),
		dbl("deltap", 0), logical("chrom", false), str("file", ""),
	},
	"survey": {
		str("sequence", ""), str("table", "survey"), str("range", "#s/#e"),
		dbl("x0", 0), dbl("y0", 0), dbl("z0", 0), dbl("theta0", 0), str("file", ""),
	},
	"use":         {str("sequence", ""), str("period", ""), str("range", "")},
	"select":      {str("flag", ""), strArray("column"), str("pattern", ""), str("class", ""), str("range", ""), logical("clear", false), logical("full", false)},
	"call":        {str("file", "")},
	"option":      {logical("echo", true), logical("warn", true), logical("info", true), logical("debug", false), logical("verbose", false)},
	"sequence":    {dbl("l", 0), str("refer", "centre"), str("refpos", "")},
	"constraint":  {str("sequence", ""), str("range", "#e")},
	"print":       {str("text", "")},
	"delete":      {str("table", ""), str("sequence", "")},
	"set":         {str("format", "")},
	"value":       nil,
	"show":        nil,
	"endsequence": nil,
}

// Physical constants used by beam, in GeV and SI units.
const (
	emass  = 0.51099895000e-3
	pmass  = 0.93827208816
	mumass = 0.1056583755
	clight = 299792458.0
)

// particles maps particle names to mass [GeV] and charge [e].
var particles = map[string][2]float64{
	"positron":   {emass, 1},
	"electron":   {emass, -1},
	"proton":     {pmass, 1},
	"antiproton": {pmass, -1},
	"posmuon":    {mumass, 1},
	"negmuon":    {mumass, -1},
}

func findSpec(specs []paramSpec, name string) (paramSpec, bool) {
	for _, s := range specs {
		if s.name == name {
			return s, true
		}
	}
	return paramSpec{}, false
}

// classSpecs returns the full parameter list of a base class.
func classSpecs(class string) []paramSpec {
	own, ok := elementClasses[class]
	if !ok {
		return nil
	}
	out := make([]paramSpec, 0, len(elementCommon)+len(own))
	out = append(out, elementCommon...)
	return append(out, own...)
}

// defaultParam builds the record of a parameter at its default value.
func defaultParam(s paramSpec) *native.Parameter {
	p := &native.Parameter{Name: cstr(s.name), Type: s.tag, DoubleValue: s.num}
	switch s.tag {
	case native.ParamString:
		p.String = cstr(s.str)
	case native.ParamDoubleArray, native.ParamIntArray:
		p.DoubleArray = &native.DoubleArray{}
	case native.ParamStringArray:
		p.MString = &native.CharPArray{}
	}
	return p
}

func defaultCommand(name string, specs []paramSpec) *native.Command {
	cmd := &native.Command{Name: cstr(name)}
	for _, s := range specs {
		cmd.Params = append(cmd.Params, defaultParam(s))
	}
	return cmd
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
