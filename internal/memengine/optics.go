package memengine

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/vk/madxbind/internal/native"
	"github.com/vk/madxbind/internal/rangeref"
)

// mat is a 2x2 transfer matrix of one transverse plane.
type mat [2][2]float64

var identity = mat{{1, 0}, {0, 1}}

func (a mat) mul(b mat) mat {
	return mat{
		{a[0][0]*b[0][0] + a[0][1]*b[1][0], a[0][0]*b[0][1] + a[0][1]*b[1][1]},
		{a[1][0]*b[0][0] + a[1][1]*b[1][0], a[1][0]*b[0][1] + a[1][1]*b[1][1]},
	}
}

// focusing returns the matrix of a body with focusing strength k over
// length l. k > 0 focuses.
func focusing(k, l float64) mat {
	switch {
	case l == 0:
		return identity
	case k > 0:
		s := math.Sqrt(k)
		c, sn := math.Cos(s*l), math.Sin(s*l)
		return mat{{c, sn / s}, {-s * sn, c}}
	case k < 0:
		s := math.Sqrt(-k)
		c, sn := math.Cosh(s*l), math.Sinh(s*l)
		return mat{{c, sn / s}, {s * sn, c}}
	default:
		return mat{{1, l}, {0, 1}}
	}
}

func arrayParam(cmd *native.Command, name string) []float64 {
	if p := findParam(cmd, name); p != nil && p.DoubleArray != nil {
		return p.DoubleArray.A
	}
	return nil
}

// bendAngle returns the bending angle of el, zero for non-bending elements.
func bendAngle(el *native.Element) float64 {
	switch gostr(el.BaseType.Name) {
	case "sbend", "rbend":
		return numberParam(el.Def, "angle")
	case "multipole":
		if knl := arrayParam(el.Def, "knl"); len(knl) > 0 {
			return knl[0]
		}
	}
	return 0
}

// transfer returns the horizontal and vertical matrices of el.
func transfer(el *native.Element) (mat, mat) {
	l := el.Length
	switch gostr(el.BaseType.Name) {
	case "quadrupole":
		k1 := numberParam(el.Def, "k1")
		return focusing(k1, l), focusing(-k1, l)
	case "sbend", "rbend":
		angle, k1 := numberParam(el.Def, "angle"), numberParam(el.Def, "k1")
		if l == 0 || angle == 0 {
			return focusing(k1, l), focusing(-k1, l)
		}
		h := angle / l
		return focusing(h*h+k1, l), focusing(-k1, l)
	case "multipole":
		if knl := arrayParam(el.Def, "knl"); len(knl) > 1 {
			return mat{{1, 0}, {-knl[1], 1}}, mat{{1, 0}, {knl[1], 1}}
		}
		return identity, identity
	default:
		return focusing(0, l), focusing(0, l)
	}
}

// twissParams are the optics functions of one plane at one point.
type twissParams struct {
	beta, alpha, mu float64
}

// periodic returns the periodic solution of the one-turn matrix m.
func periodic(m mat) (twissParams, bool) {
	cosmu := (m[0][0] + m[1][1]) / 2
	if math.Abs(cosmu) >= 1 {
		return twissParams{}, false
	}
	sinmu := math.Sqrt(1 - cosmu*cosmu)
	if m[0][1] < 0 {
		sinmu = -sinmu
	}
	return twissParams{beta: m[0][1] / sinmu, alpha: (m[0][0] - m[1][1]) / (2 * sinmu)}, true
}

// propagate transports tp through m.
func (tp twissParams) propagate(m mat) twissParams {
	c, s, cp, sp := m[0][0], m[0][1], m[1][0], m[1][1]
	gamma := (1 + tp.alpha*tp.alpha) / tp.beta
	dmu := math.Atan2(s, c*tp.beta-s*tp.alpha) / (2 * math.Pi)
	if dmu < 0 {
		dmu++
	}
	return twissParams{
		beta:  c*c*tp.beta - 2*c*s*tp.alpha + s*s*gamma,
		alpha: -c*cp*tp.beta + (c*sp+s*cp)*tp.alpha - s*sp*gamma,
		mu:    tp.mu + dmu,
	}
}

// target resolves the sequence named by a command, falling back to the
// current one, and checks that it has been expanded.
func (e *Engine) target(ctx context.Context, cmd *native.Command, what string) *native.Sequence {
	seq := e.current
	if name := stringParam(cmd, "sequence"); name != "" {
		seq = e.sequence(name)
		if seq == nil {
			e.warn(ctx, "%s: sequence %q does not exist", what, name)
			return nil
		}
	}
	if seq == nil {
		e.warn(ctx, "%s: no sequence selected, use one first", what)
		return nil
	}
	if len(seq.ExpandedNodes) == 0 {
		e.warn(ctx, "%s: sequence %q is not active, use it first", what, gostr(seq.Name))
		return nil
	}
	return seq
}

// rows resolves the range parameter of cmd to node index bounds.
func (e *Engine) rows(ctx context.Context, cmd *native.Command, nodes []*native.Node) (int, int) {
	raw := stringParam(cmd, "range")
	if raw == "" {
		return 0, len(nodes) - 1
	}
	r, err := rangeref.Parse(raw)
	if err != nil {
		e.warn(ctx, "invalid range %q: %v", raw, err)
		return 0, len(nodes) - 1
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = gostr(n.Name)
	}
	first, last, ok := r.Indices(names)
	if !ok {
		e.warn(ctx, "range %q does not match the sequence, using the full range", raw)
		return 0, len(nodes) - 1
	}
	return first, last
}

func (e *Engine) twiss(ctx context.Context, args []arg) {
	e.refresh(ctx)
	cmd := defaultCommand("twiss", commandDefs["twiss"])
	e.applyArgs(ctx, cmd, commandDefs["twiss"], args, false)
	e.storeCommand(cmd)

	seq := e.target(ctx, cmd, "twiss")
	if seq == nil {
		return
	}
	nodes := seq.ExpandedNodes

	mx, my := make([]mat, len(nodes)), make([]mat, len(nodes))
	turnX, turnY := identity, identity
	for i, n := range nodes {
		mx[i], my[i] = transfer(n.Element)
		turnX, turnY = mx[i].mul(turnX), my[i].mul(turnY)
	}

	var x, y twissParams
	if isSet(args, "betx") || isSet(args, "bety") {
		x = twissParams{beta: numberParam(cmd, "betx"), alpha: numberParam(cmd, "alfx"), mu: numberParam(cmd, "mux")}
		y = twissParams{beta: numberParam(cmd, "bety"), alpha: numberParam(cmd, "alfy"), mu: numberParam(cmd, "muy")}
		if x.beta <= 0 || y.beta <= 0 {
			e.warn(ctx, "twiss: initial betx and bety must both be positive")
			seq.TwissValid = false
			return
		}
	} else {
		var okX, okY bool
		x, okX = periodic(turnX)
		y, okY = periodic(turnY)
		if !okX || !okY {
			e.warn(ctx, "twiss: no periodic solution for sequence %q, lattice is unstable", gostr(seq.Name))
			seq.TwissValid = false
			return
		}
	}

	first, last := e.rows(ctx, cmd, nodes)
	n := last - first + 1
	names, keywords := make([]string, 0, n), make([]string, 0, n)
	s, l, angle, k1l := make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	var betx, alfx, mux, bety, alfy, muy []float64
	for i, node := range nodes {
		x, y = x.propagate(mx[i]), y.propagate(my[i])
		if !isFinite(x.beta) || !isFinite(y.beta) {
			e.warn(ctx, "twiss: optics diverge at %s", gostr(node.Name))
			seq.TwissValid = false
			return
		}
		if i < first || i > last {
			continue
		}
		el := node.Element
		names = append(names, gostr(node.Name))
		keywords = append(keywords, gostr(el.BaseType.Name))
		s = append(s, node.Position+node.Length/2)
		l = append(l, el.Length)
		angle = append(angle, bendAngle(el))
		k1l = append(k1l, strength(el))
		betx, alfx, mux = append(betx, x.beta), append(alfx, x.alpha), append(mux, x.mu)
		bety, alfy, muy = append(bety, y.beta), append(alfy, y.alpha), append(muy, y.mu)
	}

	b := newTableBuilder(stringParam(cmd, "table"), "twiss", n)
	b.strings("name", names)
	b.strings("keyword", keywords)
	b.floats("s", s)
	b.floats("l", l)
	b.floats("angle", angle)
	b.floats("k1l", k1l)
	b.floats("betx", betx)
	b.floats("alfx", alfx)
	b.floats("mux", mux)
	b.floats("bety", bety)
	b.floats("alfy", alfy)
	b.floats("muy", muy)
	b.keep(e.selects["twiss"])
	e.beamHeader(b, seq)
	b.headerNumber("Q1", x.mu)
	b.headerNumber("Q2", y.mu)

	t := b.build()
	e.storeTable(t)
	seq.TwissTable = t
	seq.TwissValid = true
	e.info(ctx, "Twiss computed.",
		slog.String("sequence", gostr(seq.Name)),
		slog.String("table", b.name),
		slog.Float64("q1", x.mu),
		slog.Float64("q2", y.mu),
	)
}

// strength returns the integrated quadrupole strength of el.
func strength(el *native.Element) float64 {
	switch gostr(el.BaseType.Name) {
	case "quadrupole", "sbend", "rbend":
		return numberParam(el.Def, "k1") * el.Length
	case "multipole":
		if knl := arrayParam(el.Def, "knl"); len(knl) > 1 {
			return knl[1]
		}
	}
	return 0
}

func (e *Engine) beamHeader(b *tableBuilder, seq *native.Sequence) {
	b.headerText("NAME", strings.ToUpper(b.name))
	b.headerText("TYPE", strings.ToUpper(b.typ))
	b.headerText("SEQUENCE", strings.ToUpper(gostr(seq.Name)))
	if seq.Beam != nil {
		b.headerText("PARTICLE", strings.ToUpper(stringParam(seq.Beam, "particle")))
		b.headerNumber("MASS", numberParam(seq.Beam, "mass"))
		b.headerNumber("CHARGE", numberParam(seq.Beam, "charge"))
		b.headerNumber("ENERGY", numberParam(seq.Beam, "energy"))
		b.headerNumber("PC", numberParam(seq.Beam, "pc"))
		b.headerNumber("GAMMA", numberParam(seq.Beam, "gamma"))
	}
	b.headerNumber("LENGTH", seq.Length)
}

func (e *Engine) survey(ctx context.Context, args []arg) {
	e.refresh(ctx)
	cmd := defaultCommand("survey", commandDefs["survey"])
	e.applyArgs(ctx, cmd, commandDefs["survey"], args, false)
	e.storeCommand(cmd)

	seq := e.target(ctx, cmd, "survey")
	if seq == nil {
		return
	}
	nodes := seq.ExpandedNodes
	first, last := e.rows(ctx, cmd, nodes)
	n := last - first + 1

	x, y, z := numberParam(cmd, "x0"), numberParam(cmd, "y0"), numberParam(cmd, "z0")
	theta := numberParam(cmd, "theta0")
	total := 0.0

	b := newTableBuilder(stringParam(cmd, "table"), "survey", n)
	var names, keywords []string
	var s, l, angles, xs, ys, zs, thetas []float64
	for i, node := range nodes {
		el := node.Element
		angle := bendAngle(el)
		chord := el.Length
		if angle != 0 && el.Length > 0 {
			chord = 2 * el.Length / angle * math.Sin(angle/2)
		}
		dir := theta + angle/2
		x += chord * math.Sin(dir)
		z += chord * math.Cos(dir)
		theta += angle
		total += angle
		if i < first || i > last {
			continue
		}
		names = append(names, gostr(node.Name))
		keywords = append(keywords, gostr(el.BaseType.Name))
		s = append(s, node.Position+node.Length/2)
		l = append(l, el.Length)
		angles = append(angles, angle)
		xs, ys, zs, thetas = append(xs, x), append(ys, y), append(zs, z), append(thetas, theta)
	}
	b.strings("name", names)
	b.strings("keyword", keywords)
	b.floats("s", s)
	b.floats("l", l)
	b.floats("angle", angles)
	b.floats("x", xs)
	b.floats("y", ys)
	b.floats("z", zs)
	b.floats("theta", thetas)
	b.keep(e.selects["survey"])
	e.beamHeader(b, seq)
	b.headerNumber("ANGLE", total)

	e.storeTable(b.build())
	e.info(ctx, "Survey computed.", slog.String("sequence", gostr(seq.Name)), slog.String("table", b.name))
}
