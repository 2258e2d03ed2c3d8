package memengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/native"
	"github.com/vk/madxbind/internal/registry"
	"github.com/vk/madxbind/internal/table"
	"github.com/vk/madxbind/internal/testutil"
)

const fodo = `
kf = 0.3;
qf: quadrupole, l=1, k1:=kf;
qd: quadrupole, l=1, k1:=-kf;
fodo: sequence, l=10;
  qf, at=0.5;
  qd, at=5.5;
endsequence;
beam, particle=proton, energy=2;
use, sequence=fodo;
`

func start(t *testing.T) (*Engine, context.Context) {
	t.Helper()
	logger, _ := testutil.NewLogger(t)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	e := New()
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Finish(ctx) })
	return e, ctx
}

func input(t *testing.T, e *Engine, ctx context.Context, src string) {
	t.Helper()
	require.NoError(t, e.Input(ctx, cstr(src)))
}

func nodeNames(nodes []*native.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = gostr(n.Name)
	}
	return out
}

func TestEngine_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := New()

	err := e.Input(ctx, cstr("a = 1;"))
	assert.ErrorIs(t, err, errdefs.ErrInvalidState)
	_, err = e.Evaluate(ctx, cstr("1"))
	assert.ErrorIs(t, err, errdefs.ErrInvalidState)

	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), errdefs.ErrInvalidState)

	// Base classes and command templates are defined from the start.
	assert.True(t, registry.Exists(e.Commands().Names, "quadrupole"))
	assert.True(t, registry.Exists(e.Commands().Names, "twiss"))
	assert.Nil(t, e.CurrentSequence())

	require.NoError(t, e.Finish(ctx))
	assert.ErrorIs(t, e.Finish(ctx), errdefs.ErrInvalidState)

	// A restarted engine starts from scratch.
	require.NoError(t, e.Start(ctx))
	_, ok := e.Variable("a")
	assert.False(t, ok)
}

func TestEngine_Variables(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		a = 1;
		b := 2*a;
		c = 2*a;
		a = 3;
	`)

	b, ok := e.Variable("b")
	require.True(t, ok)
	assert.Equal(t, 6.0, b, "deferred variables follow their inputs")
	c, _ := e.Variable("c")
	assert.Equal(t, 2.0, c, "immediate variables keep the value at assignment")

	v, err := e.Evaluate(ctx, cstr("b + sqrt(16)"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	v, err = e.Evaluate(ctx, cstr("nothing + 1"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "undefined names read as zero")

	_, err = e.Evaluate(ctx, cstr("1 +"))
	assert.Error(t, err)
}

func TestEngine_VariableWarnings(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		x = y + 1;
		pi = 3;
		z := z + 1;
	`)

	warnings := strings.Join(e.Warnings(), "\n")
	assert.Contains(t, warnings, "undefined variables")
	assert.Contains(t, warnings, `cannot redefine constant "pi"`)
	assert.Contains(t, warnings, "refers to itself")

	x, _ := e.Variable("x")
	assert.Equal(t, 1.0, x)
	_, ok := e.Variable("z")
	assert.False(t, ok)
}

func TestEngine_ElementDefinition(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		qf: quadrupole, l=1, k1:=kf;
		kf = 0.5;
		qf2: qf, tilt=0.1;
	`)

	qf := e.elements["qf"]
	require.NotNil(t, qf)
	assert.Equal(t, 1.0, qf.Length)
	assert.Equal(t, "quadrupole", gostr(qf.BaseType.Name))

	k1 := findParam(qf.Def, "k1")
	require.NotNil(t, k1)
	assert.Equal(t, 0.5, k1.DoubleValue, "deferred parameters are refreshed after the input")
	require.NotNil(t, k1.Expr)
	assert.Equal(t, "kf", gostr(k1.Expr.String))

	// Defaults are present for every class parameter.
	assert.Equal(t, "circle", stringParam(qf.Def, "apertype"))

	qf2 := e.elements["qf2"]
	require.NotNil(t, qf2)
	assert.Same(t, qf, qf2.Parent)
	assert.Same(t, qf.BaseType, qf2.BaseType)
	assert.Equal(t, 0.1, numberParam(qf2.Def, "tilt"))
	assert.Equal(t, 0.5, numberParam(qf2.Def, "k1"))

	input(t, e, ctx, "kf = 0.7; qf, l=2;")
	assert.Equal(t, 0.7, numberParam(qf.Def, "k1"))
	assert.Equal(t, 2.0, qf.Length)

	v, err := e.Evaluate(ctx, cstr("qf->k1 * 10"))
	require.NoError(t, err)
	assert.InDelta(t, 7.0, v, 1e-12)

	input(t, e, ctx, "qf->k1 = 0.2; bad: nonsense, l=1; quadrupole: drift;")
	assert.Equal(t, 0.2, numberParam(qf.Def, "k1"))
	warnings := strings.Join(e.Warnings(), "\n")
	assert.Contains(t, warnings, `unknown element class "nonsense"`)
	assert.Contains(t, warnings, `cannot redefine base class "quadrupole"`)
}

func TestEngine_SequenceAndUse(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, fodo)

	seq, err := registry.Sequence(e.Sequences(), "fodo")
	require.NoError(t, err)
	assert.Same(t, seq, e.CurrentSequence())
	assert.Equal(t, 10.0, seq.Length)
	assert.Equal(t, []string{"qf:1", "qd:1"}, nodeNames(seq.Nodes))
	assert.Equal(t, []string{"qf:1", "drift_0:1", "qd:1", "drift_0:2"}, nodeNames(seq.ExpandedNodes))

	positions := make([]float64, len(seq.ExpandedNodes))
	for i, n := range seq.ExpandedNodes {
		positions[i] = n.Position
	}
	assert.Equal(t, []float64{0.5, 3, 5.5, 8}, positions)
	assert.Same(t, seq.ExpandedNodes[1].Element, seq.ExpandedNodes[3].Element, "drifts of equal length are shared")

	require.NotNil(t, seq.Beam)
	assert.Equal(t, "proton", stringParam(seq.Beam, "particle"))
	assert.InDelta(t, 2/pmass, numberParam(seq.Beam, "gamma"), 1e-12)
}

func TestEngine_UserElementNamedLikeImplicitDrift(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, fodo)

	seq, err := registry.Sequence(e.Sequences(), "fodo")
	require.NoError(t, err)
	implicit := seq.ExpandedNodes[1].Element
	length := implicit.Length
	assert.Nil(t, e.elements["drift_0"], "implicit drifts are not user elements")

	input(t, e, ctx, "drift_0: drift, l=0.25; use, sequence=fodo;")

	user := e.elements["drift_0"]
	require.NotNil(t, user)
	assert.NotSame(t, implicit, user)
	assert.Equal(t, 0.25, user.Length)
	assert.Equal(t, length, implicit.Length)
	assert.Equal(t, length, numberParam(implicit.Def, "l"))
	assert.Same(t, implicit, seq.ExpandedNodes[1].Element)
	assert.Equal(t, []string{"qf:1", "drift_0:1", "qd:1", "drift_0:2"}, nodeNames(seq.ExpandedNodes))
}

func TestEngine_SequenceReferAndFrom(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		m: marker;
		d: drift, l=2;
		s: sequence, l=6, refer=entry;
		  d, at=0;
		  m, at=1, from=d;
		  inline: monitor, at=4;
		endsequence;
		use, period=s;
	`)

	seq, err := registry.Sequence(e.Sequences(), "s")
	require.NoError(t, err)
	require.Len(t, seq.Nodes, 3)
	assert.Equal(t, 1.0, seq.Nodes[0].Position, "entry reference shifts to the centre")
	assert.Equal(t, 2.0, seq.Nodes[1].Position)
	assert.Equal(t, 4.0, seq.Nodes[2].Position)
	require.NotNil(t, e.elements["inline"])
	assert.Equal(t, "monitor", gostr(e.elements["inline"].BaseType.Name))

	// d [0,2], m at 2, gap to inline at 4, tail to 6.
	assert.Equal(t, []string{"d:1", "m:1", "drift_0:1", "inline:1", "drift_0:2"}, nodeNames(seq.ExpandedNodes))
}

func TestEngine_NestedSequence(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, fodo+`
		ring: sequence, l=20;
		  fodo, at=5;
		  fodo, at=15;
		endsequence;
		use, ring;
	`)

	ring, err := registry.Sequence(e.Sequences(), "ring")
	require.NoError(t, err)
	require.Len(t, ring.Nodes, 2)
	assert.NotNil(t, ring.Nodes[0].Sequence)
	assert.Nil(t, ring.Nodes[0].Element)
	assert.Equal(t, []string{"qf:1", "drift_0:1", "qd:1", "drift_0:2", "qf:2", "drift_0:3", "qd:2", "drift_0:4"},
		nodeNames(ring.ExpandedNodes))
	assert.Same(t, ring, e.CurrentSequence())
	require.NotNil(t, ring.Beam, "the default beam attaches to used sequences")
}

func TestEngine_UseWarnings(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		use, sequence=missing;
		use;
		endsequence;
		twiss;
	`)

	warnings := strings.Join(e.Warnings(), "\n")
	assert.Contains(t, warnings, `sequence "missing" does not exist`)
	assert.Contains(t, warnings, "use: no sequence given")
	assert.Contains(t, warnings, "endsequence without an open sequence")
	assert.Contains(t, warnings, "no sequence selected")
	assert.Nil(t, e.CurrentSequence())
}

func TestEngine_Constraint(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		target = 10;
		constraint, sequence=fodo, betx=target, mux<0.25, mux>0.1, bety>1;
	`)

	cmd, err := registry.Command(e.Commands(), "constraint")
	require.NoError(t, err)
	assert.Equal(t, "fodo", stringParam(cmd, "sequence"))
	assert.Equal(t, "#e", stringParam(cmd, "range"))

	betx := findParam(cmd, "betx")
	require.NotNil(t, betx)
	assert.Equal(t, native.ParamConstraint, betx.Type)
	assert.Equal(t, native.ConstraintValue, betx.ConstraintKind)
	assert.Equal(t, 10.0, betx.DoubleValue)
	require.NotNil(t, betx.Expr)
	assert.Equal(t, "target", gostr(betx.Expr.String))

	mux := findParam(cmd, "mux")
	require.NotNil(t, mux)
	assert.Equal(t, native.ConstraintBoth, mux.ConstraintKind)
	assert.Equal(t, 0.1, mux.CMin)
	assert.Equal(t, 0.25, mux.CMax)

	bety := findParam(cmd, "bety")
	require.NotNil(t, bety)
	assert.Equal(t, native.ConstraintMin, bety.ConstraintKind)
	assert.Nil(t, bety.MinExpr)
}

func TestEngine_UnknownCommandIsStored(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `mycmd, n=3, x=1.5, s="Mixed Case", flag, names={a, b}, v={1, 2};`)

	cmd, err := registry.Command(e.Commands(), "mycmd")
	require.NoError(t, err)
	tags := make(map[string]int)
	for _, p := range cmd.Params {
		tags[gostr(p.Name)] = p.Type
	}
	assert.Equal(t, map[string]int{
		"n":     native.ParamInteger,
		"x":     native.ParamDouble,
		"s":     native.ParamString,
		"flag":  native.ParamLogical,
		"names": native.ParamStringArray,
		"v":     native.ParamDoubleArray,
	}, tags)
	assert.Equal(t, "Mixed Case", stringParam(cmd, "s"), "quoted strings keep their case")
	assert.Equal(t, 1.0, numberParam(cmd, "flag"))
}

func TestEngine_LabelledCommand(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, "mytw: twiss, betx=5, table=special;")

	cmd, err := registry.Command(e.Commands(), "mytw")
	require.NoError(t, err)
	assert.Equal(t, 5.0, numberParam(cmd, "betx"))
	assert.Equal(t, "special", stringParam(cmd, "table"))
	assert.False(t, registry.Exists(e.Tables().Names, "special"), "a labelled command is defined, not run")
}

func TestEngine_Call(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"Lattice.madx": fodo,
		"strengths.madx": `
			kf = 0.25;
			stop;
			kf = 99;
		`,
	})
	e, ctx := start(t)
	input(t, e, ctx, fmt.Sprintf(`call, file="%s"; CALL, FILE="%s";`,
		filepath.Join(root, "Lattice.madx"), filepath.Join(root, "strengths.madx")))

	assert.True(t, registry.Exists(e.Sequences().Names, "fodo"))
	kf, _ := e.Variable("kf")
	assert.Equal(t, 0.25, kf, "stop ends the input")
	assert.Equal(t, 0.25, numberParam(e.elements["qf"].Def, "k1"))

	input(t, e, ctx, fmt.Sprintf(`call, file="%s";`, filepath.Join(root, "missing.madx")))
	assert.Contains(t, strings.Join(e.Warnings(), "\n"), "call: cannot read")
}

func TestEngine_CallRecursionIsBounded(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{"self.madx": ""})
	path := filepath.Join(root, "self.madx")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`n = n + 1; call, file="%s";`, path)), 0o644))

	e, ctx := start(t)
	input(t, e, ctx, fmt.Sprintf(`call, file="%s";`, path))

	n, _ := e.Variable("n")
	assert.Equal(t, float64(maxCallDepth), n)
	assert.Contains(t, strings.Join(e.Warnings(), "\n"), "nesting deeper than")
}

func TestEngine_DeleteAndSelect(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, fodo+`
		select, flag=twiss, column=name,s,betx;
		twiss;
	`)

	tw, err := registry.Table(e.Tables(), "twiss")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "s", "betx"}, table.Columns(tw))

	input(t, e, ctx, "select, flag=twiss, clear; delete, table=twiss; delete, sequence=nope;")
	assert.False(t, registry.Exists(e.Tables().Names, "twiss"))
	assert.Contains(t, strings.Join(e.Warnings(), "\n"), `sequence "nope" does not exist`)

	seq, err := registry.Sequence(e.Sequences(), "fodo")
	require.NoError(t, err)
	assert.False(t, seq.TwissValid)
	assert.Nil(t, seq.TwissTable)

	input(t, e, ctx, "twiss; delete, sequence=fodo;")
	tw, err = registry.Table(e.Tables(), "twiss")
	require.NoError(t, err)
	assert.Len(t, table.Columns(tw), 12, "clearing the selection restores every column")
	assert.False(t, registry.Exists(e.Sequences().Names, "fodo"))
	assert.Nil(t, e.CurrentSequence())
}

func TestEngine_Beam(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, `
		beam, particle=electron, pc=1;
		beam, sequence=lhcb1, particle=proton, gamma=10;
	`)

	cmd, err := registry.Command(e.Commands(), "beam")
	require.NoError(t, err)
	assert.Equal(t, "lhcb1", stringParam(cmd, "sequence"), "the last beam is the defined one")
	assert.Equal(t, 10*pmass, numberParam(cmd, "energy"))

	def := e.defaultBeam
	require.NotNil(t, def)
	assert.Equal(t, -1.0, numberParam(def, "charge"))
	assert.InDelta(t, 1.0, numberParam(def, "pc"), 1e-12)
	assert.InDelta(t, 1/0.299792458, numberParam(def, "brho"), 1e-9)

	input(t, e, ctx, "beam, particle=unobtainium; beam, mass=0;")
	warnings := strings.Join(e.Warnings(), "\n")
	assert.Contains(t, warnings, `unknown particle "unobtainium"`)
	assert.Contains(t, warnings, "beam mass must be positive")
}

func TestEngine_StopEndsInput(t *testing.T) {
	e, ctx := start(t)
	input(t, e, ctx, "a = 1; exit; b = 2;")
	_, ok := e.Variable("b")
	assert.False(t, ok)

	input(t, e, ctx, "b = 2;")
	b, ok := e.Variable("b")
	assert.True(t, ok, "the next input runs again")
	assert.Equal(t, 2.0, b)
}
