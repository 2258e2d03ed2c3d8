package madx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/madxbind/internal/param"
	"github.com/vk/madxbind/internal/registry"
	"github.com/vk/madxbind/internal/testutil"
)

const fodo = `
KF = 0.3;
QF: QUADRUPOLE, L=1, K1:=KF;
QD: QUADRUPOLE, L=1, K1:=-KF;
FODO: SEQUENCE, L=10;
  QF, AT=0.5;
  QD, AT=5.5;
ENDSEQUENCE;
BEAM, PARTICLE=PROTON, ENERGY=2;
USE, SEQUENCE=FODO;
`

func startEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	logger, _ := testutil.NewLogger(t)
	e, err := Start(context.Background(), append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !e.finished {
			require.NoError(t, e.Finish())
		}
	})
	return e
}

func TestStart_SingleInstance(t *testing.T) {
	e := startEngine(t)
	assert.Equal(t, "memory", e.Backend())

	_, err := Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "engine already started")

	require.NoError(t, e.Finish())
	again := startEngine(t)
	assert.NotSame(t, e, again)
}

func TestStart_InvalidConfig(t *testing.T) {
	_, err := Start(context.Background(), WithBackend("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "nope"`)

	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	_, err = Start(context.Background(), WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)

	// Nothing was left running.
	e := startEngine(t)
	require.NotNil(t, e)
}

func TestEngine_FinishedEngineFailsFast(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Finish())

	calls := map[string]func() error{
		"Finish":   e.Finish,
		"Submit":   func() error { return e.Submit("a = 1;") },
		"Command":  func() error { return e.Command("twiss", nil) },
		"Set":      func() error { return e.Set("a", 1) },
		"Call":     func() error { return e.Call("x.madx") },
		"Evaluate": func() error { _, err := e.Evaluate("1"); return err },
		"SequenceExists": func() error {
			_, err := e.SequenceExists("fodo")
			return err
		},
		"Sequences":        func() error { _, err := e.Sequences(); return err },
		"CurrentSequence":  func() error { _, err := e.CurrentSequence(); return err },
		"Twiss":            func() error { _, err := e.Twiss("fodo"); return err },
		"Beam":             func() error { _, err := e.Beam("fodo"); return err },
		"Elements":         func() error { _, err := e.Elements("fodo"); return err },
		"ExpandedElements": func() error { _, err := e.ExpandedElements("fodo"); return err },
		"Tables":           func() error { _, err := e.Tables(); return err },
		"TableExists":      func() error { _, err := e.TableExists("twiss"); return err },
		"TableSummary":     func() error { _, err := e.TableSummary("twiss"); return err },
		"TableColumns":     func() error { _, err := e.TableColumns("twiss"); return err },
		"TableColumn":      func() error { _, err := e.TableColumn("twiss", "betx"); return err },
		"DefinedCommands":  func() error { _, err := e.DefinedCommands(); return err },
		"DefinedCommand":   func() error { _, err := e.DefinedCommand("twiss"); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), ErrEngineNotStarted)
		})
	}
}

func TestEngine_SequencesAndBeam(t *testing.T) {
	e := startEngine(t)

	_, err := e.CurrentSequence()
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, e.Submit(fodo))

	exists, err := e.SequenceExists("FODO")
	require.NoError(t, err)
	assert.True(t, exists, "lookups are case-insensitive")
	exists, err = e.SequenceExists("ring")
	require.NoError(t, err)
	assert.False(t, exists)

	names, err := e.Sequences()
	require.NoError(t, err)
	assert.Equal(t, []string{"fodo"}, names)

	current, err := e.CurrentSequence()
	require.NoError(t, err)
	assert.Equal(t, "fodo", current)

	beam, err := e.Beam("fodo")
	require.NoError(t, err)
	particle, ok := beam.Get("particle")
	require.True(t, ok)
	assert.Equal(t, String{Value: "proton"}, particle)

	_, err = e.Beam("ring")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ring", nf.Name)
}

func TestEngine_UnknownSequenceIsNotFound(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(fodo))

	calls := []struct {
		name string
		call func(string) error
	}{
		{"Twiss", func(s string) error { _, err := e.Twiss(s); return err }},
		{"Beam", func(s string) error { _, err := e.Beam(s); return err }},
		{"Elements", func(s string) error { _, err := e.Elements(s); return err }},
		{"ExpandedElements", func(s string) error { _, err := e.ExpandedElements(s); return err }},
	}
	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call("nope")
			require.ErrorIs(t, err, ErrNotFound)
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "nope", nf.Name)
		})
	}

	exists, err := e.SequenceExists("nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEngine_BeamMissing(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit("m: marker; s: sequence, l=1; m, at=0.5; endsequence;"))

	_, err := e.Beam("s")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "no beam attached")
}

func TestEngine_Twiss(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(fodo))

	_, err := e.Twiss("fodo")
	require.ErrorIs(t, err, ErrInvalidState, "no twiss has run yet")
	assert.Contains(t, err.Error(), "twiss table not valid")

	require.NoError(t, e.Command("twiss", map[string]any{"sequence": "fodo", "table": "tw"}))
	name, err := e.Twiss("fodo")
	require.NoError(t, err)
	assert.Equal(t, "tw", name)

	tables, err := e.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"tw"}, tables)

	cols, err := e.TableColumns("tw")
	require.NoError(t, err)
	assert.Contains(t, cols, "betx")

	summary, err := e.TableSummary("tw")
	require.NoError(t, err)
	assert.Equal(t, "FODO", summary["SEQUENCE"].Text)
	assert.True(t, summary["Q1"].IsNumber)

	_, err = e.TableSummary("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	// A deferred strength change invalidates nothing by itself; the next
	// use does.
	require.NoError(t, e.Set("kf", 0.2))
	require.NoError(t, e.Submit("use, sequence=fodo;"))
	_, err = e.Twiss("fodo")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEngine_TableColumn(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(fodo+"twiss;"))

	col, err := e.TableColumn("twiss", "BETX")
	require.NoError(t, err)
	view, ok := col.(*FloatView)
	require.True(t, ok)
	assert.Equal(t, 4, view.Len())
	assert.Greater(t, view.At(0), 0.0)
	owned, err := view.Copy()
	require.NoError(t, err)

	names, err := e.TableColumn("twiss", "name")
	require.NoError(t, err)
	assert.Equal(t, StringColumn{"qf:1", "drift_0:1", "qd:1", "drift_0:2"}, names)

	_, err = e.TableColumn("twiss", "nope")
	var cnf *ColumnNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "twiss", cnf.Table)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.TableColumn("nope", "betx")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)

	// Any later mutating call invalidates the view but not the copy.
	require.NoError(t, e.Submit("x = 1;"))
	assert.False(t, view.Valid())
	assert.PanicsWithError(t, ErrStaleView.Error(), func() { view.At(0) })
	_, err = view.Copy()
	assert.ErrorIs(t, err, ErrStaleView)
	assert.Len(t, owned, 4)
	assert.Equal(t, 4, view.Len())
}

func TestEngine_Elements(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(fodo))

	original, err := e.Elements("fodo")
	require.NoError(t, err)
	expanded, err := e.ExpandedElements("fodo")
	require.NoError(t, err)
	assert.Len(t, original, 2)
	assert.Len(t, expanded, 4)

	qf, ok := original[0].(ElementNode)
	require.True(t, ok)
	attrs := qf.Attributes()
	assert.Equal(t, String{Value: "qf"}, attrs["name"])
	assert.Equal(t, String{Value: "quadrupole"}, attrs["type"])
	k1, ok := attrs["k1"].(Float)
	require.True(t, ok)
	assert.Equal(t, 0.3, k1.Value)
	expr, ok := k1.Expression()
	require.True(t, ok)
	assert.Equal(t, "kf", expr)

	_, err = e.Elements("ring")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ExpandedRequiresUse(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(`
qf: quadrupole, l=1, k1=0.1;
lone: sequence, l=4; qf, at=1; endsequence;
empty: sequence, l=1; endsequence;
`))

	original, err := e.Elements("lone")
	require.NoError(t, err)
	assert.Len(t, original, 1)

	_, err = e.ExpandedElements("lone")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "not expanded")
	_, err = e.Elements("lone")
	assert.NoError(t, err, "an unexpanded sequence does not break the engine")

	for _, walk := range []func(string) ([]Node, error){e.Elements, e.ExpandedElements} {
		nodes, err := walk("empty")
		require.NoError(t, err)
		assert.Empty(t, nodes)
	}

	require.NoError(t, e.Submit("use, sequence=lone;"))
	expanded, err := e.ExpandedElements("lone")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(expanded), len(original))
}

func TestEngine_NestedSequenceNodes(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(fodo+"ring: sequence, l=20; fodo, at=5; fodo, at=15; endsequence;"))

	nodes, err := e.Elements("ring")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	sub, ok := nodes[0].(SequenceNode)
	require.True(t, ok)
	assert.Equal(t, map[string]Value{
		"type":     String{Value: "sequence"},
		"sequence": String{Value: "fodo"},
	}, sub.Attributes())
}

func TestEngine_EmptyNodeBreaksEngine(t *testing.T) {
	e := startEngine(t)
	require.NoError(t, e.Submit(fodo))

	seq, err := registry.Sequence(e.backend.Sequences(), "fodo")
	require.NoError(t, err)
	seq.Nodes[1].Element = nil

	_, err = e.Elements("fodo")
	var empty *EmptyNodeError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "fodo", empty.Sequence)
	assert.Equal(t, 1, empty.Index)

	_, err = e.Sequences()
	require.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, err, ErrEmptyNode)
	assert.ErrorIs(t, e.Submit("x = 1;"), ErrInvalidState)

	require.NoError(t, e.Finish(), "a broken engine can still be finished")
}

func TestEngine_EvaluateAndSet(t *testing.T) {
	e := startEngine(t)

	require.NoError(t, e.Set("A", 2))
	require.NoError(t, e.Set("b", Deferred("3*a")))
	require.NoError(t, e.Set("c", Expr("a + 1")))
	require.NoError(t, e.Set("a", 4))

	v, err := e.Evaluate("B")
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)
	v, err = e.Evaluate("c")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = e.Evaluate("(")
	assert.Error(t, err)

	err = e.Set("bad", struct{ Ch chan int }{})
	assert.Error(t, err)
}

func TestEngine_CommandAndDefinedCommands(t *testing.T) {
	e := startEngine(t)

	require.NoError(t, e.Command("select", map[string]any{
		"flag":   "twiss",
		"column": []string{"name", "s", "betx"},
	}))
	cmd, err := e.DefinedCommand("select")
	require.NoError(t, err)
	column, ok := cmd.Get("column")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "s", "betx"}, column.(StringArray).Strings())

	require.NoError(t, e.Command("constraint", map[string]any{"betx": Expr("10"), "range": "#e"}))
	cmd, err = e.DefinedCommand("constraint")
	require.NoError(t, err)
	betx, ok := cmd.Get("betx")
	require.True(t, ok)
	assert.Equal(t, Exact{Value: param.Literal(10.0)}, betx)

	names, err := e.DefinedCommands()
	require.NoError(t, err)
	assert.Contains(t, names, "twiss")
	assert.Contains(t, names, "quadrupole")

	_, err = e.DefinedCommand("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = e.Command("twiss", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestEngine_CallAndCommandLog(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{"Lattice.madx": fodo})
	logPath := filepath.Join(root, "commands.madx")

	e := startEngine(t, WithCommandLog(logPath))
	require.NoError(t, e.Call(filepath.Join(root, "Lattice.madx")))
	require.NoError(t, e.Submit("TWISS"))

	exists, err := e.TableExists("twiss")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, e.Finish())
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Lattice.madx", "the log keeps the text as submitted")
	assert.Equal(t, "TWISS;", lines[1])
}

func TestEngine_WarningsAreLogged(t *testing.T) {
	buf := &testutil.SafeBuffer{}
	cfg := DefaultConfig()
	cfg.LogFormat = "json"
	e, err := Start(context.Background(), WithConfig(cfg), WithOutput(buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Finish() })

	require.NoError(t, e.Submit("use, sequence=missing;"))
	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `sequence \"missing\" does not exist`)
	assert.Contains(t, out, `"component":"engine"`)
	assert.NotContains(t, out, "Memory engine started", "backend debug output is quiet by default")
}

func TestErrors_AreDistinguishable(t *testing.T) {
	errs := []error{ErrNotFound, ErrInvalidState, ErrInvalidParameterType, ErrIntegerRange, ErrUnknownColumnType, ErrEmptyNode, ErrEngineNotStarted, ErrStaleView}
	for i, a := range errs {
		for j, b := range errs {
			assert.Equal(t, i == j, errors.Is(a, b))
		}
	}
}
