// Package memengine is a pure-Go engine backend registered as "memory".
//
// It interprets a subset of the accelerator command language: variables,
// element definitions, sequences, beams, use, twiss, survey, select,
// constraint and call. Element optics are computed with linear transfer
// matrices, which is enough to exercise every record shape the binding
// decodes. Like the native engine it keeps all state in one object graph,
// reports problems in the input as warnings rather than failures, and
// re-evaluates deferred expressions after each input.
package memengine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/madexpr"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

func init() {
	native.Register("memory", func() native.Backend { return New() })
}

// maxCallDepth bounds nested `call` statements.
const maxCallDepth = 32

type variable struct {
	value float64
	expr  *madexpr.Expr
}

// Engine holds the interpreter state.
type Engine struct {
	started bool

	vars     map[string]*variable
	elements map[string]*native.Element
	classes  map[string]*native.Element

	sequences *native.SequenceList
	tables    *native.TableList
	commands  *native.CommandList
	current   *native.Sequence

	beams       map[string]*native.Command
	defaultBeam *native.Command
	selects     map[string][]string

	building  *seqBuilder
	drifts    map[string]*native.Element
	callDepth int
	stopped   bool

	warnings []string
}

// New returns an engine that is not started yet.
func New() *Engine {
	return &Engine{}
}

// Start resets all state and defines the base classes and command
// templates.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return errdefs.InvalidState("memory engine already started")
	}
	*e = Engine{
		started:   true,
		vars:      make(map[string]*variable),
		elements:  make(map[string]*native.Element),
		classes:   make(map[string]*native.Element),
		sequences: &native.SequenceList{Names: &native.NameList{}},
		tables:    &native.TableList{Names: &native.NameList{}},
		commands:  &native.CommandList{Names: &native.NameList{}},
		beams:     make(map[string]*native.Command),
		selects:   make(map[string][]string),
		drifts:    make(map[string]*native.Element),
	}

	classNames := make([]string, 0, len(elementClasses))
	for name := range elementClasses {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	for _, name := range classNames {
		class := &native.Element{Name: cstr(name), Def: defaultCommand(name, classSpecs(name))}
		class.Parent, class.BaseType = class, class
		e.classes[name] = class
		e.storeCommand(class.Def)
	}

	cmdNames := make([]string, 0, len(commandDefs))
	for name := range commandDefs {
		cmdNames = append(cmdNames, name)
	}
	sort.Strings(cmdNames)
	for _, name := range cmdNames {
		e.storeCommand(defaultCommand(name, commandDefs[name]))
	}

	ctxlog.FromContext(ctx).Debug("Memory engine started.", "classes", len(classNames), "commands", len(cmdNames))
	return nil
}

// Finish drops all state.
func (e *Engine) Finish(ctx context.Context) error {
	if !e.started {
		return errdefs.InvalidState("memory engine not started")
	}
	*e = Engine{}
	ctxlog.FromContext(ctx).Debug("Memory engine finished.")
	return nil
}

// Input interprets text. Problems with individual statements are logged
// and kept as warnings; Input itself only fails when the engine is not
// running.
func (e *Engine) Input(ctx context.Context, text native.CString) error {
	if !e.started {
		return errdefs.InvalidState("memory engine not started")
	}
	src, _ := marshal.Decode(text)
	e.stopped = false
	e.run(ctx, marshal.Fold(src))
	e.refresh(ctx)
	return nil
}

func (e *Engine) run(ctx context.Context, src string) {
	for _, s := range splitStatements(src) {
		if e.stopped {
			return
		}
		e.exec(ctx, parseStatement(s))
	}
}

// Evaluate parses and evaluates a single expression. Undefined names
// evaluate to zero.
func (e *Engine) Evaluate(ctx context.Context, expr native.CString) (float64, error) {
	if !e.started {
		return 0, errdefs.InvalidState("memory engine not started")
	}
	src, _ := marshal.Decode(expr)
	v, undefined, err := madexpr.Eval(src, e.resolver())
	if err != nil {
		return 0, err
	}
	if len(undefined) > 0 {
		ctxlog.FromContext(ctx).Debug("Expression reads undefined names.", "expr", src, "names", undefined)
	}
	return v, nil
}

func (e *Engine) Sequences() *native.SequenceList   { return e.sequences }
func (e *Engine) CurrentSequence() *native.Sequence { return e.current }
func (e *Engine) Tables() *native.TableList         { return e.tables }
func (e *Engine) Commands() *native.CommandList     { return e.commands }

// Warnings returns the warnings issued since Start.
func (e *Engine) Warnings() []string {
	out := make([]string, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// Variable returns the current value of a variable.
func (e *Engine) Variable(name string) (float64, bool) {
	return e.resolver().Lookup(name)
}

func (e *Engine) warn(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.warnings = append(e.warnings, msg)
	ctxlog.FromContext(ctx).Warn("Engine warning.", "warning", msg)
}

func (e *Engine) info(ctx context.Context, msg string, attrs ...slog.Attr) {
	ctxlog.FromContext(ctx).LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

// storeCommand replaces the defined command of the same name.
func (e *Engine) storeCommand(cmd *native.Command) {
	pos := e.commands.Names.Add(cmd.Name)
	if pos < len(e.commands.Commands) {
		e.commands.Commands[pos] = cmd
		return
	}
	e.commands.Commands = append(e.commands.Commands, cmd)
}

func (e *Engine) storeTable(t *native.Table) {
	pos := e.tables.Names.Add(t.Name)
	if pos < len(e.tables.Tables) {
		e.tables.Tables[pos] = t
		return
	}
	e.tables.Tables = append(e.tables.Tables, t)
}

func (e *Engine) storeSequence(s *native.Sequence) {
	pos := e.sequences.Names.Add(s.Name)
	if pos < len(e.sequences.Sequences) {
		e.sequences.Sequences[pos] = s
		return
	}
	e.sequences.Sequences = append(e.sequences.Sequences, s)
}

func (e *Engine) sequence(name string) *native.Sequence {
	pos := e.sequences.Names.Pos(cstr(name))
	if pos < 0 {
		return nil
	}
	return e.sequences.Sequences[pos]
}

func (e *Engine) command(name string) *native.Command {
	pos := e.commands.Names.Pos(cstr(name))
	if pos < 0 {
		return nil
	}
	return e.commands.Commands[pos]
}

// element returns a user element or a base class.
func (e *Engine) element(name string) *native.Element {
	if el, ok := e.elements[name]; ok {
		return el
	}
	return e.classes[name]
}

// deleteTable removes a table and rebuilds the registry index.
func (e *Engine) deleteTable(name string) bool {
	pos := e.tables.Names.Pos(cstr(name))
	if pos < 0 {
		return false
	}
	old := e.tables
	e.tables = &native.TableList{Names: &native.NameList{}}
	for i, t := range old.Tables {
		if i != pos {
			e.storeTable(t)
		}
	}
	for _, s := range e.sequences.Sequences {
		if s.TwissTable == old.Tables[pos] {
			s.TwissTable, s.TwissValid = nil, false
		}
	}
	return true
}

// deleteSequence removes a sequence and rebuilds the registry index.
func (e *Engine) deleteSequence(name string) bool {
	pos := e.sequences.Names.Pos(cstr(name))
	if pos < 0 {
		return false
	}
	old := e.sequences
	e.sequences = &native.SequenceList{Names: &native.NameList{}}
	for i, s := range old.Sequences {
		if i != pos {
			e.storeSequence(s)
		}
	}
	if e.current == old.Sequences[pos] {
		e.current = nil
	}
	return true
}

func cstr(s string) native.CString { return marshal.Encode(s) }

func gostr(c native.CString) string { return marshal.String(c) }
