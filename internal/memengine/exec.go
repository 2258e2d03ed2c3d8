package memengine

import (
	"context"
	"log/slog"
	"os"

	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

// exec interprets one statement.
func (e *Engine) exec(ctx context.Context, st statement) {
	switch {
	case st.assign:
		e.assign(ctx, st)
	case e.building != nil:
		e.execInSequence(ctx, st)
	case st.label != "":
		e.define(ctx, st)
	default:
		e.execCommand(ctx, st)
	}
}

func (e *Engine) execInSequence(ctx context.Context, st statement) {
	switch {
	case st.keyword == "endsequence" && st.label == "":
		e.endSequence(ctx)
	case st.label != "":
		if _, ok := e.defineElement(ctx, st.label, st.keyword, st.args); ok {
			e.place(ctx, st.label, st.args)
		}
	default:
		e.place(ctx, st.keyword, st.args)
	}
}

// define handles `label: keyword, ...`: a sequence, a named copy of a
// known command, or an element.
func (e *Engine) define(ctx context.Context, st statement) {
	if st.keyword == "sequence" {
		e.startSequence(ctx, st.label, st.args)
		return
	}
	if specs, ok := commandDefs[st.keyword]; ok {
		cmd := defaultCommand(st.label, specs)
		e.applyArgs(ctx, cmd, specs, st.args, false)
		e.storeCommand(cmd)
		return
	}
	e.defineElement(ctx, st.label, st.keyword, st.args)
}

func (e *Engine) execCommand(ctx context.Context, st statement) {
	switch st.keyword {
	case "beam":
		e.beam(ctx, st.args)
	case "use":
		e.execUse(ctx, st.args)
	case "twiss":
		e.twiss(ctx, st.args)
	case "survey":
		e.survey(ctx, st.args)
	case "select":
		e.execSelect(ctx, st.args)
	case "call":
		e.execCall(ctx, st.args)
	case "value":
		e.execValue(ctx, st.args)
	case "print":
		cmd := e.stored(ctx, st)
		e.info(ctx, "Engine print.", slog.String("text", stringParam(cmd, "text")))
	case "constraint":
		e.execConstraint(ctx, st.args)
	case "delete":
		e.execDelete(ctx, st)
	case "show":
		e.execShow(ctx, st.args)
	case "stop", "exit", "quit":
		e.stopped = true
	case "endsequence":
		e.warn(ctx, "endsequence without an open sequence ignored")
	default:
		if el, ok := e.elements[st.keyword]; ok {
			e.setElementParams(ctx, el, st.args)
			return
		}
		e.stored(ctx, st)
	}
}

// stored builds the command of st from its template, or with inferred
// parameter types for commands the engine does not know, and stores it.
func (e *Engine) stored(ctx context.Context, st statement) *native.Command {
	specs, known := commandDefs[st.keyword]
	cmd := defaultCommand(st.keyword, specs)
	e.applyArgs(ctx, cmd, specs, st.args, !known)
	e.storeCommand(cmd)
	return cmd
}

// execUse accepts `use, sequence=name`, `use, period=name` and
// `use, name`.
func (e *Engine) execUse(ctx context.Context, args []arg) {
	for i, a := range args {
		if a.op == "" && !a.neg {
			args[i] = arg{key: "sequence", op: "=", value: a.key, raw: a.raw}
		}
	}
	cmd := defaultCommand("use", commandDefs["use"])
	e.applyArgs(ctx, cmd, commandDefs["use"], args, false)
	e.storeCommand(cmd)

	name := stringParam(cmd, "sequence")
	if name == "" {
		name = stringParam(cmd, "period")
	}
	if name == "" {
		e.warn(ctx, "use: no sequence given")
		return
	}
	seq := e.sequence(name)
	if seq == nil {
		e.warn(ctx, "use: sequence %q does not exist", name)
		return
	}
	e.use(ctx, seq)
}

// execSelect records the column selection of a table family. `clear`
// drops it.
func (e *Engine) execSelect(ctx context.Context, args []arg) {
	cmd := defaultCommand("select", commandDefs["select"])
	e.applyArgs(ctx, cmd, commandDefs["select"], args, false)
	e.storeCommand(cmd)

	flag := stringParam(cmd, "flag")
	if flag == "" {
		e.warn(ctx, "select: no flag given")
		return
	}
	if numberParam(cmd, "clear") != 0 {
		delete(e.selects, flag)
		return
	}
	if p := findParam(cmd, "column"); p != nil && p.MString != nil && len(p.MString.P) > 0 {
		cols := make([]string, 0, len(p.MString.P))
		for _, c := range p.MString.P {
			cols = append(cols, gostr(c))
		}
		e.selects[flag] = cols
	}
}

func (e *Engine) execCall(ctx context.Context, args []arg) {
	for i, a := range args {
		if a.op == "" && !a.neg {
			args[i] = arg{key: "file", op: "=", value: a.key, raw: a.raw}
		}
	}
	cmd := defaultCommand("call", commandDefs["call"])
	e.applyArgs(ctx, cmd, commandDefs["call"], args, false)
	e.storeCommand(cmd)

	path := stringParam(cmd, "file")
	if path == "" {
		e.warn(ctx, "call: no file given")
		return
	}
	if e.callDepth >= maxCallDepth {
		e.warn(ctx, "call: nesting deeper than %d, %q not read", maxCallDepth, path)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		e.warn(ctx, "call: cannot read %q: %v", path, err)
		return
	}
	e.info(ctx, "Reading command file.", slog.String("file", path))
	e.callDepth++
	defer func() { e.callDepth-- }()
	e.run(ctx, marshal.Fold(string(data)))
}

// execValue logs the value of each argument expression.
func (e *Engine) execValue(ctx context.Context, args []arg) {
	for _, a := range args {
		v, _, ok := e.eval(ctx, a.raw, false)
		if !ok {
			continue
		}
		e.info(ctx, "Engine value.", slog.String("expr", a.raw), slog.Float64("value", v))
	}
}

// execConstraint stores a constraint command. `name=v` pins a quantity,
// `name<v` and `name>v` bound it; both bounds on one name combine.
func (e *Engine) execConstraint(ctx context.Context, args []arg) {
	specs := commandDefs["constraint"]
	cmd := defaultCommand("constraint", specs)
	var plain []arg
	for _, a := range args {
		if _, ok := findSpec(specs, a.key); ok || a.op == "" {
			plain = append(plain, a)
			continue
		}
		v, x, ok := e.eval(ctx, a.value, false)
		if !ok {
			continue
		}
		var expr *native.Expression
		if !x.Constant() {
			expr = &native.Expression{String: cstr(a.value), Value: v}
		}

		p := findParam(cmd, a.key)
		if p == nil || p.Type != native.ParamConstraint {
			p = &native.Parameter{Name: cstr(a.key), Type: native.ParamConstraint}
			setParam(cmd, p)
		}
		switch a.op {
		case "=", ":=":
			*p = native.Parameter{Name: p.Name, Type: native.ParamConstraint, ConstraintKind: native.ConstraintValue, DoubleValue: v, Expr: expr}
		case "<":
			p.CMax, p.MaxExpr = v, expr
			p.ConstraintKind = combine(p.ConstraintKind, native.ConstraintMax)
		case ">":
			p.CMin, p.MinExpr = v, expr
			p.ConstraintKind = combine(p.ConstraintKind, native.ConstraintMin)
		}
	}
	e.applyArgs(ctx, cmd, specs, plain, false)
	e.storeCommand(cmd)
}

// combine merges a new bound into an existing constraint kind.
func combine(have, add int) int {
	switch {
	case have == 0 || have == native.ConstraintValue || have == add:
		return add
	default:
		return native.ConstraintBoth
	}
}

func (e *Engine) execDelete(ctx context.Context, st statement) {
	cmd := e.stored(ctx, st)
	if name := stringParam(cmd, "table"); name != "" {
		if !e.deleteTable(name) {
			e.warn(ctx, "delete: table %q does not exist", name)
		}
	}
	if name := stringParam(cmd, "sequence"); name != "" {
		if !e.deleteSequence(name) {
			e.warn(ctx, "delete: sequence %q does not exist", name)
		}
	}
}

// execShow logs the parameters of commands and elements named by bare
// arguments.
func (e *Engine) execShow(ctx context.Context, args []arg) {
	for _, a := range args {
		cmd := e.command(a.key)
		if el := e.element(a.key); el != nil {
			cmd = el.Def
		}
		if cmd == nil {
			e.warn(ctx, "show: %q is not defined", a.key)
			continue
		}
		names := make([]string, 0, len(cmd.Params))
		for _, p := range cmd.Params {
			if p != nil {
				names = append(names, gostr(p.Name))
			}
		}
		e.info(ctx, "Engine show.", slog.String("name", a.key), slog.Any("parameters", names))
	}
}
