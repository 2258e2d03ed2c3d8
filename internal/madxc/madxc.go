//go:build madx && cgo

package madxc

/*
#cgo LDFLAGS: -lmadx -lptc -lgc-lib -lstdc++ -lgfortran -lquadmath -lm
#include <stdlib.h>
#include <string.h>
#include "madX/madx.h"

// madxbind_eval evaluates one expression the way the interpreter parses
// the right-hand side of an assignment. It returns non-zero when the text
// does not parse.
static int madxbind_eval(char* text, double* out) {
	struct expression* e;
	pre_split(text, c_dum, 0);
	mysplit(c_dum->c, tmp_p_array);
	e = make_expression(tmp_p_array->curr, tmp_p_array->p);
	if (e == NULL) {
		return 1;
	}
	*out = expression_value(e, 2);
	delete_expression(e);
	return 0;
}

static struct sequence_list* madxbind_sequences(void) { return sequences; }
static struct table_list* madxbind_tables(void) { return table_register; }
static struct command_list* madxbind_commands(void) { return defined_commands; }
static struct sequence* madxbind_current(void) { return current_sequ; }
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

func init() {
	native.Register("madx", func() native.Backend { return &driver{} })
}

// driver mirrors the library's global state into native records. The
// mirror is rebuilt lazily after every call that can change the state.
// Table columns are not copied: FloatCols alias the library's buffers.
type driver struct {
	started bool
	snap    *snapshot
}

type snapshot struct {
	elements  map[*C.struct_element]*native.Element
	sequences map[*C.struct_sequence]*native.Sequence
	tables    map[*C.struct_table]*native.Table
	commands  map[*C.struct_command]*native.Command

	sequenceList *native.SequenceList
	tableList    *native.TableList
	commandList  *native.CommandList
	current      *native.Sequence
}

func (d *driver) Start(ctx context.Context) error {
	if d.started {
		return errdefs.InvalidState("madx library already started")
	}
	C.madx_start()
	d.started = true
	d.snap = nil
	ctxlog.FromContext(ctx).Debug("MAD-X library started.")
	return nil
}

func (d *driver) Finish(ctx context.Context) error {
	if !d.started {
		return errdefs.InvalidState("madx library not started")
	}
	C.madx_finish()
	d.started = false
	d.snap = nil
	ctxlog.FromContext(ctx).Debug("MAD-X library finished.")
	return nil
}

func (d *driver) Input(ctx context.Context, text native.CString) error {
	if !d.started {
		return errdefs.InvalidState("madx library not started")
	}
	buf := C.CString(marshal.String(text))
	defer C.free(unsafe.Pointer(buf))
	d.snap = nil
	C.pro_input(buf)
	return nil
}

func (d *driver) Evaluate(ctx context.Context, expr native.CString) (float64, error) {
	if !d.started {
		return 0, errdefs.InvalidState("madx library not started")
	}
	buf := C.CString(marshal.String(expr))
	defer C.free(unsafe.Pointer(buf))
	d.snap = nil
	var out C.double
	if C.madxbind_eval(buf, &out) != 0 {
		return 0, errdefs.InvalidState("expression does not parse: " + marshal.String(expr))
	}
	return float64(out), nil
}

func (d *driver) Sequences() *native.SequenceList   { return d.mirror().sequenceList }
func (d *driver) CurrentSequence() *native.Sequence { return d.mirror().current }
func (d *driver) Tables() *native.TableList         { return d.mirror().tableList }
func (d *driver) Commands() *native.CommandList     { return d.mirror().commandList }

func (d *driver) mirror() *snapshot {
	if d.snap != nil {
		return d.snap
	}
	s := &snapshot{
		elements:  make(map[*C.struct_element]*native.Element),
		sequences: make(map[*C.struct_sequence]*native.Sequence),
		tables:    make(map[*C.struct_table]*native.Table),
		commands:  make(map[*C.struct_command]*native.Command),
	}
	s.sequenceList = s.readSequenceList(C.madxbind_sequences())
	s.tableList = s.readTableList(C.madxbind_tables())
	s.commandList = s.readCommandList(C.madxbind_commands())
	if cur := C.madxbind_current(); cur != nil {
		s.current = s.readSequence(cur)
	}
	d.snap = s
	return s
}

// cstring copies a NUL-terminated C string. NULL stays nil.
func cstring(p *C.char) native.CString {
	if p == nil {
		return nil
	}
	return native.CString(C.GoBytes(unsafe.Pointer(p), C.int(C.strlen(p)+1)))
}

func slice[T any](p *T, n C.int) []T {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice(p, int(n))
}

func readNameList(l *C.struct_name_list) *native.NameList {
	out := &native.NameList{}
	if l == nil {
		return out
	}
	for _, name := range slice(l.names, l.curr) {
		out.Add(cstring(name))
	}
	return out
}

func readExpression(e *C.struct_expression) *native.Expression {
	if e == nil {
		return nil
	}
	return &native.Expression{String: cstring(e.string), Value: float64(e.value)}
}

func readParameter(p *C.struct_command_parameter) *native.Parameter {
	if p == nil {
		return nil
	}
	out := &native.Parameter{
		Name:           cstring(&p.name[0]),
		Type:           int(p._type),
		ConstraintKind: int(p.c_type),
		DoubleValue:    float64(p.double_value),
		CMin:           float64(p.c_min),
		CMax:           float64(p.c_max),
		Expr:           readExpression(p.expr),
		MinExpr:        readExpression(p.min_expr),
		MaxExpr:        readExpression(p.max_expr),
		String:         cstring(p.string),
	}
	if a := p.double_array; a != nil {
		vals := slice(a.a, a.curr)
		out.DoubleArray = &native.DoubleArray{A: make([]float64, len(vals))}
		for i, v := range vals {
			out.DoubleArray.A[i] = float64(v)
		}
	}
	if l := p.expr_list; l != nil {
		out.ExprList = &native.ExprList{}
		for _, e := range slice(l.list, l.curr) {
			out.ExprList.List = append(out.ExprList.List, readExpression(e))
		}
	}
	if m := p.m_string; m != nil {
		out.MString = &native.CharPArray{}
		for _, s := range slice(m.p, m.curr) {
			out.MString.P = append(out.MString.P, cstring(s))
		}
	}
	return out
}

func (s *snapshot) readCommand(c *C.struct_command) *native.Command {
	if c == nil {
		return nil
	}
	if cmd, ok := s.commands[c]; ok {
		return cmd
	}
	cmd := &native.Command{Name: cstring(&c.name[0])}
	s.commands[c] = cmd
	if pl := c.par; pl != nil {
		for _, p := range slice(pl.parameters, pl.curr) {
			cmd.Params = append(cmd.Params, readParameter(p))
		}
	}
	return cmd
}

func (s *snapshot) readElement(e *C.struct_element) *native.Element {
	if e == nil {
		return nil
	}
	if el, ok := s.elements[e]; ok {
		return el
	}
	el := &native.Element{Name: cstring(&e.name[0]), Length: float64(e.length)}
	s.elements[e] = el
	el.Def = s.readCommand(e.def)
	el.Parent = s.readElement(e.parent)
	el.BaseType = s.readElement(e.base_type)
	return el
}

func (s *snapshot) readNode(n *C.struct_node) *native.Node {
	return &native.Node{
		Name:     cstring(&n.name[0]),
		Position: float64(n.position),
		Length:   float64(n.length),
		Element:  s.readElement(n.p_elem),
		Sequence: s.readSequence(n.p_sequ),
	}
}

// readNodes follows the node ring from start to end inclusive.
func (s *snapshot) readNodes(start, end *C.struct_node) []*native.Node {
	var out []*native.Node
	for n := start; n != nil; n = n.next {
		out = append(out, s.readNode(n))
		if n == end {
			break
		}
	}
	return out
}

func (s *snapshot) readSequence(q *C.struct_sequence) *native.Sequence {
	if q == nil {
		return nil
	}
	if seq, ok := s.sequences[q]; ok {
		return seq
	}
	seq := &native.Sequence{
		Name:       cstring(&q.name[0]),
		Length:     float64(q.length),
		TwissValid: q.tw_valid != 0,
	}
	s.sequences[q] = seq
	seq.Nodes = s.readNodes(q.start, q.end)
	seq.ExpandedNodes = s.readNodes(q.ex_start, q.ex_end)
	seq.Beam = s.readCommand(q.beam)
	seq.TwissTable = s.readTable(q.tw_table)
	return seq
}

func (s *snapshot) readTable(t *C.struct_table) *native.Table {
	if t == nil {
		return nil
	}
	if tbl, ok := s.tables[t]; ok {
		return tbl
	}
	tbl := &native.Table{
		Name:    cstring(&t.name[0]),
		Type:    cstring(&t._type[0]),
		Rows:    int(t.curr),
		Columns: &native.NameList{},
		Header:  &native.CharPArray{},
	}
	s.tables[t] = tbl

	cols := t.columns
	if cols != nil {
		names := slice(cols.names, cols.curr)
		inform := slice(cols.inform, cols.curr)
		dcols := slice(t.d_cols, C.int(len(names)))
		scols := slice(t.s_cols, C.int(len(names)))
		for i, name := range names {
			tbl.Columns.Add(cstring(name))
			// inform: 1 integer, 2 double, 3 string.
			switch inform[i] {
			case 3:
				var strs []native.CString
				for _, p := range slice(scols[i], t.curr) {
					strs = append(strs, cstring(p))
				}
				tbl.DataTypes = append(tbl.DataTypes, native.ColumnString)
				tbl.FloatCols = append(tbl.FloatCols, nil)
				tbl.StringCols = append(tbl.StringCols, strs)
			default:
				kind := native.ColumnDouble
				if inform[i] == 1 {
					kind = native.ColumnInteger
				}
				data := unsafe.Slice((*float64)(unsafe.Pointer(dcols[i])), int(t.max))
				tbl.DataTypes = append(tbl.DataTypes, kind)
				tbl.FloatCols = append(tbl.FloatCols, data)
				tbl.StringCols = append(tbl.StringCols, nil)
			}
		}
	}
	if h := t.header; h != nil {
		for _, line := range slice(h.p, h.curr) {
			tbl.Header.P = append(tbl.Header.P, cstring(line))
		}
	}
	return tbl
}

func (s *snapshot) readSequenceList(l *C.struct_sequence_list) *native.SequenceList {
	out := &native.SequenceList{Names: &native.NameList{}}
	if l == nil {
		return out
	}
	out.Names = readNameList(l.list)
	for _, q := range slice(l.sequs, l.curr) {
		out.Sequences = append(out.Sequences, s.readSequence(q))
	}
	return out
}

func (s *snapshot) readTableList(l *C.struct_table_list) *native.TableList {
	out := &native.TableList{Names: &native.NameList{}}
	if l == nil {
		return out
	}
	out.Names = readNameList(l.names)
	for _, t := range slice(l.tables, l.curr) {
		out.Tables = append(out.Tables, s.readTable(t))
	}
	return out
}

func (s *snapshot) readCommandList(l *C.struct_command_list) *native.CommandList {
	out := &native.CommandList{Names: &native.NameList{}}
	if l == nil {
		return out
	}
	out.Names = readNameList(l.list)
	for _, c := range slice(l.commands, l.curr) {
		out.Commands = append(out.Commands, s.readCommand(c))
	}
	return out
}
