package native

// CString is a low-level engine string: the bytes of the string followed by
// a terminating NUL. A nil CString is a NULL pointer.
type CString []byte

// IsNull reports whether c stands for a NULL pointer.
func (c CString) IsNull() bool { return c == nil }

// Parameter type tags, as stored in Parameter.Type.
const (
	ParamLogical     = 0
	ParamInteger     = 1
	ParamDouble      = 2
	ParamString      = 3
	ParamConstraint  = 4
	ParamIntArray    = 11
	ParamDoubleArray = 12
	ParamStringArray = 13
)

// Constraint kinds, as stored in Parameter.ConstraintKind.
const (
	ConstraintMin   = 1
	ConstraintMax   = 2
	ConstraintBoth  = 3
	ConstraintValue = 4
)

// Column datatype discriminators, as returned by Table.ColumnInfo.
const (
	ColumnDouble  byte = 'd'
	ColumnInteger byte = 'i'
	ColumnString  byte = 'S'
	ColumnInvalid byte = 'V'
)

// Expression is a parsed symbolic expression together with its last value.
type Expression struct {
	String CString
	Value  float64
}

// DoubleArray is a counted array of doubles.
type DoubleArray struct {
	A []float64
}

// ExprList runs parallel to a DoubleArray. Entries may be nil for literal
// elements, and the list may be shorter than the array it accompanies.
type ExprList struct {
	List []*Expression
}

// CharPArray is a counted array of strings.
type CharPArray struct {
	P []CString
}

// Parameter is one tagged parameter record of a command.
type Parameter struct {
	Name           CString
	Type           int
	ConstraintKind int

	DoubleValue float64
	CMin        float64
	CMax        float64

	Expr    *Expression
	MinExpr *Expression
	MaxExpr *Expression

	String      CString
	DoubleArray *DoubleArray
	ExprList    *ExprList
	MString     *CharPArray
}

// Command is a named operation with its parameter records in stored order.
type Command struct {
	Name   CString
	Params []*Parameter
}

// Element is a named device template. BaseType points at the element's root
// class (a base class points at itself).
type Element struct {
	Name     CString
	Length   float64
	Def      *Command
	Parent   *Element
	BaseType *Element
}

// Node places an element or a nested sequence at a position inside a
// sequence. Exactly one of Element and Sequence is expected to be set.
type Node struct {
	Name     CString
	Position float64
	Length   float64
	Element  *Element
	Sequence *Sequence
}

// Sequence is a named beamline. Nodes holds the declared node list;
// ExpandedNodes is filled when the sequence is expanded for tracking.
type Sequence struct {
	Name          CString
	Length        float64
	Nodes         []*Node
	ExpandedNodes []*Node
	Beam          *Command
	TwissValid    bool
	TwissTable    *Table
}

// Table is a named rectangular result set.
//
// Columns lists the column names; DataTypes, FloatCols and StringCols are
// indexed by column position. Only the slot matching a column's datatype is
// populated. Rows is the current row count.
type Table struct {
	Name       CString
	Type       CString
	Rows       int
	Columns    *NameList
	DataTypes  []byte
	FloatCols  [][]float64
	StringCols [][]CString
	Header     *CharPArray
}

// ColumnInfo is the raw description of a single table column.
type ColumnInfo struct {
	DataType byte
	Length   int
	Floats   []float64
	Strings  []CString
}

// ColumnInfo looks up a column by its encoded name. A missing column is
// reported with the ColumnInvalid discriminator.
func (t *Table) ColumnInfo(name CString) ColumnInfo {
	if t == nil {
		return ColumnInfo{DataType: ColumnInvalid}
	}
	pos := t.Columns.Pos(name)
	if pos < 0 || pos >= len(t.DataTypes) {
		return ColumnInfo{DataType: ColumnInvalid}
	}
	info := ColumnInfo{DataType: t.DataTypes[pos], Length: t.Rows}
	if pos < len(t.FloatCols) {
		info.Floats = t.FloatCols[pos]
	}
	if pos < len(t.StringCols) {
		info.Strings = t.StringCols[pos]
	}
	return info
}

// SequenceList is the registry of all defined sequences.
type SequenceList struct {
	Names     *NameList
	Sequences []*Sequence
}

// TableList is the registry of all tables.
type TableList struct {
	Names  *NameList
	Tables []*Table
}

// CommandList is the registry of defined commands.
type CommandList struct {
	Names    *NameList
	Commands []*Command
}
