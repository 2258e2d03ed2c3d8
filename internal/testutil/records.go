package testutil

import "github.com/vk/madxbind/internal/native"

// C encodes s as a NUL-terminated engine string.
func C(s string) native.CString {
	return append([]byte(s), 0)
}

// Expr returns an expression record with the given text and value.
func Expr(text string, value float64) *native.Expression {
	return &native.Expression{String: C(text), Value: value}
}

// Scalar returns a logical, integer or double parameter record. A non-empty
// expr attaches an expression.
func Scalar(name string, tag int, value float64, expr string) *native.Parameter {
	p := &native.Parameter{Name: C(name), Type: tag, DoubleValue: value}
	if expr != "" {
		p.Expr = Expr(expr, value)
	}
	return p
}

// Str returns a string parameter record.
func Str(name, value string) *native.Parameter {
	return &native.Parameter{Name: C(name), Type: native.ParamString, String: C(value)}
}

// Floats returns a double array parameter record. exprs runs parallel to
// values; "" entries stay nil and a nil exprs leaves the list absent.
func Floats(name string, values []float64, exprs []string) *native.Parameter {
	p := &native.Parameter{
		Name:        C(name),
		Type:        native.ParamDoubleArray,
		DoubleArray: &native.DoubleArray{A: values},
	}
	if exprs != nil {
		list := &native.ExprList{List: make([]*native.Expression, len(exprs))}
		for i, e := range exprs {
			if e == "" {
				continue
			}
			v := 0.0
			if i < len(values) {
				v = values[i]
			}
			list.List[i] = Expr(e, v)
		}
		p.ExprList = list
	}
	return p
}

// Strs returns a string array parameter record.
func Strs(name string, values ...string) *native.Parameter {
	arr := &native.CharPArray{P: make([]native.CString, len(values))}
	for i, v := range values {
		arr.P[i] = C(v)
	}
	return &native.Parameter{Name: C(name), Type: native.ParamStringArray, MString: arr}
}

// Command returns a command record.
func Command(name string, params ...*native.Parameter) *native.Command {
	return &native.Command{Name: C(name), Params: params}
}

// Element returns an element record whose base type is a class called base.
func Element(name, base string, length float64, params ...*native.Parameter) *native.Element {
	class := &native.Element{Name: C(base)}
	class.BaseType = class
	return &native.Element{
		Name:     C(name),
		Length:   length,
		Def:      Command(name, params...),
		Parent:   class,
		BaseType: class,
	}
}

// Table returns a table with the given double and string columns. Column
// order follows floatCols (sorted by name) followed by strCols.
func Table(name string, rows int, floatCols map[string][]float64, strCols map[string][]string, order ...string) *native.Table {
	t := &native.Table{Name: C(name), Type: C("user"), Rows: rows, Columns: &native.NameList{}}
	for _, col := range order {
		t.Columns.Add(C(col))
		if f, ok := floatCols[col]; ok {
			t.DataTypes = append(t.DataTypes, native.ColumnDouble)
			t.FloatCols = append(t.FloatCols, f)
			t.StringCols = append(t.StringCols, nil)
			continue
		}
		s := strCols[col]
		cs := make([]native.CString, len(s))
		for i, v := range s {
			cs[i] = C(v)
		}
		t.DataTypes = append(t.DataTypes, native.ColumnString)
		t.FloatCols = append(t.FloatCols, nil)
		t.StringCols = append(t.StringCols, cs)
	}
	return t
}
