package memengine

import (
	"fmt"
	"strconv"

	"github.com/vk/madxbind/internal/native"
)

type column struct {
	name    string
	floats  []float64
	strings []string
}

// tableBuilder collects columns and header lines for a new table.
type tableBuilder struct {
	name, typ string
	rows      int
	cols      []column
	header    []string
}

func newTableBuilder(name, typ string, rows int) *tableBuilder {
	return &tableBuilder{name: name, typ: typ, rows: rows}
}

func (b *tableBuilder) floats(name string, data []float64) {
	b.cols = append(b.cols, column{name: name, floats: data})
}

func (b *tableBuilder) strings(name string, data []string) {
	b.cols = append(b.cols, column{name: name, strings: data})
}

func (b *tableBuilder) headerText(key, value string) {
	b.header = append(b.header, fmt.Sprintf("@ %-16s %%%02ds %s", key, len(value)+2, strconv.Quote(value)))
}

func (b *tableBuilder) headerNumber(key string, v float64) {
	b.header = append(b.header, fmt.Sprintf("@ %-16s %%le %s", key, strconv.FormatFloat(v, 'g', 16, 64)))
}

// keep restricts the columns to names, in that order. Unknown names are
// dropped; an empty list keeps every column.
func (b *tableBuilder) keep(names []string) {
	if len(names) == 0 {
		return
	}
	byName := make(map[string]column, len(b.cols))
	for _, c := range b.cols {
		byName[c.name] = c
	}
	var out []column
	seen := make(map[string]bool)
	for _, n := range names {
		if c, ok := byName[n]; ok && !seen[n] {
			out = append(out, c)
			seen[n] = true
		}
	}
	b.cols = out
}

func (b *tableBuilder) build() *native.Table {
	t := &native.Table{
		Name:    cstr(b.name),
		Type:    cstr(b.typ),
		Rows:    b.rows,
		Columns: &native.NameList{},
		Header:  &native.CharPArray{},
	}
	for _, c := range b.cols {
		t.Columns.Add(cstr(c.name))
		if c.strings != nil {
			cs := make([]native.CString, len(c.strings))
			for i, s := range c.strings {
				cs[i] = cstr(s)
			}
			t.DataTypes = append(t.DataTypes, native.ColumnString)
			t.FloatCols = append(t.FloatCols, nil)
			t.StringCols = append(t.StringCols, cs)
			continue
		}
		t.DataTypes = append(t.DataTypes, native.ColumnDouble)
		t.FloatCols = append(t.FloatCols, c.floats)
		t.StringCols = append(t.StringCols, nil)
	}
	for _, h := range b.header {
		t.Header.P = append(t.Header.P, cstr(h))
	}
	return t
}
