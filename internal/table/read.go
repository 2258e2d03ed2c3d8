package table

import (
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
	"github.com/vk/madxbind/internal/registry"
)

// Name returns the table's name.
func Name(t *native.Table) string {
	return marshal.String(t.Name)
}

// Columns returns the column names of t in stored order.
func Columns(t *native.Table) []string {
	return registry.Names(t.Columns)
}

// ReadColumn reads column of t. Double and integer columns become a
// FloatView bound to e; string columns are decoded into a StringColumn.
func ReadColumn(e *Epoch, t *native.Table, column string) (Column, error) {
	info := t.ColumnInfo(marshal.Identifier(column))

	switch info.DataType {
	case native.ColumnDouble, native.ColumnInteger:
		data := info.Floats
		if n := clamp(info.Length, len(data)); n < len(data) {
			data = data[:n]
		}
		return NewFloatView(e, data), nil
	case native.ColumnString:
		n := clamp(info.Length, len(info.Strings))
		out := make(StringColumn, n)
		for i := 0; i < n; i++ {
			out[i] = marshal.String(info.Strings[i])
		}
		return out, nil
	case native.ColumnInvalid:
		return nil, &errdefs.ColumnNotFoundError{Column: column, Table: Name(t)}
	default:
		return nil, &errdefs.UnknownColumnTypeError{Tag: info.DataType, Column: column}
	}
}

// clamp bounds the engine's row count by the stored buffer length.
func clamp(rows, stored int) int {
	if rows < 0 {
		return 0
	}
	if rows > stored {
		return stored
	}
	return rows
}
