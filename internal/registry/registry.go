package registry

import (
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

// Pos returns the position of name in list, or -1. The name is normalized
// the way the engine stores identifiers.
func Pos(list *native.NameList, name string) int {
	return list.Pos(marshal.Identifier(name))
}

// Exists reports whether name is present in list.
func Exists(list *native.NameList, name string) bool {
	return Pos(list, name) >= 0
}

// Find resolves name in list and returns the entry at the same position of
// items. A missing name, a position past the end of items, or a nil entry
// are all misses.
func Find[T any](kind errdefs.Kind, list *native.NameList, items []*T, name string) (*T, error) {
	pos := Pos(list, name)
	if pos < 0 || pos >= len(items) || items[pos] == nil {
		return nil, errdefs.NotFound(kind, name)
	}
	return items[pos], nil
}

// Names returns the names of list in stored order.
func Names(list *native.NameList) []string {
	out := make([]string, list.Len())
	for i := range out {
		out[i] = marshal.String(list.Names[i])
	}
	return out
}

// Sequence resolves a sequence by name.
func Sequence(l *native.SequenceList, name string) (*native.Sequence, error) {
	if l == nil {
		return nil, errdefs.NotFound(errdefs.KindSequence, name)
	}
	return Find(errdefs.KindSequence, l.Names, l.Sequences, name)
}

// Table resolves a table by name.
func Table(l *native.TableList, name string) (*native.Table, error) {
	if l == nil {
		return nil, errdefs.NotFound(errdefs.KindTable, name)
	}
	return Find(errdefs.KindTable, l.Names, l.Tables, name)
}

// Command resolves a defined command by name.
func Command(l *native.CommandList, name string) (*native.Command, error) {
	if l == nil {
		return nil, errdefs.NotFound(errdefs.KindCommand, name)
	}
	return Find(errdefs.KindCommand, l.Names, l.Commands, name)
}
