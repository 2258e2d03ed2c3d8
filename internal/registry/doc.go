// Package registry resolves names against the engine's name-indexed lists.
//
// Sequences, tables, columns and defined commands are all stored by the
// engine as a NameList plus a parallel slice of entries. Every lookup in the
// binding goes through Find, so a miss always surfaces the same way: a
// NotFoundError carrying the registry kind and the queried name, never a
// zero entry.
package registry
