package native

import (
	"bytes"
	"sort"
)

// NameList is a name registry: Names in insertion order plus Index, the
// positions of Names sorted by name. Lookups binary-search Index.
type NameList struct {
	Names []CString
	Index []int
}

// NewNameList builds a name list from names in insertion order.
func NewNameList(names ...CString) *NameList {
	l := &NameList{}
	for _, n := range names {
		l.Add(n)
	}
	return l
}

// Len returns the number of names in the list. A nil list is empty.
func (l *NameList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Names)
}

// Pos returns the insertion position of name, or -1 if it is absent.
func (l *NameList) Pos(name CString) int {
	if l == nil || name == nil {
		return -1
	}
	key := trimNUL(name)
	i := l.search(key)
	if i < len(l.Index) && bytes.Equal(trimNUL(l.Names[l.Index[i]]), key) {
		return l.Index[i]
	}
	return -1
}

// Add appends name and returns its position. If the name is already present
// its existing position is returned and the list is left unchanged.
func (l *NameList) Add(name CString) int {
	key := trimNUL(name)
	i := l.search(key)
	if i < len(l.Index) && bytes.Equal(trimNUL(l.Names[l.Index[i]]), key) {
		return l.Index[i]
	}
	pos := len(l.Names)
	l.Names = append(l.Names, name)
	l.Index = append(l.Index, 0)
	copy(l.Index[i+1:], l.Index[i:])
	l.Index[i] = pos
	return pos
}

func (l *NameList) search(key []byte) int {
	return sort.Search(len(l.Index), func(i int) bool {
		return bytes.Compare(trimNUL(l.Names[l.Index[i]]), key) >= 0
	})
}

func trimNUL(c CString) []byte {
	if i := bytes.IndexByte(c, 0); i >= 0 {
		return c[:i]
	}
	return c
}
