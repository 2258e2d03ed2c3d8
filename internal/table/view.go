package table

import (
	"fmt"

	"github.com/vk/madxbind/internal/errdefs"
)

// Epoch counts mutating engine calls. Views record the epoch they were
// created in and are valid while it is current.
type Epoch struct {
	n uint64
}

// Advance starts a new epoch, invalidating every outstanding view.
func (e *Epoch) Advance() { e.n++ }

// Current returns the current epoch number.
func (e *Epoch) Current() uint64 { return e.n }

// Type is the host-side datatype of a column.
type Type int

const (
	TypeFloat Type = iota
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Column is either a *FloatView or a StringColumn.
type Column interface {
	Type() Type
	Len() int
	isColumn()
}

// FloatView is a borrowed, read-only window onto a numeric column.
type FloatView struct {
	data  []float64
	gen   uint64
	epoch *Epoch
}

// NewFloatView wraps data, binding it to the current epoch of e.
func NewFloatView(e *Epoch, data []float64) *FloatView {
	return &FloatView{data: data, gen: e.Current(), epoch: e}
}

func (*FloatView) Type() Type { return TypeFloat }
func (*FloatView) isColumn()  {}

// Len returns the number of rows. It stays answerable after the view goes
// stale.
func (v *FloatView) Len() int { return len(v.data) }

// Err returns ErrStaleView once the engine has moved past the view's epoch.
func (v *FloatView) Err() error {
	if v.epoch != nil && v.epoch.Current() != v.gen {
		return errdefs.ErrStaleView
	}
	return nil
}

// Valid reports whether the view may still be read.
func (v *FloatView) Valid() bool { return v.Err() == nil }

// At returns row i. It panics if the view is stale or i is out of range.
func (v *FloatView) At(i int) float64 {
	if err := v.Err(); err != nil {
		panic(err)
	}
	return v.data[i]
}

// Copy returns an owned copy of the column.
func (v *FloatView) Copy() ([]float64, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(v.data))
	copy(out, v.data)
	return out, nil
}

// StringColumn is a materialized string column. It owns its data.
type StringColumn []string

func (StringColumn) Type() Type { return TypeString }
func (c StringColumn) Len() int { return len(c) }
func (StringColumn) isColumn()  {}
