package errdefs

import (
	"errors"
	"fmt"
)

// Failure classes. Typed errors below report themselves as one of these.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrInvalidParameterType = errors.New("invalid parameter type")
	ErrIntegerRange         = errors.New("integer parameter out of range")
	ErrUnknownColumnType    = errors.New("unknown column type")
	ErrEmptyNode            = errors.New("empty node")
	ErrEngineNotStarted     = errors.New("engine not started")
	ErrStaleView            = errors.New("column view invalidated by a later engine call")
)

// Kind names the registry a lookup was made against.
type Kind string

const (
	KindSequence Kind = "sequence"
	KindTable    Kind = "table"
	KindColumn   Kind = "column"
	KindCommand  Kind = "command"
	KindBackend  Kind = "backend"
	KindModel    Kind = "model"
)

// NotFoundError reports a name lookup miss in one of the engine registries.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound is a shorthand constructor for NotFoundError.
func NotFound(kind Kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// ColumnNotFoundError reports that a table has no column with the given name.
type ColumnNotFoundError struct {
	Column string
	Table  string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

func (e *ColumnNotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports an operation that the engine cannot serve in its
// current state, e.g. a twiss table that was never computed.
type InvalidStateError struct {
	Reason string
	Err    error
}

func (e *InvalidStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func (e *InvalidStateError) Unwrap() error { return e.Err }

// InvalidState is a shorthand constructor for InvalidStateError.
func InvalidState(reason string) error {
	return &InvalidStateError{Reason: reason}
}

// InvalidParameterTypeError reports a parameter record whose type tag (or
// constraint kind, when Constraint is set) is not one the decoder knows.
// It points at a version mismatch between the binding and the engine.
type InvalidParameterTypeError struct {
	Name       string
	Tag        int
	Constraint bool
}

func (e *InvalidParameterTypeError) Error() string {
	what := "type tag"
	if e.Constraint {
		what = "constraint kind"
	}
	if e.Name == "" {
		return fmt.Sprintf("invalid parameter %s %d", what, e.Tag)
	}
	return fmt.Sprintf("parameter %q: invalid %s %d", e.Name, what, e.Tag)
}

func (e *InvalidParameterTypeError) Is(target error) bool { return target == ErrInvalidParameterType }

// IntegerRangeError reports an integer parameter whose stored double is not
// finite or does not fit in an int.
type IntegerRangeError struct {
	Name  string
	Value float64
}

func (e *IntegerRangeError) Error() string {
	return fmt.Sprintf("parameter %q: value %g is not representable as an integer", e.Name, e.Value)
}

func (e *IntegerRangeError) Is(target error) bool { return target == ErrIntegerRange }

// UnknownColumnTypeError reports a column whose datatype discriminator is
// neither double, string nor invalid.
type UnknownColumnTypeError struct {
	Tag    byte
	Column string
}

func (e *UnknownColumnTypeError) Error() string {
	return fmt.Sprintf("unknown datatype %q in column %q", e.Tag, e.Column)
}

func (e *UnknownColumnTypeError) Is(target error) bool { return target == ErrUnknownColumnType }

// EmptyNodeError reports a node that references neither an element nor a
// sequence. This breaks an engine invariant and is treated as fatal for the
// engine instance.
type EmptyNodeError struct {
	Sequence string
	Index    int
}

func (e *EmptyNodeError) Error() string {
	return fmt.Sprintf("sequence %q: node %d has neither element nor subsequence", e.Sequence, e.Index)
}

func (e *EmptyNodeError) Is(target error) bool { return target == ErrEmptyNode }
