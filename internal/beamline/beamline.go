// Package beamline walks the node lists of a sequence and decodes each node
// into an attribute mapping.
package beamline

import (
	"errors"
	"fmt"

	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
	"github.com/vk/madxbind/internal/param"
)

// Order selects which node list of a sequence to walk.
type Order int

const (
	// Original is the declared node list, in declaration order.
	Original Order = iota
	// Expanded is the tracking-ready node array. It can repeat elements and
	// is never shorter than the original list.
	Expanded
)

func (o Order) String() string {
	if o == Expanded {
		return "expanded"
	}
	return "original"
}

// Node is a decoded node: an ElementNode or a SequenceNode.
type Node interface {
	// Attributes returns the node as a name to value mapping.
	Attributes() map[string]param.Value
	isNode()
}

// ElementNode is a placement of an element.
type ElementNode struct {
	Name     string
	Length   float64
	BaseType string
	Position float64
	// Params is the decoded definition of the element.
	Params *param.Command
}

// SequenceNode is a placement of a nested sequence.
type SequenceNode struct {
	Sequence string
	Position float64
}

func (ElementNode) isNode()  {}
func (SequenceNode) isNode() {}

// Attributes returns the element's parameters plus the injected name,
// length and type fields. Injected fields shadow parameters of the same
// name.
func (n ElementNode) Attributes() map[string]param.Value {
	out := make(map[string]param.Value)
	if n.Params != nil {
		for k, v := range n.Params.Map() {
			out[k] = v
		}
	}
	out["name"] = param.String{Value: n.Name}
	out["length"] = param.Float{Valued: param.Literal(n.Length)}
	out["type"] = param.String{Value: n.BaseType}
	return out
}

// Attributes returns exactly {type: "sequence", sequence: <name>}.
func (n SequenceNode) Attributes() map[string]param.Value {
	return map[string]param.Value{
		"type":     param.String{Value: "sequence"},
		"sequence": param.String{Value: n.Sequence},
	}
}

// Walk decodes every node of seq in the given order. A node with neither
// an element nor a sequence aborts the walk with an EmptyNodeError. Walking
// a non-empty sequence in expanded order before it was expanded is an
// InvalidStateError.
func Walk(seq *native.Sequence, order Order) ([]Node, error) {
	name := marshal.String(seq.Name)

	nodes := seq.Nodes
	if order == Expanded {
		if seq.ExpandedNodes == nil && len(seq.Nodes) > 0 {
			return nil, errdefs.InvalidState(fmt.Sprintf("sequence %q not expanded", name))
		}
		nodes = seq.ExpandedNodes
	}

	out := make([]Node, 0, len(nodes))
	for i, raw := range nodes {
		n, err := decodeNode(raw)
		if err != nil {
			var ee *errdefs.EmptyNodeError
			if errors.As(err, &ee) {
				ee.Sequence, ee.Index = name, i
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func decodeNode(raw *native.Node) (Node, error) {
	switch {
	case raw == nil:
		return nil, &errdefs.EmptyNodeError{}
	case raw.Element != nil:
		return decodeElement(raw)
	case raw.Sequence != nil:
		return SequenceNode{Sequence: marshal.String(raw.Sequence.Name), Position: raw.Position}, nil
	default:
		return nil, &errdefs.EmptyNodeError{}
	}
}

func decodeElement(raw *native.Node) (Node, error) {
	el := raw.Element
	params, err := param.DecodeCommand(el.Def)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", marshal.String(el.Name), err)
	}
	return ElementNode{
		Name:     marshal.String(el.Name),
		Length:   el.Length,
		BaseType: baseType(el),
		Position: raw.Position,
		Params:   params,
	}, nil
}

// baseType returns the name of the element's root class.
func baseType(el *native.Element) string {
	if el.BaseType != nil {
		return marshal.String(el.BaseType.Name)
	}
	root := el
	for i := 0; root.Parent != nil && root.Parent != root && i < 64; i++ {
		root = root.Parent
	}
	return marshal.String(root.Name)
}
