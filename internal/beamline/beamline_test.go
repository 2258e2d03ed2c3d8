package beamline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/native"
	"github.com/vk/madxbind/internal/param"
	tu "github.com/vk/madxbind/internal/testutil"
)

// fodoCell builds a sequence "ring" holding two placements of a nested
// "cell" sequence, expanded into the cell's elements twice.
func fodoCell() *native.Sequence {
	qf := tu.Element("qf", "quadrupole", 1, tu.Scalar("k1", native.ParamDouble, 0.3, "kqf"))
	d := tu.Element("d", "drift", 2)

	cell := &native.Sequence{Name: tu.C("cell"), Length: 3}
	cell.Nodes = []*native.Node{
		{Name: tu.C("qf:1"), Element: qf, Position: 0.5},
		{Name: tu.C("d:1"), Element: d, Position: 2},
	}
	cell.ExpandedNodes = cell.Nodes

	ring := &native.Sequence{Name: tu.C("ring"), Length: 6}
	ring.Nodes = []*native.Node{
		{Name: tu.C("cell:1"), Sequence: cell, Position: 1.5},
		{Name: tu.C("cell:2"), Sequence: cell, Position: 4.5},
	}
	ring.ExpandedNodes = []*native.Node{
		{Name: tu.C("qf:1"), Element: qf, Position: 0.5},
		{Name: tu.C("d:1"), Element: d, Position: 2},
		{Name: tu.C("qf:2"), Element: qf, Position: 3.5},
		{Name: tu.C("d:2"), Element: d, Position: 5},
	}
	return ring
}

func TestWalk_OriginalNotLongerThanExpanded(t *testing.T) {
	ring := fodoCell()

	original, err := Walk(ring, Original)
	require.NoError(t, err)
	expanded, err := Walk(ring, Expanded)
	require.NoError(t, err)

	assert.Len(t, original, 2)
	assert.Len(t, expanded, 4)
	assert.LessOrEqual(t, len(original), len(expanded))
}

func TestWalk_SequenceNodeShape(t *testing.T) {
	nodes, err := Walk(fodoCell(), Original)
	require.NoError(t, err)

	attrs := nodes[0].Attributes()
	assert.Equal(t, map[string]param.Value{
		"type":     param.String{Value: "sequence"},
		"sequence": param.String{Value: "cell"},
	}, attrs)
	assert.NotContains(t, attrs, "length")
	assert.NotContains(t, attrs, "name")
}

func TestWalk_ElementNodeInjectsFields(t *testing.T) {
	nodes, err := Walk(fodoCell(), Expanded)
	require.NoError(t, err)

	el, ok := nodes[0].(ElementNode)
	require.True(t, ok)
	assert.Equal(t, 0.5, el.Position)

	attrs := el.Attributes()
	assert.Equal(t, param.String{Value: "qf"}, attrs["name"])
	assert.Equal(t, param.String{Value: "quadrupole"}, attrs["type"])
	assert.Equal(t, param.Float{Valued: param.Literal(1.0)}, attrs["length"])
	assert.Equal(t, param.Float{Valued: param.Derived(0.3, "kqf")}, attrs["k1"])
}

func TestWalk_EmptySequence(t *testing.T) {
	seq := &native.Sequence{Name: tu.C("empty")}
	for _, order := range []Order{Original, Expanded} {
		t.Run(order.String(), func(t *testing.T) {
			nodes, err := Walk(seq, order)
			require.NoError(t, err)
			assert.Empty(t, nodes)
		})
	}
}

func TestWalk_NotExpanded(t *testing.T) {
	seq := fodoCell()
	seq.ExpandedNodes = nil

	original, err := Walk(seq, Original)
	require.NoError(t, err)
	assert.NotEmpty(t, original)

	nodes, err := Walk(seq, Expanded)
	require.ErrorIs(t, err, errdefs.ErrInvalidState)
	assert.Contains(t, err.Error(), "not expanded")
	assert.Nil(t, nodes)
}

func TestWalk_EmptyNodeIsFatal(t *testing.T) {
	seq := fodoCell()
	seq.ExpandedNodes[2] = &native.Node{Name: tu.C("ghost")}

	nodes, err := Walk(seq, Expanded)
	require.Error(t, err)
	assert.Nil(t, nodes)
	assert.ErrorIs(t, err, errdefs.ErrEmptyNode)

	var en *errdefs.EmptyNodeError
	require.ErrorAs(t, err, &en)
	assert.Equal(t, "ring", en.Sequence)
	assert.Equal(t, 2, en.Index)
}

func TestWalk_DecodeFailureNamesElement(t *testing.T) {
	seq := fodoCell()
	bad := tu.Element("bad", "marker", 0, &native.Parameter{Name: tu.C("x"), Type: 77})
	seq.ExpandedNodes = append(seq.ExpandedNodes, &native.Node{Name: tu.C("bad:1"), Element: bad})

	_, err := Walk(seq, Expanded)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameterType)
	assert.Contains(t, err.Error(), `element "bad"`)
}

func TestBaseType_FollowsParents(t *testing.T) {
	root := &native.Element{Name: tu.C("sbend")}
	root.Parent = root
	mid := &native.Element{Name: tu.C("mb"), Parent: root}
	leaf := &native.Element{Name: tu.C("mb.a1"), Parent: mid}

	assert.Equal(t, "sbend", baseType(leaf))
}
