package memengine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/vk/madxbind/internal/native"
)

// driftTolerance is the smallest gap that gets an implicit drift.
const driftTolerance = 1e-9

// maxNesting bounds nested sequence references during expansion.
const maxNesting = 16

type seqBuilder struct {
	seq    *native.Sequence
	refer  string
	counts map[string]int
	last   map[string]float64 // last `at` per placed name, for from=
}

// defineElement creates or redefines element name as a child of parent.
func (e *Engine) defineElement(ctx context.Context, name, parent string, args []arg) (*native.Element, bool) {
	if _, isClass := e.classes[name]; isClass {
		e.warn(ctx, "cannot redefine base class %q", name)
		return nil, false
	}
	if e.sequence(name) != nil {
		e.warn(ctx, "%q is a sequence, element definition ignored", name)
		return nil, false
	}
	p := e.element(parent)
	if p == nil {
		e.warn(ctx, "unknown element class %q for %q", parent, name)
		return nil, false
	}
	if p.BaseType == nil {
		p.BaseType = p
	}

	el := e.elements[name]
	if el == nil {
		el = &native.Element{}
		e.elements[name] = el
	}
	el.Name = cstr(name)
	el.Parent = p
	el.BaseType = p.BaseType
	el.Def = cloneCommand(p.Def, name)
	el.Length = p.Length

	e.setElementParams(ctx, el, args)
	return el, true
}

// setElementParams applies args to el, skipping placement keys.
func (e *Engine) setElementParams(ctx context.Context, el *native.Element, args []arg) {
	specs := classSpecs(gostr(el.BaseType.Name))
	var own []arg
	for _, a := range args {
		if !placementKeys[a.key] {
			own = append(own, a)
		}
	}
	e.applyArgs(ctx, el.Def, specs, own, false)
	if l := findParam(el.Def, "l"); l != nil {
		el.Length = l.DoubleValue
	}
}

func (e *Engine) startSequence(ctx context.Context, name string, args []arg) {
	if e.building != nil {
		e.warn(ctx, "sequence %q was never closed, discarded", gostr(e.building.seq.Name))
	}
	if _, isElement := e.elements[name]; isElement {
		e.warn(ctx, "%q is an element, sequence definition ignored", name)
		return
	}
	cmd := defaultCommand("sequence", commandDefs["sequence"])
	e.applyArgs(ctx, cmd, commandDefs["sequence"], args, false)

	refer := stringParam(cmd, "refer")
	switch refer {
	case "centre", "center", "":
		refer = "centre"
	case "entry", "exit":
	default:
		e.warn(ctx, "unknown refer=%q for sequence %q, using centre", refer, name)
		refer = "centre"
	}

	e.building = &seqBuilder{
		seq:    &native.Sequence{Name: cstr(name), Length: numberParam(cmd, "l")},
		refer:  refer,
		counts: make(map[string]int),
		last:   make(map[string]float64),
	}
}

func (e *Engine) endSequence(ctx context.Context) {
	b := e.building
	e.building = nil

	name := gostr(b.seq.Name)
	if old := e.sequence(name); old != nil && old == e.current {
		e.current = nil
	}
	if beam, ok := e.beams[name]; ok {
		b.seq.Beam = beam
	}
	e.storeSequence(b.seq)
	e.info(ctx, "Sequence defined.", slog.String("sequence", name), slog.Int("nodes", len(b.seq.Nodes)))
}

// place adds a node for an element or a nested sequence.
func (e *Engine) place(ctx context.Context, name string, args []arg) {
	b := e.building
	var (
		at     float64
		haveAt bool
		from   string
	)
	for _, a := range args {
		switch a.key {
		case "at":
			v, _, ok := e.eval(ctx, a.value, false)
			if !ok {
				return
			}
			at, haveAt = v, true
		case "from":
			from, _ = unquote(a.value)
		}
	}
	if !haveAt {
		e.warn(ctx, "placement of %q in %q has no position, ignored", name, gostr(b.seq.Name))
		return
	}

	switch from {
	case "", "#s":
	case "#e":
		at += b.seq.Length
	default:
		ref, ok := b.last[from]
		if !ok {
			e.warn(ctx, "from=%q does not name an earlier placement, ignored", from)
			return
		}
		at += ref
	}

	node := &native.Node{}
	if sub := e.sequence(name); sub != nil {
		node.Sequence = sub
		node.Length = sub.Length
	} else if el := e.element(name); el != nil {
		node.Element = el
		node.Length = el.Length
	} else {
		e.warn(ctx, "unknown element %q placed in %q, ignored", name, gostr(b.seq.Name))
		return
	}

	switch b.refer {
	case "entry":
		at += node.Length / 2
	case "exit":
		at -= node.Length / 2
	}
	node.Position = at
	b.counts[name]++
	b.last[name] = at
	node.Name = cstr(fmt.Sprintf("%s:%d", name, b.counts[name]))
	b.seq.Nodes = append(b.seq.Nodes, node)
}

type placed struct {
	el  *native.Element
	pos float64
}

// use expands seq, makes it the current sequence and attaches its beam.
func (e *Engine) use(ctx context.Context, seq *native.Sequence) {
	e.refresh(ctx)
	var flat []placed
	e.flatten(ctx, seq, 0, 0, &flat)
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].pos-flat[i].el.Length/2 < flat[j].pos-flat[j].el.Length/2
	})

	counts := make(map[string]int)
	var nodes []*native.Node
	add := func(el *native.Element, pos float64) {
		name := gostr(el.Name)
		counts[name]++
		nodes = append(nodes, &native.Node{
			Name:     cstr(fmt.Sprintf("%s:%d", name, counts[name])),
			Position: pos,
			Length:   el.Length,
			Element:  el,
		})
	}

	cursor := 0.0
	for _, p := range flat {
		entry := p.pos - p.el.Length/2
		gap := entry - cursor
		switch {
		case gap > driftTolerance:
			add(e.drift(gap), cursor+gap/2)
		case gap < -driftTolerance:
			e.warn(ctx, "negative drift of %g before %s in %s", gap, gostr(p.el.Name), gostr(seq.Name))
		}
		add(p.el, p.pos)
		cursor = p.pos + p.el.Length/2
	}
	if len(flat) > 0 {
		if gap := seq.Length - cursor; gap > driftTolerance {
			add(e.drift(gap), cursor+gap/2)
		}
	}

	seq.ExpandedNodes = nodes
	seq.TwissValid = false
	e.current = seq

	name := gostr(seq.Name)
	if beam, ok := e.beams[name]; ok {
		seq.Beam = beam
	} else if seq.Beam == nil && e.defaultBeam != nil {
		seq.Beam = e.defaultBeam
	}
	e.info(ctx, "Sequence expanded.", slog.String("sequence", name), slog.Int("nodes", len(nodes)))
}

func (e *Engine) flatten(ctx context.Context, seq *native.Sequence, offset float64, depth int, out *[]placed) {
	if depth > maxNesting {
		e.warn(ctx, "sequence %q nests too deeply, expansion truncated", gostr(seq.Name))
		return
	}
	for _, n := range seq.Nodes {
		switch {
		case n.Element != nil:
			*out = append(*out, placed{el: n.Element, pos: n.Position + offset})
		case n.Sequence != nil:
			e.flatten(ctx, n.Sequence, offset+n.Position-n.Sequence.Length/2, depth+1, out)
		}
	}
}

// drift returns the implicit drift of the given length, creating it on
// first use. Implicit drifts stay out of the element map, so a later user
// definition with the same name cannot alter them.
func (e *Engine) drift(length float64) *native.Element {
	key := strconv.FormatFloat(length, 'g', 12, 64)
	if el, ok := e.drifts[key]; ok {
		return el
	}
	class := e.classes["drift"]
	var name string
	for i := len(e.drifts); ; i++ {
		name = fmt.Sprintf("drift_%d", i)
		if _, taken := e.elements[name]; !taken && !e.isImplicitDrift(name) {
			break
		}
	}
	def := cloneCommand(class.Def, name)
	l := findParam(def, "l")
	l.DoubleValue = length
	el := &native.Element{Name: cstr(name), Length: length, Def: def, Parent: class, BaseType: class}
	e.drifts[key] = el
	return el
}

func (e *Engine) isImplicitDrift(name string) bool {
	for _, el := range e.drifts {
		if gostr(el.Name) == name {
			return true
		}
	}
	return false
}
