package model

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/madxbind/internal/fsutil"
	"github.com/vk/madxbind/internal/rangeref"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes every top-level block of a model file.
type fileRoot struct {
	Models []*modelBlock `hcl:"model,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type modelBlock struct {
	Name            string           `hcl:"name,label"`
	Real            *bool            `hcl:"real,optional"`
	Extends         []string         `hcl:"extends,optional"`
	Repository      *string          `hcl:"repository,optional"`
	DBDirs          []string         `hcl:"dbdirs,optional"`
	InitFiles       []string         `hcl:"init_files,optional"`
	DefaultOptic    *string          `hcl:"default_optic,optional"`
	DefaultSequence *string          `hcl:"default_sequence,optional"`
	Beams           []*attrBlock     `hcl:"beam,block"`
	Optics          []*opticBlock    `hcl:"optic,block"`
	Sequences       []*sequenceBlock `hcl:"sequence,block"`
}

// attrBlock is a labelled block of free-form attributes.
type attrBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type opticBlock struct {
	Name      string   `hcl:"name,label"`
	InitFiles []string `hcl:"init_files,optional"`
}

type sequenceBlock struct {
	Name         string        `hcl:"name,label"`
	Beam         *string       `hcl:"beam,optional"`
	DefaultRange *string       `hcl:"default_range,optional"`
	Aperfiles    []string      `hcl:"aperfiles,optional"`
	Ranges       []*rangeBlock `hcl:"range,block"`
}

type rangeBlock struct {
	Name         string       `hcl:"name,label"`
	First        *string      `hcl:"first,optional"`
	Last         *string      `hcl:"last,optional"`
	DefaultTwiss *string      `hcl:"default_twiss,optional"`
	AperOffset   *string      `hcl:"aper_offset,optional"`
	TwissInitial []*attrBlock `hcl:"twiss_initial,block"`
}

// Attributes are the parameters of a command, e.g. of `beam`, as written in
// the definition.
type Attributes map[string]cty.Value

// Args returns the attributes in the form Engine.Command accepts.
func (a Attributes) Args() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Definition is a model with its whole `extends` chain merged in.
type Definition struct {
	Name string
	// Real models can be loaded; the others only serve as bases.
	Real    bool
	Extends []string
	// RepositoryOffset is the repository directory relative to the model
	// file or to the first existing entry of DBDirs.
	RepositoryOffset string
	DBDirs           []string
	InitFiles        []string
	DefaultOptic     string
	DefaultSequence  string
	Beams            map[string]Attributes
	Optics           map[string]*OpticDef
	Sequences        map[string]*SequenceDef
	// Dir is the directory of the file that defines the model.
	Dir string
}

// OpticDef lists the files that switch the machine to an optic.
type OpticDef struct {
	InitFiles []string
}

// SequenceDef describes one beam line of the model.
type SequenceDef struct {
	Beam         string
	DefaultRange string
	Aperfiles    []string
	Ranges       map[string]*RangeDef
}

// RangeDef is a named span of a sequence with its initial conditions.
type RangeDef struct {
	First        string
	Last         string
	DefaultTwiss string
	AperOffset   string
	TwissInitial map[string]Attributes
}

func newDefinition(name, dir string) *Definition {
	return &Definition{
		Name:      name,
		Beams:     make(map[string]Attributes),
		Optics:    make(map[string]*OpticDef),
		Sequences: make(map[string]*SequenceDef),
		Dir:       dir,
	}
}

// Repository returns the directory that init, optic and aperture files are
// resolved against.
func (d *Definition) Repository() string {
	for _, dir := range d.DBDirs {
		dir = d.abs(dir)
		if fsutil.IsDir(dir) {
			return filepath.Join(dir, d.RepositoryOffset)
		}
	}
	return filepath.Join(d.Dir, d.RepositoryOffset)
}

func (d *Definition) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.Dir, path)
}

// apply merges b over d: set scalars override, lists extend and labelled
// blocks merge by label.
func (d *Definition) apply(b *modelBlock) error {
	set(&d.RepositoryOffset, b.Repository)
	set(&d.DefaultOptic, b.DefaultOptic)
	set(&d.DefaultSequence, b.DefaultSequence)
	d.DBDirs = append(d.DBDirs, b.DBDirs...)
	d.InitFiles = append(d.InitFiles, b.InitFiles...)

	var errs []error
	for _, beam := range b.Beams {
		attrs, err := attributes(beam.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("beam %q: %w", beam.Name, err))
			continue
		}
		d.Beams[beam.Name] = mergeAttributes(d.Beams[beam.Name], attrs)
	}
	for _, optic := range b.Optics {
		o, ok := d.Optics[optic.Name]
		if !ok {
			o = &OpticDef{}
			d.Optics[optic.Name] = o
		}
		o.InitFiles = append(o.InitFiles, optic.InitFiles...)
	}
	for _, seq := range b.Sequences {
		s, ok := d.Sequences[seq.Name]
		if !ok {
			s = &SequenceDef{Ranges: make(map[string]*RangeDef)}
			d.Sequences[seq.Name] = s
		}
		if err := s.apply(seq); err != nil {
			errs = append(errs, fmt.Errorf("sequence %q: %w", seq.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SequenceDef) apply(b *sequenceBlock) error {
	set(&s.Beam, b.Beam)
	set(&s.DefaultRange, b.DefaultRange)
	s.Aperfiles = append(s.Aperfiles, b.Aperfiles...)

	var errs []error
	for _, rb := range b.Ranges {
		r, ok := s.Ranges[rb.Name]
		if !ok {
			r = &RangeDef{First: "#s", Last: "#e", TwissInitial: make(map[string]Attributes)}
			s.Ranges[rb.Name] = r
		}
		set(&r.First, rb.First)
		set(&r.Last, rb.Last)
		set(&r.DefaultTwiss, rb.DefaultTwiss)
		set(&r.AperOffset, rb.AperOffset)
		for _, ti := range rb.TwissInitial {
			attrs, err := attributes(ti.Body)
			if err != nil {
				errs = append(errs, fmt.Errorf("range %q: twiss_initial %q: %w", rb.Name, ti.Name, err))
				continue
			}
			r.TwissInitial[ti.Name] = mergeAttributes(r.TwissInitial[ti.Name], attrs)
		}
	}
	return errors.Join(errs...)
}

// Validate checks that every name the definition refers to is defined.
func (d *Definition) Validate() error {
	var errs []error
	if d.DefaultOptic != "" {
		if _, ok := d.Optics[d.DefaultOptic]; !ok {
			errs = append(errs, fmt.Errorf("default optic %q is not defined", d.DefaultOptic))
		}
	}
	if d.DefaultSequence != "" {
		if _, ok := d.Sequences[d.DefaultSequence]; !ok {
			errs = append(errs, fmt.Errorf("default sequence %q is not defined", d.DefaultSequence))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(d.Sequences)) {
		seq := d.Sequences[name]
		if seq.Beam != "" {
			if _, ok := d.Beams[seq.Beam]; !ok {
				errs = append(errs, fmt.Errorf("sequence %q: beam %q is not defined", name, seq.Beam))
			}
		}
		if seq.DefaultRange != "" {
			if _, ok := seq.Ranges[seq.DefaultRange]; !ok {
				errs = append(errs, fmt.Errorf("sequence %q: default range %q is not defined", name, seq.DefaultRange))
			}
		}
		for _, rname := range slices.Sorted(maps.Keys(seq.Ranges)) {
			r := seq.Ranges[rname]
			if _, err := rangeref.ParseSelector(r.First); err != nil {
				errs = append(errs, fmt.Errorf("sequence %q: range %q: %w", name, rname, err))
			}
			if _, err := rangeref.ParseSelector(r.Last); err != nil {
				errs = append(errs, fmt.Errorf("sequence %q: range %q: %w", name, rname, err))
			}
			if r.DefaultTwiss != "" {
				if _, ok := r.TwissInitial[r.DefaultTwiss]; !ok {
					errs = append(errs, fmt.Errorf("sequence %q: range %q: twiss_initial %q is not defined", name, rname, r.DefaultTwiss))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func set(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// attributes evaluates the attributes of a free-form block. Expressions are
// constant; there are no variables or functions in scope.
func attributes(body hcl.Body) (Attributes, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(Attributes, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		out[name] = val
	}
	return out, nil
}

func mergeAttributes(base, over Attributes) Attributes {
	out := make(Attributes, len(base)+len(over))
	maps.Copy(out, base)
	maps.Copy(out, over)
	return out
}

// linearize orders name and all its bases so that every model comes before
// its bases and the local order of each `extends` list is kept (C3).
func linearize(name string, bases func(string) ([]string, error)) ([]string, error) {
	memo := make(map[string][]string)
	visiting := make(map[string]bool)

	var walk func(string) ([]string, error)
	walk = func(n string) ([]string, error) {
		if l, ok := memo[n]; ok {
			return l, nil
		}
		if visiting[n] {
			return nil, fmt.Errorf("model %q extends itself", n)
		}
		visiting[n] = true
		defer delete(visiting, n)

		direct, err := bases(n)
		if err != nil {
			return nil, err
		}
		seqs := make([][]string, 0, len(direct)+1)
		for _, b := range direct {
			l, err := walk(b)
			if err != nil {
				return nil, err
			}
			seqs = append(seqs, slices.Clone(l))
		}
		seqs = append(seqs, slices.Clone(direct))

		merged, err := c3merge(seqs)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", n, err)
		}
		memo[n] = append([]string{n}, merged...)
		return memo[n], nil
	}
	return walk(name)
}

func c3merge(seqs [][]string) ([]string, error) {
	var out []string
	for {
		seqs = slices.DeleteFunc(seqs, func(s []string) bool { return len(s) == 0 })
		if len(seqs) == 0 {
			return out, nil
		}

		var head string
		found := false
		for _, s := range seqs {
			if !inTail(seqs, s[0]) {
				head, found = s[0], true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("inconsistent extends order")
		}

		out = append(out, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

func inTail(seqs [][]string, name string) bool {
	for _, s := range seqs {
		if slices.Contains(s[1:], name) {
			return true
		}
	}
	return false
}
