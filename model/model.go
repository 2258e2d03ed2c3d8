package model

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/madxbind/internal/ctxlog"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/rangeref"
)

// Engine is the part of an engine a model drives. *madx.Engine satisfies it.
type Engine interface {
	Call(path string) error
	Command(name string, args map[string]any) error
}

// Factory creates models from the definitions a locator finds.
type Factory struct {
	Locator Locator
	Engine  Engine
}

// Load looks up the model called name and loads its init files into the
// engine.
func (f *Factory) Load(ctx context.Context, name string) (*Model, error) {
	def, err := f.Locator.Definition(name)
	if err != nil {
		return nil, err
	}
	return New(ctx, def, f.Engine)
}

// Model is a machine description bound to an engine. It tracks which of
// its parts have been loaded so each is sent to the engine once.
type Model struct {
	def    *Definition
	engine Engine
	repo   string
	logger *slog.Logger

	beams     map[string]*Beam
	optics    map[string]*Optic
	sequences map[string]*Sequence
}

// New binds def to engine and loads the model's init files.
func New(ctx context.Context, def *Definition, engine Engine) (*Model, error) {
	m := &Model{
		def:       def,
		engine:    engine,
		repo:      def.Repository(),
		logger:    ctxlog.FromContext(ctx).With("model", def.Name),
		beams:     make(map[string]*Beam),
		optics:    make(map[string]*Optic),
		sequences: make(map[string]*Sequence),
	}
	for name, attrs := range def.Beams {
		m.beams[name] = &Beam{Name: name, Attributes: attrs, model: m}
	}
	for name, o := range def.Optics {
		m.optics[name] = &Optic{Name: name, def: o, model: m}
	}
	for name, s := range def.Sequences {
		seq := &Sequence{Name: name, def: s, model: m, ranges: make(map[string]*Range)}
		for rname, r := range s.Ranges {
			seq.ranges[rname] = &Range{Name: rname, def: r, seq: seq}
		}
		m.sequences[name] = seq
	}

	if err := m.load(def.InitFiles); err != nil {
		return nil, err
	}
	m.logger.Info("Model loaded.", "repository", m.repo, "init_files", len(def.InitFiles))
	return m, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.def.Name }

// Definition returns the merged definition the model was built from.
func (m *Model) Definition() *Definition { return m.def }

// Path resolves a file name against the model repository.
func (m *Model) Path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(m.repo, file)
}

func (m *Model) load(files []string) error {
	for _, f := range files {
		path := m.Path(f)
		m.logger.Debug("Loading model file.", "file", path)
		if err := m.engine.Call(path); err != nil {
			return fmt.Errorf("model %q: loading %s: %w", m.def.Name, path, err)
		}
	}
	return nil
}

// Beams returns the sorted beam names.
func (m *Model) Beams() []string { return slices.Sorted(maps.Keys(m.beams)) }

// Beam returns the beam called name.
func (m *Model) Beam(name string) (*Beam, error) {
	b, ok := m.beams[name]
	if !ok {
		return nil, fmt.Errorf("model %q: beam %q not found: %w", m.def.Name, name, errdefs.ErrNotFound)
	}
	return b, nil
}

// Optics returns the sorted optic names.
func (m *Model) Optics() []string { return slices.Sorted(maps.Keys(m.optics)) }

// Optic returns the optic called name.
func (m *Model) Optic(name string) (*Optic, error) {
	o, ok := m.optics[name]
	if !ok {
		return nil, fmt.Errorf("model %q: optic %q not found: %w", m.def.Name, name, errdefs.ErrNotFound)
	}
	return o, nil
}

// DefaultOptic returns the optic named by default_optic.
func (m *Model) DefaultOptic() (*Optic, error) {
	if m.def.DefaultOptic == "" {
		return nil, errdefs.InvalidState(fmt.Sprintf("model %q has no default optic", m.def.Name))
	}
	return m.Optic(m.def.DefaultOptic)
}

// Sequences returns the sorted sequence names.
func (m *Model) Sequences() []string { return slices.Sorted(maps.Keys(m.sequences)) }

// Sequence returns the sequence called name.
func (m *Model) Sequence(name string) (*Sequence, error) {
	s, ok := m.sequences[name]
	if !ok {
		return nil, fmt.Errorf("model %q: sequence %q not found: %w", m.def.Name, name, errdefs.ErrNotFound)
	}
	return s, nil
}

// DefaultSequence returns the sequence named by default_sequence.
func (m *Model) DefaultSequence() (*Sequence, error) {
	if m.def.DefaultSequence == "" {
		return nil, errdefs.InvalidState(fmt.Sprintf("model %q has no default sequence", m.def.Name))
	}
	return m.Sequence(m.def.DefaultSequence)
}

// Beam is a particle beam of the model.
type Beam struct {
	Name       string
	Attributes Attributes

	model  *Model
	loaded bool
}

// Load defines the beam in the engine, once.
func (b *Beam) Load() error {
	if b.loaded {
		return nil
	}
	if err := b.model.engine.Command("beam", b.Attributes.Args()); err != nil {
		return fmt.Errorf("beam %q: %w", b.Name, err)
	}
	b.loaded = true
	return nil
}

// Optic is a machine setting, loaded from its init files.
type Optic struct {
	Name string

	def    *OpticDef
	model  *Model
	loaded bool
}

// InitFiles returns the files the optic loads.
func (o *Optic) InitFiles() []string { return slices.Clone(o.def.InitFiles) }

// Load calls the optic's init files, once.
func (o *Optic) Load() error {
	if o.loaded {
		return nil
	}
	if err := o.model.load(o.def.InitFiles); err != nil {
		return err
	}
	o.loaded = true
	o.model.logger.Info("Optic loaded.", "optic", o.Name)
	return nil
}

// Sequence is a beam line of the model.
type Sequence struct {
	Name string

	def    *SequenceDef
	model  *Model
	ranges map[string]*Range

	used           bool
	twissCalled    bool
	apertureCalled bool
}

// Beam returns the beam the sequence runs with.
func (s *Sequence) Beam() (*Beam, error) {
	if s.def.Beam == "" {
		return nil, errdefs.InvalidState(fmt.Sprintf("sequence %q has no beam", s.Name))
	}
	return s.model.Beam(s.def.Beam)
}

// Use loads the sequence's beam and selects the sequence in the engine.
func (s *Sequence) Use() error {
	if s.def.Beam != "" {
		b, err := s.Beam()
		if err != nil {
			return err
		}
		if err := b.Load(); err != nil {
			return err
		}
	}
	if err := s.model.engine.Command("use", map[string]any{"sequence": s.Name}); err != nil {
		return fmt.Errorf("sequence %q: %w", s.Name, err)
	}
	s.used = true
	return nil
}

func (s *Sequence) ensureUsed() error {
	if s.used {
		return nil
	}
	return s.Use()
}

// Ranges returns the sorted names of the defined ranges.
func (s *Sequence) Ranges() []string { return slices.Sorted(maps.Keys(s.ranges)) }

// NamedRange returns the range called name.
func (s *Sequence) NamedRange(name string) (*Range, error) {
	r, ok := s.ranges[name]
	if !ok {
		return nil, fmt.Errorf("sequence %q: range %q not found: %w", s.Name, name, errdefs.ErrNotFound)
	}
	return r, nil
}

// DefaultRange returns the range named by default_range, or the full
// sequence when none is set.
func (s *Sequence) DefaultRange() (*Range, error) {
	if s.def.DefaultRange == "" {
		return s.Range("#s", "#e")
	}
	return s.NamedRange(s.def.DefaultRange)
}

// Range returns an ad-hoc range between two node selectors. It has no
// initial conditions.
func (s *Sequence) Range(first, last string) (*Range, error) {
	def := &RangeDef{First: first, Last: last}
	r := &Range{Name: first + "/" + last, def: def, seq: s}
	if _, err := r.Bounds(); err != nil {
		return nil, err
	}
	return r, nil
}

// Twiss runs twiss over the default range.
func (s *Sequence) Twiss(args map[string]any) (string, error) {
	r, err := s.DefaultRange()
	if err != nil {
		return "", err
	}
	return r.Twiss(args)
}

// Survey runs survey over the default range.
func (s *Sequence) Survey(args map[string]any) (string, error) {
	r, err := s.DefaultRange()
	if err != nil {
		return "", err
	}
	return r.Survey(args)
}

// Aperture runs aperture over the default range.
func (s *Sequence) Aperture(args map[string]any) (string, error) {
	r, err := s.DefaultRange()
	if err != nil {
		return "", err
	}
	return r.Aperture(args)
}

// prepareAperture makes sure optics were computed over the whole sequence
// and the aperture files are loaded.
func (s *Sequence) prepareAperture() error {
	if s.apertureCalled {
		return nil
	}
	if !s.twissCalled {
		if _, err := s.Twiss(nil); err != nil {
			return err
		}
	}
	if err := s.model.load(s.def.Aperfiles); err != nil {
		return err
	}
	s.apertureCalled = true
	return nil
}

// Range is a span of a sequence.
type Range struct {
	Name string

	def *RangeDef
	seq *Sequence
}

// Bounds parses the range's first and last selectors.
func (r *Range) Bounds() (rangeref.Range, error) {
	first, err := rangeref.ParseSelector(r.def.First)
	if err != nil {
		return rangeref.Range{}, fmt.Errorf("range %q: %w", r.Name, err)
	}
	last, err := rangeref.ParseSelector(r.def.Last)
	if err != nil {
		return rangeref.Range{}, fmt.Errorf("range %q: %w", r.Name, err)
	}
	return rangeref.Range{First: first, Last: last}, nil
}

// TwissInitial returns the named initial conditions with args laid over
// them. An empty name picks default_twiss; a range without one yields just
// args.
func (r *Range) TwissInitial(name string, args map[string]any) (map[string]any, error) {
	if name == "" {
		name = r.def.DefaultTwiss
	}
	out := make(map[string]any)
	if name != "" {
		attrs, ok := r.def.TwissInitial[name]
		if !ok {
			return nil, fmt.Errorf("range %q: twiss_initial %q not found: %w", r.Name, name, errdefs.ErrNotFound)
		}
		maps.Copy(out, attrs.Args())
	}
	maps.Copy(out, args)
	return out, nil
}

// command runs name over the range with args and returns the table it
// writes, which is args["table"] when given and fallback otherwise.
func (r *Range) command(name, fallback string, args map[string]any) (string, error) {
	bounds, err := r.Bounds()
	if err != nil {
		return "", err
	}
	if err := r.seq.ensureUsed(); err != nil {
		return "", err
	}
	args["sequence"] = r.seq.Name
	args["range"] = bounds.String()
	if err := r.seq.model.engine.Command(name, args); err != nil {
		return "", fmt.Errorf("%s over %s/%s: %w", name, r.seq.Name, r.Name, err)
	}
	table := fallback
	if t, ok := args["table"].(string); ok && t != "" {
		table = t
	}
	return table, nil
}

// Twiss computes the optics over the range, starting from the default
// initial conditions overridden by args. It returns the table name.
func (r *Range) Twiss(args map[string]any) (string, error) {
	kw, err := r.TwissInitial("", args)
	if err != nil {
		return "", err
	}
	return r.twiss(kw)
}

func (r *Range) twiss(kw map[string]any) (string, error) {
	table, err := r.command("twiss", "twiss", kw)
	if err != nil {
		return "", err
	}
	if bounds, _ := r.Bounds(); bounds == rangeref.Full {
		r.seq.twissCalled = true
	}
	return table, nil
}

// matchParams are the initial condition keys a matching run accepts.
var matchParams = map[string]bool{
	"rmatrix": true, "chrom": true, "beta0": true, "deltap": true,
	"betx": true, "alfx": true, "mux": true, "x": true, "px": true, "dx": true, "dpx": true,
	"bety": true, "alfy": true, "muy": true, "y": true, "py": true, "dy": true, "dpy": true,
}

// Match runs twiss over the range for matching. Only the match parameters
// of the default initial conditions are kept; args are laid over them
// unfiltered.
func (r *Range) Match(args map[string]any) (string, error) {
	init, err := r.TwissInitial("", nil)
	if err != nil {
		return "", err
	}
	kw := make(map[string]any, len(init)+len(args))
	for k, v := range init {
		if matchParams[strings.ToLower(k)] {
			kw[k] = v
		}
	}
	maps.Copy(kw, args)
	return r.twiss(kw)
}

// Survey computes the machine geometry over the range. The default initial
// conditions are passed along like for twiss.
func (r *Range) Survey(args map[string]any) (string, error) {
	kw, err := r.TwissInitial("", args)
	if err != nil {
		return "", err
	}
	return r.command("survey", "survey", kw)
}

// Aperture computes the aperture over the range, preparing the sequence on
// first use. The range's aper_offset file is passed as offsets unless args
// carries its own.
func (r *Range) Aperture(args map[string]any) (string, error) {
	if err := r.seq.prepareAperture(); err != nil {
		return "", err
	}
	kw := make(map[string]any, len(args)+1)
	maps.Copy(kw, args)
	if _, ok := kw["offsets"]; !ok && r.def.AperOffset != "" {
		kw["offsets"] = r.seq.model.Path(r.def.AperOffset)
	}
	return r.command("aperture", "aperture", kw)
}
