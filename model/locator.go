package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/madxbind/internal/config"
	"github.com/vk/madxbind/internal/errdefs"
	"github.com/vk/madxbind/internal/fsutil"
)

// FileSuffix is the name suffix of model definition files.
const FileSuffix = ".model.hcl"

// Locator finds model definitions by name.
type Locator interface {
	// ListModels returns the names of the models that can be loaded.
	ListModels() ([]string, error)
	// Definition returns the merged definition of a loadable model. Unknown
	// or base-only models yield an errdefs.NotFoundError.
	Definition(name string) (*Definition, error)
}

type entry struct {
	block *modelBlock
	file  string
}

// DirLocator reads model files below a set of directories. Parsed files
// are cached until Invalidate is called.
type DirLocator struct {
	dirs []string

	mu      sync.Mutex
	entries map[string]*entry
}

// NewDirLocator creates a locator over dirs. Directories that do not exist
// contribute no models.
func NewDirLocator(dirs ...string) *DirLocator {
	return &DirLocator{dirs: dirs}
}

// NewLocator creates a locator over the model paths of cfg.
func NewLocator(cfg config.Config) *DirLocator {
	return NewDirLocator(cfg.ModelPaths...)
}

// Invalidate drops the cache; the next lookup rereads the files.
func (l *DirLocator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func (l *DirLocator) load() (map[string]*entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries != nil {
		return l.entries, nil
	}

	files, err := fsutil.FindFiles(l.dirs, FileSuffix)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	entries := make(map[string]*entry)
	var errs []error
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			errs = append(errs, fmt.Errorf("failed to parse HCL file %s: %w", file, diags))
			continue
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			errs = append(errs, fmt.Errorf("failed to decode HCL file %s: %w", file, diags))
			continue
		}

		for _, m := range root.Models {
			if prev, ok := entries[m.Name]; ok {
				errs = append(errs, fmt.Errorf("model %q defined in both %s and %s", m.Name, prev.file, file))
				continue
			}
			entries[m.Name] = &entry{block: m, file: file}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	l.entries = entries
	return entries, nil
}

// ListModels returns the sorted names of the real models.
func (l *DirLocator) ListModels() ([]string, error) {
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	var names []string
	for name, e := range entries {
		if isReal(e.block) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Definition merges the model called name with its bases, most basic first,
// and validates the result.
func (l *DirLocator) Definition(name string) (*Definition, error) {
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[name]
	if !ok || !isReal(e.block) {
		return nil, errdefs.NotFound(errdefs.KindModel, name)
	}

	order, err := linearize(name, func(n string) ([]string, error) {
		base, ok := entries[n]
		if !ok {
			return nil, fmt.Errorf("model %q extends unknown model %q", name, n)
		}
		return base.block.Extends, nil
	})
	if err != nil {
		return nil, err
	}

	def := newDefinition(name, filepath.Dir(e.file))
	def.Real = true
	def.Extends = slices.Clone(e.block.Extends)
	for _, n := range slices.Backward(order) {
		if err := def.apply(entries[n].block); err != nil {
			return nil, fmt.Errorf("model %q: %w", n, err)
		}
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	return def, nil
}

func isReal(b *modelBlock) bool {
	return b.Real == nil || *b.Real
}

// ChainLocator asks each locator in turn; the first that knows a model wins.
type ChainLocator []Locator

// ListModels returns the models of every locator, without duplicates.
func (c ChainLocator) ListModels() ([]string, error) {
	var names []string
	for _, l := range c {
		ns, err := l.ListModels()
		if err != nil {
			return nil, err
		}
		for _, n := range ns {
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
	}
	return names, nil
}

// Definition returns the definition from the first locator that has one.
func (c ChainLocator) Definition(name string) (*Definition, error) {
	for _, l := range c {
		def, err := l.Definition(name)
		if errors.Is(err, errdefs.ErrNotFound) {
			continue
		}
		return def, err
	}
	return nil, errdefs.NotFound(errdefs.KindModel, name)
}
